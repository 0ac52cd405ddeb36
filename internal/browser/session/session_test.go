// internal/browser/session/session_test.go
package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/scalpel-ui/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/locator"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/uierr"
	"github.com/xkilldash9x/scalpel-ui/internal/config"
	"github.com/xkilldash9x/scalpel-ui/internal/mocks"
)

const startURL = "https://example.test/"

const readyScript = "return document.readyState;"

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Automation.DefaultTimeout = 200 * time.Millisecond
	cfg.Automation.PollInitialInterval = time.Millisecond
	cfg.Automation.PollMaxInterval = 5 * time.Millisecond
	cfg.Automation.PollJitter = false
	cfg.Automation.CloseTimeout = time.Second
	cfg.Browser.NavigationTimeout = time.Second
	return cfg
}

// newSession returns a closed Session whose launcher hands out drv.
func newSession(t *testing.T, cfg *config.Config, drv *mocks.MockDriver) (*Session, *mocks.MockLauncher) {
	t.Helper()
	launcher := &mocks.MockLauncher{}
	launcher.Test(t)
	t.Cleanup(func() { launcher.AssertExpectations(t) })
	if drv != nil {
		launcher.On("Launch", mock.Anything, mock.AnythingOfType("driver.Options")).Return(drv, nil)
	}
	s, err := New(cfg, launcher, zaptest.NewLogger(t))
	require.NoError(t, err)
	return s, launcher
}

// openSession returns a Session already opened on drv.
func openSession(t *testing.T, drv *mocks.MockDriver) *Session {
	t.Helper()
	s, _ := newSession(t, testConfig(), drv)
	drv.On("Navigate", mock.Anything, startURL).Return(nil).Once()
	drv.On("MaximizeWindow", mock.Anything).Return(nil).Once()
	require.NoError(t, s.Open(context.Background(), startURL))
	return s
}

// -- Lifecycle --

func TestNew(t *testing.T) {
	t.Run("rejects unknown browser kind", func(t *testing.T) {
		cfg := testConfig()
		cfg.Browser.Kind = "netscape"
		_, err := New(cfg, &mocks.MockLauncher{}, nil)
		assert.ErrorContains(t, err, `unknown browser kind "netscape"`)
	})
	t.Run("requires a launcher", func(t *testing.T) {
		_, err := New(testConfig(), nil, nil)
		assert.Error(t, err)
	})
	t.Run("maps config onto launch options", func(t *testing.T) {
		cfg := testConfig()
		cfg.Browser.Kind = "edge"
		cfg.Browser.Headless = false
		cfg.Browser.Args = []string{"--mute-audio"}
		s, err := New(cfg, &mocks.MockLauncher{}, nil)
		require.NoError(t, err)

		assert.Equal(t, driver.Edge, s.BrowserKind())
		assert.False(t, s.opts.Headless)
		assert.Equal(t, []string{"--mute-audio"}, s.opts.Args)
		assert.Equal(t, 1920, s.opts.WindowWidth)
		assert.Equal(t, 200*time.Millisecond, s.DefaultTimeout())
		assert.NotEmpty(t, s.ID())
		assert.False(t, s.IsOpen())
	})
}

func TestSession_OpenAndClose(t *testing.T) {
	drv := mocks.NewMockDriver(t)
	s := openSession(t, drv)
	assert.True(t, s.IsOpen())

	drv.On("Close", mock.Anything).Return(nil).Once()
	require.NoError(t, s.Close(context.Background()))
	assert.False(t, s.IsOpen())

	// Closing again is a no-op.
	require.NoError(t, s.Close(context.Background()))
}

func TestSession_OpenToleratesMaximizeFailure(t *testing.T) {
	drv := mocks.NewMockDriver(t)
	s, _ := newSession(t, testConfig(), drv)
	drv.On("Navigate", mock.Anything, startURL).Return(nil).Once()
	drv.On("MaximizeWindow", mock.Anything).Return(errors.New("headless")).Once()

	require.NoError(t, s.Open(context.Background(), startURL))
	assert.True(t, s.IsOpen())
}

func TestSession_OpenLaunchFailure(t *testing.T) {
	s, launcher := newSession(t, testConfig(), nil)
	cause := errors.New("chrome not found")
	launcher.On("Launch", mock.Anything, mock.Anything).Return(nil, cause).Once()

	err := s.Open(context.Background(), startURL)
	assert.ErrorIs(t, err, uierr.ErrSessionLaunch)
	assert.ErrorIs(t, err, cause)
	assert.False(t, s.IsOpen())
}

func TestSession_OpenNavigationFailureClosesBrowser(t *testing.T) {
	drv := mocks.NewMockDriver(t)
	s, _ := newSession(t, testConfig(), drv)
	cause := uierr.Newf(uierr.KindTransport, "navigate", "net::ERR_NAME_NOT_RESOLVED")
	drv.On("Navigate", mock.Anything, startURL).Return(cause).Once()
	drv.On("Close", mock.Anything).Return(nil).Once()

	err := s.Open(context.Background(), startURL)
	assert.ErrorIs(t, err, cause)
	assert.False(t, s.IsOpen())
}

func TestSession_OpenReplacesLiveInstance(t *testing.T) {
	first := mocks.NewMockDriver(t)
	second := mocks.NewMockDriver(t)

	s, launcher := newSession(t, testConfig(), nil)
	launcher.On("Launch", mock.Anything, mock.Anything).Return(first, nil).Once()
	launcher.On("Launch", mock.Anything, mock.Anything).Return(second, nil).Once()
	for _, d := range []*mocks.MockDriver{first, second} {
		d.On("Navigate", mock.Anything, startURL).Return(nil).Once()
		d.On("MaximizeWindow", mock.Anything).Return(nil).Once()
	}
	first.On("Close", mock.Anything).Return(nil).Once()

	ctx := context.Background()
	require.NoError(t, s.Open(ctx, startURL))
	require.NoError(t, s.Open(ctx, startURL))

	got, err := s.Driver()
	require.NoError(t, err)
	assert.Same(t, second, got)
}

func TestSession_ThrottleWrapsDriver(t *testing.T) {
	drv := mocks.NewMockDriver(t)
	cfg := testConfig()
	cfg.Automation.MaxCommandsPerSecond = 1000
	s, _ := newSession(t, cfg, drv)
	drv.On("Navigate", mock.Anything, startURL).Return(nil).Once()
	drv.On("MaximizeWindow", mock.Anything).Return(nil).Once()
	require.NoError(t, s.Open(context.Background(), startURL))

	got, err := s.Driver()
	require.NoError(t, err)
	_, isMock := got.(*mocks.MockDriver)
	assert.False(t, isMock, "the driver should be wrapped by the command throttle")
}

func TestSession_RequiresOpenInstance(t *testing.T) {
	s, _ := newSession(t, testConfig(), nil)
	ctx := context.Background()

	calls := map[string]func() error{
		"navigate": func() error { return s.NavigateTo(ctx, startURL) },
		"refresh":  func() error { return s.Refresh(ctx) },
		"script":   func() error { _, err := s.ExecuteScript(ctx, "return 1;"); return err },
		"url":      func() error { _, err := s.URL(ctx); return err },
		"title":    func() error { _, err := s.Title(ctx); return err },
		"source":   func() error { _, err := s.PageSource(ctx); return err },
		"attach":   func() error { return s.AttachToPage(ctx, &BasePage{}) },
		"ready":    func() error { return s.WaitForPageReady(ctx, time.Second) },
		"alert":    func() error { _, err := s.GetAlertText(ctx, true); return err },
		"find":     func() error { _, err := s.FindByXPath("//a"); return err },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, call(), uierr.ErrPrecondition)
		})
	}
}

func TestSession_ExecuteScriptPropagatesErrors(t *testing.T) {
	drv := mocks.NewMockDriver(t)
	s := openSession(t, drv)
	ref := mocks.Ref("el")
	cause := uierr.Newf(uierr.KindJavaScript, "execute script", "ReferenceError: foo is not defined")

	drv.On("ExecuteScript", mock.Anything, "return foo;", []any(nil)).Return(nil, cause).Once()
	drv.On("ExecuteScript", mock.Anything, "return arguments[0].id;", []any{ref}).Return("main", nil).Once()

	_, err := s.ExecuteScript(context.Background(), "return foo;")
	assert.Same(t, cause, err)

	v, err := s.ExecuteScript(context.Background(), "return arguments[0].id;", ref)
	require.NoError(t, err)
	assert.Equal(t, "main", v)
}

func TestSession_NavigateAndReads(t *testing.T) {
	drv := mocks.NewMockDriver(t)
	s := openSession(t, drv)
	ctx := context.Background()

	drv.On("Navigate", mock.Anything, "https://example.test/next").Return(nil).Once()
	drv.On("Refresh", mock.Anything).Return(nil).Once()
	drv.On("CurrentURL", mock.Anything).Return("https://example.test/next", nil).Once()
	drv.On("Title", mock.Anything).Return("Next", nil).Once()
	drv.On("Screenshot", mock.Anything).Return([]byte{0x89, 'P', 'N', 'G'}, nil).Once()

	require.NoError(t, s.NavigateTo(ctx, "https://example.test/next"))
	require.NoError(t, s.Refresh(ctx))
	url, err := s.URL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/next", url)
	title, err := s.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Next", title)
	png, err := s.Screenshot(ctx)
	require.NoError(t, err)
	assert.Len(t, png, 4)
}

// -- Page attachment --

type loginPage struct {
	BasePage
}

func TestSession_AttachToPageWaitsForReadyState(t *testing.T) {
	defer goleak.VerifyNone(t)
	drv := mocks.NewMockDriver(t)
	s := openSession(t, drv)

	drv.On("ExecuteScript", mock.Anything, readyScript, []any(nil)).Return("loading", nil).Once()
	drv.On("ExecuteScript", mock.Anything, readyScript, []any(nil)).Return("interactive", nil).Once()
	drv.On("ExecuteScript", mock.Anything, readyScript, []any(nil)).Return("complete", nil).Once()
	drv.On("SetImplicitWait", 150*time.Millisecond).Return().Once()
	drv.On("MaximizeWindow", mock.Anything).Return(errors.New("headless")).Once()
	drv.On("ExecuteScript", mock.Anything, "window.focus();", []any(nil)).Return(nil, nil).Once()

	page := &loginPage{BasePage{PageTimeout: 150 * time.Millisecond}}
	require.NoError(t, s.AttachToPage(context.Background(), page))

	require.NotNil(t, page.Doc)
	assert.Equal(t, 150*time.Millisecond, page.Doc.Timeout())

	h := page.Doc.ByXPath("//input[@name='user']")
	assert.Equal(t, locator.ByXPath("//input[@name='user']"), h.Locator())
	assert.Equal(t, 150*time.Millisecond, h.Timeout())
	assert.False(t, h.Bound(), "handles are bound lazily")
}

func TestSession_AttachToPageFallsBackToDefaultTimeout(t *testing.T) {
	drv := mocks.NewMockDriver(t)
	s := openSession(t, drv)
	s.SetDefaultTimeout(300 * time.Millisecond)

	drv.On("ExecuteScript", mock.Anything, readyScript, []any(nil)).Return("complete", nil).Once()
	drv.On("SetImplicitWait", 300*time.Millisecond).Return().Once()
	drv.On("MaximizeWindow", mock.Anything).Return(nil).Once()
	drv.On("ExecuteScript", mock.Anything, "window.focus();", []any(nil)).Return(nil, nil).Once()

	page := &BasePage{}
	require.NoError(t, s.AttachToPage(context.Background(), page))
	assert.Equal(t, 300*time.Millisecond, page.Doc.Timeout())
}

func TestSession_AttachToPageTimesOut(t *testing.T) {
	drv := mocks.NewMockDriver(t)
	s := openSession(t, drv)
	drv.On("ExecuteScript", mock.Anything, readyScript, []any(nil)).Return("loading", nil)

	page := &BasePage{PageTimeout: 100 * time.Millisecond}
	start := time.Now()
	err := s.AttachToPage(context.Background(), page)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, uierr.ErrPageLoadTimeout)
	var te *uierr.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, te.Last.Error(), `"loading"`)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
	assert.Nil(t, page.Doc)
}

func TestSession_ReadyDetectorRetriesTransportErrors(t *testing.T) {
	drv := mocks.NewMockDriver(t)
	s := openSession(t, drv)
	drv.On("ExecuteScript", mock.Anything, readyScript, []any(nil)).
		Return(nil, uierr.Newf(uierr.KindJavaScript, "execute script", "Execution context was destroyed")).Once()
	drv.On("ExecuteScript", mock.Anything, readyScript, []any(nil)).Return("complete", nil).Once()

	require.NoError(t, s.WaitForPageReady(context.Background(), time.Second))
}

func TestSession_ReadyDetectorStopsOnClosedSession(t *testing.T) {
	drv := mocks.NewMockDriver(t)
	s := openSession(t, drv)
	closed := uierr.New(uierr.KindSessionClosed, "execute script", nil)
	drv.On("ExecuteScript", mock.Anything, readyScript, []any(nil)).Return(nil, closed).Once()

	start := time.Now()
	err := s.WaitForPageReady(context.Background(), 5*time.Second)
	assert.ErrorIs(t, err, uierr.ErrSessionClosed)
	assert.NotErrorIs(t, err, uierr.ErrPageLoadTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

// -- Scoped run --

func TestRun_ClosesAfterSuccessAndFailure(t *testing.T) {
	cause := errors.New("scenario failed")
	for name, fnErr := range map[string]error{"success": nil, "failure": cause} {
		t.Run(name, func(t *testing.T) {
			drv := mocks.NewMockDriver(t)
			s, _ := newSession(t, testConfig(), drv)
			drv.On("Navigate", mock.Anything, startURL).Return(nil).Once()
			drv.On("MaximizeWindow", mock.Anything).Return(nil).Once()
			drv.On("Close", mock.Anything).Return(nil).Once()

			err := Run(context.Background(), s, startURL, func(ctx context.Context, s *Session) error {
				assert.True(t, s.IsOpen())
				return fnErr
			})
			if fnErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, cause)
			}
			assert.False(t, s.IsOpen())
		})
	}
}

func TestRun_ClosesOnPanic(t *testing.T) {
	drv := mocks.NewMockDriver(t)
	s, _ := newSession(t, testConfig(), drv)
	drv.On("Navigate", mock.Anything, startURL).Return(nil).Once()
	drv.On("MaximizeWindow", mock.Anything).Return(nil).Once()
	drv.On("Close", mock.Anything).Return(nil).Once()

	assert.PanicsWithValue(t, "boom", func() {
		_ = Run(context.Background(), s, startURL, func(context.Context, *Session) error {
			panic("boom")
		})
	})
	assert.False(t, s.IsOpen())
}

func TestRun_ClosesOnDetachedContextAfterCancel(t *testing.T) {
	drv := mocks.NewMockDriver(t)
	s, _ := newSession(t, testConfig(), drv)
	drv.On("Navigate", mock.Anything, startURL).Return(nil).Once()
	drv.On("MaximizeWindow", mock.Anything).Return(nil).Once()

	var closeCtxErr error
	drv.On("Close", mock.Anything).Run(func(args mock.Arguments) {
		closeCtxErr = args.Get(0).(context.Context).Err()
	}).Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	err := Run(ctx, s, startURL, func(ctx context.Context, s *Session) error {
		cancel()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, closeCtxErr, "close must not inherit the caller's cancellation")
	assert.False(t, s.IsOpen())
}

func TestRun_JoinsCloseError(t *testing.T) {
	drv := mocks.NewMockDriver(t)
	s, _ := newSession(t, testConfig(), drv)
	closeErr := errors.New("browser hung")
	drv.On("Navigate", mock.Anything, startURL).Return(nil).Once()
	drv.On("MaximizeWindow", mock.Anything).Return(nil).Once()
	drv.On("Close", mock.Anything).Return(closeErr).Once()

	err := Run(context.Background(), s, startURL, func(context.Context, *Session) error { return nil })
	assert.ErrorIs(t, err, closeErr)
}

func TestRun_OpenFailureSkipsBody(t *testing.T) {
	s, launcher := newSession(t, testConfig(), nil)
	launcher.On("Launch", mock.Anything, mock.Anything).Return(nil, errors.New("no browser")).Once()

	called := false
	err := Run(context.Background(), s, startURL, func(context.Context, *Session) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, uierr.ErrSessionLaunch)
	assert.False(t, called)
}
