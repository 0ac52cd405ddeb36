package driver_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/scalpel-ui/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/locator"
	"github.com/xkilldash9x/scalpel-ui/internal/mocks"
)

func TestParseBrowserKind(t *testing.T) {
	for in, want := range map[string]driver.BrowserKind{
		"":                 driver.Chrome,
		"Chromium":         driver.Chrome,
		"msedge":           driver.Edge,
		"firefox":          driver.Firefox,
		" IE ":             driver.IE,
		"edge":             driver.Edge,
		"chrome":           driver.Chrome,
		"internetexplorer": driver.IE,
	} {
		got, err := driver.ParseBrowserKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := driver.ParseBrowserKind("safari")
	assert.Error(t, err)

	assert.True(t, driver.Edge.Chromium())
	assert.False(t, driver.Firefox.Chromium())
}

func TestThrottle_NilLimiterIsPassThrough(t *testing.T) {
	m := mocks.NewMockDriver(t)
	assert.Same(t, m, driver.Throttle(m, nil))
}

func TestThrottle_DelegatesAndSpacesCommands(t *testing.T) {
	m := mocks.NewMockDriver(t)
	ref := mocks.Ref("el-1")
	loc := locator.ByID("q")

	m.On("FindElement", mock.Anything, nil, loc).Return(ref, nil).Once()
	m.On("Click", mock.Anything, ref).Return(nil).Twice()
	m.On("SetImplicitWait", time.Second).Once()

	// One token up front, then one every 20ms.
	d := driver.Throttle(m, rate.NewLimiter(rate.Every(20*time.Millisecond), 1))
	ctx := context.Background()

	start := time.Now()
	got, err := d.FindElement(ctx, nil, loc)
	require.NoError(t, err)
	assert.Equal(t, ref, got)
	require.NoError(t, d.Click(ctx, got))
	require.NoError(t, d.Click(ctx, got))
	d.SetImplicitWait(time.Second)

	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestThrottle_RefusalNearDeadlineIsADeadlineError(t *testing.T) {
	m := mocks.NewMockDriver(t)
	d := driver.Throttle(m, rate.NewLimiter(rate.Every(time.Hour), 1))

	m.On("Refresh", mock.Anything).Return(nil).Once()
	require.NoError(t, d.Refresh(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := d.Refresh(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	// The refusal is held until the deadline so that pollers see their own
	// context expire.
	assert.Error(t, ctx.Err())
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestThrottle_RefusalWithoutDeadline(t *testing.T) {
	m := mocks.NewMockDriver(t)
	d := driver.Throttle(m, rate.NewLimiter(rate.Every(time.Hour), 0))

	err := d.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command throttle")
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
}

func TestThrottle_CloseIsNeverThrottled(t *testing.T) {
	m := mocks.NewMockDriver(t)
	d := driver.Throttle(m, rate.NewLimiter(rate.Every(time.Hour), 0))

	m.On("Close", mock.Anything).Return(nil).Once()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.NoError(t, d.Close(ctx))
}

func TestOptions_ResolveExecPath(t *testing.T) {
	path, err := driver.Options{Kind: driver.Edge, ExecPath: "/opt/edge/msedge"}.ResolveExecPath()
	require.NoError(t, err)
	assert.Equal(t, "/opt/edge/msedge", path)

	path, err = driver.Options{Kind: driver.Chrome}.ResolveExecPath()
	require.NoError(t, err)
	assert.Empty(t, path, "chrome discovery is left to the transport")

	t.Setenv("PATH", t.TempDir())
	_, err = driver.Options{Kind: driver.Edge}.ResolveExecPath()
	assert.ErrorContains(t, err, "no Edge binary found")
}
