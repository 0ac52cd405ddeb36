// File: internal/scenario/runner_test.go
package scenario

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/scalpel-ui/internal/browser/locator"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/session"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/uierr"
	"github.com/xkilldash9x/scalpel-ui/internal/config"
	"github.com/xkilldash9x/scalpel-ui/internal/mocks"
	"github.com/xkilldash9x/scalpel-ui/internal/reporting"
)

const startURL = "https://example.test/"

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Automation.DefaultTimeout = 300 * time.Millisecond
	cfg.Automation.PollInitialInterval = time.Millisecond
	cfg.Automation.PollMaxInterval = 5 * time.Millisecond
	cfg.Automation.PollJitter = false
	cfg.Automation.CloseTimeout = time.Second
	cfg.Browser.NavigationTimeout = time.Second
	return cfg
}

// newRunner wires a Runner to a session whose launcher hands out drv. The
// calls every run makes (open, page attach, close) are expected up front.
func newRunner(t *testing.T, drv *mocks.MockDriver, opts ...Option) *Runner {
	t.Helper()
	launcher := &mocks.MockLauncher{}
	launcher.Test(t)
	t.Cleanup(func() { launcher.AssertExpectations(t) })
	launcher.On("Launch", mock.Anything, mock.Anything).Return(drv, nil).Once()

	drv.On("Navigate", mock.Anything, startURL).Return(nil)
	drv.On("MaximizeWindow", mock.Anything).Return(nil)
	drv.On("SetImplicitWait", mock.Anything).Return()
	drv.On("ExecuteScript", mock.Anything, "return document.readyState;", []any(nil)).Return("complete", nil)
	drv.On("ExecuteScript", mock.Anything, "window.focus();", []any(nil)).Return(nil, nil)
	drv.On("Close", mock.Anything).Return(nil).Once()

	s, err := session.New(testConfig(), launcher, zaptest.NewLogger(t))
	require.NoError(t, err)
	return NewRunner(s, zaptest.NewLogger(t), opts...)
}

func parse(t *testing.T, doc string) *Scenario {
	t.Helper()
	sc, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	return sc
}

const loginYAML = `
name: login
url: https://example.test/
pages:
  login:
    elements:
      user: {id: user}
      submit: {css: "button[type=submit]"}
      status: {id: status}
      form: {tag_name: form}
      field: {name: q, within: form}
cases:
  - name: sign in
    page: login
    steps:
      - {action: type, element: user, text: alice}
      - {action: click, element: submit}
      - {action: expect_text, element: status, contains: Welcome}
      - {action: type, element: field, text: more, clear: false}
  - name: alert
    steps:
      - {action: alert, create: "Alert: Hi!", equals: "Alert: Hi!"}
`

func TestRunner_PassingScenario(t *testing.T) {
	drv := mocks.NewMockDriver(t)
	r := newRunner(t, drv, WithDriverName("chromedp"))

	drv.On("FindElement", mock.Anything, nil, locator.ByID("user")).Return(mocks.Ref("u"), nil).Once()
	drv.On("SelectAll", mock.Anything, mocks.Ref("u")).Return(nil).Once()
	drv.On("SendKeys", mock.Anything, mocks.Ref("u"), "alice").Return(nil).Once()

	drv.On("FindElement", mock.Anything, nil, locator.ByCSS("button[type=submit]")).Return(mocks.Ref("s"), nil).Once()
	drv.On("Click", mock.Anything, mocks.Ref("s")).Return(nil).Once()

	// The text settles after a couple of polls.
	drv.On("FindElement", mock.Anything, nil, locator.ByID("status")).Return(mocks.Ref("st"), nil).Once()
	drv.On("Text", mock.Anything, mocks.Ref("st")).Return("Loading", nil).Twice()
	drv.On("Text", mock.Anything, mocks.Ref("st")).Return("Welcome alice", nil).Once()

	// Scoped lookup: the child is searched inside the form.
	drv.On("FindElement", mock.Anything, nil, locator.ByTagName("form")).Return(mocks.Ref("f"), nil).Once()
	drv.On("FindElement", mock.Anything, mocks.Ref("f"), locator.ByName("q")).Return(mocks.Ref("q"), nil).Once()
	drv.On("SendKeys", mock.Anything, mocks.Ref("q"), "more").Return(nil).Once()

	drv.On("ExecuteScript", mock.Anything, `setTimeout(function() { alert("Alert: Hi!"); }, 0);`, []any(nil)).Return(nil, nil).Once()
	drv.On("HasActiveDialog", mock.Anything).Return(true, nil).Once()
	drv.On("DialogText", mock.Anything).Return("Alert: Hi!", nil).Once()
	drv.On("AcceptDialog", mock.Anything).Return(nil).Once()

	suite := r.Run(context.Background(), parse(t, loginYAML))

	assert.True(t, suite.OK(), "suite error: %s", suite.Error)
	assert.Equal(t, "login", suite.Name)
	assert.Equal(t, "chromedp", suite.Driver)
	assert.NotEmpty(t, suite.ID)
	require.Len(t, suite.Cases, 2)
	for _, c := range suite.Cases {
		assert.Equal(t, reporting.StatusPassed, c.Status, c.Error)
	}
	require.Len(t, suite.Cases[0].Steps, 4)
	assert.Equal(t, "expect_text", suite.Cases[0].Steps[2].Action)
	assert.Equal(t, "status", suite.Cases[0].Steps[2].Element)

	// Open plus the reset before the second case.
	drv.AssertNumberOfCalls(t, "Navigate", 2)
}

func TestRunner_FailedCaseCapturesArtifacts(t *testing.T) {
	drv := mocks.NewMockDriver(t)
	r := newRunner(t, drv, WithScreenshots(true))

	drv.On("FindElement", mock.Anything, nil, locator.ByID("status")).Return(mocks.Ref("st"), nil)
	drv.On("Text", mock.Anything, mocks.Ref("st")).Return("Denied", nil)
	drv.On("Screenshot", mock.Anything).Return([]byte("png"), nil).Once()
	drv.On("PageSource", mock.Anything).Return("<html>denied</html>", nil).Once()

	sc := parse(t, `
name: failing
url: https://example.test/
pages:
  p:
    timeout: 100ms
    elements:
      status: {id: status}
      user: {id: user}
cases:
  - name: welcome
    page: p
    steps:
      - {action: expect_text, element: status, equals: Welcome}
      - {action: click, element: user}
`)
	suite := r.Run(context.Background(), sc)

	assert.False(t, suite.OK())
	assert.Empty(t, suite.Error)
	require.Len(t, suite.Cases, 1)
	c := suite.Cases[0]
	assert.Equal(t, reporting.StatusFailed, c.Status)
	assert.Contains(t, c.Error, `step 1 (expect_text): expectation not met within 100ms: text is "Denied", want "Welcome"`)
	assert.Equal(t, []byte("png"), c.Screenshot)
	assert.Equal(t, "<html>denied</html>", c.PageSource)

	require.Len(t, c.Steps, 2)
	assert.Equal(t, reporting.StatusFailed, c.Steps[0].Status)
	assert.Equal(t, reporting.StatusSkipped, c.Steps[1].Status)
	drv.AssertNotCalled(t, "Click", mock.Anything, mock.Anything)
}

func TestRunner_ExpectHidden(t *testing.T) {
	drv := mocks.NewMockDriver(t)
	r := newRunner(t, drv)

	// One element is never rendered, the other disappears.
	drv.On("FindElement", mock.Anything, nil, locator.ByID("gone")).Return(nil, uierr.New(uierr.KindNoSuchElement, "find", nil))
	drv.On("FindElement", mock.Anything, nil, locator.ByID("spinner")).Return(mocks.Ref("sp"), nil).Once()
	drv.On("IsDisplayed", mock.Anything, mocks.Ref("sp")).Return(true, nil).Once()
	drv.On("IsDisplayed", mock.Anything, mocks.Ref("sp")).Return(false, nil).Once()

	sc := parse(t, `
url: https://example.test/
pages:
  p:
    timeout: 300ms
    elements:
      gone: {id: gone}
      spinner: {id: spinner}
cases:
  - name: hidden
    page: p
    steps:
      - {action: expect_hidden, element: gone}
      - {action: expect_hidden, element: spinner}
`)
	suite := r.Run(context.Background(), sc)
	require.Len(t, suite.Cases, 1)
	assert.Equal(t, reporting.StatusPassed, suite.Cases[0].Status, suite.Cases[0].Error)
}

func TestRunner_ScriptSteps(t *testing.T) {
	drv := mocks.NewMockDriver(t)
	r := newRunner(t, drv)

	drv.On("ExecuteScript", mock.Anything, "window.scrollBy(0, 400);", []any(nil)).Return(nil, nil).Once()
	drv.On("ExecuteScript", mock.Anything, "localStorage.clear();", []any(nil)).Return(nil, nil).Once()
	drv.On("FindElement", mock.Anything, nil, locator.ByID("menu")).Return(mocks.Ref("m"), nil).Once()
	drv.On("ExecuteScript", mock.Anything, mock.MatchedBy(func(s string) bool {
		return strings.Contains(s, `new MouseEvent("mouseover"`)
	}), []any{mocks.Ref("m")}).Return(nil, nil).Once()
	drv.On("ExecuteScript", mock.Anything, "arguments[0].scrollIntoView(false);", []any{mocks.Ref("m")}).Return(nil, nil).Once()
	drv.On("Refresh", mock.Anything).Return(nil).Once()

	sc := parse(t, `
url: https://example.test/
pages:
  p: {elements: {menu: {id: menu}}}
cases:
  - name: scripts
    page: p
    steps:
      - {action: scroll_by, y: 400}
      - {action: execute, script: "localStorage.clear();"}
      - {action: hover, element: menu}
      - {action: scroll_into_view, element: menu, align: false}
      - {action: refresh}
`)
	suite := r.Run(context.Background(), sc)
	require.Len(t, suite.Cases, 1)
	assert.Equal(t, reporting.StatusPassed, suite.Cases[0].Status, suite.Cases[0].Error)
}

func TestRunner_AlertTextMismatch(t *testing.T) {
	drv := mocks.NewMockDriver(t)
	r := newRunner(t, drv)

	drv.On("HasActiveDialog", mock.Anything).Return(true, nil).Once()
	drv.On("DialogText", mock.Anything).Return("Leave page?", nil).Once()
	drv.On("DismissDialog", mock.Anything).Return(nil).Once()

	sc := parse(t, `
url: https://example.test/
cases:
  - name: confirm
    steps:
      - {action: alert, accept: false, contains: Stay}
`)
	suite := r.Run(context.Background(), sc)
	require.Len(t, suite.Cases, 1)
	assert.Equal(t, reporting.StatusFailed, suite.Cases[0].Status)
	assert.Contains(t, suite.Cases[0].Error, `alert text is "Leave page?", want it to contain "Stay"`)
}

func TestRunner_LaunchFailureSkipsCases(t *testing.T) {
	launcher := &mocks.MockLauncher{}
	launcher.Test(t)
	launcher.On("Launch", mock.Anything, mock.Anything).Return(nil, errors.New("no chrome")).Once()
	s, err := session.New(testConfig(), launcher, zaptest.NewLogger(t))
	require.NoError(t, err)

	suite := NewRunner(s, nil).Run(context.Background(), parse(t, loginYAML))

	assert.False(t, suite.OK())
	assert.Contains(t, suite.Error, "no chrome")
	require.Len(t, suite.Cases, 2)
	for _, c := range suite.Cases {
		assert.Equal(t, reporting.StatusSkipped, c.Status)
		assert.Equal(t, "session unavailable", c.Error)
	}
	launcher.AssertExpectations(t)
}

func TestRunner_CancelledContextSkipsRemainingCases(t *testing.T) {
	drv := mocks.NewMockDriver(t)
	r := newRunner(t, drv)

	ctx, cancel := context.WithCancel(context.Background())
	drv.On("ExecuteScript", mock.Anything, "stop();", []any(nil)).Run(func(mock.Arguments) { cancel() }).Return(nil, nil).Once()

	sc := parse(t, `
url: https://example.test/
cases:
  - name: first
    steps: [{action: execute, script: "stop();"}]
  - name: second
    steps: [{action: refresh}]
`)
	suite := r.Run(ctx, sc)

	require.Len(t, suite.Cases, 2)
	assert.Equal(t, reporting.StatusPassed, suite.Cases[0].Status)
	assert.Equal(t, reporting.StatusSkipped, suite.Cases[1].Status)
	assert.Equal(t, context.Canceled.Error(), suite.Cases[1].Error)
	drv.AssertNotCalled(t, "Refresh", mock.Anything)
}

func TestRunner_ScenarioTimeoutBecomesDefault(t *testing.T) {
	drv := mocks.NewMockDriver(t)
	r := newRunner(t, drv)

	sc := parse(t, `
url: https://example.test/
timeout: 45s
cases:
  - name: noop
    steps: [{action: refresh}]
`)
	drv.On("Refresh", mock.Anything).Return(nil).Once()

	suite := r.Run(context.Background(), sc)
	assert.True(t, suite.OK())
	assert.Equal(t, 45*time.Second, r.session.DefaultTimeout())
	drv.AssertCalled(t, "SetImplicitWait", 45*time.Second)
}
