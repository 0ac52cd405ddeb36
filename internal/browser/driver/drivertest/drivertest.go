// File: internal/browser/driver/drivertest/drivertest.go
//
// Package drivertest runs the same behavioural checks against every
// driver.Driver implementation using a real browser and a local test page.
package drivertest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scalpel-ui/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/locator"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/uierr"
)

// ChromeEnv overrides browser discovery for integration tests.
const ChromeEnv = "SCALPELUI_TEST_CHROME"

var chromeBinaries = []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell", "chrome"}

// ChromePath returns a usable browser binary or skips t.
func ChromePath(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("browser integration test skipped in -short mode")
	}
	if p := os.Getenv(ChromeEnv); p != "" {
		return p
	}
	for _, name := range chromeBinaries {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skipf("no Chrome/Chromium binary found; set %s to run browser tests", ChromeEnv)
	return ""
}

// Page is the fixture served to the browser.
const Page = `<!DOCTYPE html>
<html>
<head><title>Fixture</title>
<style>#hidden { display: none; } #title { color: rgb(255, 0, 0); }</style>
</head>
<body>
  <h1 id="title" class="headline big">Fixture page</h1>
  <a href="#next" id="more">More information...</a>
  <div id="panel"><span class="item">first</span><span class="item">second</span></div>
  <div id="hidden">invisible</div>
  <form id="login" onsubmit="event.preventDefault(); document.getElementById('status').textContent = 'submitted';">
    <input id="user" name="user" type="text" value="preset">
    <input id="remember" type="checkbox" checked>
    <button id="disabled" type="button" disabled>Disabled</button>
  </form>
  <button id="counter" type="button" onclick="this.textContent = String(Number(this.textContent) + 1);">0</button>
  <button id="rerender" type="button" onclick="const p = document.getElementById('panel'); p.replaceWith(p.cloneNode(true));">Rerender</button>
  <div id="status"></div>
</body>
</html>`

// Server serves Page at "/".
func Server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(Page))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// Options returns headless launch options for the binary at execPath.
func Options(execPath string) driver.Options {
	return driver.Options{
		Kind:          driver.Chrome,
		Headless:      true,
		ExecPath:      execPath,
		WindowWidth:   1280,
		WindowHeight:  800,
		LaunchTimeout: 60 * time.Second,
	}
}

// Run launches a browser with l and checks every driver primitive against Page.
func Run(t *testing.T, l driver.Launcher) {
	t.Helper()
	execPath := ChromePath(t)
	srv := Server(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	d, err := l.Launch(ctx, Options(execPath))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close(context.Background()) })

	require.NoError(t, d.Navigate(ctx, srv.URL+"/"))

	find := func(t *testing.T, loc locator.Locator) driver.ElementRef {
		t.Helper()
		el, err := d.FindElement(ctx, nil, loc)
		require.NoError(t, err, loc.String())
		return el
	}

	t.Run("title and url", func(t *testing.T) {
		title, err := d.Title(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Fixture", title)
		url, err := d.CurrentURL(ctx)
		require.NoError(t, err)
		assert.Equal(t, srv.URL+"/", url)
	})

	t.Run("every strategy resolves", func(t *testing.T) {
		for _, loc := range []locator.Locator{
			locator.ByXPath("//h1"),
			locator.ByCSS("h1.headline"),
			locator.ByID("title"),
			locator.ByName("user"),
			locator.ByClassName("big"),
			locator.ByTagName("h1"),
			locator.ByLinkText("More information..."),
			locator.ByPartialLinkText("More info"),
		} {
			find(t, loc)
		}
	})

	t.Run("missing element", func(t *testing.T) {
		_, err := d.FindElement(ctx, nil, locator.ByID("nope"))
		assert.ErrorIs(t, err, uierr.ErrNoSuchElement)
	})

	t.Run("invalid selector", func(t *testing.T) {
		_, err := d.FindElement(ctx, nil, locator.ByXPath("//h1["))
		assert.ErrorIs(t, err, uierr.ErrInvalidSelector)
	})

	t.Run("scoped lookup", func(t *testing.T) {
		panel := find(t, locator.ByID("panel"))
		item, err := d.FindElement(ctx, panel, locator.ByCSS(".item"))
		require.NoError(t, err)
		text, err := d.Text(ctx, item)
		require.NoError(t, err)
		assert.Equal(t, "first", text)
	})

	t.Run("state reads", func(t *testing.T) {
		shown, err := d.IsDisplayed(ctx, find(t, locator.ByID("title")))
		require.NoError(t, err)
		assert.True(t, shown)

		shown, err = d.IsDisplayed(ctx, find(t, locator.ByID("hidden")))
		require.NoError(t, err)
		assert.False(t, shown)

		enabled, err := d.IsEnabled(ctx, find(t, locator.ByID("disabled")))
		require.NoError(t, err)
		assert.False(t, enabled)
	})

	t.Run("attributes and css", func(t *testing.T) {
		user := find(t, locator.ByID("user"))
		v, ok, err := d.Attribute(ctx, user, "name")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "user", v)

		_, ok, err = d.Attribute(ctx, user, "data-missing")
		require.NoError(t, err)
		assert.False(t, ok)

		v, ok, err = d.Attribute(ctx, find(t, locator.ByID("remember")), "checked")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "true", v)

		color, err := d.CSSValue(ctx, find(t, locator.ByID("title")), "color")
		require.NoError(t, err)
		assert.Equal(t, "rgb(255, 0, 0)", color)
	})

	t.Run("click", func(t *testing.T) {
		counter := find(t, locator.ByID("counter"))
		require.NoError(t, d.Click(ctx, counter))
		text, err := d.Text(ctx, counter)
		require.NoError(t, err)
		assert.Equal(t, "1", text)
	})

	t.Run("typing", func(t *testing.T) {
		user := find(t, locator.ByID("user"))
		require.NoError(t, d.SelectAll(ctx, user))
		require.NoError(t, d.SendKeys(ctx, user, "alice"))
		v, _, err := d.Attribute(ctx, user, "value")
		require.NoError(t, err)
		assert.Equal(t, "alice", v)

		require.NoError(t, d.SendKeys(ctx, user, "!"))
		v, _, err = d.Attribute(ctx, user, "value")
		require.NoError(t, err)
		assert.Equal(t, "alice!", v)

		require.NoError(t, d.Clear(ctx, user))
		v, _, err = d.Attribute(ctx, user, "value")
		require.NoError(t, err)
		assert.Empty(t, v)
	})

	t.Run("submit", func(t *testing.T) {
		require.NoError(t, d.Submit(ctx, find(t, locator.ByID("user"))))
		text, err := d.Text(ctx, find(t, locator.ByID("status")))
		require.NoError(t, err)
		assert.Equal(t, "submitted", text)
	})

	t.Run("stale reference", func(t *testing.T) {
		item := find(t, locator.ByCSS("#panel .item"))
		require.NoError(t, d.Click(ctx, find(t, locator.ByID("rerender"))))
		_, err := d.Text(ctx, item)
		assert.ErrorIs(t, err, uierr.ErrStaleReference)
	})

	t.Run("scripts", func(t *testing.T) {
		v, err := d.ExecuteScript(ctx, "return arguments[0] + arguments[1];", 40, 2)
		require.NoError(t, err)
		assert.Equal(t, float64(42), v)

		v, err = d.ExecuteScript(ctx, "return arguments[1].id + ':' + arguments[0];", "x", find(t, locator.ByID("title")))
		require.NoError(t, err)
		assert.Equal(t, "title:x", v)

		v, err = d.ExecuteScript(ctx, "return document.readyState;")
		require.NoError(t, err)
		assert.Equal(t, "complete", v)

		_, err = d.ExecuteScript(ctx, "throw new Error('boom');")
		assert.ErrorIs(t, err, uierr.ErrJavaScript)
	})

	t.Run("dialogs", func(t *testing.T) {
		_, err := d.DialogText(ctx)
		assert.ErrorIs(t, err, uierr.ErrNoDialog)

		_, err = d.ExecuteScript(ctx, `setTimeout(function() { alert("Alert: Hi!"); }, 0);`)
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			open, err := d.HasActiveDialog(ctx)
			return err == nil && open
		}, 10*time.Second, 50*time.Millisecond)

		text, err := d.DialogText(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Alert: Hi!", text)
		require.NoError(t, d.AcceptDialog(ctx))

		open, err := d.HasActiveDialog(ctx)
		require.NoError(t, err)
		assert.False(t, open)
	})

	t.Run("artifacts", func(t *testing.T) {
		png, err := d.Screenshot(ctx)
		require.NoError(t, err)
		require.Greater(t, len(png), 8)
		assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])

		src, err := d.PageSource(ctx)
		require.NoError(t, err)
		assert.Contains(t, src, `id="counter"`)
	})

	t.Run("refresh", func(t *testing.T) {
		require.NoError(t, d.Refresh(ctx))
		text, err := d.Text(ctx, find(t, locator.ByID("counter")))
		require.NoError(t, err)
		assert.Equal(t, "0", text)
	})

	t.Run("implicit wait", func(t *testing.T) {
		_, err := d.ExecuteScript(ctx, `setTimeout(function() {
  const el = document.createElement('p');
  el.id = 'late';
  document.body.appendChild(el);
}, 300);`)
		require.NoError(t, err)

		d.SetImplicitWait(5 * time.Second)
		defer d.SetImplicitWait(0)
		_, err = d.FindElement(ctx, nil, locator.ByID("late"))
		assert.NoError(t, err)
	})

	t.Run("close", func(t *testing.T) {
		require.NoError(t, d.Close(ctx))
		require.NoError(t, d.Close(ctx), "closing twice is a no-op")
		_, err := d.Title(ctx)
		assert.ErrorIs(t, err, uierr.ErrSessionClosed)
	})
}
