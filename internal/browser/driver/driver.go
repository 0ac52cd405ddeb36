// File: internal/browser/driver/driver.go
package driver

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/xkilldash9x/scalpel-ui/internal/browser/locator"
)

// ElementRef is a transport-specific handle to a remote element. It is only
// valid until the document changes; callers must be ready for any primitive
// to report uierr.KindStaleReference.
type ElementRef interface {
	RefID() string
}

// Driver is the boundary between the retry engine and a concrete browser
// automation transport. Every error is either a context error or carries a
// uierr.Kind.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Refresh(ctx context.Context) error
	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	MaximizeWindow(ctx context.Context) error
	// SetImplicitWait sets how long FindElement keeps looking before it
	// reports uierr.KindNoSuchElement. It is further bounded by ctx.
	SetImplicitWait(d time.Duration)

	// ExecuteScript runs script as a function body. args are available as
	// arguments[i]; ElementRef args arrive as live elements. The result is
	// JSON-decoded.
	ExecuteScript(ctx context.Context, script string, args ...any) (any, error)
	// FindElement resolves loc under scope, or under the document when scope is nil.
	FindElement(ctx context.Context, scope ElementRef, loc locator.Locator) (ElementRef, error)

	IsDisplayed(ctx context.Context, el ElementRef) (bool, error)
	IsEnabled(ctx context.Context, el ElementRef) (bool, error)
	Text(ctx context.Context, el ElementRef) (string, error)
	Click(ctx context.Context, el ElementRef) error
	// SelectAll focuses el and selects its whole content so the next
	// SendKeys replaces it.
	SelectAll(ctx context.Context, el ElementRef) error
	// SendKeys focuses el and types text at the caret.
	SendKeys(ctx context.Context, el ElementRef, text string) error
	Clear(ctx context.Context, el ElementRef) error
	// Attribute returns the property or attribute value and whether it is present.
	Attribute(ctx context.Context, el ElementRef, name string) (string, bool, error)
	CSSValue(ctx context.Context, el ElementRef, name string) (string, error)
	Submit(ctx context.Context, el ElementRef) error

	HasActiveDialog(ctx context.Context) (bool, error)
	// DialogText, AcceptDialog and DismissDialog report uierr.KindNoDialog
	// when nothing is showing.
	DialogText(ctx context.Context) (string, error)
	AcceptDialog(ctx context.Context) error
	DismissDialog(ctx context.Context) error

	Screenshot(ctx context.Context) ([]byte, error)
	PageSource(ctx context.Context) (string, error)
	Close(ctx context.Context) error
}

// Launcher starts a remote instance and returns a Driver bound to it.
type Launcher interface {
	Launch(ctx context.Context, opts Options) (Driver, error)
}

// BrowserKind selects the browser product to launch.
type BrowserKind string

const (
	Chrome  BrowserKind = "chrome"
	Edge    BrowserKind = "edge"
	Firefox BrowserKind = "firefox"
	IE      BrowserKind = "ie"
)

// ParseBrowserKind accepts the names used in config files.
func ParseBrowserKind(s string) (BrowserKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "chrome", "chromium":
		return Chrome, nil
	case "edge", "msedge":
		return Edge, nil
	case "firefox":
		return Firefox, nil
	case "ie", "internet explorer", "internetexplorer":
		return IE, nil
	}
	return "", fmt.Errorf("unknown browser kind %q", s)
}

// Chromium reports whether the kind speaks the DevTools protocol.
func (k BrowserKind) Chromium() bool {
	return k == Chrome || k == Edge
}

// Options configures a launch.
type Options struct {
	Kind     BrowserKind
	Headless bool
	// ExecPath overrides binary discovery.
	ExecPath string
	// RemoteURL connects to an already running browser instead of starting one.
	RemoteURL       string
	Args            []string
	WindowWidth     int
	WindowHeight    int
	IgnoreTLSErrors bool
	// LaunchTimeout bounds startup and the first round trip.
	LaunchTimeout time.Duration
}

// EdgeBinaries are the executable names tried for Edge when no ExecPath is set.
var EdgeBinaries = []string{"microsoft-edge", "microsoft-edge-stable", "msedge"}

// ResolveExecPath returns the browser binary to start. An empty path means
// the transport's own Chrome discovery applies.
func (o Options) ResolveExecPath() (string, error) {
	if o.ExecPath != "" {
		return o.ExecPath, nil
	}
	if o.Kind != Edge {
		return "", nil
	}
	for _, name := range EdgeBinaries {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no Edge binary found (tried %s); set browser.exec_path", strings.Join(EdgeBinaries, ", "))
}
