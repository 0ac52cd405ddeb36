// File: internal/browser/roddriver/launcher.go
package roddriver

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-ui/internal/browser/driver"
)

const defaultLaunchTimeout = 30 * time.Second

// Launcher starts Chromium-family browsers through go-rod.
type Launcher struct {
	logger *zap.Logger
}

var _ driver.Launcher = (*Launcher)(nil)

func NewLauncher(logger *zap.Logger) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{logger: logger.Named("rod")}
}

type launchResult struct {
	drv *Driver
	err error
}

// Launch starts a browser (or connects to opts.RemoteURL), opens a blank
// tab and returns a Driver for it. Startup is bounded by opts.LaunchTimeout.
func (l *Launcher) Launch(ctx context.Context, opts driver.Options) (driver.Driver, error) {
	if opts.RemoteURL == "" && !opts.Kind.Chromium() {
		return nil, fmt.Errorf("rod cannot drive %s", opts.Kind)
	}

	var proc *launcher.Launcher
	if opts.RemoteURL == "" {
		var err error
		if proc, err = Process(opts); err != nil {
			return nil, err
		}
		l.logger.Info("Launching browser.", zap.String("kind", string(opts.Kind)), zap.Bool("headless", opts.Headless))
	} else {
		l.logger.Info("Attaching to remote browser.", zap.String("url", opts.RemoteURL))
	}

	timeout := opts.LaunchTimeout
	if timeout <= 0 {
		timeout = defaultLaunchTimeout
	}

	// rod binds the connection's lifetime to the context it was created
	// with, so startup runs detached and the deadline is enforced here.
	results := make(chan launchResult, 1)
	go func() {
		d, err := l.start(proc, opts)
		results <- launchResult{drv: d, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-results:
		if r.err != nil {
			return nil, r.err
		}
		l.logger.Info("Browser launched and responsive.")
		return r.drv, nil
	case <-timer.C:
		abandon(proc, results)
		return nil, fmt.Errorf("browser did not respond within %s", timeout)
	case <-ctx.Done():
		abandon(proc, results)
		return nil, ctx.Err()
	}
}

// abandon kills a launch that missed its deadline and releases whatever it
// still produces.
func abandon(proc *launcher.Launcher, results <-chan launchResult) {
	if proc != nil {
		proc.Kill()
	}
	go func() {
		if r := <-results; r.drv != nil {
			_ = r.drv.Close(context.Background())
		}
	}()
}

func (l *Launcher) start(proc *launcher.Launcher, opts driver.Options) (*Driver, error) {
	controlURL := opts.RemoteURL
	if proc != nil {
		u, err := proc.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser failed to start: %w", err)
		}
		controlURL = u
	} else {
		u, err := launcher.ResolveURL(controlURL)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", controlURL, err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		if proc != nil {
			proc.Kill()
		}
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		if proc != nil {
			_ = browser.Close()
			proc.Cleanup()
		}
		return nil, fmt.Errorf("opening tab: %w", err)
	}

	d := newDriver(browser, page, proc, l.logger)
	if err := d.listen(); err != nil {
		_ = d.Close(context.Background())
		return nil, err
	}
	return d, nil
}

// Process builds the local browser launcher for opts.
func Process(opts driver.Options) (*launcher.Launcher, error) {
	execPath, err := opts.ResolveExecPath()
	if err != nil {
		return nil, err
	}

	l := launcher.New().
		Leakless(false).
		Headless(opts.Headless).
		Set("disable-extensions")
	if execPath != "" {
		l = l.Bin(execPath)
	}
	if opts.Headless {
		l = l.Set("disable-gpu")
	}
	if opts.IgnoreTLSErrors {
		l = l.Set("ignore-certificate-errors")
	}
	if opts.WindowWidth > 0 && opts.WindowHeight > 0 {
		l = l.Set("window-size", fmt.Sprintf("%d,%d", opts.WindowWidth, opts.WindowHeight))
	}

	for _, raw := range opts.Args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(strings.TrimSpace(raw), "-"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			l = l.Set(flags.Flag(name), value)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}

	// Needed inside containers.
	if runtime.GOOS == "linux" {
		l = l.NoSandbox(true).Set("disable-dev-shm-usage")
	}
	return l, nil
}
