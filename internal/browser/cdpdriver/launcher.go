// File: internal/browser/cdpdriver/launcher.go
package cdpdriver

import (
	"context"
	"fmt"
	goruntime "runtime"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-ui/internal/browser/driver"
)

const defaultLaunchTimeout = 30 * time.Second

// Launcher starts Chromium-family browsers through chromedp.
type Launcher struct {
	logger *zap.Logger
}

var _ driver.Launcher = (*Launcher)(nil)

func NewLauncher(logger *zap.Logger) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{logger: logger.Named("cdp")}
}

// Launch allocates a browser (or attaches to opts.RemoteURL), opens a tab
// and waits until the tab answers.
func (l *Launcher) Launch(ctx context.Context, opts driver.Options) (driver.Driver, error) {
	if opts.RemoteURL == "" && !opts.Kind.Chromium() {
		return nil, fmt.Errorf("chromedp cannot drive %s", opts.Kind)
	}

	var (
		allocCtx    context.Context
		cancelAlloc context.CancelFunc
	)
	if opts.RemoteURL != "" {
		l.logger.Info("Attaching to remote browser.", zap.String("url", opts.RemoteURL))
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(Detach(ctx), opts.RemoteURL)
	} else {
		allocOpts, err := AllocatorOptions(opts)
		if err != nil {
			return nil, err
		}
		l.logger.Info("Launching browser.", zap.String("kind", string(opts.Kind)), zap.Bool("headless", opts.Headless))
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(Detach(ctx), allocOpts...)
	}

	sugar := l.logger.Sugar()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)
	cleanup := func() {
		cancelTab()
		cancelAlloc()
	}

	timeout := opts.LaunchTimeout
	if timeout <= 0 {
		timeout = defaultLaunchTimeout
	}

	// The first Run allocates the browser. It must not carry a deadline or
	// the whole browser would die with it, so the launch timeout is enforced
	// from outside.
	errc := make(chan error, 1)
	go func() { errc <- chromedp.Run(tabCtx) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-errc:
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("browser failed to start: %w", err)
		}
	case <-timer.C:
		cleanup()
		<-errc
		return nil, fmt.Errorf("browser did not respond within %s", timeout)
	case <-ctx.Done():
		cleanup()
		<-errc
		return nil, ctx.Err()
	}

	d := newDriver(tabCtx, cleanup, l.logger)
	d.listen()
	l.logger.Info("Browser launched and responsive.")
	return d, nil
}

// AllocatorOptions assembles the exec allocator flags for opts.
func AllocatorOptions(opts driver.Options) ([]chromedp.ExecAllocatorOption, error) {
	out := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	out = append(out,
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", opts.Headless),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("ignore-certificate-errors", opts.IgnoreTLSErrors),
	)

	if opts.WindowWidth > 0 && opts.WindowHeight > 0 {
		out = append(out, chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight))
	}

	execPath, err := opts.ResolveExecPath()
	if err != nil {
		return nil, err
	}
	if execPath != "" {
		out = append(out, chromedp.ExecPath(execPath))
	}

	for _, arg := range opts.Args {
		name, value := ParseArg(arg)
		if name == "" {
			continue
		}
		out = append(out, chromedp.Flag(name, value))
	}

	// Needed inside containers.
	if goruntime.GOOS == "linux" {
		out = append(out,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	}
	return out, nil
}

// ParseArg splits "--name=value" into a chromedp flag. A bare "--name" is a
// boolean flag.
func ParseArg(arg string) (string, any) {
	parts := strings.SplitN(strings.TrimSpace(arg), "=", 2)
	name := strings.TrimLeft(parts[0], "-")
	if len(parts) == 2 {
		return name, parts[1]
	}
	return name, true
}
