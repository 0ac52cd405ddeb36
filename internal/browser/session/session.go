// internal/browser/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/scalpel-ui/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/element"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/locator"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/poll"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/uierr"
	"github.com/xkilldash9x/scalpel-ui/internal/config"
)

// Session owns at most one live browser instance. Open replaces the
// instance, Close releases it; nothing recreates it behind the caller's back.
//
// Only the driver pointer is guarded. Everything else, including the
// handles a Session hands out, is meant for a single goroutine.
type Session struct {
	id       string
	launcher driver.Launcher
	opts     driver.Options
	logger   *zap.Logger

	policy         poll.Policy
	defaultTimeout time.Duration
	navTimeout     time.Duration
	closeTimeout   time.Duration
	limiter        *rate.Limiter

	mu  sync.Mutex
	drv driver.Driver
}

// New builds a closed Session from cfg. The browser is started by Open.
func New(cfg *config.Config, launcher driver.Launcher, logger *zap.Logger) (*Session, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if launcher == nil {
		return nil, errors.New("session: a launcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	kind, err := driver.ParseBrowserKind(cfg.Browser.Kind)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	id := uuid.New().String()
	s := &Session{
		id:       id,
		launcher: launcher,
		opts: driver.Options{
			Kind:            kind,
			Headless:        cfg.Browser.Headless,
			ExecPath:        cfg.Browser.ExecPath,
			RemoteURL:       cfg.Browser.RemoteURL,
			Args:            cfg.Browser.Args,
			WindowWidth:     cfg.Browser.Viewport.Width,
			WindowHeight:    cfg.Browser.Viewport.Height,
			IgnoreTLSErrors: cfg.Browser.IgnoreTLSErrors,
			LaunchTimeout:   cfg.Browser.LaunchTimeout,
		},
		logger:         logger.Named("session").With(zap.String("session_id", id)),
		policy:         policyFromConfig(cfg.Automation),
		defaultTimeout: cfg.Automation.DefaultTimeout,
		navTimeout:     cfg.Browser.NavigationTimeout,
		closeTimeout:   cfg.Automation.CloseTimeout,
	}
	if s.defaultTimeout <= 0 {
		s.defaultTimeout = element.DefaultTimeout
	}
	if s.closeTimeout <= 0 {
		s.closeTimeout = 10 * time.Second
	}
	if rps := cfg.Automation.MaxCommandsPerSecond; rps > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return s, nil
}

func policyFromConfig(c config.AutomationConfig) poll.Policy {
	return poll.Policy{
		Timeout:         c.DefaultTimeout,
		InitialInterval: c.PollInitialInterval,
		MaxInterval:     c.PollMaxInterval,
		Multiplier:      c.PollMultiplier,
		Jitter:          c.PollJitter,
	}
}

func (s *Session) ID() string { return s.id }

// BrowserKind is the product this Session launches.
func (s *Session) BrowserKind() driver.BrowserKind { return s.opts.Kind }

// DefaultTimeout bounds every operation whose page does not set its own.
func (s *Session) DefaultTimeout() time.Duration { return s.defaultTimeout }

// SetDefaultTimeout changes the budget for Documents created afterwards.
// Non-positive values are ignored.
func (s *Session) SetDefaultTimeout(d time.Duration) {
	if d > 0 {
		s.defaultTimeout = d
	}
}

// IsOpen reports whether a live instance is held.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drv != nil
}

// Open launches a browser, navigates it to url and maximizes its window. A
// live instance is closed first.
func (s *Session) Open(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.drv != nil {
		s.logger.Info("Replacing the open browser instance.")
		if err := s.drv.Close(ctx); err != nil {
			s.logger.Warn("Previous browser instance did not close cleanly.", zap.Error(err))
		}
		s.drv = nil
	}

	s.logger.Info("Launching browser.", zap.String("kind", string(s.opts.Kind)), zap.Bool("headless", s.opts.Headless))
	drv, err := s.launcher.Launch(ctx, s.opts)
	if err != nil {
		return fmt.Errorf("launch %s: %w: %w", s.opts.Kind, uierr.ErrSessionLaunch, err)
	}
	drv = driver.Throttle(drv, s.limiter)

	if err := s.navigate(ctx, drv, url); err != nil {
		if cerr := drv.Close(context.WithoutCancel(ctx)); cerr != nil {
			s.logger.Warn("Failed to close browser after navigation error.", zap.Error(cerr))
		}
		return fmt.Errorf("open %s: %w", url, err)
	}
	if err := drv.MaximizeWindow(ctx); err != nil {
		// Headless windows cannot be maximized.
		s.logger.Debug("Window not maximized.", zap.Error(err))
	}

	s.drv = drv
	s.logger.Info("Session opened.", zap.String("url", url))
	return nil
}

func (s *Session) navigate(ctx context.Context, drv driver.Driver, url string) error {
	if s.navTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.navTimeout)
		defer cancel()
	}
	return drv.Navigate(ctx, url)
}

// current returns the live driver or ErrPrecondition.
func (s *Session) current(op string) (driver.Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drv == nil {
		return nil, fmt.Errorf("%s: %w", op, uierr.ErrPrecondition)
	}
	return s.drv, nil
}

// Driver exposes the live transport for callers that need a primitive the
// Session does not wrap.
func (s *Session) Driver() (driver.Driver, error) {
	return s.current("driver")
}

func (s *Session) NavigateTo(ctx context.Context, url string) error {
	drv, err := s.current("navigate")
	if err != nil {
		return err
	}
	s.logger.Debug("Navigating.", zap.String("url", url))
	if err := s.navigate(ctx, drv, url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (s *Session) Refresh(ctx context.Context) error {
	drv, err := s.current("refresh")
	if err != nil {
		return err
	}
	if err := drv.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	return nil
}

// Close terminates the instance. Closing a closed Session is a no-op.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.drv == nil {
		return nil
	}
	drv := s.drv
	s.drv = nil
	if err := drv.Close(ctx); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	s.logger.Info("Session closed.")
	return nil
}

// ExecuteScript runs script as a function body in the current page. Transport
// errors are returned as they are; nothing is retried.
func (s *Session) ExecuteScript(ctx context.Context, script string, args ...any) (any, error) {
	drv, err := s.current("execute script")
	if err != nil {
		return nil, err
	}
	return drv.ExecuteScript(ctx, script, args...)
}

func (s *Session) URL(ctx context.Context) (string, error) {
	drv, err := s.current("url")
	if err != nil {
		return "", err
	}
	return drv.CurrentURL(ctx)
}

func (s *Session) Title(ctx context.Context) (string, error) {
	drv, err := s.current("title")
	if err != nil {
		return "", err
	}
	return drv.Title(ctx)
}

// Screenshot returns a PNG of the viewport.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	drv, err := s.current("screenshot")
	if err != nil {
		return nil, err
	}
	return drv.Screenshot(ctx)
}

func (s *Session) PageSource(ctx context.Context) (string, error) {
	drv, err := s.current("page source")
	if err != nil {
		return "", err
	}
	return drv.PageSource(ctx)
}

// Document returns an element factory on the default timeout.
func (s *Session) Document() (*Document, error) {
	drv, err := s.current("document")
	if err != nil {
		return nil, err
	}
	return s.newDocument(drv, s.defaultTimeout), nil
}

func (s *Session) Find(loc locator.Locator) (*element.Handle, error) {
	doc, err := s.Document()
	if err != nil {
		return nil, err
	}
	return doc.Find(loc), nil
}

func (s *Session) FindByXPath(expr string) (*element.Handle, error) {
	return s.Find(locator.ByXPath(expr))
}

func (s *Session) FindByLinkText(text string) (*element.Handle, error) {
	return s.Find(locator.ByLinkText(text))
}

// Run opens s at url, calls fn, and always closes s afterwards, even when fn
// fails, panics or ctx is cancelled. The close runs on a context that
// survives ctx's cancellation, bounded by the configured close timeout.
func Run(ctx context.Context, s *Session, url string, fn func(ctx context.Context, s *Session) error) (err error) {
	if err := s.Open(ctx, url); err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.closeTimeout)
		defer cancel()
		if cerr := s.Close(closeCtx); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return fn(ctx, s)
}
