// internal/browser/session/page.go
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-ui/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/element"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/locator"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/poll"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/uierr"
)

// Document creates element handles against one driver with one timeout.
type Document struct {
	drv    driver.Driver
	policy poll.Policy
	logger *zap.Logger
}

func (s *Session) newDocument(drv driver.Driver, timeout time.Duration) *Document {
	return &Document{drv: drv, policy: s.policy.WithTimeout(timeout), logger: s.logger}
}

// Timeout is the budget given to every handle this Document creates.
func (d *Document) Timeout() time.Duration { return d.policy.Timeout }

// Find returns a lazily bound handle for loc.
func (d *Document) Find(loc locator.Locator) *element.Handle {
	return element.New(d.drv, loc, element.WithPolicy(d.policy), element.WithLogger(d.logger))
}

func (d *Document) ByXPath(expr string) *element.Handle { return d.Find(locator.ByXPath(expr)) }
func (d *Document) ByCSS(selector string) *element.Handle { return d.Find(locator.ByCSS(selector)) }
func (d *Document) ByID(id string) *element.Handle { return d.Find(locator.ByID(id)) }
func (d *Document) ByLinkText(text string) *element.Handle { return d.Find(locator.ByLinkText(text)) }

// Page is a page object. A zero Timeout means the Session default.
type Page interface {
	Timeout() time.Duration
	SetDocument(doc *Document)
}

// BasePage is embedded by page objects to satisfy Page.
type BasePage struct {
	Doc         *Document
	PageTimeout time.Duration
}

func (p *BasePage) Timeout() time.Duration { return p.PageTimeout }
func (p *BasePage) SetDocument(doc *Document) { p.Doc = doc }

// AttachToPage waits until the current document has loaded, then hands page
// a Document bound to its timeout.
func (s *Session) AttachToPage(ctx context.Context, page Page) error {
	drv, err := s.current("attach page")
	if err != nil {
		return err
	}

	timeout := page.Timeout()
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	if err := s.waitReady(ctx, drv, timeout); err != nil {
		return err
	}

	drv.SetImplicitWait(timeout)
	if err := drv.MaximizeWindow(ctx); err != nil {
		s.logger.Debug("Window not maximized.", zap.Error(err))
	}
	if _, err := drv.ExecuteScript(ctx, "window.focus();"); err != nil {
		s.logger.Debug("Window not focused.", zap.Error(err))
	}

	page.SetDocument(s.newDocument(drv, timeout))
	return nil
}

// WaitForPageReady blocks until document.readyState is "complete" or
// timeout passes, in which case the error matches ErrPageLoadTimeout.
func (s *Session) WaitForPageReady(ctx context.Context, timeout time.Duration) error {
	drv, err := s.current("wait for page")
	if err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	return s.waitReady(ctx, drv, timeout)
}

// errNotReady is the attempt error while the document is still loading.
type errNotReady struct{ state string }

func (e errNotReady) Error() string { return fmt.Sprintf("document.readyState is %q", e.state) }

func (s *Session) waitReady(ctx context.Context, drv driver.Driver, timeout time.Duration) error {
	out := poll.Run(ctx, s.policy.WithTimeout(timeout), func(ctx context.Context) (string, error) {
		v, err := drv.ExecuteScript(ctx, "return document.readyState;")
		if err != nil {
			return "", err
		}
		state, _ := v.(string)
		if state != "complete" {
			return state, errNotReady{state: state}
		}
		return state, nil
	}, retryUnlessClosed)

	switch out.Status {
	case poll.Succeeded:
		s.logger.Debug("Page ready.", zap.Int("attempts", out.Attempts), zap.Duration("elapsed", out.Elapsed))
		return nil
	case poll.Exhausted:
		s.logger.Warn("Page did not finish loading.", zap.Duration("timeout", timeout), zap.Error(out.Err))
		return &uierr.TimeoutError{
			Op:       "wait for page",
			Budget:   timeout,
			Attempts: out.Attempts,
			Sentinel: uierr.ErrPageLoadTimeout,
			Last:     out.Err,
		}
	default:
		return fmt.Errorf("wait for page: %w", out.Err)
	}
}

// retryUnlessClosed retries every failure except a dead session and context errors.
func retryUnlessClosed(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return uierr.KindOf(err) != uierr.KindSessionClosed
}
