// File: internal/browser/driver/throttle.go
package driver

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/xkilldash9x/scalpel-ui/internal/browser/locator"
)

// Throttle wraps d so that every remote command first waits on limiter.
// A nil limiter returns d unchanged.
func Throttle(d Driver, limiter *rate.Limiter) Driver {
	if limiter == nil {
		return d
	}
	return &throttled{next: d, limiter: limiter}
}

type throttled struct {
	next    Driver
	limiter *rate.Limiter
}

// wait blocks for a command token. The limiter refuses up front when the
// token would arrive after ctx's deadline; in that case wait sits out the
// deadline and returns ctx.Err(), so callers see an expired context rather
// than an early failure.
func (t *throttled) wait(ctx context.Context) error {
	err := t.limiter.Wait(ctx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if _, ok := ctx.Deadline(); !ok {
		return fmt.Errorf("command throttle: %w", err)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (t *throttled) Navigate(ctx context.Context, url string) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	return t.next.Navigate(ctx, url)
}

func (t *throttled) Refresh(ctx context.Context) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	return t.next.Refresh(ctx)
}

func (t *throttled) CurrentURL(ctx context.Context) (string, error) {
	if err := t.wait(ctx); err != nil {
		return "", err
	}
	return t.next.CurrentURL(ctx)
}

func (t *throttled) Title(ctx context.Context) (string, error) {
	if err := t.wait(ctx); err != nil {
		return "", err
	}
	return t.next.Title(ctx)
}

func (t *throttled) MaximizeWindow(ctx context.Context) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	return t.next.MaximizeWindow(ctx)
}

func (t *throttled) SetImplicitWait(d time.Duration) { t.next.SetImplicitWait(d) }

func (t *throttled) ExecuteScript(ctx context.Context, script string, args ...any) (any, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	return t.next.ExecuteScript(ctx, script, args...)
}

func (t *throttled) FindElement(ctx context.Context, scope ElementRef, loc locator.Locator) (ElementRef, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	return t.next.FindElement(ctx, scope, loc)
}

func (t *throttled) IsDisplayed(ctx context.Context, el ElementRef) (bool, error) {
	if err := t.wait(ctx); err != nil {
		return false, err
	}
	return t.next.IsDisplayed(ctx, el)
}

func (t *throttled) IsEnabled(ctx context.Context, el ElementRef) (bool, error) {
	if err := t.wait(ctx); err != nil {
		return false, err
	}
	return t.next.IsEnabled(ctx, el)
}

func (t *throttled) Text(ctx context.Context, el ElementRef) (string, error) {
	if err := t.wait(ctx); err != nil {
		return "", err
	}
	return t.next.Text(ctx, el)
}

func (t *throttled) Click(ctx context.Context, el ElementRef) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	return t.next.Click(ctx, el)
}

func (t *throttled) SelectAll(ctx context.Context, el ElementRef) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	return t.next.SelectAll(ctx, el)
}

func (t *throttled) SendKeys(ctx context.Context, el ElementRef, text string) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	return t.next.SendKeys(ctx, el, text)
}

func (t *throttled) Clear(ctx context.Context, el ElementRef) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	return t.next.Clear(ctx, el)
}

func (t *throttled) Attribute(ctx context.Context, el ElementRef, name string) (string, bool, error) {
	if err := t.wait(ctx); err != nil {
		return "", false, err
	}
	return t.next.Attribute(ctx, el, name)
}

func (t *throttled) CSSValue(ctx context.Context, el ElementRef, name string) (string, error) {
	if err := t.wait(ctx); err != nil {
		return "", err
	}
	return t.next.CSSValue(ctx, el, name)
}

func (t *throttled) Submit(ctx context.Context, el ElementRef) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	return t.next.Submit(ctx, el)
}

// Dialog state is tracked locally by the transports, so polling it does not
// cost a remote command and is not throttled.
func (t *throttled) HasActiveDialog(ctx context.Context) (bool, error) {
	return t.next.HasActiveDialog(ctx)
}

func (t *throttled) DialogText(ctx context.Context) (string, error) {
	return t.next.DialogText(ctx)
}

func (t *throttled) AcceptDialog(ctx context.Context) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	return t.next.AcceptDialog(ctx)
}

func (t *throttled) DismissDialog(ctx context.Context) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	return t.next.DismissDialog(ctx)
}

func (t *throttled) Screenshot(ctx context.Context) ([]byte, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	return t.next.Screenshot(ctx)
}

func (t *throttled) PageSource(ctx context.Context) (string, error) {
	if err := t.wait(ctx); err != nil {
		return "", err
	}
	return t.next.PageSource(ctx)
}

// Close is never throttled so teardown cannot be starved.
func (t *throttled) Close(ctx context.Context) error {
	return t.next.Close(ctx)
}
