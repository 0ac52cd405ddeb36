// File: internal/browser/cdpdriver/driver.go
package cdpdriver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-ui/internal/browser/atoms"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/locator"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/uierr"
)

// implicitPollInterval is how often FindElement re-queries while the
// implicit wait runs.
const implicitPollInterval = 100 * time.Millisecond

// elementRef is a Runtime remote object id. It dies with the execution
// context that produced it.
type elementRef struct {
	id runtime.RemoteObjectID
}

func (r elementRef) RefID() string { return string(r.id) }

// Driver implements driver.Driver over one chromedp tab.
type Driver struct {
	// ctx carries the chromedp target. Every command runs on a context
	// combined from it and the caller's.
	ctx     context.Context
	cleanup func()
	logger  *zap.Logger

	implicitWait atomic.Int64
	closed       atomic.Bool

	dialogMu sync.Mutex
	dialog   *page.EventJavascriptDialogOpening
}

var _ driver.Driver = (*Driver)(nil)

func newDriver(tabCtx context.Context, cleanup func(), logger *zap.Logger) *Driver {
	return &Driver{ctx: tabCtx, cleanup: cleanup, logger: logger}
}

// listen tracks JavaScript dialogs. The callback runs on chromedp's event
// loop and must not issue commands.
func (d *Driver) listen() {
	chromedp.ListenTarget(d.ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventJavascriptDialogOpening:
			d.dialogMu.Lock()
			d.dialog = e
			d.dialogMu.Unlock()
			d.logger.Debug("Dialog opened.", zap.String("type", string(e.Type)), zap.String("message", e.Message))
		case *page.EventJavascriptDialogClosed:
			d.dialogMu.Lock()
			d.dialog = nil
			d.dialogMu.Unlock()
		}
	})
}

// run executes actions on the tab, bounded by ctx.
func (d *Driver) run(ctx context.Context, op string, actions ...chromedp.Action) error {
	if d.closed.Load() {
		return uierr.New(uierr.KindSessionClosed, op, nil)
	}
	runCtx, cancel := CombineContext(d.ctx, ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return d.classify(ctx, op, err)
	}
	return nil
}

func (d *Driver) classify(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
	if d.ctx.Err() != nil {
		return uierr.New(uierr.KindSessionClosed, op, err)
	}
	var classified *uierr.Error
	if errors.As(err, &classified) {
		return err
	}
	return uierr.New(atoms.Classify(err.Error(), uierr.KindTransport), op, err)
}

// callOn invokes decl with `this` bound to objectID, or to the page's global
// object when objectID is empty.
func (d *Driver) callOn(ctx context.Context, op string, objectID runtime.RemoteObjectID, decl string, byValue bool, args []*runtime.CallArgument) (*runtime.RemoteObject, error) {
	var res *runtime.RemoteObject
	err := d.run(ctx, op, chromedp.ActionFunc(func(ctx context.Context) error {
		target := objectID
		if target == "" {
			global, exc, err := runtime.Evaluate("globalThis").Do(ctx)
			if err != nil {
				return err
			}
			if exc != nil {
				return exceptionError(op, exc)
			}
			target = global.ObjectID
		}

		p := runtime.CallFunctionOn(decl).
			WithObjectID(target).
			WithReturnByValue(byValue).
			WithAwaitPromise(true)
		if len(args) > 0 {
			p = p.WithArguments(args)
		}
		r, exc, err := p.Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exceptionError(op, exc)
		}
		res = r
		return nil
	}))
	return res, err
}

// callValue runs an element atom and decodes its by-value result into out.
func (d *Driver) callValue(ctx context.Context, op string, el driver.ElementRef, atom string, out any, args ...any) error {
	ref, err := toRef(op, el)
	if err != nil {
		return err
	}
	decl, err := bindArgs(atom, args...)
	if err != nil {
		return err
	}
	res, err := d.callOn(ctx, op, ref.id, decl, true, nil)
	if err != nil {
		return err
	}
	return decodeValue(res, out)
}

func exceptionError(op string, exc *runtime.ExceptionDetails) error {
	msg := exc.Text
	if exc.Exception != nil && exc.Exception.Description != "" {
		msg = exc.Exception.Description
	}
	// Descriptions carry the stack after the first line.
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return uierr.New(atoms.Classify(msg, uierr.KindJavaScript), op, errors.New(atoms.StripMarker(msg)))
}

func toRef(op string, el driver.ElementRef) (elementRef, error) {
	ref, ok := el.(elementRef)
	if !ok || ref.id == "" {
		return elementRef{}, uierr.Newf(uierr.KindUnknown, op, "element reference %T does not belong to this driver", el)
	}
	return ref, nil
}

// -- Navigation --

func (d *Driver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, "navigate", chromedp.Navigate(url))
}

func (d *Driver) Refresh(ctx context.Context) error {
	return d.run(ctx, "refresh", chromedp.Reload())
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	var url string
	err := d.run(ctx, "current url", chromedp.Location(&url))
	return url, err
}

func (d *Driver) Title(ctx context.Context) (string, error) {
	var title string
	err := d.run(ctx, "title", chromedp.Title(&title))
	return title, err
}

func (d *Driver) MaximizeWindow(ctx context.Context) error {
	return d.run(ctx, "maximize window", chromedp.ActionFunc(func(ctx context.Context) error {
		windowID, _, err := browser.GetWindowForTarget().Do(ctx)
		if err != nil {
			return err
		}
		return browser.SetWindowBounds(windowID, &browser.Bounds{WindowState: browser.WindowStateMaximized}).Do(ctx)
	}))
}

func (d *Driver) SetImplicitWait(wait time.Duration) {
	d.implicitWait.Store(int64(wait))
}

// -- Scripts and lookup --

func (d *Driver) ExecuteScript(ctx context.Context, script string, args ...any) (any, error) {
	decl, callArgs, err := scriptCall(script, args)
	if err != nil {
		return nil, err
	}
	res, err := d.callOn(ctx, "execute script", "", decl, true, callArgs)
	if err != nil {
		return nil, err
	}
	var out any
	if err := decodeValue(res, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FindElement queries once and then keeps querying every
// implicitPollInterval until the implicit wait or ctx runs out.
func (d *Driver) FindElement(ctx context.Context, scope driver.ElementRef, loc locator.Locator) (driver.ElementRef, error) {
	deadline := time.Now().Add(time.Duration(d.implicitWait.Load()))
	for {
		ref, err := d.findOnce(ctx, scope, loc)
		if err == nil || uierr.KindOf(err) != uierr.KindNoSuchElement || !time.Now().Before(deadline) {
			return ref, err
		}

		timer := time.NewTimer(implicitPollInterval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, err
		}
	}
}

func (d *Driver) findOnce(ctx context.Context, scope driver.ElementRef, loc locator.Locator) (driver.ElementRef, error) {
	op := "find " + loc.String()

	var scopeID runtime.RemoteObjectID
	if scope != nil {
		ref, err := toRef(op, scope)
		if err != nil {
			return nil, err
		}
		scopeID = ref.id
	}

	decl, err := bindArgs(atoms.Find, string(loc.Strategy), loc.Expression)
	if err != nil {
		return nil, err
	}
	res, err := d.callOn(ctx, op, scopeID, decl, false, nil)
	if err != nil {
		return nil, err
	}
	if res == nil || res.ObjectID == "" || res.Subtype == runtime.SubtypeNull {
		return nil, uierr.New(uierr.KindNoSuchElement, op, nil)
	}
	return elementRef{id: res.ObjectID}, nil
}

// -- Element primitives --

func (d *Driver) IsDisplayed(ctx context.Context, el driver.ElementRef) (bool, error) {
	var v bool
	err := d.callValue(ctx, "is displayed", el, atoms.IsDisplayed, &v)
	return v, err
}

func (d *Driver) IsEnabled(ctx context.Context, el driver.ElementRef) (bool, error) {
	var v bool
	err := d.callValue(ctx, "is enabled", el, atoms.IsEnabled, &v)
	return v, err
}

func (d *Driver) Text(ctx context.Context, el driver.ElementRef) (string, error) {
	var v string
	err := d.callValue(ctx, "text", el, atoms.Text, &v)
	return v, err
}

// Click hit-tests the element and dispatches a real left click at its centre.
func (d *Driver) Click(ctx context.Context, el driver.ElementRef) error {
	var pt struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := d.callValue(ctx, "click", el, atoms.ClickPoint, &pt); err != nil {
		return err
	}
	return d.run(ctx, "click", chromedp.MouseClickXY(pt.X, pt.Y))
}

func (d *Driver) SelectAll(ctx context.Context, el driver.ElementRef) error {
	var focused bool
	return d.callValue(ctx, "select all", el, atoms.Focus, &focused, atoms.FocusSelect)
}

func (d *Driver) SendKeys(ctx context.Context, el driver.ElementRef, text string) error {
	var focused bool
	if err := d.callValue(ctx, "send keys", el, atoms.Focus, &focused, atoms.FocusKeep); err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	return d.run(ctx, "send keys", input.InsertText(text))
}

func (d *Driver) Clear(ctx context.Context, el driver.ElementRef) error {
	var ok bool
	return d.callValue(ctx, "clear", el, atoms.Clear, &ok)
}

func (d *Driver) Attribute(ctx context.Context, el driver.ElementRef, name string) (string, bool, error) {
	var v *string
	if err := d.callValue(ctx, "attribute "+name, el, atoms.Attribute, &v, name); err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (d *Driver) CSSValue(ctx context.Context, el driver.ElementRef, name string) (string, error) {
	var v string
	err := d.callValue(ctx, "css value "+name, el, atoms.CSSValue, &v, name)
	return v, err
}

func (d *Driver) Submit(ctx context.Context, el driver.ElementRef) error {
	var ok bool
	return d.callValue(ctx, "submit", el, atoms.Submit, &ok)
}

// -- Dialogs --

func (d *Driver) currentDialog() *page.EventJavascriptDialogOpening {
	d.dialogMu.Lock()
	defer d.dialogMu.Unlock()
	return d.dialog
}

func (d *Driver) HasActiveDialog(ctx context.Context) (bool, error) {
	if d.closed.Load() {
		return false, uierr.New(uierr.KindSessionClosed, "dialog", nil)
	}
	return d.currentDialog() != nil, nil
}

func (d *Driver) DialogText(ctx context.Context) (string, error) {
	dlg := d.currentDialog()
	if dlg == nil {
		return "", uierr.New(uierr.KindNoDialog, "dialog text", nil)
	}
	return dlg.Message, nil
}

func (d *Driver) AcceptDialog(ctx context.Context) error {
	return d.handleDialog(ctx, "accept dialog", true)
}

func (d *Driver) DismissDialog(ctx context.Context) error {
	return d.handleDialog(ctx, "dismiss dialog", false)
}

func (d *Driver) handleDialog(ctx context.Context, op string, accept bool) error {
	if d.currentDialog() == nil {
		return uierr.New(uierr.KindNoDialog, op, nil)
	}
	if err := d.run(ctx, op, page.HandleJavaScriptDialog(accept)); err != nil {
		return err
	}
	d.dialogMu.Lock()
	d.dialog = nil
	d.dialogMu.Unlock()
	return nil
}

// -- Artifacts and teardown --

func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := d.run(ctx, "screenshot", chromedp.CaptureScreenshot(&buf))
	return buf, err
}

func (d *Driver) PageSource(ctx context.Context) (string, error) {
	res, err := d.callOn(ctx, "page source", "", atoms.PageSource, true, nil)
	if err != nil {
		return "", err
	}
	var src string
	err = decodeValue(res, &src)
	return src, err
}

// Close shuts the browser down. A remote browser only loses its tab.
func (d *Driver) Close(ctx context.Context) error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(d.ctx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	d.cleanup()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("closing browser: %w", err)
	}
	d.logger.Info("Browser closed.")
	return nil
}
