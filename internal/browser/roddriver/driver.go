// File: internal/browser/roddriver/driver.go
package roddriver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-ui/internal/browser/atoms"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/locator"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/uierr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const implicitPollInterval = 100 * time.Millisecond

type elementRef struct {
	id proto.RuntimeRemoteObjectID
}

func (r elementRef) RefID() string { return string(r.id) }

func (r elementRef) object() *proto.RuntimeRemoteObject {
	return &proto.RuntimeRemoteObject{ObjectID: r.id}
}

// Driver implements driver.Driver over one rod page.
type Driver struct {
	browser *rod.Browser
	page    *rod.Page
	// proc is nil when attached to a remote browser.
	proc   *launcher.Launcher
	logger *zap.Logger

	implicitWait atomic.Int64
	closed       atomic.Bool

	stopEvents context.CancelFunc
	events     sync.WaitGroup

	dialogMu sync.Mutex
	dialog   *proto.PageJavascriptDialogOpening
}

var _ driver.Driver = (*Driver)(nil)

func newDriver(browser *rod.Browser, page *rod.Page, proc *launcher.Launcher, logger *zap.Logger) *Driver {
	return &Driver{browser: browser, page: page, proc: proc, logger: logger}
}

// listen tracks JavaScript dialogs until Close.
func (d *Driver) listen() error {
	if err := (proto.PageEnable{}).Call(d.page); err != nil {
		return fmt.Errorf("enabling page events: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.stopEvents = cancel
	wait := d.page.Context(ctx).EachEvent(
		func(e *proto.PageJavascriptDialogOpening) {
			d.dialogMu.Lock()
			d.dialog = e
			d.dialogMu.Unlock()
			d.logger.Debug("Dialog opened.", zap.String("type", string(e.Type)), zap.String("message", e.Message))
		},
		func(e *proto.PageJavascriptDialogClosed) {
			d.dialogMu.Lock()
			d.dialog = nil
			d.dialogMu.Unlock()
		},
	)

	d.events.Add(1)
	go func() {
		defer d.events.Done()
		wait()
	}()
	return nil
}

// on returns the page bound to ctx, or a SessionClosed error.
func (d *Driver) on(ctx context.Context, op string) (*rod.Page, error) {
	if d.closed.Load() {
		return nil, uierr.New(uierr.KindSessionClosed, op, nil)
	}
	return d.page.Context(ctx), nil
}

func (d *Driver) classify(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
	if d.gone() {
		return uierr.New(uierr.KindSessionClosed, op, err)
	}
	var evalErr *rod.EvalError
	if errors.As(err, &evalErr) && evalErr.RuntimeExceptionDetails != nil {
		msg := evalErr.Text
		if evalErr.Exception != nil && evalErr.Exception.Description != "" {
			msg = evalErr.Exception.Description
		}
		if i := strings.IndexByte(msg, '\n'); i >= 0 {
			msg = msg[:i]
		}
		return uierr.New(atoms.Classify(msg, uierr.KindJavaScript), op, errors.New(atoms.StripMarker(msg)))
	}
	return uierr.New(atoms.Classify(err.Error(), uierr.KindTransport), op, err)
}

// gone reports whether the browser behind the page can no longer answer:
// the driver was closed or the browser's context has ended.
func (d *Driver) gone() bool {
	if d.closed.Load() {
		return true
	}
	return d.browser != nil && d.browser.GetContext().Err() != nil
}

// eval calls fn with `this` bound to the object, or to the page's global
// object when this is empty.
func (d *Driver) eval(ctx context.Context, op string, this proto.RuntimeRemoteObjectID, fn string, byValue bool, args ...any) (*proto.RuntimeRemoteObject, error) {
	p, err := d.on(ctx, op)
	if err != nil {
		return nil, err
	}
	opts := &rod.EvalOptions{
		JS:           fn,
		JSArgs:       args,
		ByValue:      byValue,
		AwaitPromise: true,
	}
	if this != "" {
		opts.ThisObj = &proto.RuntimeRemoteObject{ObjectID: this}
	}
	res, err := p.Evaluate(opts)
	if err != nil {
		return nil, d.classify(ctx, op, err)
	}
	return res, nil
}

// callValue runs an element atom and decodes its result into out.
func (d *Driver) callValue(ctx context.Context, op string, el driver.ElementRef, atom string, out any, args ...any) error {
	ref, err := toRef(op, el)
	if err != nil {
		return err
	}
	res, err := d.eval(ctx, op, ref.id, atom, true, args...)
	if err != nil {
		return err
	}
	return decodeValue(res, out)
}

// decodeValue unmarshals a by-value result. undefined and null leave out untouched.
func decodeValue(res *proto.RuntimeRemoteObject, out any) error {
	if res == nil {
		return nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return uierr.New(uierr.KindJavaScript, "decode result", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return uierr.New(uierr.KindJavaScript, "decode result", err)
	}
	return nil
}

func toRef(op string, el driver.ElementRef) (elementRef, error) {
	ref, ok := el.(elementRef)
	if !ok || ref.id == "" {
		return elementRef{}, uierr.Newf(uierr.KindUnknown, op, "element reference %T does not belong to this driver", el)
	}
	return ref, nil
}

// scriptArgs converts element references into remote objects, which rod
// passes by object id. Everything else travels as JSON.
func scriptArgs(args []any) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		if el, ok := a.(driver.ElementRef); ok {
			ref, err := toRef("execute script", el)
			if err != nil {
				return nil, err
			}
			out[i] = ref.object()
			continue
		}
		out[i] = a
	}
	return out, nil
}

// -- Navigation --

func (d *Driver) Navigate(ctx context.Context, url string) error {
	p, err := d.on(ctx, "navigate")
	if err != nil {
		return err
	}
	if err := p.Navigate(url); err != nil {
		return d.classify(ctx, "navigate", err)
	}
	if err := p.WaitLoad(); err != nil {
		return d.classify(ctx, "navigate", err)
	}
	return nil
}

func (d *Driver) Refresh(ctx context.Context) error {
	p, err := d.on(ctx, "refresh")
	if err != nil {
		return err
	}
	if err := p.Reload(); err != nil {
		return d.classify(ctx, "refresh", err)
	}
	if err := p.WaitLoad(); err != nil {
		return d.classify(ctx, "refresh", err)
	}
	return nil
}

func (d *Driver) info(ctx context.Context, op string) (*proto.TargetTargetInfo, error) {
	p, err := d.on(ctx, op)
	if err != nil {
		return nil, err
	}
	info, err := p.Info()
	if err != nil {
		return nil, d.classify(ctx, op, err)
	}
	return info, nil
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	info, err := d.info(ctx, "current url")
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (d *Driver) Title(ctx context.Context) (string, error) {
	info, err := d.info(ctx, "title")
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

func (d *Driver) MaximizeWindow(ctx context.Context) error {
	p, err := d.on(ctx, "maximize window")
	if err != nil {
		return err
	}
	win, err := proto.BrowserGetWindowForTarget{}.Call(p)
	if err != nil {
		return d.classify(ctx, "maximize window", err)
	}
	err = proto.BrowserSetWindowBounds{
		WindowID: win.WindowID,
		Bounds:   &proto.BrowserBounds{WindowState: proto.BrowserWindowStateMaximized},
	}.Call(p)
	if err != nil {
		return d.classify(ctx, "maximize window", err)
	}
	return nil
}

func (d *Driver) SetImplicitWait(wait time.Duration) {
	d.implicitWait.Store(int64(wait))
}

// -- Scripts and lookup --

func (d *Driver) ExecuteScript(ctx context.Context, script string, args ...any) (any, error) {
	jsArgs, err := scriptArgs(args)
	if err != nil {
		return nil, err
	}
	res, err := d.eval(ctx, "execute script", "", atoms.ScriptBody(script), true, jsArgs...)
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

	var scopeID proto.RuntimeRemoteObjectID
	if scope != nil {
		ref, err := toRef(op, scope)
		if err != nil {
			return nil, err
		}
		scopeID = ref.id
	}

	res, err := d.eval(ctx, op, scopeID, atoms.Find, false, string(loc.Strategy), loc.Expression)
	if err != nil {
		return nil, err
	}
	if res == nil || res.ObjectID == "" || res.Subtype == proto.RuntimeRemoteObjectSubtypeNull {
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

// Click hit-tests the element and presses and releases the left button at
// its centre.
func (d *Driver) Click(ctx context.Context, el driver.ElementRef) error {
	var pt struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := d.callValue(ctx, "click", el, atoms.ClickPoint, &pt); err != nil {
		return err
	}

	p, err := d.on(ctx, "click")
	if err != nil {
		return err
	}
	for _, typ := range []proto.InputDispatchMouseEventType{
		proto.InputDispatchMouseEventTypeMouseMoved,
		proto.InputDispatchMouseEventTypeMousePressed,
		proto.InputDispatchMouseEventTypeMouseReleased,
	} {
		ev := proto.InputDispatchMouseEvent{Type: typ, X: pt.X, Y: pt.Y}
		if typ != proto.InputDispatchMouseEventTypeMouseMoved {
			ev.Button = proto.InputMouseButtonLeft
			ev.ClickCount = 1
		}
		if err := ev.Call(p); err != nil {
			return d.classify(ctx, "click", err)
		}
	}
	return nil
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
	p, err := d.on(ctx, "send keys")
	if err != nil {
		return err
	}
	if err := (proto.InputInsertText{Text: text}).Call(p); err != nil {
		return d.classify(ctx, "send keys", err)
	}
	return nil
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

func (d *Driver) currentDialog() *proto.PageJavascriptDialogOpening {
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
	p, err := d.on(ctx, op)
	if err != nil {
		return err
	}
	if err := (proto.PageHandleJavaScriptDialog{Accept: accept}).Call(p); err != nil {
		return d.classify(ctx, op, err)
	}
	d.dialogMu.Lock()
	d.dialog = nil
	d.dialogMu.Unlock()
	return nil
}

// -- Artifacts and teardown --

func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	p, err := d.on(ctx, "screenshot")
	if err != nil {
		return nil, err
	}
	buf, err := p.Screenshot(false, nil)
	if err != nil {
		return nil, d.classify(ctx, "screenshot", err)
	}
	return buf, nil
}

func (d *Driver) PageSource(ctx context.Context) (string, error) {
	res, err := d.eval(ctx, "page source", "", atoms.PageSource, true)
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
	if d.stopEvents != nil {
		d.stopEvents()
	}

	done := make(chan error, 1)
	go func() { done <- d.shutdown() }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		if d.proc != nil {
			d.proc.Kill()
		}
		err = ctx.Err()
	}
	d.events.Wait()
	if err != nil {
		return fmt.Errorf("closing browser: %w", err)
	}
	d.logger.Info("Browser closed.")
	return nil
}

func (d *Driver) shutdown() error {
	if d.proc == nil {
		return d.page.Close()
	}
	err := d.browser.Close()
	if err != nil {
		d.proc.Kill()
	}
	d.proc.Cleanup()
	return err
}
