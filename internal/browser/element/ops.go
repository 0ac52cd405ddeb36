// File: internal/browser/element/ops.go
package element

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/xkilldash9x/scalpel-ui/internal/browser/driver"
)

// Mouse event kinds accepted by DispatchEvent.
const (
	EventClick     = "click"
	EventMouseOver = "mouseover"
)

var eventKind = regexp.MustCompile(`^[a-z][a-z0-9]*$`)

// -- Reads: retried on transient errors --

func (h *Handle) IsDisplayed(ctx context.Context) (bool, error) {
	return do(ctx, h, "is displayed", retryTransient, h.drv.IsDisplayed)
}

func (h *Handle) IsEnabled(ctx context.Context) (bool, error) {
	return do(ctx, h, "is enabled", retryTransient, h.drv.IsEnabled)
}

// Text returns the rendered text; hidden elements have none.
func (h *Handle) Text(ctx context.Context) (string, error) {
	return do(ctx, h, "text", retryTransient, h.drv.Text)
}

// -- Interactions: retried on transient errors, ErrOperationTimeout on exhaustion --

// Click performs a native click at the element's centre. If the element
// stays hidden, covered or stale for the whole budget the returned error
// wraps uierr.ErrOperationTimeout and the last cause; if it never resolves
// the error wraps uierr.ErrElementNotFound instead.
func (h *Handle) Click(ctx context.Context) error {
	return exec(ctx, h, "click", retryTransient, h.drv.Click)
}

// SendKeys types text into the element. With clearFirst the current content
// is replaced, otherwise text is appended.
func (h *Handle) SendKeys(ctx context.Context, text string, clearFirst bool) error {
	return exec(ctx, h, "send keys", retryTransient, func(ctx context.Context, ref driver.ElementRef) error {
		if clearFirst {
			if text == "" {
				return h.drv.Clear(ctx, ref)
			}
			if err := h.drv.SelectAll(ctx, ref); err != nil {
				return err
			}
		}
		return h.drv.SendKeys(ctx, ref, text)
	})
}

func (h *Handle) Clear(ctx context.Context) error {
	return exec(ctx, h, "clear", retryTransient, h.drv.Clear)
}

// -- Property reads and submit: retried on stale references only --

type attribute struct {
	value   string
	present bool
}

// Attribute returns the element's property or attribute value and whether
// it exists.
func (h *Handle) Attribute(ctx context.Context, name string) (string, bool, error) {
	a, err := do(ctx, h, "attribute "+name, retryStale, func(ctx context.Context, ref driver.ElementRef) (attribute, error) {
		v, ok, err := h.drv.Attribute(ctx, ref, name)
		return attribute{value: v, present: ok}, err
	})
	return a.value, a.present, err
}

// CSSValue returns the computed style property.
func (h *Handle) CSSValue(ctx context.Context, name string) (string, error) {
	return do(ctx, h, "css value "+name, retryStale, func(ctx context.Context, ref driver.ElementRef) (string, error) {
		return h.drv.CSSValue(ctx, ref, name)
	})
}

// Submit submits the form owning the element.
func (h *Handle) Submit(ctx context.Context) error {
	return exec(ctx, h, "submit", retryStale, h.drv.Submit)
}

// -- Script operations: retried on any failure --

// ExecuteAt runs script with the element as arguments[0].
func (h *Handle) ExecuteAt(ctx context.Context, script string) (any, error) {
	return do(ctx, h, "execute", retryAny, func(ctx context.Context, ref driver.ElementRef) (any, error) {
		return h.drv.ExecuteScript(ctx, script, ref)
	})
}

func (h *Handle) execScript(ctx context.Context, op, script string) error {
	_, err := do(ctx, h, op, retryAny, func(ctx context.Context, ref driver.ElementRef) (any, error) {
		return h.drv.ExecuteScript(ctx, script, ref)
	})
	return err
}

// ScrollIntoView aligns the element with the top (or bottom) of the viewport.
func (h *Handle) ScrollIntoView(ctx context.Context, alignToTop bool) error {
	return h.execScript(ctx, "scroll into view", fmt.Sprintf("arguments[0].scrollIntoView(%t);", alignToTop))
}

// ScrollBy scrolls the window by a pixel offset.
func (h *Handle) ScrollBy(ctx context.Context, dx, dy int) error {
	return h.execScript(ctx, "scroll by", fmt.Sprintf("window.scrollBy(%d, %d);", dx, dy))
}

// DispatchEvent fires a synthetic, bubbling MouseEvent of the given kind
// ("click", "mouseover", ...) on the element.
func (h *Handle) DispatchEvent(ctx context.Context, kind string) error {
	if !eventKind.MatchString(kind) {
		return fmt.Errorf("dispatch event %s: invalid event kind %q", h.loc, kind)
	}
	script := fmt.Sprintf("arguments[0].dispatchEvent(new MouseEvent(%s, {bubbles: true, cancelable: true, view: window}));", strconv.Quote(kind))
	return h.execScript(ctx, "dispatch "+kind, script)
}

// Hover dispatches a synthetic mouseover.
func (h *Handle) Hover(ctx context.Context) error {
	return h.DispatchEvent(ctx, EventMouseOver)
}

// JSClick calls the element's click() method, skipping hit testing.
func (h *Handle) JSClick(ctx context.Context) error {
	return h.execScript(ctx, "js click", "arguments[0].click();")
}
