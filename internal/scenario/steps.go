// File: internal/scenario/steps.go
package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/scalpel-ui/internal/browser/element"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/poll"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/uierr"
)

// ErrExpectation is returned when an expect_* step never saw the wanted state.
var ErrExpectation = errors.New("expectation not met")

// mismatch is a single failed check. Expectations retry only on mismatches;
// anything else already exhausted the element's own retries.
type mismatch struct{ msg string }

func (m *mismatch) Error() string { return m.msg }

func mismatchf(format string, args ...any) error {
	return &mismatch{msg: fmt.Sprintf(format, args...)}
}

func isMismatch(err error) bool {
	var m *mismatch
	return errors.As(err, &m)
}

// match checks got against whichever of equals/contains is set.
func match(what, got string, equals, contains *string) error {
	switch {
	case equals != nil && got != *equals:
		return mismatchf("%s is %q, want %q", what, got, *equals)
	case contains != nil && !strings.Contains(got, *contains):
		return mismatchf("%s is %q, want it to contain %q", what, got, *contains)
	}
	return nil
}

// expect polls check until it passes or timeout runs out.
func expect(ctx context.Context, timeout time.Duration, check func(ctx context.Context) error) error {
	out := poll.Run(ctx, poll.DefaultPolicy(timeout), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, check(ctx)
	}, isMismatch)

	switch out.Status {
	case poll.Succeeded:
		return nil
	case poll.Exhausted:
		if isMismatch(out.Err) {
			return fmt.Errorf("%w within %s: %w", ErrExpectation, timeout, out.Err)
		}
		return out.Err
	default:
		return out.Err
	}
}

func (r *Runner) step(ctx context.Context, p *page, st Step) error {
	var h *element.Handle
	if st.Element != "" {
		var err error
		if h, err = p.element(st.Element); err != nil {
			return err
		}
	}
	timeout := p.Doc.Timeout()

	switch st.Action {
	case ActionNavigate:
		return r.session.NavigateTo(ctx, st.URL)
	case ActionRefresh:
		return r.session.Refresh(ctx)

	case ActionClick:
		return h.Click(ctx)
	case ActionJSClick:
		return h.JSClick(ctx)
	case ActionType:
		return h.SendKeys(ctx, st.Text, boolOr(st.Clear, true))
	case ActionClear:
		return h.Clear(ctx)
	case ActionSubmit:
		return h.Submit(ctx)
	case ActionHover:
		return h.Hover(ctx)
	case ActionDispatch:
		return h.DispatchEvent(ctx, st.Event)
	case ActionScrollIntoView:
		return h.ScrollIntoView(ctx, boolOr(st.Align, true))
	case ActionScrollBy:
		if h != nil {
			return h.ScrollBy(ctx, st.X, st.Y)
		}
		_, err := r.session.ExecuteScript(ctx, fmt.Sprintf("window.scrollBy(%d, %d);", st.X, st.Y))
		return err
	case ActionExecute:
		if h != nil {
			_, err := h.ExecuteAt(ctx, st.Script)
			return err
		}
		_, err := r.session.ExecuteScript(ctx, st.Script)
		return err

	case ActionExpectText:
		return expect(ctx, timeout, func(ctx context.Context) error {
			got, err := h.Text(ctx)
			if err != nil {
				return err
			}
			return match("text", got, st.Equals, st.Contains)
		})
	case ActionExpectDisplayed:
		return expect(ctx, timeout, func(ctx context.Context) error {
			shown, err := h.IsDisplayed(ctx)
			if err != nil {
				return err
			}
			if !shown {
				return mismatchf("%s is hidden", st.Element)
			}
			return nil
		})
	case ActionExpectHidden:
		return expect(ctx, timeout, func(ctx context.Context) error {
			shown, err := h.IsDisplayed(ctx)
			if err != nil {
				// An element that never appears is not displayed.
				if errors.Is(err, uierr.ErrNoSuchElement) {
					return nil
				}
				return err
			}
			if shown {
				return mismatchf("%s is displayed", st.Element)
			}
			return nil
		})
	case ActionExpectEnabled:
		return expect(ctx, timeout, func(ctx context.Context) error {
			enabled, err := h.IsEnabled(ctx)
			if err != nil {
				return err
			}
			if !enabled {
				return mismatchf("%s is disabled", st.Element)
			}
			return nil
		})
	case ActionExpectAttribute:
		return expect(ctx, timeout, func(ctx context.Context) error {
			got, ok, err := h.Attribute(ctx, st.Name)
			if err != nil {
				return err
			}
			if !ok {
				return mismatchf("attribute %s is absent", st.Name)
			}
			return match("attribute "+st.Name, got, st.Equals, st.Contains)
		})
	case ActionExpectCSS:
		return expect(ctx, timeout, func(ctx context.Context) error {
			got, err := h.CSSValue(ctx, st.Name)
			if err != nil {
				return err
			}
			return match("css "+st.Name, got, st.Equals, st.Contains)
		})

	case ActionAlert:
		return r.alert(ctx, st)
	}
	return fmt.Errorf("unknown action %q", st.Action)
}

// alert optionally opens a dialog, then waits for one and closes it. The
// dialog text is checked after it is closed so the page is never left blocked.
func (r *Runner) alert(ctx context.Context, st Step) error {
	if st.Create != nil {
		if err := r.session.CreateAlert(ctx, *st.Create); err != nil {
			return err
		}
	}
	text, err := r.session.GetAlertText(ctx, boolOr(st.Accept, true))
	if err != nil {
		return err
	}
	if err := match("alert text", text, st.Equals, st.Contains); err != nil {
		return fmt.Errorf("%w: %w", ErrExpectation, err)
	}
	return nil
}
