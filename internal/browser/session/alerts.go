// internal/browser/session/alerts.go
package session

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-ui/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/poll"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/uierr"
)

// GetAlertText waits for a dialog, returns its text and accepts or dismisses
// it. No dialog within the default timeout yields ErrDialogTimeout.
func (s *Session) GetAlertText(ctx context.Context, accept bool) (string, error) {
	return s.handleDialog(ctx, "get alert text", accept)
}

// AcceptAlert waits for a dialog and accepts it.
func (s *Session) AcceptAlert(ctx context.Context) error {
	_, err := s.handleDialog(ctx, "accept alert", true)
	return err
}

// DismissAlert waits for a dialog and dismisses it.
func (s *Session) DismissAlert(ctx context.Context) error {
	_, err := s.handleDialog(ctx, "dismiss alert", false)
	return err
}

// CreateAlert opens alert(text) from a timer so the script returns before the
// dialog blocks the page.
func (s *Session) CreateAlert(ctx context.Context, text string) error {
	lit, err := jsoniter.MarshalToString(text)
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	if _, err := s.ExecuteScript(ctx, fmt.Sprintf("setTimeout(function() { alert(%s); }, 0);", lit)); err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

func (s *Session) handleDialog(ctx context.Context, op string, accept bool) (string, error) {
	drv, err := s.current(op)
	if err != nil {
		return "", err
	}

	out := poll.Run(ctx, s.policy.WithTimeout(s.defaultTimeout), func(ctx context.Context) (string, error) {
		return closeDialog(ctx, drv, accept)
	}, retryDialog)

	switch out.Status {
	case poll.Succeeded:
		s.logger.Debug("Dialog handled.", zap.String("op", op), zap.String("text", out.Value), zap.Bool("accepted", accept))
		return out.Value, nil
	case poll.Exhausted:
		return "", &uierr.TimeoutError{
			Op:       op,
			Budget:   s.defaultTimeout,
			Attempts: out.Attempts,
			Sentinel: uierr.ErrDialogTimeout,
			Last:     out.Err,
		}
	default:
		return "", fmt.Errorf("%s: %w", op, out.Err)
	}
}

func closeDialog(ctx context.Context, drv driver.Driver, accept bool) (string, error) {
	open, err := drv.HasActiveDialog(ctx)
	if err != nil {
		return "", err
	}
	if !open {
		return "", uierr.New(uierr.KindNoDialog, "dialog", nil)
	}

	text, err := drv.DialogText(ctx)
	if err != nil {
		return "", err
	}
	if accept {
		err = drv.AcceptDialog(ctx)
	} else {
		err = drv.DismissDialog(ctx)
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// retryDialog keeps waiting while no dialog is showing. A dialog closed
// between the check and the action reports NoDialog too.
func retryDialog(err error) bool {
	return uierr.KindOf(err) == uierr.KindNoDialog || uierr.IsTransient(err)
}
