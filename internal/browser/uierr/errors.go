// File: internal/browser/uierr/errors.go
package uierr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind tags every failure a transport can report. The retry loops decide
// what to do with an error purely from its Kind.
type Kind int

const (
	KindUnknown Kind = iota
	// KindStaleReference means the cached element reference no longer points
	// into the live document.
	KindStaleReference
	KindNotInteractable
	KindInvalidState
	KindClickIntercepted
	// KindNoSuchElement is a lookup that matched nothing.
	KindNoSuchElement
	// KindNoDialog is reported while no JavaScript dialog is showing.
	KindNoDialog
	KindInvalidSelector
	KindJavaScript
	// KindSessionClosed means the remote instance is gone. Never retried.
	KindSessionClosed
	KindTransport
)

var kindNames = map[Kind]string{
	KindUnknown:          "unknown",
	KindStaleReference:   "stale element reference",
	KindNotInteractable:  "element not interactable",
	KindInvalidState:     "invalid element state",
	KindClickIntercepted: "element click intercepted",
	KindNoSuchElement:    "no such element",
	KindNoDialog:         "no such alert",
	KindInvalidSelector:  "invalid selector",
	KindJavaScript:       "javascript error",
	KindSessionClosed:    "session closed",
	KindTransport:        "transport error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Transient reports whether the remote state behind this kind is expected to
// settle on its own, so that rebinding and retrying can succeed.
func (k Kind) Transient() bool {
	switch k {
	case KindStaleReference, KindNotInteractable, KindInvalidState, KindClickIntercepted:
		return true
	}
	return false
}

// Error is a classified transport failure.
type Error struct {
	Kind Kind
	// Op names the primitive that failed, e.g. "click" or "find //a".
	Op  string
	Err error
}

// New builds a classified error around err, which may be nil.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf is New with a formatted cause.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, which lets the kind sentinels below
// be used with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// Kind sentinels for errors.Is.
var (
	ErrStaleReference   = &Error{Kind: KindStaleReference}
	ErrNotInteractable  = &Error{Kind: KindNotInteractable}
	ErrInvalidState     = &Error{Kind: KindInvalidState}
	ErrClickIntercepted = &Error{Kind: KindClickIntercepted}
	ErrNoSuchElement    = &Error{Kind: KindNoSuchElement}
	ErrNoDialog         = &Error{Kind: KindNoDialog}
	ErrInvalidSelector  = &Error{Kind: KindInvalidSelector}
	ErrJavaScript       = &Error{Kind: KindJavaScript}
	ErrSessionClosed    = &Error{Kind: KindSessionClosed}
)

// Terminal errors surfaced to callers once retrying is over.
var (
	ErrSessionLaunch    = errors.New("browser session could not be launched")
	ErrPrecondition     = errors.New("no browser session is open")
	ErrElementNotFound  = errors.New("element not found")
	ErrOperationTimeout = errors.New("operation timed out")
	ErrPageLoadTimeout  = errors.New("page did not finish loading")
	ErrDialogTimeout    = errors.New("no dialog appeared")
)

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsTransient reports whether err carries a transient Kind.
func IsTransient(err error) bool {
	return err != nil && KindOf(err).Transient()
}

// TimeoutError is returned when a bounded retry ran out of time. It always
// carries the last error observed so the real cause is never lost.
type TimeoutError struct {
	Op       string
	Budget   time.Duration
	Attempts int
	// Sentinel is one of the terminal errors above.
	Sentinel error
	Last     error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("%s: %v after %s (%d attempts)", e.Op, e.Sentinel, e.Budget, e.Attempts)
	if e.Last != nil {
		msg += ": " + e.Last.Error()
	}
	return msg
}

// Unwrap exposes both the sentinel and the last cause to errors.Is and errors.As.
func (e *TimeoutError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Sentinel != nil {
		errs = append(errs, e.Sentinel)
	}
	if e.Last != nil {
		errs = append(errs, e.Last)
	}
	return errs
}
