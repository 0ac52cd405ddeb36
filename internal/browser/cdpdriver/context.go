// File: internal/browser/cdpdriver/context.go
package cdpdriver

import (
	"context"
	"time"
)

// CombineContext derives a context from ctx1, which carries the chromedp
// target, that is also canceled when ctx2 (the caller's operation context)
// ends. Values come from ctx1 only.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(ctx1)
	go func() {
		select {
		case <-ctx2.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}

// detached keeps the parent's values but none of its cancellation.
type detached struct {
	context.Context
}

func (detached) Deadline() (time.Time, bool) { return time.Time{}, false }
func (detached) Done() <-chan struct{}       { return nil }
func (detached) Err() error                  { return nil }

// Detach returns a context that outlives ctx. The browser process is
// allocated under it so that it is not killed when the context passed to
// Launch ends.
func Detach(ctx context.Context) context.Context {
	return detached{ctx}
}
