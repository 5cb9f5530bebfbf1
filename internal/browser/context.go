// internal/browser/context.go
package browser

import "context"

// combineContext derives a context from base that is additionally canceled
// when aux is done. chromedp stores the target handle in context values, so
// every per-call context must inherit from the session context while still
// honoring the caller's cancellation.
//
// The returned cancel func must always be called to release the watcher
// goroutine.
func combineContext(base, aux context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(base)
	go func() {
		select {
		case <-aux.Done():
			cancel()
		case <-merged.Done():
		}
	}()
	return merged, cancel
}
