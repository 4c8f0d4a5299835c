package cdp

import "context"

// combineContext derives a context from the session's chromedp context (so
// CDP target values are preserved) that is additionally cancelled when the
// caller's context is done. The watcher goroutine exits when either side
// finishes.
func combineContext(sessionCtx, callerCtx context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(sessionCtx)

	go func() {
		select {
		case <-callerCtx.Done():
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}
