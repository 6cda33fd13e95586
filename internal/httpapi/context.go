package httpapi

import (
	"context"
	"net/http"
)

// serverBaseCtx is canceled on shutdown so long-lived handlers (settle waits,
// progress streams, /events) return promptly. Defaults to Background.
var serverBaseCtx = context.Background()

// SetBaseContext sets the process-level base context used by handlers.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// joinContexts returns a context that is canceled when either a or b is done.
// The returned cancel func must be called to release the goroutine when the handler ends.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-a.Done():
			cancel()
		case <-b.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// handlerContext joins the request with the server base context.
func handlerContext(r *http.Request) (context.Context, context.CancelFunc) {
	return joinContexts(serverBaseCtx, r.Context())
}

// gone reports whether the client or the server went away.
func gone(r *http.Request) bool {
	return r.Context().Err() != nil || serverBaseCtx.Err() != nil
}
