package httpapi

import (
	"context"
)

// serverBaseCtx is cancelled when the daemon shuts down; handlers derive
// from it so a stopping server also stops generation.
var serverBaseCtx = context.Background()

// SetBaseContext sets the shutdown context. nil restores Background.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// joinContexts returns a context with b's values that is done as soon as a
// or b is. The cancel func releases the watch on a.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(b)
	stop := context.AfterFunc(a, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
