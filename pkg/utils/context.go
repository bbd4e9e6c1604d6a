package utils

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// WithSignal returns a context cancelled on SIGINT or SIGTERM. A run
// aborted between stages stops cleanly: per-artifact writes are atomic
// so nothing is ever left half written.
func WithSignal(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan os.Signal, 2)

	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-ch
		cancel()
		signal.Stop(ch)
	}()

	return ctx, cancel
}
