package common

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// Interrupted delivers SIGINT, SIGTERM and SIGQUIT.
func Interrupted() chan os.Signal {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	return sigs
}

// InterruptContext is cancelled on the first interrupt signal or when the
// returned cancel func is called.
func InterruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigs := Interrupted()
	go func() {
		defer signal.Stop(sigs)
		select {
		case sig := <-sigs:
			slog.Warn("Received signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
