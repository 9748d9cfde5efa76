// Package util holds small process-level helpers.
package util

import (
	"context"
	"os/signal"
	"syscall"
)

// WithSignalContext returns a context cancelled on SIGINT or SIGTERM.
func WithSignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
