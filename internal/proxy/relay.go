package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/drksbr/xmlabridge/internal/events"
	"github.com/drksbr/xmlabridge/internal/util/bytelimiter"
)

// relay couples one accepted client connection with one outbound connection
// to the target instance and drives the two directional pumps. Both sockets
// are owned exclusively by the relay; nothing else may close them.
type relay struct {
	id       string
	logger   *slog.Logger
	bus      *events.Bus
	metrics  *proxyMetrics
	rewriter *rewriter
	limiter  *bytelimiter.ByteLimiter

	client net.Conn
	target net.Conn

	bytesUp   atomic.Int64
	bytesDown atomic.Int64
}

// run dials the target and relays until either direction ends. Whichever pump
// finishes first wins: both sockets are closed immediately so the opposite
// pump unblocks and exits on its own. A half-open relay with one silently
// drained side would otherwise hold sockets forever.
func (r *relay) run(ctx context.Context, targetPort int) {
	addr := net.JoinHostPort("localhost", fmt.Sprintf("%d", targetPort))

	tracer := otel.Tracer("xmlabridge/proxy")
	ctx, span := tracer.Start(ctx, "relay",
		trace.WithAttributes(
			attribute.String("conn.id", r.id),
			attribute.String("conn.remote", r.client.RemoteAddr().String()),
			attribute.Int("target.port", targetPort),
		))
	defer span.End()

	dialer := net.Dialer{Timeout: 10 * time.Second}
	target, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		r.logger.Error("target dial failed", "target", addr, "error", err)
		r.bus.Errorf("Could not connect to target %s: %v", addr, err)
		r.metrics.dialErrors.Inc()
		_ = r.client.Close()
		return
	}
	r.target = target

	r.logger.Info("relaying connection", "remote", r.client.RemoteAddr(), "target", addr)
	r.bus.Logf("Connected to target %s", addr)
	r.metrics.activeConns.Inc()
	defer r.metrics.activeConns.Dec()

	// Stop() cancels the session context; closing both sockets is what
	// actually unblocks pumps sitting in a read.
	stop := context.AfterFunc(ctx, func() {
		_ = r.client.Close()
		_ = r.target.Close()
	})
	defer stop()

	done := make(chan error, 2)
	go func() {
		done <- r.pumpRewrite(ctx, r.client, r.target)
	}()
	go func() {
		done <- r.pumpRaw(ctx, r.target, r.client)
	}()

	err = <-done
	_ = r.client.Close()
	_ = r.target.Close()
	<-done

	r.logger.Info("relay finished",
		"remote", r.client.RemoteAddr(),
		"bytes_up", r.bytesUp.Load(),
		"bytes_down", r.bytesDown.Load(),
		"reason", disconnectReason(err))
	r.bus.Logf("Client disconnected")
}

func disconnectReason(err error) string {
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return "eof"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, net.ErrClosed):
		return "closed"
	default:
		return err.Error()
	}
}
