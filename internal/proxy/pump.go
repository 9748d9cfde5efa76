package proxy

import (
	"context"
	"errors"
	"net"
)

// Each pump reads in fixed 8 KiB chunks; the protocol has no length prefix
// so chunk size only affects syscall granularity, never framing.
const chunkSize = 8 * 1024

var errPendingLimit = errors.New("pending rewrite buffer limit exceeded")

// pumpRaw moves bytes from src to dst verbatim. It returns on end of stream,
// on any read or write fault, or once the session context is cancelled; all
// three are ordinary disconnect signals for the relay, not user-facing
// failures.
func (r *relay) pumpRaw(ctx context.Context, src, dst net.Conn) error {
	buf := make([]byte, chunkSize)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := src.Read(buf)
		if n > 0 {
			if werr := writeFull(dst, buf[:n]); werr != nil {
				return werr
			}
			r.metrics.bytesDown.Add(float64(n))
			r.bytesDown.Add(int64(n))
		}
		if err != nil {
			return err
		}
	}
}

// pumpRewrite moves bytes from the client to the target, withholding them in
// the per-connection accumulator until a complete envelope has arrived. The
// full accumulated text is then rewritten and forwarded in one write, so the
// target never observes a partially rewritten request. The accumulator is
// cleared after every forwarded message; between messages it holds exactly
// the bytes of one in-progress request.
func (r *relay) pumpRewrite(ctx context.Context, src, dst net.Conn) error {
	buf := make([]byte, chunkSize)
	var pending []byte
	defer func() {
		if len(pending) > 0 {
			r.limiter.Release(len(pending))
		}
	}()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := src.Read(buf)
		if n > 0 {
			if r.limiter != nil && !r.limiter.TryAcquire(n) {
				r.logger.Warn("pending buffer limit reached, dropping connection", "buffered", len(pending))
				return errPendingLimit
			}
			pending = append(pending, buf[:n]...)
			if messageComplete(string(pending)) {
				rewritten := r.rewriter.rewrite(string(pending))
				if werr := writeFull(dst, []byte(rewritten)); werr != nil {
					return werr
				}
				r.metrics.bytesUp.Add(float64(len(rewritten)))
				r.metrics.messagesRewritten.Inc()
				r.bytesUp.Add(int64(len(rewritten)))
				r.limiter.Release(len(pending))
				pending = pending[:0]
			}
		}
		if err != nil {
			return err
		}
	}
}

// writeFull writes all of data, looping over short writes.
func writeFull(dst net.Conn, data []byte) error {
	total := 0
	for total < len(data) {
		n, err := dst.Write(data[total:])
		if err != nil {
			return err
		}
		total += n
	}
	return nil
}
