// Package transport provides framed, cancellable TCP I/O on top of net.Conn: exact
// byte reads/writes with per-call deadlines, and cancellation that interrupts both
// by closing the socket (spec §4.2).
package transport

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/putto11262002/sabaipics-core/ptperr"
)

// Conn wraps a net.Conn with the SendExact/RecvExact primitives spec §4.2 requires.
// Go's net.Conn deadline mechanism already gives a read or write exactly one
// outcome (success, timeout, or closed) with no concurrent continuations to
// reconcile, so the "single-winner guard" spec §4.2 asks for falls out of the
// stdlib for the deadline case; we still need an explicit guard for the
// cancellation watcher below, so it never closes a connection a completed
// operation is about to reuse.
type Conn struct {
	nc net.Conn

	mu     sync.Mutex
	closed bool
}

func New(nc net.Conn) *Conn {
	return &Conn{nc: nc}
}

func (c *Conn) Raw() net.Conn { return c.nc }

// Close closes the underlying socket. Safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.nc.Close()
}

// watch closes c if ctx is cancelled before stop fires first. The sync.Once ensures
// the watcher and the caller's own cleanup never both try to act as the outcome's
// "winner" on the same close.
func (c *Conn) watch(ctx context.Context) (stop func(), cancelled func() bool) {
	done := make(chan struct{})
	var once sync.Once
	var firedByCtx bool

	go func() {
		select {
		case <-ctx.Done():
			once.Do(func() {
				firedByCtx = true
				c.Close()
			})
		case <-done:
		}
	}()

	return func() { once.Do(func() {}); close(done) }, func() bool { return firedByCtx }
}

// SendExact writes all of b to the connection, honoring ctx cancellation and the
// given deadline. A zero timeout means no deadline.
func (c *Conn) SendExact(ctx context.Context, b []byte, timeout time.Duration) error {
	if timeout > 0 {
		c.nc.SetWriteDeadline(time.Now().Add(timeout))
		defer c.nc.SetWriteDeadline(time.Time{})
	}

	stop, cancelled := c.watch(ctx)
	_, err := c.nc.Write(b)
	stop()

	if err != nil {
		if cancelled() {
			return ptperr.Wrap(ptperr.KindCancelled, "send cancelled", ctx.Err())
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return ptperr.ErrWriteTimeout
		}
		return ptperr.Wrap(ptperr.KindTransport, "send exact", err)
	}
	return nil
}

// RecvExact blocks until exactly n bytes have arrived, the deadline elapses, the
// peer closes, or ctx is cancelled (spec §4.2). A zero timeout means no deadline.
// The event channel's long-poll monitor loop passes a long timeout instead and
// treats the resulting ErrReadTimeout as "no event" rather than failure.
func (c *Conn) RecvExact(ctx context.Context, n int, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		c.nc.SetReadDeadline(time.Now().Add(timeout))
		defer c.nc.SetReadDeadline(time.Time{})
	}

	stop, cancelled := c.watch(ctx)
	buf := make([]byte, n)
	_, err := io.ReadFull(c.nc, buf)
	stop()

	if err != nil {
		if cancelled() {
			return nil, ptperr.Wrap(ptperr.KindCancelled, "recv cancelled", ctx.Err())
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, ptperr.ErrReadTimeout
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, ptperr.Wrap(ptperr.KindTransport, "peer closed connection", err)
		}
		return nil, ptperr.Wrap(ptperr.KindTransport, "recv exact", err)
	}
	return buf, nil
}
