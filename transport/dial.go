package transport

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"

	"github.com/putto11262002/sabaipics-core/ptperr"
)

// Dial attempts a single TCP connection to address with a per-attempt timeout,
// classifying the failure per spec §4.4 stage 1: connection-refused and generic
// timeouts are retryable, host/network-unreachable and permission-denied are not.
func Dial(ctx context.Context, network, address string, timeout time.Duration) (*Conn, error) {
	d := net.Dialer{Timeout: timeout}
	nc, err := d.DialContext(ctx, network, address)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ptperr.Wrap(ptperr.KindCancelled, "dial cancelled", ctx.Err())
		}
		return nil, ptperr.WrapDial("dial "+address, err, isRetryableDialError(err))
	}
	return New(nc), nil
}

func isRetryableDialError(err error) bool {
	if errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	// Anything else we have no specific classification for is treated as
	// retryable: a single failed probe attempt should not permanently exclude a
	// candidate IP from a system this deliberately noisy (WiFi camera hotspots).
	return true
}

// DialWithRetry makes up to maxRetries Dial attempts in total, with retryDelay
// between attempts, stopping early on a non-retryable error or ctx cancellation (spec
// §4.4 stage 1).
func DialWithRetry(ctx context.Context, network, address string, perAttemptTimeout time.Duration, maxRetries int, retryDelay time.Duration) (*Conn, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ptperr.Wrap(ptperr.KindCancelled, "dial cancelled", ctx.Err())
		}
		conn, err := Dial(ctx, network, address, perAttemptTimeout)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if !ptperr.Retryable(err) {
			return nil, err
		}
		if attempt < maxRetries-1 {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return nil, ptperr.Wrap(ptperr.KindCancelled, "dial cancelled", ctx.Err())
			}
		}
	}
	return nil, lastErr
}
