package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/putto11262002/sabaipics-core/ptperr"
)

func pipePair(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	a, b := net.Pipe()
	return New(a), New(b)
}

func TestSendExactRecvExactRoundTrip(t *testing.T) {
	a, b := pipePair(t)
	defer a.Close()
	defer b.Close()

	msg := []byte("hello ptp/ip")
	go func() {
		if err := a.SendExact(context.Background(), msg, 0); err != nil {
			t.Errorf("SendExact() err = %v", err)
		}
	}()

	got, err := b.RecvExact(context.Background(), len(msg), time.Second)
	if err != nil {
		t.Fatalf("RecvExact() err = %v", err)
	}
	if string(got) != string(msg) {
		t.Errorf("RecvExact() = %q; want %q", got, msg)
	}
}

func TestRecvExactTimeout(t *testing.T) {
	_, b := pipePair(t)
	defer b.Close()

	_, err := b.RecvExact(context.Background(), 4, 20*time.Millisecond)
	if !ptperr.Is(err, ptperr.KindTransport) {
		t.Errorf("RecvExact() err = %v; want KindTransport timeout", err)
	}
}

func TestRecvExactCancellation(t *testing.T) {
	_, b := pipePair(t)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := b.RecvExact(ctx, 4, 0)
	if !ptperr.Is(err, ptperr.KindCancelled) {
		t.Errorf("RecvExact() err = %v; want KindCancelled", err)
	}
}

func TestRecvExactPeerClosed(t *testing.T) {
	a, b := pipePair(t)
	defer b.Close()

	a.Close()

	_, err := b.RecvExact(context.Background(), 4, time.Second)
	if err == nil {
		t.Error("RecvExact() err = nil; want error after peer closed")
	}
}
