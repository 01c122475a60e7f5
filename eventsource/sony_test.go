package eventsource

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/putto11262002/sabaipics-core/ip"
	"github.com/putto11262002/sabaipics-core/ptp"
)

func encodeUint16DevicePropDesc(current uint16) []byte {
	b := make([]byte, 9)
	b[7] = byte(current)
	b[8] = byte(current >> 8)
	return b
}

func TestDecodeUint16DevicePropCurrentValueRoundTrip(t *testing.T) {
	for _, v := range []uint16{0x0001, 0x7FFF, 0x8000, 0xFFFF} {
		got, err := decodeUint16DevicePropCurrentValue(encodeUint16DevicePropDesc(v))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got != v {
			t.Errorf("decode(%#x) = %#x", v, got)
		}
	}
}

func TestDecodeUint16DevicePropCurrentValueTooShort(t *testing.T) {
	if _, err := decodeUint16DevicePropCurrentValue([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for short device prop dataset")
	}
}

// gatedIssuer answers GetDevicePropDesc with a configurable sequence of
// objectInMemory values, switching from unsafe to safe after unsafeFor elapses.
type gatedIssuer struct {
	mu        sync.Mutex
	unsafeFor time.Duration
	start     time.Time
}

func (g *gatedIssuer) Issue(ctx context.Context, req ptp.OperationRequest, dp ip.DataPhase) (ptp.OperationResponse, []byte, error) {
	g.mu.Lock()
	if g.start.IsZero() {
		g.start = time.Now()
	}
	elapsed := time.Since(g.start)
	g.mu.Unlock()

	if elapsed < g.unsafeFor {
		return ptp.OperationResponse{ResponseCode: ptp.RC_OK}, encodeUint16DevicePropDesc(0x0001), nil
	}
	return ptp.OperationResponse{ResponseCode: ptp.RC_OK}, encodeUint16DevicePropDesc(0x8001), nil
}

// TestSonyEventSourceInMemoryBurstYieldsOneCallbackPerCapture covers spec §8
// property 8 / scenario S4: repeated ObjectAdded(0xFFFFC001) events collapse into
// one did_detect_photo-equivalent callback per distinct capture signature, with
// monotonically increasing synthetic logical handles.
func TestSonyEventSourceInMemoryBurstYieldsOneCallbackPerCapture(t *testing.T) {
	reader := &fakeReader{events: []ip.PacketIn{
		eventPacket(ptp.EC_Sony_ObjectAdded, ptp.ObjectHandle_SonyInMemory),
		eventPacket(ptp.EC_Sony_ObjectAdded, ptp.ObjectHandle_SonyInMemory),
		eventPacket(ptp.EC_Sony_ObjectAdded, ptp.ObjectHandle_SonyInMemory),
		eventPacket(ptp.EC_Sony_ObjectAdded, ptp.ObjectHandle_SonyInMemory),
	}}
	issuer := &gatedIssuer{unsafeFor: 0} // gate opens immediately; gate timing tested separately
	ops := &fakePhotoOps{
		infos: []ptp.ObjectInfo{
			{Filename: "A.JPG", SequenceNumber: 1, ObjectCompressedSize: 100},
			{Filename: "A.JPG", SequenceNumber: 1, ObjectCompressedSize: 100},
			{Filename: "A.JPG", SequenceNumber: 1, ObjectCompressedSize: 100},
			{Filename: "B.JPG", SequenceNumber: 2, ObjectCompressedSize: 200},
		},
	}
	src := NewSonyEventSource(reader, issuer, ops, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := src.StartMonitoring(ctx); err != nil {
		t.Fatalf("StartMonitoring() err = %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for len(ops.downloadCalls()) < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	// Give the worker time to drain the queued bursts and notice the B.JPG change.
	time.Sleep(500 * time.Millisecond)
	cancel()
	src.StopMonitoring()

	calls := ops.downloadCalls()
	if len(calls) == 0 {
		t.Fatal("expected at least one in-memory download")
	}
	for i, c := range calls {
		if c.downloadHandle != ptp.ObjectHandle_SonyInMemory {
			t.Errorf("call %d downloadHandle = %#x; want 0xFFFFC001", i, c.downloadHandle)
		}
		wantLogical := ptp.LogicalHandleBase | uint32(i+1)
		if c.reportHandle != wantLogical {
			t.Errorf("call %d reportHandle = %#x; want %#x", i, c.reportHandle, wantLogical)
		}
	}
}

func TestSonyEventSourceNormalHandleUsesOrdinaryDedup(t *testing.T) {
	reader := &fakeReader{events: []ip.PacketIn{
		eventPacket(ptp.EC_Sony_ObjectAdded, 0x99),
		eventPacket(ptp.EC_Sony_ObjectAdded, 0x99),
	}}
	issuer := &gatedIssuer{}
	ops := &fakePhotoOps{}
	src := NewSonyEventSource(reader, issuer, ops, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	src.StartMonitoring(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for len(ops.downloadCalls()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(30 * time.Millisecond)
	cancel()
	src.StopMonitoring()

	calls := ops.downloadCalls()
	if len(calls) != 1 || calls[0].downloadHandle != 0x99 {
		t.Errorf("download calls = %v; want exactly one for handle 0x99", calls)
	}
}
