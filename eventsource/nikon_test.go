package eventsource

import (
	"context"
	"testing"
	"time"

	"github.com/putto11262002/sabaipics-core/ptp"
)

func nikonRecord(code ptp.EventCode, param1 uint32) []byte {
	b := make([]byte, 6)
	b[0] = byte(code)
	b[1] = byte(code >> 8)
	putLE32(b[2:], param1)
	return b
}

func nikonBatch(records ...[]byte) []byte {
	b := make([]byte, 2)
	b[0] = byte(len(records))
	b[1] = byte(len(records) >> 8)
	for _, r := range records {
		b = append(b, r...)
	}
	return b
}

func TestParseNikonEventReturnsEveryPhotoBearingRecord(t *testing.T) {
	data := nikonBatch(
		nikonRecord(ptp.EC_ObjectAdded, 0x55),
		nikonRecord(ptp.EC_ObjectAdded, 0x55),
		nikonRecord(ptp.EC_ObjectAdded, 0x55),
	)
	got := ParseNikonEvent(data)
	if len(got) != 3 {
		t.Fatalf("ParseNikonEvent() = %v; want 3 raw records (dedup happens in the poll loop)", got)
	}
	for _, h := range got {
		if h != 0x55 {
			t.Errorf("handle = %#x; want 0x55", h)
		}
	}
}

func TestParseNikonEventIgnoresUnrecognizedCodes(t *testing.T) {
	data := nikonBatch(nikonRecord(0x9999, 0x1))
	if got := ParseNikonEvent(data); len(got) != 0 {
		t.Errorf("ParseNikonEvent() = %v; want empty for unrecognized code", got)
	}
}

// TestNikonEventSourceSuppressesDuplicateBurst covers spec §8 property 7 / scenario
// S3: three identical ObjectAdded(0x55) records across one GetEvent call collapse
// into exactly one DownloadPhoto call.
func TestNikonEventSourceSuppressesDuplicateBurst(t *testing.T) {
	burst := nikonBatch(
		nikonRecord(ptp.EC_ObjectAdded, 0x55),
		nikonRecord(ptp.EC_ObjectAdded, 0x55),
		nikonRecord(ptp.EC_ObjectAdded, 0x55),
	)
	issuer := &fakeIssuer{results: []issueResult{
		{resp: ptp.OperationResponse{ResponseCode: ptp.RC_OK}, data: burst},
	}}
	ops := &fakePhotoOps{}
	src := NewNikonEventSource(issuer, ops, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := src.StartMonitoring(ctx); err != nil {
		t.Fatalf("StartMonitoring() err = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(ops.downloadCalls()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(30 * time.Millisecond) // let any erroneous extra deliveries land
	cancel()
	src.StopMonitoring()

	calls := ops.downloadCalls()
	if len(calls) != 1 {
		t.Fatalf("download calls = %d; want exactly 1", len(calls))
	}
	if calls[0].downloadHandle != 0x55 {
		t.Errorf("downloaded handle = %#x; want 0x55", calls[0].downloadHandle)
	}
}
