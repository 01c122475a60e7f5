package eventsource

import (
	"context"
	"sync"

	"github.com/putto11262002/sabaipics-core/internal/logging"
	"github.com/putto11262002/sabaipics-core/ip"
	"github.com/putto11262002/sabaipics-core/ptp"
)

// NikonEventSource polls Nikon_GetEvent (opcode 0x90C7) on the command channel
// with the same adaptive schedule Canon uses (spec §4.6.2).
type NikonEventSource struct {
	issuer CommandIssuer
	ops    PhotoOps
	log    photoLog

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewNikonEventSource(issuer CommandIssuer, ops PhotoOps, log *logging.Logger) *NikonEventSource {
	return &NikonEventSource{issuer: issuer, ops: ops, log: log}
}

func (n *NikonEventSource) StartMonitoring(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.done = make(chan struct{})
	n.running = true
	go n.loop(loopCtx)
	return nil
}

func (n *NikonEventSource) loop(ctx context.Context) {
	defer close(n.done)
	seen := make(map[uint32]bool)
	sched := newPollSchedule(PollIntervalMin, PollIntervalMax, PollIntervalStep)
	for {
		if ctx.Err() != nil {
			return
		}

		_, data, err := n.issuer.Issue(ctx, ptp.NikonGetEvent(), ip.DP_NoDataOrDataIn)
		if err != nil {
			sched.backoffToMax()
			if !sleepCtx(ctx, sched.current) {
				return
			}
			continue
		}

		handles := ParseNikonEvent(data)
		var fresh []uint32
		for _, h := range handles {
			if seen[h] {
				continue
			}
			seen[h] = true
			fresh = append(fresh, h)
		}

		if len(fresh) == 0 {
			if !sleepCtx(ctx, sched.miss()) {
				return
			}
			continue
		}

		sched.hit()
		for _, h := range fresh {
			if err := n.ops.DownloadPhoto(ctx, h); err != nil {
				n.log.Errorf("nikon: download handle %#x: %v", h, err)
			}
		}
	}
}

func (n *NikonEventSource) StopMonitoring() {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return
	}
	cancel, done := n.cancel, n.done
	n.running = false
	n.mu.Unlock()

	cancel()
	<-done
}

func (n *NikonEventSource) Cleanup() {}

// ParseNikonEvent extracts object handles from a Nikon GetEvent payload (spec
// §4.6.2): a count: u16 followed by count records of {code: u16, param1: u32}.
// Handles are param1 of records whose code is ObjectAdded (0x4002) or
// ObjectAddedInSDRAM (0xC101), in wire order, with no deduplication — that is the
// caller's job (spec §8 property 7: duplicate suppression happens across the
// polling loop, not within a single decoded batch).
func ParseNikonEvent(data []byte) []uint32 {
	if len(data) < 2 {
		return nil
	}
	count := leUint16(data)
	offset := 2

	var handles []uint32
	for i := 0; i < int(count) && offset+6 <= len(data); i++ {
		code := leUint16(data[offset:])
		param1 := leUint32(data[offset+2:])
		switch ptp.EventCode(code) {
		case ptp.EC_ObjectAdded, ptp.EC_Nikon_ObjectAddedInSDRAM:
			handles = append(handles, param1)
		}
		offset += 6
	}
	return handles
}
