package eventsource

import (
	"context"
	"sync"

	"github.com/putto11262002/sabaipics-core/internal/logging"
	"github.com/putto11262002/sabaipics-core/ip"
	"github.com/putto11262002/sabaipics-core/ptp"
)

// CanonEventSource polls Canon_GetEvent (opcode 0x9116) on the command channel
// (spec §4.6.1).
type CanonEventSource struct {
	issuer CommandIssuer
	ops    PhotoOps
	log    photoLog

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewCanonEventSource(issuer CommandIssuer, ops PhotoOps, log *logging.Logger) *CanonEventSource {
	return &CanonEventSource{issuer: issuer, ops: ops, log: log}
}

// StartMonitoring enables Canon event reporting and launches the poll loop. Per
// spec §4.6.1, SetEventMode(1) must succeed for GetEvent to return anything but an
// 8-byte terminator; a non-OK response is a warning, not fatal (spec §7), since
// polling is still attempted.
func (c *CanonEventSource) StartMonitoring(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	if resp, _, err := c.issuer.Issue(ctx, ptp.CanonSetEventMode(1), ip.DP_NoDataOrDataIn); err != nil {
		c.log.Infof("canon: SetEventMode(1) failed: %v", err)
	} else if !resp.OK() {
		c.log.Infof("canon: SetEventMode(1) response code %#x, polling still attempted", uint16(resp.ResponseCode))
	}
	// Flushing poll discards event queue contents accumulated before monitoring
	// started.
	c.issuer.Issue(ctx, ptp.CanonGetEvent(), ip.DP_NoDataOrDataIn)

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true
	go c.loop(loopCtx)
	return nil
}

func (c *CanonEventSource) loop(ctx context.Context) {
	defer close(c.done)
	sched := newPollSchedule(PollIntervalMin, PollIntervalMax, PollIntervalStep)
	for {
		if ctx.Err() != nil {
			return
		}

		_, data, err := c.issuer.Issue(ctx, ptp.CanonGetEvent(), ip.DP_NoDataOrDataIn)
		if err != nil {
			sched.backoffToMax()
			if !sleepCtx(ctx, sched.current) {
				return
			}
			continue
		}

		handles := ParseCanonEvent(data)
		if len(handles) == 0 {
			if !sleepCtx(ctx, sched.miss()) {
				return
			}
			continue
		}

		sched.hit()
		for _, h := range handles {
			if err := c.ops.DownloadPhoto(ctx, h); err != nil {
				c.log.Errorf("canon: download handle %#x: %v", h, err)
			}
		}
	}
}

func (c *CanonEventSource) StopMonitoring() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancel, done := c.cancel, c.done
	c.running = false
	c.mu.Unlock()

	cancel()
	<-done
}

func (c *CanonEventSource) Cleanup() {}

// ParseCanonEvent extracts object handles from a Canon GetEvent payload (spec
// §4.6.1, §8 property 6): a packed sequence of {size: u32, type: u32, body...}
// records. Handles are the first four body bytes of every record whose type is
// ObjectAddedEx, ObjectAddedEx64, RequestObjectTransfer or
// RequestObjectTransfer64 with size >= 12, in wire order. A record with
// size == 8 && type == 0 terminates the sequence.
//
// The bounds check below uses offset+size > len(data) rather than >=, so a record
// that exactly fills the remainder of the buffer is still read (spec §9 open
// question: the off-by-one drop at an exact fill was flagged as a bug to fix, not
// behavior to preserve).
func ParseCanonEvent(data []byte) []uint32 {
	var handles []uint32
	offset := 0
	for offset+8 <= len(data) {
		size := leUint32(data[offset:])
		typ := leUint32(data[offset+4:])
		if size == 8 && typ == 0 {
			break
		}
		if size < 8 || offset+int(size) > len(data) {
			break
		}
		switch ptp.EventCode(typ) {
		case ptp.EC_Canon_ObjectAddedEx, ptp.EC_Canon_ObjectAddedEx64,
			ptp.EC_Canon_RequestObjectTransfer, ptp.EC_Canon_RequestObjectTransfer64:
			if size >= 12 {
				handles = append(handles, leUint32(data[offset+8:]))
			}
		}
		offset += int(size)
	}
	return handles
}
