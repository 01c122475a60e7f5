package eventsource

import (
	"context"
	"errors"
	"sync"

	"github.com/putto11262002/sabaipics-core/internal/logging"
	"github.com/putto11262002/sabaipics-core/ip"
	"github.com/putto11262002/sabaipics-core/ptp"
	"github.com/putto11262002/sabaipics-core/ptperr"
)

// recognizedStandardEventCodes are the push event codes StandardEventSource and
// SonyEventSource treat as "new object" notifications (spec §4.6.3). Every other
// code is logged and ignored.
var recognizedStandardEventCodes = map[ptp.EventCode]bool{
	ptp.EC_ObjectAdded:         true,
	ptp.EC_Canon_ObjectAddedEx: true,
	ptp.EC_Sony_ObjectAdded:    true,
}

// StandardEventSource consumes pushed events on the event channel (spec §4.6.3).
// It is the fallback strategy for Fuji, Olympus, Panasonic and any unrecognized
// vendor, and the embedded base for SonyEventSource's in-memory extension.
type StandardEventSource struct {
	reader EventReader
	ops    PhotoOps
	log    photoLog
	// onFatal is invoked once, off the monitoring goroutine's exit path, if the
	// event channel read fails for a reason other than cancellation or timeout
	// (spec §4.5: "errors from the event channel transition directly to
	// terminated"). May be nil.
	onFatal func(error)

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	loopCtx  context.Context
	done     chan struct{}

	seenMu sync.Mutex
	seen   map[uint32]bool

	// onHandle is overridable so SonyEventSource can intercept the sentinel
	// in-memory handle while still reusing this type's read loop and ordinary
	// dedup-by-handle behavior for every other handle.
	onHandle func(ctx context.Context, handle uint32)
}

func NewStandardEventSource(reader EventReader, ops PhotoOps, log *logging.Logger, onFatal func(error)) *StandardEventSource {
	s := &StandardEventSource{
		reader:  reader,
		ops:     ops,
		log:     log,
		onFatal: onFatal,
		seen:    make(map[uint32]bool),
	}
	s.onHandle = s.defaultHandle
	return s
}

func (s *StandardEventSource) defaultHandle(ctx context.Context, handle uint32) {
	s.seenMu.Lock()
	if s.seen[handle] {
		s.seenMu.Unlock()
		return
	}
	s.seen[handle] = true
	s.seenMu.Unlock()

	if err := s.ops.DownloadPhoto(ctx, handle); err != nil {
		s.log.Errorf("standard: download handle %#x: %v", handle, err)
	}
}

func (s *StandardEventSource) StartMonitoring(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.loopCtx = loopCtx
	s.done = make(chan struct{})
	s.running = true
	go s.loop(loopCtx)
	return nil
}

func (s *StandardEventSource) loop(ctx context.Context) {
	defer close(s.done)
	for {
		if ctx.Err() != nil {
			return
		}

		pkt, err := s.reader.ReadEvent(ctx, EventRecvTimeout)
		if err != nil {
			if ptperr.Is(err, ptperr.KindCancelled) || errors.Is(err, context.Canceled) {
				return
			}
			if errors.Is(err, ptperr.ErrReadTimeout) {
				continue
			}
			s.log.Errorf("standard: event channel read failed: %v", err)
			if s.onFatal != nil {
				s.onFatal(err)
			}
			return
		}

		ev, ok := pkt.(*ip.EventPacket)
		if !ok {
			continue
		}
		if !recognizedStandardEventCodes[ev.EventCode] {
			s.log.Debugf("standard: ignoring event code %#x", uint16(ev.EventCode))
			continue
		}

		s.onHandle(ctx, ev.Parameter1)
	}
}

func (s *StandardEventSource) StopMonitoring() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
}

func (s *StandardEventSource) Cleanup() {}
