package eventsource

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/putto11262002/sabaipics-core/internal/logging"
	"github.com/putto11262002/sabaipics-core/ip"
	"github.com/putto11262002/sabaipics-core/ptp"
	"github.com/putto11262002/sabaipics-core/ptperr"
)

// Sony in-memory gate tuning (spec §4.6.4, §6).
const (
	SonyInMemoryMaxWait       = 35 * time.Second
	sonyGatePollInterval      = 100 * time.Millisecond
	sonySignatureMaxAttempts  = 20
	sonySignaturePollInterval = 150 * time.Millisecond
	// sonyObjectInMemorySafeThreshold is the minimum objectInMemory value safe to
	// read; values below it, especially 0x0001, must never be read (spec §4.6.4,
	// §9: "a first-class contract, not a workaround").
	sonyObjectInMemorySafeThreshold = 0x8000
)

// sonySignature is the (filename, sequence_number, compressed_size) triple used to
// tell a freshly-arrived in-memory capture apart from a re-emitted event for one
// already processed (spec §4.6.4 step 2).
type sonySignature struct {
	filename string
	sequence uint32
	size     uint32
}

// SonyEventSource extends StandardEventSource's push-event loop with Sony's
// in-memory capture gate (spec §4.6.4). Normal handles flow through the embedded
// StandardEventSource unchanged; the sentinel handle 0xFFFFC001 is intercepted and
// routed through a dedicated single-worker queue instead of the ordinary
// dedup-by-handle path, since every in-memory capture reuses that same handle.
type SonyEventSource struct {
	*StandardEventSource

	issuer CommandIssuer

	trigger    chan struct{}
	workerDone chan struct{}

	sigMu   sync.Mutex
	haveSig bool
	lastSig sonySignature

	counter uint32
}

// sonyTriggerQueueDepth bounds how many unprocessed in-memory triggers can queue
// up (spec §4.6.4: "the source queues triggers and processes them one at a time").
// A single capture burst is a handful of events at most; this is generous
// headroom, not a tight budget.
const sonyTriggerQueueDepth = 64

func NewSonyEventSource(reader EventReader, issuer CommandIssuer, ops PhotoOps, log *logging.Logger, onFatal func(error)) *SonyEventSource {
	base := NewStandardEventSource(reader, ops, log, onFatal)
	s := &SonyEventSource{
		StandardEventSource: base,
		issuer:              issuer,
		trigger:             make(chan struct{}, sonyTriggerQueueDepth),
	}
	base.onHandle = s.handleEvent
	return s
}

func (s *SonyEventSource) handleEvent(ctx context.Context, handle uint32) {
	if handle != ptp.ObjectHandle_SonyInMemory {
		s.StandardEventSource.defaultHandle(ctx, handle)
		return
	}
	select {
	case s.trigger <- struct{}{}:
	case <-ctx.Done():
	}
}

func (s *SonyEventSource) StartMonitoring(ctx context.Context) error {
	if err := s.StandardEventSource.StartMonitoring(ctx); err != nil {
		return err
	}
	s.workerDone = make(chan struct{})
	go s.worker(s.StandardEventSource.loopCtx)
	return nil
}

func (s *SonyEventSource) StopMonitoring() {
	s.StandardEventSource.StopMonitoring()
	if s.workerDone != nil {
		<-s.workerDone
	}
}

func (s *SonyEventSource) worker(ctx context.Context) {
	defer close(s.workerDone)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.trigger:
		}
		s.processInMemoryCapture(ctx)
	}
}

func (s *SonyEventSource) processInMemoryCapture(ctx context.Context) {
	if err := s.waitForGate(ctx); err != nil {
		if !ptperr.Is(err, ptperr.KindCancelled) {
			s.log.Errorf("sony: in-memory gate: %v", err)
		}
		return
	}

	info, ok := s.waitForFreshSignature(ctx)
	if !ok {
		return
	}

	logical := ptp.LogicalHandleBase | (atomic.AddUint32(&s.counter, 1) & ptp.LogicalHandleMask)
	if err := s.ops.DownloadPhotoAsInfo(ctx, ptp.ObjectHandle_SonyInMemory, logical, info); err != nil {
		s.log.Errorf("sony: download in-memory capture %#x (%s): %v", logical, info.Filename, err)
	}
}

// waitForGate polls the Sony objectInMemory device property until it reports a
// value safe to read or SonyInMemoryMaxWait elapses (spec §4.6.4 step 1).
func (s *SonyEventSource) waitForGate(ctx context.Context) error {
	deadline := time.Now().Add(SonyInMemoryMaxWait)
	for {
		if ctx.Err() != nil {
			return ptperr.Wrap(ptperr.KindCancelled, "sony gate wait cancelled", ctx.Err())
		}

		_, data, err := s.issuer.Issue(ctx, ptp.GetDevicePropDesc(ptp.DPC_Sony_ObjectInMemory), ip.DP_NoDataOrDataIn)
		if err == nil {
			if v, derr := decodeUint16DevicePropCurrentValue(data); derr == nil && v >= sonyObjectInMemorySafeThreshold {
				return nil
			}
		}

		if time.Now().After(deadline) {
			return ptperr.ErrSonyGateNeverOpened
		}
		if !sleepCtx(ctx, sonyGatePollInterval) {
			return ptperr.Wrap(ptperr.KindCancelled, "sony gate wait cancelled", ctx.Err())
		}
	}
}

// waitForFreshSignature re-polls GetObjectInfo(0xFFFFC001) until its
// (filename, sequence_number, compressed_size) signature differs from the last one
// recorded, up to sonySignatureMaxAttempts tries (spec §4.6.4 step 2). The
// ObjectInfo behind the winning signature is returned so the caller can feed it
// straight into DownloadPhotoAsInfo instead of fetching it a second time.
func (s *SonyEventSource) waitForFreshSignature(ctx context.Context) (ptp.ObjectInfo, bool) {
	for attempt := 0; attempt < sonySignatureMaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ptp.ObjectInfo{}, false
		}

		info, err := s.ops.GetObjectInfo(ctx, ptp.ObjectHandle_SonyInMemory)
		if err == nil {
			sig := sonySignature{filename: info.Filename, sequence: info.SequenceNumber, size: info.ObjectCompressedSize}

			s.sigMu.Lock()
			changed := !s.haveSig || sig != s.lastSig
			if changed {
				s.lastSig = sig
				s.haveSig = true
			}
			s.sigMu.Unlock()

			if changed {
				return info, true
			}
		}

		if !sleepCtx(ctx, sonySignaturePollInterval) {
			return ptp.ObjectInfo{}, false
		}
	}
	return ptp.ObjectInfo{}, false
}

// decodeUint16DevicePropCurrentValue reads the CurrentValue field out of a
// DevicePropDesc dataset for a UINT16-typed property (ISO 15740 §10.3.2), which is
// objectInMemory's declared type (spec §4.6.4: "objectInMemory (16-bit)"). Layout:
// DevicePropCode u16, DataType u16, GetSet u8, FactoryDefaultValue u16,
// CurrentValue u16, ...
func decodeUint16DevicePropCurrentValue(data []byte) (uint16, error) {
	const currentValueOffset = 7
	if len(data) < currentValueOffset+2 {
		return 0, fmt.Errorf("eventsource: device prop desc too short: %d bytes", len(data))
	}
	return leUint16(data[currentValueOffset:]), nil
}
