// Package eventsource implements the four vendor-specific strategies for detecting
// new objects on a connected responder (spec §4.6): Canon and Nikon poll the
// command channel, Standard and Sony consume pushed events on the event channel.
package eventsource

import (
	"context"
	"time"

	"github.com/putto11262002/sabaipics-core/internal/logging"
	"github.com/putto11262002/sabaipics-core/ip"
	"github.com/putto11262002/sabaipics-core/ptp"
)

// ObjectInfoGetter fetches ObjectInfo for a handle through the owning session's
// command channel.
type ObjectInfoGetter interface {
	GetObjectInfo(ctx context.Context, handle uint32) (ptp.ObjectInfo, error)
}

// PhotoOps is the narrow capability an EventSource needs from its owning Session
// (spec §9 design note: "define a narrow capability trait PhotoOps { get_object_info,
// download_photo, enqueue_for_download } ... Session implements it; EventSource
// holds it as a weak-or-value reference"). Go has no ownership cycle to break here:
// Session owns its EventSource, and hands it this interface instead of itself, so
// the EventSource never needs a reference back to the concrete Session type.
type PhotoOps interface {
	ObjectInfoGetter

	// DownloadPhoto runs the full get_object_info -> classify -> skip/download ->
	// emit pipeline for handle (spec §4.5), reporting handle to every callback.
	DownloadPhoto(ctx context.Context, handle uint32) error

	// DownloadPhotoAs runs the same pipeline but fetches bytes using downloadHandle
	// while every callback reports reportHandle instead. This is the synthetic
	// logical-handle path Sony's in-memory capture strategy needs (spec §4.6.4 step
	// 3): the wire handle 0xFFFFC001 is reused by every in-memory capture, but each
	// capture must surface a distinct, stable handle to the caller.
	DownloadPhotoAs(ctx context.Context, downloadHandle, reportHandle uint32) error

	// DownloadPhotoAsInfo is DownloadPhotoAs for a caller that already holds a
	// fresh ObjectInfo for downloadHandle, skipping the redundant GetObjectInfo
	// round-trip. Sony's gate already fetches ObjectInfo once to detect a fresh
	// signature (spec §4.6.4 step 2); reusing it here means one fetch per capture
	// instead of two.
	DownloadPhotoAsInfo(ctx context.Context, downloadHandle, reportHandle uint32, info ptp.ObjectInfo) error
}

// CommandIssuer is the capability Canon/Nikon/Sony polling needs to issue
// operations on the command channel, sharing its single-writer lock with ordinary
// Session calls (spec §4.5: "Polling event sources compete for the same lock as
// user-initiated operations; fairness is FIFO").
type CommandIssuer interface {
	// Issue performs one full request/response cycle, including the data phase
	// when dataPhase requests one, and returns the reassembled data bytes.
	Issue(ctx context.Context, req ptp.OperationRequest, dataPhase ip.DataPhase) (ptp.OperationResponse, []byte, error)
}

// EventReader is the capability Standard/Sony need to consume the event channel,
// which they own exclusively once monitoring starts (spec §4.2, §5).
type EventReader interface {
	ReadEvent(ctx context.Context, timeout time.Duration) (ip.PacketIn, error)
}

// Source is implemented by every vendor-specific event detection strategy.
type Source interface {
	// StartMonitoring begins detecting new objects in the background. It returns
	// once the monitoring goroutine has been launched, not once it exits.
	StartMonitoring(ctx context.Context) error

	// StopMonitoring signals the monitoring goroutine to stop and blocks until it
	// has fully exited. Skipping this await is the specified cause of the
	// "multiple disconnect attempts required" bug (spec §4.6, §5): a caller that
	// returns from StopMonitoring before the goroutine is gone can race a second
	// teardown against callbacks still in flight from the first.
	StopMonitoring()

	// Cleanup releases any resources the source still holds after StopMonitoring.
	Cleanup()
}

// Default adaptive poll schedule bounds (spec §6 configuration).
const (
	PollIntervalMin  = 50 * time.Millisecond
	PollIntervalMax  = 200 * time.Millisecond
	PollIntervalStep = 50 * time.Millisecond
)

// EventRecvTimeout is the long-poll timeout used on the event channel (spec §6:
// event_recv_timeout_s = 30).
const EventRecvTimeout = 30 * time.Second

// pollSchedule implements the adaptive polling interval Canon and Nikon both use
// (spec §4.6.1): start at min, reset to min immediately on a hit, else grow by
// step up to max.
type pollSchedule struct {
	min, max, step time.Duration
	current        time.Duration
}

func newPollSchedule(min, max, step time.Duration) *pollSchedule {
	return &pollSchedule{min: min, max: max, step: step, current: min}
}

func (p *pollSchedule) hit() {
	p.current = p.min
}

func (p *pollSchedule) miss() time.Duration {
	wait := p.current
	p.current += p.step
	if p.current > p.max {
		p.current = p.max
	}
	return wait
}

func (p *pollSchedule) backoffToMax() {
	p.current = p.max
}

// sleepCtx sleeps for d, returning true, or returns false early if ctx is
// cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func leUint16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

type photoLog = *logging.Logger
