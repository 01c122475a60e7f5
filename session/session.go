// Package session implements the Session state machine (spec §4.5): the
// Init/OpenSession handshake, command-channel serialization and data-phase
// reassembly, vendor-specific EventSource construction, and delegate callback
// fan-out. Session implements every capability interface package eventsource
// needs from its owner (PhotoOps, CommandIssuer, EventReader via an internal
// adapter), so an EventSource never holds a concrete *Session — only the narrow
// interface it actually uses (spec §9 design note).
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/putto11262002/sabaipics-core/eventsource"
	"github.com/putto11262002/sabaipics-core/internal/logging"
	"github.com/putto11262002/sabaipics-core/ip"
	"github.com/putto11262002/sabaipics-core/ptp"
	"github.com/putto11262002/sabaipics-core/ptperr"
	"github.com/putto11262002/sabaipics-core/spool"
	"github.com/putto11262002/sabaipics-core/transport"
	"github.com/putto11262002/sabaipics-core/txalloc"
)

// Session owns one camera's two TCP connections, issues PTP operations over the
// command channel, and fans out EventSource detections through its Delegate.
type Session struct {
	cfg      Config
	log      *logging.Logger
	delegate Delegate
	spool    *spool.Spool

	mu               sync.Mutex
	state            State
	cmdConn          *transport.Conn
	evtConn          *transport.Conn
	connectionNumber uint32
	name             string
	vendor           ptp.Vendor
	sessionID        uint32
	source           eventsource.Source

	txAlloc *txalloc.Allocator

	// cmdMu serializes every command-channel transaction, including vendor
	// pollers competing with user-initiated calls (spec §4.5: "fairness is FIFO").
	cmdMu sync.Mutex
}

// New creates a Session in the idle state. spool may be nil, in which case
// completed downloads are delivered only via the delegate, not written to disk.
func New(cfg Config, sp *spool.Spool, delegate Delegate, log *logging.Logger) *Session {
	return &Session{cfg: cfg, spool: sp, delegate: delegate, log: log, state: StateIdle}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Vendor() ptp.Vendor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vendor
}

func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Connect performs the full path: Init handshake on both channels, OpenSession,
// vendor-specific EventSource construction, and starts monitoring (spec §4.5).
func (s *Session) Connect(ctx context.Context, cmdConn, evtConn *transport.Conn, sessionID uint32) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ptperr.ErrAlreadyConnected
	}
	s.state = StatePreparing
	s.mu.Unlock()

	connNum, name, err := s.initHandshake(ctx, cmdConn, evtConn)
	if err != nil {
		s.mu.Lock()
		s.state = StateTerminated
		s.mu.Unlock()
		return err
	}

	if err := s.finishPreparation(ctx, cmdConn, evtConn, connNum, name, sessionID); err != nil {
		return err
	}
	return s.StartEventMonitoring(ctx)
}

// PrepareSession is the Scanner variant (spec §4.4 stage 5): Init has already run
// on both channels, so this only performs OpenSession and constructs the
// vendor-specific EventSource. start_event_monitoring must be called separately.
func (s *Session) PrepareSession(ctx context.Context, cmdConn, evtConn *transport.Conn, connectionNumber uint32, cameraName string, sessionID uint32) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ptperr.ErrAlreadyConnected
	}
	s.state = StatePreparing
	s.mu.Unlock()

	return s.finishPreparation(ctx, cmdConn, evtConn, connectionNumber, cameraName, sessionID)
}

func (s *Session) initHandshake(ctx context.Context, cmdConn, evtConn *transport.Conn) (uint32, string, error) {
	cmdIO := &connIO{conn: cmdConn, ctx: ctx, timeout: s.cfg.CommandTimeout}
	if err := ip.WriteFrame(cmdIO, ip.NewInitCommandRequestPacket(s.cfg.ClientGUID, s.cfg.FriendlyName)); err != nil {
		return 0, "", err
	}
	pkt, err := ip.Decode(cmdIO)
	if err != nil {
		return 0, "", err
	}

	ack, ok := pkt.(*ip.InitCommandAckPacket)
	if !ok {
		if fail, ok := pkt.(*ip.InitFailPacket); ok {
			return 0, "", ptperr.Wrap(ptperr.KindProtocol, "command channel init failed", fail)
		}
		return 0, "", ptperr.New(ptperr.KindProtocol, "unexpected packet during command channel init")
	}

	evtIO := &connIO{conn: evtConn, ctx: ctx, timeout: s.cfg.CommandTimeout}
	if err := ip.WriteFrame(evtIO, ip.NewInitEventRequestPacket(ack.ConnectionNumber)); err != nil {
		return 0, "", err
	}
	evtPkt, err := ip.Decode(evtIO)
	if err != nil {
		return 0, "", err
	}
	if _, ok := evtPkt.(*ip.InitEventAckPacket); !ok {
		if fail, ok := evtPkt.(*ip.InitFailPacket); ok {
			return 0, "", ptperr.Wrap(ptperr.KindProtocol, "event channel init failed", fail)
		}
		return 0, "", ptperr.New(ptperr.KindProtocol, "unexpected packet during event channel init")
	}

	return ack.ConnectionNumber, ack.ResponderName, nil
}

func (s *Session) finishPreparation(ctx context.Context, cmdConn, evtConn *transport.Conn, connNum uint32, name string, sessionID uint32) error {
	s.mu.Lock()
	s.cmdConn = cmdConn
	s.evtConn = evtConn
	s.connectionNumber = connNum
	s.name = name
	s.vendor = ptp.DetectVendor(name)
	s.sessionID = sessionID
	s.txAlloc = txalloc.New(s.cfg.TransactionReserveBlock)
	s.mu.Unlock()

	resp, _, err := s.issueTimed(ctx, ptp.OpenSession(sessionID), ip.DP_NoDataOrDataIn, s.cfg.CommandTimeout)
	if err != nil {
		s.mu.Lock()
		s.state = StateTerminated
		s.mu.Unlock()
		return err
	}
	if !resp.OK() {
		s.mu.Lock()
		s.state = StateTerminated
		s.mu.Unlock()
		return responseCodeError("OpenSession", resp)
	}

	s.mu.Lock()
	s.source = s.buildEventSource()
	s.state = StatePrepared
	s.mu.Unlock()
	return nil
}

func (s *Session) buildEventSource() eventsource.Source {
	reader := &sessionEventReader{s: s}
	switch s.vendor {
	case ptp.VendorCanon:
		return eventsource.NewCanonEventSource(s, s, s.log.WithPrefix("[canon] "))
	case ptp.VendorNikon:
		return eventsource.NewNikonEventSource(s, s, s.log.WithPrefix("[nikon] "))
	case ptp.VendorSony:
		return eventsource.NewSonyEventSource(reader, s, s, s.log.WithPrefix("[sony] "), s.handleEventChannelFailure)
	default:
		return eventsource.NewStandardEventSource(reader, s, s.log.WithPrefix("[standard] "), s.handleEventChannelFailure)
	}
}

// StartEventMonitoring transitions prepared -> connected and launches the
// vendor-specific EventSource's monitoring loop (spec §4.5).
func (s *Session) StartEventMonitoring(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StatePrepared {
		s.mu.Unlock()
		return ptperr.Wrap(ptperr.KindState, "start_event_monitoring requires prepared state, got "+s.state.String(), nil)
	}
	source := s.source
	s.mu.Unlock()

	if err := source.StartMonitoring(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = StateConnected
	s.mu.Unlock()

	s.fireConnect()
	return nil
}

// Issue implements eventsource.CommandIssuer: it is the single entry point every
// command-channel transaction goes through, vendor pollers and user calls alike
// (spec §4.5: "only one request/response transaction in flight at a time").
func (s *Session) Issue(ctx context.Context, req ptp.OperationRequest, dataPhase ip.DataPhase) (ptp.OperationResponse, []byte, error) {
	return s.issueTimed(ctx, req, dataPhase, s.cfg.CommandTimeout)
}

func (s *Session) issueTimed(ctx context.Context, req ptp.OperationRequest, dataPhase ip.DataPhase, timeout time.Duration) (ptp.OperationResponse, []byte, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	s.mu.Lock()
	cmdConn, txAlloc := s.cmdConn, s.txAlloc
	s.mu.Unlock()
	if cmdConn == nil || txAlloc == nil {
		return ptp.OperationResponse{}, nil, ptperr.ErrNotConnected
	}

	req.TransactionID = txAlloc.Next()

	io := &connIO{conn: cmdConn, ctx: ctx, timeout: timeout}
	if err := ip.WriteFrame(io, &ip.OperationRequestPacket{DataPhaseInfo: dataPhase, OperationRequest: req}); err != nil {
		return ptp.OperationResponse{}, nil, err
	}
	return readResponseCycle(io, req.TransactionID)
}

// GetObjectInfo implements eventsource.ObjectInfoGetter and is also a Session
// operation in its own right (spec §4.5).
func (s *Session) GetObjectInfo(ctx context.Context, handle uint32) (ptp.ObjectInfo, error) {
	resp, data, err := s.issueTimed(ctx, ptp.GetObjectInfo(handle), ip.DP_NoDataOrDataIn, s.cfg.CommandTimeout)
	if err != nil {
		return ptp.ObjectInfo{}, err
	}
	if !resp.OK() {
		return ptp.ObjectInfo{}, responseCodeError("GetObjectInfo", resp)
	}
	return ptp.DecodeObjectInfo(data)
}

// GetObject issues GetObject and reassembles the full data phase (spec §4.5).
// Large transfers are logged with throughput.
func (s *Session) GetObject(ctx context.Context, handle uint32) ([]byte, error) {
	start := time.Now()
	resp, data, err := s.issueTimed(ctx, ptp.GetObject(handle), ip.DP_NoDataOrDataIn, s.cfg.DownloadTimeout)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, responseCodeError("GetObject", resp)
	}
	s.logThroughput("get_object", handle, len(data), time.Since(start))
	return data, nil
}

// getPartialObject issues GetPartialObject (opcode 0x101B), the Sony in-memory
// download path (spec §4.6.4 step 3).
func (s *Session) getPartialObject(ctx context.Context, handle uint32, maxBytes uint32) ([]byte, error) {
	start := time.Now()
	resp, data, err := s.issueTimed(ctx, ptp.GetPartialObject(handle, 0, maxBytes), ip.DP_NoDataOrDataIn, s.cfg.DownloadTimeout)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, responseCodeError("GetPartialObject", resp)
	}
	s.logThroughput("get_partial_object", handle, len(data), time.Since(start))
	return data, nil
}

func (s *Session) logThroughput(op string, handle uint32, bytes int, elapsed time.Duration) {
	if elapsed <= 0 {
		return
	}
	mbps := float64(bytes) / elapsed.Seconds() / (1024 * 1024)
	s.log.Infof("%s: handle=%#x bytes=%d elapsed=%s throughput=%.2fMiB/s", op, handle, bytes, elapsed, mbps)
}

// GetDeviceInfo issues GetDeviceInfo (opcode 0x1001), a supplemented, optional
// operation (spec §6: "Optional").
func (s *Session) GetDeviceInfo(ctx context.Context) (DeviceInfo, error) {
	resp, data, err := s.issueTimed(ctx, ptp.GetDeviceInfo(), ip.DP_NoDataOrDataIn, s.cfg.CommandTimeout)
	if err != nil {
		return DeviceInfo{}, err
	}
	if !resp.OK() {
		return DeviceInfo{}, responseCodeError("GetDeviceInfo", resp)
	}
	return DecodeDeviceInfo(data)
}

// DownloadPhoto implements eventsource.PhotoOps for the common case where the
// handle used to fetch bytes is the same handle reported to the delegate.
func (s *Session) DownloadPhoto(ctx context.Context, handle uint32) error {
	return s.downloadPhoto(ctx, handle, handle, nil)
}

// DownloadPhotoAs implements eventsource.PhotoOps for Sony's in-memory capture
// path (spec §4.6.4 step 3): bytes are fetched using downloadHandle (always the
// sentinel 0xFFFFC001) while every callback reports the synthetic reportHandle.
func (s *Session) DownloadPhotoAs(ctx context.Context, downloadHandle, reportHandle uint32) error {
	return s.downloadPhoto(ctx, downloadHandle, reportHandle, nil)
}

// DownloadPhotoAsInfo implements eventsource.PhotoOps for a caller that already
// holds a fresh ObjectInfo for downloadHandle (Sony's gate fetches one to detect a
// fresh signature before calling in), skipping the GetObjectInfo this pipeline
// would otherwise repeat.
func (s *Session) DownloadPhotoAsInfo(ctx context.Context, downloadHandle, reportHandle uint32, info ptp.ObjectInfo) error {
	return s.downloadPhoto(ctx, downloadHandle, reportHandle, &info)
}

// downloadPhoto is the get_object_info -> classify -> skip/download -> emit
// pipeline (spec §4.5, §8 property 5). known, if non-nil, is an ObjectInfo the
// caller already fetched for downloadHandle, so the fetch is skipped.
func (s *Session) downloadPhoto(ctx context.Context, downloadHandle, reportHandle uint32, known *ptp.ObjectInfo) error {
	var info ptp.ObjectInfo
	if known != nil {
		info = *known
	} else {
		fetched, err := s.GetObjectInfo(ctx, downloadHandle)
		if err != nil {
			s.fireFail(err)
			return err
		}
		info = fetched
	}
	s.fireDetectPhoto(reportHandle, info)

	if info.Classify() == ptp.ClassRaw {
		s.fireSkipRaw(info.Filename)
		return nil
	}

	var data []byte
	var err error
	if downloadHandle == ptp.ObjectHandle_SonyInMemory {
		data, err = s.getPartialObject(ctx, downloadHandle, info.ObjectCompressedSize)
	} else {
		data, err = s.GetObject(ctx, downloadHandle)
	}
	if err != nil {
		s.fireFail(err)
		return err
	}

	if s.spool != nil {
		if _, serr := s.spool.Store(data, info.Filename, fmt.Sprintf("%08x", reportHandle)); serr != nil {
			s.log.Errorf("download_photo: spool store failed: %v", serr)
		}
	}
	s.fireCompleteDownload(reportHandle, data)
	return nil
}

// Disconnect performs the ordered teardown from spec §4.5: the event socket is
// closed first so the monitor's long-timeout read cannot delay shutdown (spec §5),
// then monitoring is stopped and awaited, then CloseSession is attempted
// best-effort on the still-open command channel before it too is closed.
// Calling Disconnect when the session is not connected or prepared is a
// successful no-op (spec §8 property 10).
func (s *Session) Disconnect() error {
	s.mu.Lock()
	switch s.state {
	case StateConnected, StatePrepared:
		s.state = StateDisconnecting
	default:
		s.mu.Unlock()
		return nil
	}
	cmdConn, evtConn, source := s.cmdConn, s.evtConn, s.source
	s.mu.Unlock()

	if evtConn != nil {
		evtConn.Close()
	}
	if source != nil {
		source.StopMonitoring()
		source.Cleanup()
	}

	if cmdConn != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), s.cfg.CommandTimeout)
		s.issueTimed(closeCtx, ptp.CloseSession(), ip.DP_NoDataOrDataIn, s.cfg.CommandTimeout)
		cancel()
		cmdConn.Close()
	}

	s.mu.Lock()
	s.state = StateTerminated
	s.mu.Unlock()

	s.fireDisconnect()
	return nil
}

// handleEventChannelFailure is the EventSource onFatal hook (spec §4.5: "errors
// from the event channel transition directly to terminated (via disconnecting)
// and fire the disconnect callback"). It runs on the monitoring goroutine itself,
// so it must not call source.StopMonitoring() — that goroutine is already on its
// way out.
func (s *Session) handleEventChannelFailure(err error) {
	s.mu.Lock()
	if s.state == StateTerminated || s.state == StateDisconnecting {
		s.mu.Unlock()
		return
	}
	s.state = StateDisconnecting
	cmdConn := s.cmdConn
	s.mu.Unlock()

	s.log.Errorf("session: event channel failed, terminating: %v", err)

	if cmdConn != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), s.cfg.CommandTimeout)
		s.issueTimed(closeCtx, ptp.CloseSession(), ip.DP_NoDataOrDataIn, s.cfg.CommandTimeout)
		cancel()
		cmdConn.Close()
	}

	s.mu.Lock()
	s.state = StateTerminated
	s.mu.Unlock()

	s.fireDisconnect()
}

// sessionEventReader adapts the event channel to eventsource.EventReader,
// transparently answering inbound Ping with Pong (spec §9 supplemented feature)
// without surfacing either packet to the caller's read loop.
type sessionEventReader struct {
	s *Session
}

func (r *sessionEventReader) ReadEvent(ctx context.Context, timeout time.Duration) (ip.PacketIn, error) {
	r.s.mu.Lock()
	evtConn := r.s.evtConn
	r.s.mu.Unlock()
	if evtConn == nil {
		return nil, ptperr.ErrNotConnected
	}

	reader := &connIO{conn: evtConn, ctx: ctx, timeout: timeout}
	for {
		pkt, err := ip.Decode(reader)
		if err != nil {
			return nil, err
		}
		if _, isPing := pkt.(*ip.PingPacket); isPing {
			pong := &connIO{conn: evtConn, ctx: ctx, timeout: r.s.cfg.CommandTimeout}
			if werr := ip.WriteFrame(pong, &ip.PongPacket{}); werr != nil {
				r.s.log.Errorf("event channel: reply to ping failed: %v", werr)
			}
			continue
		}
		return pkt, nil
	}
}
