package session

import (
	"context"
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"
	"unicode/utf16"

	"github.com/google/uuid"
	"github.com/putto11262002/sabaipics-core/internal/logging"
	"github.com/putto11262002/sabaipics-core/ip"
	"github.com/putto11262002/sabaipics-core/ptp"
	"github.com/putto11262002/sabaipics-core/transport"
)

// mockCameraConn is the server side of a single channel's net.Pipe, wired up to
// respond to one vendor-neutral PTP/IP flow: Init, OpenSession, GetObjectInfo,
// GetObject, CloseSession. It is grounded in the same raw-frame technique as
// package scanner's mock responder: InitCommandRequest, InitEventRequest and
// OperationRequest are host-to-responder only, so ip.Decode cannot parse them
// and the server reads them with ip.ReadFrame instead.
type mockCameraConn struct {
	name       string
	cmd        net.Conn
	evt        net.Conn
	objectInfo ptp.ObjectInfo
	objectData []byte

	mu              sync.Mutex
	getObjectCalled bool
}

func newSessionPipes() (cmdClient, evtClient *transport.Conn, cmdSrv, evtSrv net.Conn) {
	ca, cb := net.Pipe()
	ea, eb := net.Pipe()
	return transport.New(ca), transport.New(ea), cb, eb
}

func (m *mockCameraConn) serveHandshake(t *testing.T) {
	t.Helper()
	tag, _, err := ip.ReadFrame(m.cmd)
	if err != nil || tag != ip.PKT_InitCommandRequest {
		t.Errorf("mock: expected InitCommandRequest, got tag=%v err=%v", tag, err)
		return
	}
	writeRawInitCommandAck(m.cmd, 0xCAFE, m.name)

	tag, _, err = ip.ReadFrame(m.evt)
	if err != nil || tag != ip.PKT_InitEventRequest {
		t.Errorf("mock: expected InitEventRequest, got tag=%v err=%v", tag, err)
		return
	}
	writeRawFrame(m.evt, ip.PKT_InitEventAck, nil)
}

// serveOperations answers OpenSession, GetObjectInfo, GetObject and CloseSession
// on the command channel until the peer closes it.
func (m *mockCameraConn) serveOperations(t *testing.T) {
	t.Helper()
	for {
		tag, payload, err := ip.ReadFrame(m.cmd)
		if err != nil {
			return
		}
		if tag != ip.PKT_OperationRequest || len(payload) < 14 {
			return
		}
		opcode := ptp.OperationCode(binary.LittleEndian.Uint16(payload[4:6]))
		txID := ptp.TransactionID(binary.LittleEndian.Uint32(payload[6:10]))

		switch opcode {
		case ptp.OC_OpenSession, ptp.OC_CloseSession:
			writeOperationResponse(m.cmd, ptp.RC_OK, txID)
		case ptp.OC_GetObjectInfo:
			data := ptp.EncodeObjectInfo(m.objectInfo)
			writeDataPhase(m.cmd, txID, data)
			writeOperationResponse(m.cmd, ptp.RC_OK, txID)
		case ptp.OC_GetObject:
			m.mu.Lock()
			m.getObjectCalled = true
			m.mu.Unlock()
			writeDataPhase(m.cmd, txID, m.objectData)
			writeOperationResponse(m.cmd, ptp.RC_OK, txID)
		default:
			writeOperationResponse(m.cmd, ptp.RC_OK, txID)
		}
	}
}

func (m *mockCameraConn) calledGetObject() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getObjectCalled
}

// sendObjectAddedEvent pushes one ObjectAdded event on the event channel, as a
// camera would after a shutter release (spec §4.6.3).
func (m *mockCameraConn) sendObjectAddedEvent(handle uint32) {
	var b []byte
	b = appendU16(b, uint16(ptp.EC_ObjectAdded))
	b = appendU32(b, 0)
	b = appendU32(b, handle)
	writeRawFrame(m.evt, ip.PKT_Event, b)
}

func writeDataPhase(conn net.Conn, txID ptp.TransactionID, data []byte) {
	ip.WriteFrame(conn, &ip.StartDataPacket{TransactionId: txID, TotalDataLength: uint64(len(data))})
	ip.WriteFrame(conn, &ip.EndDataPacket{TransactionId: txID, Payload_: data})
}

func writeRawFrame(conn net.Conn, tag ip.PacketType, payload []byte) {
	hdr := make([]byte, 8)
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(8+len(payload)))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(tag))
	conn.Write(hdr)
	conn.Write(payload)
}

func writeRawInitCommandAck(conn net.Conn, connNum uint32, name string) {
	var b []byte
	b = appendU32(b, connNum)
	guid := uuid.New()
	b = append(b, guid[:]...)
	b = append(b, encodeUTF16Z(name)...)
	b = appendU16(b, 0) // version minor
	b = appendU16(b, 1) // version major
	writeRawFrame(conn, ip.PKT_InitCommandAck, b)
}

func appendU16(b []byte, v uint16) []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, v)
	return append(b, buf...)
}

func appendU32(b []byte, v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return append(b, buf...)
}

func encodeUTF16Z(s string) []byte {
	units := utf16.Encode([]rune(s))
	var b []byte
	for _, u := range units {
		b = appendU16(b, u)
	}
	return appendU16(b, 0)
}

func testLogger() *logging.Logger {
	return logging.New("[test] ", logging.LevelDebug)
}

func testConfig() Config {
	return Config{
		ClientGUID:              uuid.New(),
		FriendlyName:            "sabaipics-studio-test",
		CommandTimeout:          time.Second,
		DownloadTimeout:         2 * time.Second,
		TransactionReserveBlock: 4,
	}
}

// TestConnectStartEventMonitoringDisconnect drives the full handshake through
// Connect, a GetObjectInfo/GetObject round trip via DownloadPhoto, and an ordered
// Disconnect (spec §4.5 state machine: idle -> ... -> connected -> terminated).
func TestConnectStartEventMonitoringDisconnect(t *testing.T) {
	cmdClient, evtClient, cmdSrv, evtSrv := newSessionPipes()
	mock := &mockCameraConn{
		name: "Fujifilm X-T5", // VendorStandard, so no vendor poller fires on its own
		cmd:  cmdSrv,
		evt:  evtSrv,
		objectInfo: ptp.ObjectInfo{
			ObjectCompressedSize: 4,
			Filename:             "DSCF0001.JPG",
		},
		objectData: []byte("jpeg"),
	}
	go func() {
		mock.serveHandshake(t)
		// Once Init completes, the mock switches to answering operation requests
		// (OpenSession, then whatever the test drives next).
		mock.serveOperations(t)
	}()

	var mu sync.Mutex
	var connected bool
	var detected, completed bool
	s := New(testConfig(), nil, Delegate{
		OnConnect:          func() { mu.Lock(); connected = true; mu.Unlock() },
		OnDetectPhoto:      func(handle uint32, filename, captureTime string, size uint32) { mu.Lock(); detected = true; mu.Unlock() },
		OnCompleteDownload: func(handle uint32, data []byte) { mu.Lock(); completed = true; mu.Unlock() },
	}, testLogger())

	ctx := context.Background()
	connectDone := make(chan error, 1)
	go func() { connectDone <- s.Connect(ctx, cmdClient, evtClient, 1) }()

	if err := <-connectDone; err != nil {
		t.Fatalf("Connect() err = %v", err)
	}
	if s.State() != StateConnected {
		t.Fatalf("State() = %v; want connected", s.State())
	}

	mu.Lock()
	gotConnected := connected
	mu.Unlock()
	if !gotConnected {
		t.Errorf("OnConnect was not fired")
	}

	if err := s.DownloadPhoto(ctx, 0x1001); err != nil {
		t.Fatalf("DownloadPhoto() err = %v", err)
	}
	mu.Lock()
	gotDetected, gotCompleted := detected, completed
	mu.Unlock()
	if !gotDetected || !gotCompleted {
		t.Errorf("DownloadPhoto() detected=%v completed=%v; want both true", gotDetected, gotCompleted)
	}
	if !mock.calledGetObject() {
		t.Errorf("mock camera never received GetObject")
	}

	if err := s.Disconnect(); err != nil {
		t.Fatalf("Disconnect() err = %v", err)
	}
	if s.State() != StateTerminated {
		t.Fatalf("State() after Disconnect = %v; want terminated", s.State())
	}
}

// TestDisconnectNoopWhenIdle covers spec §8 property 10: Disconnect on a Session
// that never connected succeeds without touching any connection.
func TestDisconnectNoopWhenIdle(t *testing.T) {
	s := New(testConfig(), nil, Delegate{}, testLogger())
	if err := s.Disconnect(); err != nil {
		t.Fatalf("Disconnect() on idle session err = %v; want nil", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("State() = %v; want idle (Disconnect on idle must not transition state)", s.State())
	}
}

// TestDownloadPhotoSkipsRaw covers spec §8 property 5: a RAW-classified object is
// reported via OnDetectPhoto and OnSkipRaw, and GetObject is never issued.
func TestDownloadPhotoSkipsRaw(t *testing.T) {
	cmdClient, evtClient, cmdSrv, evtSrv := newSessionPipes()
	mock := &mockCameraConn{
		name: "Fujifilm X-T5",
		cmd:  cmdSrv,
		evt:  evtSrv,
		objectInfo: ptp.ObjectInfo{
			ObjectCompressedSize: 20_000_000,
			Filename:             "DSCF0002.RAF",
		},
	}
	go func() {
		mock.serveHandshake(t)
		mock.serveOperations(t)
	}()

	var mu sync.Mutex
	var skipped bool
	var skippedName string
	s := New(testConfig(), nil, Delegate{
		OnSkipRaw: func(filename string) { mu.Lock(); skipped = true; skippedName = filename; mu.Unlock() },
	}, testLogger())

	ctx := context.Background()
	if err := s.Connect(ctx, cmdClient, evtClient, 1); err != nil {
		t.Fatalf("Connect() err = %v", err)
	}
	defer s.Disconnect()

	if err := s.DownloadPhoto(ctx, 0x2002); err != nil {
		t.Fatalf("DownloadPhoto() err = %v", err)
	}

	mu.Lock()
	gotSkipped, gotName := skipped, skippedName
	mu.Unlock()
	if !gotSkipped {
		t.Fatalf("OnSkipRaw was not fired for a RAW-classified object")
	}
	if gotName != "DSCF0002.RAF" {
		t.Errorf("OnSkipRaw filename = %q; want DSCF0002.RAF", gotName)
	}
	if mock.calledGetObject() {
		t.Errorf("GetObject was issued for a skipped RAW object")
	}
}

// TestPrepareSessionThenSetDelegate covers the Scanner handoff path (spec §4.4
// stage 5): Init already ran, so PrepareSession only does OpenSession, and the
// delegate is attached afterward via SetDelegate.
func TestPrepareSessionThenSetDelegate(t *testing.T) {
	cmdClient, evtClient, cmdSrv, evtSrv := newSessionPipes()
	mock := &mockCameraConn{name: "Fujifilm X-T5", cmd: cmdSrv, evt: evtSrv}
	go mock.serveOperations(t)

	s := New(testConfig(), nil, Delegate{}, testLogger())
	ctx := context.Background()
	if err := s.PrepareSession(ctx, cmdClient, evtClient, 0xCAFE, mock.name, 1); err != nil {
		t.Fatalf("PrepareSession() err = %v", err)
	}
	if s.State() != StatePrepared {
		t.Fatalf("State() = %v; want prepared", s.State())
	}

	var mu sync.Mutex
	var connected bool
	s.SetDelegate(Delegate{OnConnect: func() { mu.Lock(); connected = true; mu.Unlock() }})

	if err := s.StartEventMonitoring(ctx); err != nil {
		t.Fatalf("StartEventMonitoring() err = %v", err)
	}
	mu.Lock()
	gotConnected := connected
	mu.Unlock()
	if !gotConnected {
		t.Errorf("OnConnect was not fired after SetDelegate + StartEventMonitoring")
	}

	s.Disconnect()
}
