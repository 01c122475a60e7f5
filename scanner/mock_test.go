package scanner

import (
	"encoding/binary"
	"net"
	"testing"
	"unicode/utf16"

	"github.com/google/uuid"
	"github.com/putto11262002/sabaipics-core/ip"
)

// mockCamera is a single-use PTP/IP responder for scanner tests, grounded in the
// teacher's mockresponder_fuji_test.go style: a raw goroutine loop reading frames
// and writing scripted byte responses, rather than driving the real Session code.
type mockCamera struct {
	ln   net.Listener
	name string
}

func newMockCamera(t *testing.T, name string) *mockCamera {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	mc := &mockCamera{ln: ln, name: name}
	go mc.serve(t)
	return mc
}

func (mc *mockCamera) addr() string { return mc.ln.Addr().String() }

func (mc *mockCamera) serve(t *testing.T) {
	cmd, err := mc.ln.Accept()
	if err != nil {
		return
	}
	defer cmd.Close()

	// InitCommandRequest, InitEventRequest and OperationRequest are all
	// host-to-responder only (ip.NewPacketIn refuses them, since the real core
	// only ever sends these, never receives them), so the mock reads raw frames
	// instead of using ip.Decode for any exchange originating at the host.
	tag, _, err := ip.ReadFrame(cmd)
	if err != nil || tag != ip.PKT_InitCommandRequest {
		return
	}
	writeInitCommandAck(cmd, 0xCAFE, mc.name)

	evt, err := mc.ln.Accept()
	if err != nil {
		return
	}
	defer evt.Close()

	tag, _, err = ip.ReadFrame(evt)
	if err != nil || tag != ip.PKT_InitEventRequest {
		return
	}
	writeInitEventAck(evt)

	// OpenSession on the command channel, the only further exchange
	// session.PrepareSession drives before returning.
	tag, payload, err := ip.ReadFrame(cmd)
	if err != nil || tag != ip.PKT_OperationRequest || len(payload) < 10 {
		return
	}
	txID := binary.LittleEndian.Uint32(payload[6:10])
	writeOperationResponseOK(cmd, txID)
}

func writeFrame(conn net.Conn, tag ip.PacketType, payload []byte) {
	hdr := make([]byte, 8)
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(8+len(payload)))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(tag))
	conn.Write(hdr)
	conn.Write(payload)
}

func writeInitCommandAck(conn net.Conn, connNum uint32, name string) {
	var b []byte
	b = appendUint32(b, connNum)
	guid := uuid.New()
	b = append(b, guid[:]...)
	b = append(b, encodeUTF16NullTerminated(name)...)
	b = appendUint16(b, 0) // version minor
	b = appendUint16(b, 1) // version major
	writeFrame(conn, ip.PKT_InitCommandAck, b)
}

func writeInitEventAck(conn net.Conn) {
	writeFrame(conn, ip.PKT_InitEventAck, nil)
}

func writeOperationResponseOK(conn net.Conn, txID uint32) {
	var b []byte
	b = appendUint16(b, uint16(0x2001)) // RC_OK
	b = appendUint32(b, txID)
	writeFrame(conn, ip.PKT_OperationResponse, b)
}

func appendUint16(b []byte, v uint16) []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, v)
	return append(b, buf...)
}

func appendUint32(b []byte, v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return append(b, buf...)
}

func encodeUTF16NullTerminated(s string) []byte {
	units := utf16.Encode([]rune(s))
	var b []byte
	for _, u := range units {
		b = appendUint16(b, u)
	}
	return appendUint16(b, 0)
}

// closedPortAddr returns an address with nothing listening, so a dial to it
// fails with connection-refused (spec §4.4 stage 1, retryable).
func closedPortAddr(t *testing.T) (ip string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()
	return addr.IP.String(), addr.Port
}
