package ip

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/putto11262002/sabaipics-core/ptp"
)

func TestWriteFrameReadFrameRoundTrip(t *testing.T) {
	guid := uuid.New()
	out := NewInitCommandRequestPacket(guid, "tester")

	var buf bytes.Buffer
	if err := WriteFrame(&buf, out); err != nil {
		t.Fatalf("WriteFrame() err = %v", err)
	}

	tag, payload, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame() err = %v", err)
	}
	if tag != PKT_InitCommandRequest {
		t.Errorf("tag = %#x; want %#x", tag, PKT_InitCommandRequest)
	}
	if !bytes.Equal(payload, out.Payload()) {
		t.Errorf("payload round trip mismatch")
	}
}

func TestDecodeOperationResponse(t *testing.T) {
	want := &OperationResponsePacket{ptp.OperationResponse{
		ResponseCode:  ptp.RC_OK,
		TransactionID: 7,
		Parameter1:    42,
	}}

	var buf bytes.Buffer
	// OperationResponsePacket has no Payload() because it is an inbound-only packet;
	// build the frame manually the way a mock responder would.
	payload := []byte{}
	payload = append(payload, byteLE16(uint16(ptp.RC_OK))...)
	payload = append(payload, byteLE32(7)...)
	payload = append(payload, byteLE32(42)...)

	if err := writeRawFrame(&buf, PKT_OperationResponse, payload); err != nil {
		t.Fatal(err)
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode() err = %v", err)
	}
	orp, ok := got.(*OperationResponsePacket)
	if !ok {
		t.Fatalf("Decode() type = %T; want *OperationResponsePacket", got)
	}
	if orp.ResponseCode != want.ResponseCode || orp.TransactionID != want.TransactionID || orp.Parameter1 != want.Parameter1 {
		t.Errorf("Decode() = %+v; want %+v", orp.OperationResponse, want.OperationResponse)
	}
}

func TestDecodeUnknownPacketType(t *testing.T) {
	var buf bytes.Buffer
	if err := writeRawFrame(&buf, PacketType(0xFF), nil); err != nil {
		t.Fatal(err)
	}
	_, err := Decode(&buf)
	if !errors.Is(err, ErrUnknownPacketType) {
		t.Errorf("Decode() err = %v; want ErrUnknownPacketType", err)
	}
}

func TestReadFrameShortLengthIsDecodeError(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(byteLE32(4)) // length < HeaderSize
	buf.Write(byteLE32(uint32(PKT_Ping)))
	_, _, err := ReadFrame(&buf)
	if err == nil {
		t.Error("ReadFrame() err = nil; want error for length < HeaderSize")
	}
}

func TestReadFrameNeverPanicsOnShortHeader(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("ReadFrame() panicked: %v", r)
		}
	}()
	var buf bytes.Buffer
	buf.Write([]byte{1, 2, 3})
	if _, _, err := ReadFrame(&buf); err == nil {
		t.Error("ReadFrame() err = nil; want error on short header")
	}
}

func TestEventPacketRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := append(byteLE16(uint16(ptp.EC_ObjectAdded)), byteLE32(3)...)
	payload = append(payload, byteLE32(0x1234)...)
	if err := writeRawFrame(&buf, PKT_Event, payload); err != nil {
		t.Fatal(err)
	}
	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode() err = %v", err)
	}
	ev := got.(*EventPacket)
	if ev.EventCode != ptp.EC_ObjectAdded || ev.TransactionID != 3 || ev.Parameter1 != 0x1234 {
		t.Errorf("Decode() = %+v; want code=%x tid=3 p1=0x1234", ev.Event, ptp.EC_ObjectAdded)
	}
}

// helpers shared across ip package tests

func writeRawFrame(w *bytes.Buffer, tag PacketType, payload []byte) error {
	w.Write(byteLE32(uint32(HeaderSize + len(payload))))
	w.Write(byteLE32(uint32(tag)))
	w.Write(payload)
	return nil
}

func byteLE16(v uint16) []byte { return []byte{byte(v), byte(v >> 8)} }
func byteLE32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
