// Package ip implements the PTP/IP wire protocol: packet framing and the fourteen
// typed packets carried over the command and event TCP channels (spec §3, §4.1).
// All integers are little-endian. Decoders never panic on short input; they return
// a distinct decode error instead.
package ip

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/putto11262002/sabaipics-core/internal/wire"
	"github.com/putto11262002/sabaipics-core/ptp"
)

// PacketType is the four-byte tag in every PTP/IP frame header.
type PacketType uint32

// DataPhase mirrors ptp.OperationRequest's DataPhaseInfo field at the PTP/IP framing
// level (spec §3).
type DataPhase uint32

// FailReason is the payload of an InitFailPacket.
type FailReason uint32

const (
	HeaderSize = 8

	DP_NoDataOrDataIn DataPhase = 0x00000001
	DP_DataOut        DataPhase = 0x00000002
	DP_Unknown        DataPhase = 0x00000003

	FR_RejectedInitiator FailReason = 0x00000001
	FR_Busy              FailReason = 0x00000002
	FR_Unspecified       FailReason = 0x00000003

	PKT_Invalid            PacketType = 0x00000000
	PKT_InitCommandRequest PacketType = 0x00000001
	PKT_InitCommandAck     PacketType = 0x00000002
	PKT_InitEventRequest   PacketType = 0x00000003
	PKT_InitEventAck       PacketType = 0x00000004
	PKT_InitFail           PacketType = 0x00000005
	PKT_OperationRequest   PacketType = 0x00000006
	PKT_OperationResponse  PacketType = 0x00000007
	PKT_Event              PacketType = 0x00000008
	PKT_StartData          PacketType = 0x00000009
	PKT_Data               PacketType = 0x0000000A
	PKT_Cancel             PacketType = 0x0000000B
	PKT_EndData            PacketType = 0x0000000C
	PKT_Ping               PacketType = 0x0000000D
	PKT_Pong               PacketType = 0x0000000E
)

// ErrUnknownPacketType is returned when a frame header carries a tag outside the
// fourteen recognised packet types (spec §3: "Unknown tags are a decode error").
var ErrUnknownPacketType = errors.New("ip: unknown packet type")

// Packet is implemented by every PTP/IP frame payload.
type Packet interface {
	PacketType() PacketType
}

// PacketOut is a packet this core sends: it can render itself to wire bytes.
type PacketOut interface {
	Packet
	Payload() []byte
}

// PacketIn is a packet this core receives: it can parse itself from wire bytes.
type PacketIn interface {
	Packet
	UnmarshalPayload(b []byte) error
}

// Header is the 8-byte frame header shared by every PTP/IP packet.
type Header struct {
	Length     uint32
	PacketType PacketType
}

// InitCommandRequestPacket is sent by the Initiator immediately after the command
// channel connects, identifying itself to the Responder (spec §4.1).
type InitCommandRequestPacket struct {
	GUID         uuid.UUID
	FriendlyName string
	VersionMinor uint16
	VersionMajor uint16
}

func NewInitCommandRequestPacket(guid uuid.UUID, friendlyName string) *InitCommandRequestPacket {
	return &InitCommandRequestPacket{GUID: guid, FriendlyName: friendlyName, VersionMinor: 0, VersionMajor: 1}
}

func (p *InitCommandRequestPacket) PacketType() PacketType { return PKT_InitCommandRequest }

func (p *InitCommandRequestPacket) Payload() []byte {
	b := append([]byte{}, p.GUID[:]...)
	b = append(b, wire.EncodeNullTerminatedUTF16(p.FriendlyName)...)
	b = wire.PutUint16(b, p.VersionMinor)
	b = wire.PutUint16(b, p.VersionMajor)
	return b
}

// InitCommandAckPacket is the Responder's reply to InitCommandRequestPacket,
// carrying the connection number that binds the command and event channels.
type InitCommandAckPacket struct {
	ConnectionNumber uint32
	ResponderGUID    uuid.UUID
	ResponderName    string
	VersionMinor     uint16
	VersionMajor     uint16
}

func (p *InitCommandAckPacket) PacketType() PacketType { return PKT_InitCommandAck }

func (p *InitCommandAckPacket) UnmarshalPayload(b []byte) error {
	var err error
	p.ConnectionNumber, b, err = wire.ReadUint32(b)
	if err != nil {
		return fmt.Errorf("ip: decode InitCommandAckPacket connection number: %w", err)
	}
	var raw []byte
	raw, b, err = wire.ReadBytes(b, 16)
	if err != nil {
		return fmt.Errorf("ip: decode InitCommandAckPacket responder guid: %w", err)
	}
	copy(p.ResponderGUID[:], raw)
	p.ResponderName, b, err = wire.DecodeNullTerminatedUTF16(b)
	if err != nil {
		return fmt.Errorf("ip: decode InitCommandAckPacket responder name: %w", err)
	}
	// Tolerate trailing bytes: some responders omit or pad the version field.
	if len(b) >= 2 {
		p.VersionMinor, b, _ = wire.ReadUint16(b)
	}
	if len(b) >= 2 {
		p.VersionMajor, _, _ = wire.ReadUint16(b)
	}
	return nil
}

// InitEventRequestPacket establishes the event channel, echoing the connection
// number returned in InitCommandAckPacket.
type InitEventRequestPacket struct {
	ConnectionNumber uint32
}

func NewInitEventRequestPacket(connNum uint32) *InitEventRequestPacket {
	return &InitEventRequestPacket{ConnectionNumber: connNum}
}

func (p *InitEventRequestPacket) PacketType() PacketType { return PKT_InitEventRequest }

func (p *InitEventRequestPacket) Payload() []byte {
	return wire.PutUint32(nil, p.ConnectionNumber)
}

// InitEventAckPacket confirms the event channel is ready. Vendor-specific trailing
// bytes, if any, are ignored (spec §4.1).
type InitEventAckPacket struct{}

func (p *InitEventAckPacket) PacketType() PacketType          { return PKT_InitEventAck }
func (p *InitEventAckPacket) UnmarshalPayload(b []byte) error { return nil }

// InitFailPacket reports that connection establishment failed.
type InitFailPacket struct {
	Reason FailReason
}

func (p *InitFailPacket) PacketType() PacketType { return PKT_InitFail }

func (p *InitFailPacket) UnmarshalPayload(b []byte) error {
	v, _, err := wire.ReadUint32(b)
	if err != nil {
		return fmt.Errorf("ip: decode InitFailPacket reason: %w", err)
	}
	p.Reason = FailReason(v)
	return nil
}

func (p *InitFailPacket) Error() string {
	switch p.Reason {
	case FR_Busy:
		return "busy: too many active connections"
	case FR_RejectedInitiator:
		return "rejected: device not allowed"
	case FR_Unspecified:
		return "reason unspecified"
	default:
		return fmt.Sprintf("unknown failure reason %#x", uint32(p.Reason))
	}
}

// OperationRequestPacket transports an operation request from Initiator to
// Responder on the command channel.
type OperationRequestPacket struct {
	DataPhaseInfo DataPhase
	ptp.OperationRequest
}

func (p *OperationRequestPacket) PacketType() PacketType { return PKT_OperationRequest }

func (p *OperationRequestPacket) Payload() []byte {
	var b []byte
	b = wire.PutUint32(b, uint32(p.DataPhaseInfo))
	b = wire.PutUint16(b, uint16(p.OperationCode))
	b = wire.PutUint32(b, uint32(p.TransactionID))
	b = wire.PutUint32(b, p.Parameter1)
	b = wire.PutUint32(b, p.Parameter2)
	b = wire.PutUint32(b, p.Parameter3)
	b = wire.PutUint32(b, p.Parameter4)
	b = wire.PutUint32(b, p.Parameter5)
	return b
}

// OperationResponsePacket transports the outcome of a completed operation from the
// Responder to the Initiator on the command channel.
type OperationResponsePacket struct {
	ptp.OperationResponse
}

func (p *OperationResponsePacket) PacketType() PacketType { return PKT_OperationResponse }

func (p *OperationResponsePacket) UnmarshalPayload(b []byte) error {
	var err error
	var v16 uint16
	v16, b, err = wire.ReadUint16(b)
	if err != nil {
		return fmt.Errorf("ip: decode OperationResponsePacket response code: %w", err)
	}
	p.ResponseCode = ptp.ResponseCode(v16)

	var v32 uint32
	v32, b, err = wire.ReadUint32(b)
	if err != nil {
		return fmt.Errorf("ip: decode OperationResponsePacket transaction id: %w", err)
	}
	p.TransactionID = ptp.TransactionID(v32)

	params := []*uint32{&p.Parameter1, &p.Parameter2, &p.Parameter3, &p.Parameter4, &p.Parameter5}
	for _, dst := range params {
		if len(b) < 4 {
			break
		}
		*dst, b, _ = wire.ReadUint32(b)
	}
	return nil
}

// EventPacket transports a PTP event pushed by the Responder on the event channel.
type EventPacket struct {
	ptp.Event
}

func (p *EventPacket) PacketType() PacketType { return PKT_Event }

func (p *EventPacket) UnmarshalPayload(b []byte) error {
	var err error
	var v16 uint16
	v16, b, err = wire.ReadUint16(b)
	if err != nil {
		return fmt.Errorf("ip: decode EventPacket event code: %w", err)
	}
	p.EventCode = ptp.EventCode(v16)

	var v32 uint32
	v32, b, err = wire.ReadUint32(b)
	if err != nil {
		return fmt.Errorf("ip: decode EventPacket transaction id: %w", err)
	}
	p.TransactionID = ptp.TransactionID(v32)

	params := []*uint32{&p.Parameter1, &p.Parameter2, &p.Parameter3}
	for _, dst := range params {
		if len(b) < 4 {
			break
		}
		*dst, b, _ = wire.ReadUint32(b)
	}
	return nil
}

// StartDataPacket signals the beginning of a data phase (spec §4.5.1, step 1). It
// carries no payload bytes of its own.
type StartDataPacket struct {
	TransactionId   ptp.TransactionID
	TotalDataLength uint64
}

func (p *StartDataPacket) PacketType() PacketType { return PKT_StartData }

func (p *StartDataPacket) Payload() []byte {
	var b []byte
	b = wire.PutUint32(b, uint32(p.TransactionId))
	b = wire.PutUint64(b, p.TotalDataLength)
	return b
}

func (p *StartDataPacket) UnmarshalPayload(b []byte) error {
	var err error
	var v32 uint32
	v32, b, err = wire.ReadUint32(b)
	if err != nil {
		return fmt.Errorf("ip: decode StartDataPacket transaction id: %w", err)
	}
	p.TransactionId = ptp.TransactionID(v32)

	p.TotalDataLength, _, err = wire.ReadUint64(b)
	if err != nil {
		return fmt.Errorf("ip: decode StartDataPacket total length: %w", err)
	}
	return nil
}

// DataPacket carries one chunk of a data phase payload (spec §4.5.1, step 2).
type DataPacket struct {
	TransactionId ptp.TransactionID
	Payload_      []byte
}

func (p *DataPacket) PacketType() PacketType { return PKT_Data }

func (p *DataPacket) Payload() []byte {
	b := wire.PutUint32(nil, uint32(p.TransactionId))
	return append(b, p.Payload_...)
}

func (p *DataPacket) UnmarshalPayload(b []byte) error {
	v32, rest, err := wire.ReadUint32(b)
	if err != nil {
		return fmt.Errorf("ip: decode DataPacket transaction id: %w", err)
	}
	p.TransactionId = ptp.TransactionID(v32)
	p.Payload_ = append([]byte{}, rest...)
	return nil
}

// EndDataPacket ends a data phase, optionally carrying a final chunk (spec §4.5.1,
// step 3 — critical for objects smaller than one DataPacket).
type EndDataPacket struct {
	TransactionId ptp.TransactionID
	Payload_      []byte
}

func (p *EndDataPacket) PacketType() PacketType { return PKT_EndData }

func (p *EndDataPacket) Payload() []byte {
	b := wire.PutUint32(nil, uint32(p.TransactionId))
	return append(b, p.Payload_...)
}

func (p *EndDataPacket) UnmarshalPayload(b []byte) error {
	v32, rest, err := wire.ReadUint32(b)
	if err != nil {
		return fmt.Errorf("ip: decode EndDataPacket transaction id: %w", err)
	}
	p.TransactionId = ptp.TransactionID(v32)
	p.Payload_ = append([]byte{}, rest...)
	return nil
}

// CancelPacket cancels an in-flight transaction.
type CancelPacket struct {
	TransactionId ptp.TransactionID
}

func (p *CancelPacket) PacketType() PacketType { return PKT_Cancel }

func (p *CancelPacket) Payload() []byte {
	return wire.PutUint32(nil, uint32(p.TransactionId))
}

func (p *CancelPacket) UnmarshalPayload(b []byte) error {
	v32, _, err := wire.ReadUint32(b)
	if err != nil {
		return fmt.Errorf("ip: decode CancelPacket transaction id: %w", err)
	}
	p.TransactionId = ptp.TransactionID(v32)
	return nil
}

// PingPacket checks liveness of a peer; a responder MUST answer with PongPacket
// immediately (spec §9 supplemented feature: Ping/Pong keepalive).
type PingPacket struct{}

func (p *PingPacket) PacketType() PacketType          { return PKT_Ping }
func (p *PingPacket) Payload() []byte                 { return nil }
func (p *PingPacket) UnmarshalPayload(b []byte) error { return nil }

// PongPacket answers a PingPacket.
type PongPacket struct{}

func (p *PongPacket) PacketType() PacketType          { return PKT_Pong }
func (p *PongPacket) Payload() []byte                 { return nil }
func (p *PongPacket) UnmarshalPayload(b []byte) error { return nil }

// NewPacketIn allocates the zero value of the PacketIn implementation matching pt.
func NewPacketIn(pt PacketType) (PacketIn, error) {
	switch pt {
	case PKT_InitCommandAck:
		return &InitCommandAckPacket{}, nil
	case PKT_InitEventAck:
		return &InitEventAckPacket{}, nil
	case PKT_InitFail:
		return &InitFailPacket{}, nil
	case PKT_OperationResponse:
		return &OperationResponsePacket{}, nil
	case PKT_Event:
		return &EventPacket{}, nil
	case PKT_StartData:
		return &StartDataPacket{}, nil
	case PKT_Data:
		return &DataPacket{}, nil
	case PKT_Cancel:
		return &CancelPacket{}, nil
	case PKT_EndData:
		return &EndDataPacket{}, nil
	case PKT_Ping:
		return &PingPacket{}, nil
	case PKT_Pong:
		return &PongPacket{}, nil
	case PKT_OperationRequest, PKT_InitCommandRequest, PKT_InitEventRequest:
		return nil, fmt.Errorf("ip: %v is host-to-responder only: %w", pt, ErrUnknownPacketType)
	default:
		return nil, fmt.Errorf("ip: tag %#x: %w", uint32(pt), ErrUnknownPacketType)
	}
}
