package ptp

// OperationRequest is the PTP payload of an OperationRequestPacket: an operation
// code, the transaction it belongs to, and up to five uint32 parameters. Unused
// trailing parameters are simply left zero; the wire codec in package ip serialises
// all five of them, whatever the opcode.
type OperationRequest struct {
	OperationCode OperationCode
	TransactionID TransactionID
	Parameter1    uint32
	Parameter2    uint32
	Parameter3    uint32
	Parameter4    uint32
	Parameter5    uint32
}

// OperationResponse is the PTP payload of an OperationResponsePacket.
type OperationResponse struct {
	ResponseCode  ResponseCode
	TransactionID TransactionID
	Parameter1    uint32
	Parameter2    uint32
	Parameter3    uint32
	Parameter4    uint32
	Parameter5    uint32
}

// OK reports whether the response carries RC_OK.
func (or OperationResponse) OK() bool {
	return or.ResponseCode == RC_OK
}

// Event is the PTP payload of an EventPacket delivered on the event channel.
type Event struct {
	EventCode     EventCode
	TransactionID TransactionID
	Parameter1    uint32
	Parameter2    uint32
	Parameter3    uint32
}

// GetDeviceInfo builds the OperationRequest for opcode 0x1001.
func GetDeviceInfo() OperationRequest {
	return OperationRequest{OperationCode: OC_GetDeviceInfo}
}

// OpenSession builds the OperationRequest for opcode 0x1002.
func OpenSession(sessionID uint32) OperationRequest {
	return OperationRequest{OperationCode: OC_OpenSession, Parameter1: sessionID}
}

// CloseSession builds the OperationRequest for opcode 0x1003.
func CloseSession() OperationRequest {
	return OperationRequest{OperationCode: OC_CloseSession}
}

// GetObjectInfo builds the OperationRequest for opcode 0x1008.
func GetObjectInfo(handle uint32) OperationRequest {
	return OperationRequest{OperationCode: OC_GetObjectInfo, Parameter1: handle}
}

// GetObject builds the OperationRequest for opcode 0x1009.
func GetObject(handle uint32) OperationRequest {
	return OperationRequest{OperationCode: OC_GetObject, Parameter1: handle}
}

// GetPartialObject builds the OperationRequest for opcode 0x101B, used on the Sony
// in-memory download path with maxBytes set to the announced compressed size.
func GetPartialObject(handle uint32, offset, maxBytes uint32) OperationRequest {
	return OperationRequest{OperationCode: OC_GetPartialObject, Parameter1: handle, Parameter2: offset, Parameter3: maxBytes}
}

// GetDevicePropDesc builds the OperationRequest for opcode 0x1014.
func GetDevicePropDesc(code DevicePropCode) OperationRequest {
	return OperationRequest{OperationCode: OC_GetDevicePropDesc, Parameter1: uint32(code)}
}

// CanonSetEventMode builds the OperationRequest for opcode 0x9115.
func CanonSetEventMode(mode uint32) OperationRequest {
	return OperationRequest{OperationCode: OC_Canon_SetEventMode, Parameter1: mode}
}

// CanonGetEvent builds the OperationRequest for opcode 0x9116.
func CanonGetEvent() OperationRequest {
	return OperationRequest{OperationCode: OC_Canon_GetEvent}
}

// NikonGetEvent builds the OperationRequest for opcode 0x90C7.
func NikonGetEvent() OperationRequest {
	return OperationRequest{OperationCode: OC_Nikon_GetEvent}
}
