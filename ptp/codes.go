// Package ptp describes the PTP payload data model carried inside PTP/IP packets:
// operation codes, response codes, event codes, object metadata and vendor
// identification. It has no notion of TCP, framing or sessions; that is the job of
// the ip and transport packages.
package ptp

// TransactionID matches an OperationRequest to its OperationResponse on one channel.
type TransactionID uint32

// OperationCode identifies the operation carried by an OperationRequestPacket.
type OperationCode uint16

// ResponseCode identifies the outcome carried by an OperationResponsePacket.
type ResponseCode uint16

// EventCode identifies the kind of asynchronous notification carried by an
// EventPacket or returned inside a vendor polling payload.
type EventCode uint16

// DevicePropCode identifies a device property such as Sony's objectInMemory gate.
type DevicePropCode uint16

// ObjectFormatCode identifies the encoding of an object (JPEG, a RAW flavour, ...).
type ObjectFormatCode uint16

// Operation codes actually issued by this core. See spec §6.
const (
	OC_GetDeviceInfo      OperationCode = 0x1001
	OC_OpenSession        OperationCode = 0x1002
	OC_CloseSession       OperationCode = 0x1003
	OC_GetObjectInfo      OperationCode = 0x1008
	OC_GetObject          OperationCode = 0x1009
	OC_GetDevicePropDesc  OperationCode = 0x1014
	OC_GetPartialObject   OperationCode = 0x101B
	OC_Canon_SetEventMode OperationCode = 0x9115
	OC_Canon_GetEvent     OperationCode = 0x9116
	OC_Nikon_GetEvent     OperationCode = 0x90C7
)

// Response codes. Only RC_OK is treated specially; everything else is "not OK".
const (
	RC_Undefined ResponseCode = 0x2000
	RC_OK        ResponseCode = 0x2001
)

// Event codes recognised on the event channel (StandardEventSource) or decoded out
// of vendor polling payloads (CanonEventSource/NikonEventSource).
const (
	EC_Undefined              EventCode = 0x4000
	EC_ObjectAdded            EventCode = 0x4002
	EC_Canon_ObjectAddedEx    EventCode = 0xC181
	EC_Canon_ObjectAddedEx64  EventCode = 0xC1A7
	EC_Canon_RequestObjectTransfer   EventCode = 0xC186
	EC_Canon_RequestObjectTransfer64 EventCode = 0xC1A9
	EC_Sony_ObjectAdded       EventCode = 0xC201
	EC_Nikon_ObjectAddedInSDRAM EventCode = 0xC101
)

// DevicePropCode for the Sony in-memory capture gate (spec §4.6.4).
const (
	DPC_Sony_ObjectInMemory DevicePropCode = 0xD215
)

// Sentinel handles with protocol-defined meaning.
const (
	// ObjectHandle_SonyInMemory is the handle Sony cameras use for an image still
	// resident in RAM, not yet committed to the storage card.
	ObjectHandle_SonyInMemory uint32 = 0xFFFFC001

	// LogicalHandleBase is OR-ed with a monotonic counter to synthesise a stable
	// per-capture handle for UI correlation of Sony in-memory downloads.
	LogicalHandleBase uint32 = 0xFE000000
	LogicalHandleMask uint32 = 0x00FFFFFF
)

// Object format codes used by the RAW/JPEG classifier (spec §3).
const (
	OFC_EXIF_JPEG ObjectFormatCode = 0x3801
	OFC_JFIF      ObjectFormatCode = 0x3808

	OFC_RAW_RangeStart ObjectFormatCode = 0xB100
	OFC_RAW_RangeEnd   ObjectFormatCode = 0xB1FF

	OFC_Canon_CRW   ObjectFormatCode = 0xB101
	OFC_Canon_CR2   ObjectFormatCode = 0xB103
	OFC_Canon_CR3   ObjectFormatCode = 0xB108
	OFC_Canon_CIFF  ObjectFormatCode = 0xB802
)
