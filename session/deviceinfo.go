package session

import "github.com/putto11262002/sabaipics-core/internal/wire"

// DeviceInfo is the ISO 15740 DeviceInfo dataset returned by GetDeviceInfo (spec §9,
// a supplemented operation not required by any scenario but useful for vendor
// detection fallback and diagnostics).
type DeviceInfo struct {
	StandardVersion           uint16
	VendorExtensionID         uint32
	VendorExtensionVersion    uint16
	VendorExtensionDesc       string
	FunctionalMode            uint16
	OperationsSupported       []uint16
	EventsSupported           []uint16
	DevicePropertiesSupported []uint16
	CaptureFormats            []uint16
	ImageFormats              []uint16
	Manufacturer              string
	Model                     string
	DeviceVersion             string
	SerialNumber              string
}

// DecodeDeviceInfo parses the GetDeviceInfo data phase. Each array field is a u32
// element count followed by that many little-endian u16 values, the same layout
// ObjectInfo's fixed fields use for scalars.
func DecodeDeviceInfo(data []byte) (DeviceInfo, error) {
	var di DeviceInfo
	var err error
	b := data

	if di.StandardVersion, b, err = wire.ReadUint16(b); err != nil {
		return DeviceInfo{}, err
	}
	if di.VendorExtensionID, b, err = wire.ReadUint32(b); err != nil {
		return DeviceInfo{}, err
	}
	if di.VendorExtensionVersion, b, err = wire.ReadUint16(b); err != nil {
		return DeviceInfo{}, err
	}
	if di.VendorExtensionDesc, b, err = wire.DecodePTPString(b); err != nil {
		return DeviceInfo{}, err
	}
	if di.FunctionalMode, b, err = wire.ReadUint16(b); err != nil {
		return DeviceInfo{}, err
	}
	if di.OperationsSupported, b, err = decodeUint16Array(b); err != nil {
		return DeviceInfo{}, err
	}
	if di.EventsSupported, b, err = decodeUint16Array(b); err != nil {
		return DeviceInfo{}, err
	}
	if di.DevicePropertiesSupported, b, err = decodeUint16Array(b); err != nil {
		return DeviceInfo{}, err
	}
	if di.CaptureFormats, b, err = decodeUint16Array(b); err != nil {
		return DeviceInfo{}, err
	}
	if di.ImageFormats, b, err = decodeUint16Array(b); err != nil {
		return DeviceInfo{}, err
	}
	if di.Manufacturer, b, err = wire.DecodePTPString(b); err != nil {
		return DeviceInfo{}, err
	}
	if di.Model, b, err = wire.DecodePTPString(b); err != nil {
		return DeviceInfo{}, err
	}
	if di.DeviceVersion, b, err = wire.DecodePTPString(b); err != nil {
		return DeviceInfo{}, err
	}
	if di.SerialNumber, _, err = wire.DecodePTPString(b); err != nil {
		return DeviceInfo{}, err
	}
	return di, nil
}

// decodeUint16Array reads a u32 element count followed by that many little-endian
// u16 values, the array layout every *Supported/*Formats field of DeviceInfo shares.
func decodeUint16Array(b []byte) ([]uint16, []byte, error) {
	count, rest, err := wire.ReadUint32(b)
	if err != nil {
		return nil, nil, err
	}
	out := make([]uint16, count)
	for i := range out {
		out[i], rest, err = wire.ReadUint16(rest)
		if err != nil {
			return nil, nil, err
		}
	}
	return out, rest, nil
}
