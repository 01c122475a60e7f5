package ptp

import (
	"strings"

	"github.com/putto11262002/sabaipics-core/internal/wire"
)

// ObjectInfo is the metadata PTP returns for one object (file or directory) on the
// responder, decoded from the data phase of a GetObjectInfo operation (spec §3).
type ObjectInfo struct {
	StorageID             uint32
	ObjectFormat          ObjectFormatCode
	ProtectionStatus      uint16
	ObjectCompressedSize  uint32
	ThumbFormat           uint16
	ThumbCompressedSize   uint32
	ThumbPixWidth         uint32
	ThumbPixHeight        uint32
	ImagePixWidth         uint32
	ImagePixHeight        uint32
	ImageBitDepth         uint32
	ParentObject          uint32
	AssociationType       uint16
	AssociationDesc       uint32
	SequenceNumber        uint32
	Filename              string
	CaptureDate           string
	ModificationDate      string
	Keywords              string
}

var rawExtensions = []string{".cr2", ".cr3", ".crw", ".raw", ".dng", ".nef", ".arw", ".orf", ".rw2"}
var jpegExtensions = []string{".jpg", ".jpeg"}

// IsRaw classifies oi as a RAW file: format falls in the vendor-neutral RAW range,
// matches a known Canon RAW/CIFF format code, or the filename carries a known RAW
// extension.
func (oi ObjectInfo) IsRaw() bool {
	f := oi.ObjectFormat
	if f >= OFC_RAW_RangeStart && f <= OFC_RAW_RangeEnd {
		return true
	}
	switch f {
	case OFC_Canon_CRW, OFC_Canon_CR2, OFC_Canon_CR3, OFC_Canon_CIFF:
		return true
	}
	return hasAnySuffix(oi.Filename, rawExtensions)
}

// IsJPEG classifies oi as a JPEG file: EXIF JPEG or JFIF format code, or a known
// JPEG filename extension.
func (oi ObjectInfo) IsJPEG() bool {
	switch oi.ObjectFormat {
	case OFC_EXIF_JPEG, OFC_JFIF:
		return true
	}
	return hasAnySuffix(oi.Filename, jpegExtensions)
}

// Classification is the outcome of comparing IsRaw and IsJPEG. Classify checks IsRaw
// first, so an ObjectInfo that matches both (a JPEG format code with a RAW filename
// extension) classifies as Raw; one that matches neither classifies as Unknown
// (spec §8, property 5).
type Classification int

const (
	ClassUnknown Classification = iota
	ClassRaw
	ClassJPEG
)

func (oi ObjectInfo) Classify() Classification {
	switch {
	case oi.IsRaw():
		return ClassRaw
	case oi.IsJPEG():
		return ClassJPEG
	default:
		return ClassUnknown
	}
}

func hasAnySuffix(name string, suffixes []string) bool {
	lower := strings.ToLower(name)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

// DecodeObjectInfo parses the ObjectInfo dataset as laid out by ISO 15740: a run of
// fixed-width fields followed by four PTP-format strings (Filename, CaptureDate,
// ModificationDate, Keywords). It never panics on short input.
func DecodeObjectInfo(b []byte) (ObjectInfo, error) {
	var oi ObjectInfo
	var err error

	read32 := func() uint32 {
		if err != nil {
			return 0
		}
		var v uint32
		v, b, err = wire.ReadUint32(b)
		return v
	}
	read16 := func() uint16 {
		if err != nil {
			return 0
		}
		var v uint16
		v, b, err = wire.ReadUint16(b)
		return v
	}
	readStr := func() string {
		if err != nil {
			return ""
		}
		var s string
		s, b, err = wire.DecodePTPString(b)
		return s
	}

	oi.StorageID = read32()
	oi.ObjectFormat = ObjectFormatCode(read16())
	oi.ProtectionStatus = read16()
	oi.ObjectCompressedSize = read32()
	oi.ThumbFormat = read16()
	oi.ThumbCompressedSize = read32()
	oi.ThumbPixWidth = read32()
	oi.ThumbPixHeight = read32()
	oi.ImagePixWidth = read32()
	oi.ImagePixHeight = read32()
	oi.ImageBitDepth = read32()
	oi.ParentObject = read32()
	oi.AssociationType = read16()
	oi.AssociationDesc = read32()
	oi.SequenceNumber = read32()
	oi.Filename = readStr()
	oi.CaptureDate = readStr()
	oi.ModificationDate = readStr()
	oi.Keywords = readStr()

	if err != nil {
		return ObjectInfo{}, err
	}
	return oi, nil
}

// EncodeObjectInfo is the inverse of DecodeObjectInfo, used by mock responders in
// tests to script a GetObjectInfo data phase.
func EncodeObjectInfo(oi ObjectInfo) []byte {
	var b []byte
	b = wire.PutUint32(b, oi.StorageID)
	b = wire.PutUint16(b, uint16(oi.ObjectFormat))
	b = wire.PutUint16(b, oi.ProtectionStatus)
	b = wire.PutUint32(b, oi.ObjectCompressedSize)
	b = wire.PutUint16(b, oi.ThumbFormat)
	b = wire.PutUint32(b, oi.ThumbCompressedSize)
	b = wire.PutUint32(b, oi.ThumbPixWidth)
	b = wire.PutUint32(b, oi.ThumbPixHeight)
	b = wire.PutUint32(b, oi.ImagePixWidth)
	b = wire.PutUint32(b, oi.ImagePixHeight)
	b = wire.PutUint32(b, oi.ImageBitDepth)
	b = wire.PutUint32(b, oi.ParentObject)
	b = wire.PutUint16(b, oi.AssociationType)
	b = wire.PutUint32(b, oi.AssociationDesc)
	b = wire.PutUint32(b, oi.SequenceNumber)
	b = append(b, wire.EncodePTPString(oi.Filename)...)
	b = append(b, wire.EncodePTPString(oi.CaptureDate)...)
	b = append(b, wire.EncodePTPString(oi.ModificationDate)...)
	b = append(b, wire.EncodePTPString(oi.Keywords)...)
	return b
}
