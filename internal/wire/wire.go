// Package wire holds the little-endian wire primitives shared by the packet codec
// in package ip and the PTP payload decoders in package ptp. It never panics on
// short input; every reader returns a distinct error instead.
package wire

import (
	"encoding/binary"
	"errors"
	"unicode/utf16"
)

// ErrShortBuffer is returned by every reader below when fewer bytes remain than the
// field being decoded requires.
var ErrShortBuffer = errors.New("ptp/ip: short buffer")

func PutUint16(b []byte, v uint16) []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, v)
	return append(b, buf...)
}

func PutUint32(b []byte, v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return append(b, buf...)
}

func PutUint64(b []byte, v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return append(b, buf...)
}

// ReadUint16 decodes the first 2 bytes of b and returns the remainder.
func ReadUint16(b []byte) (uint16, []byte, error) {
	if len(b) < 2 {
		return 0, nil, ErrShortBuffer
	}
	return binary.LittleEndian.Uint16(b[:2]), b[2:], nil
}

// ReadUint32 decodes the first 4 bytes of b and returns the remainder.
func ReadUint32(b []byte) (uint32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, ErrShortBuffer
	}
	return binary.LittleEndian.Uint32(b[:4]), b[4:], nil
}

// ReadUint64 decodes the first 8 bytes of b and returns the remainder.
func ReadUint64(b []byte) (uint64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, ErrShortBuffer
	}
	return binary.LittleEndian.Uint64(b[:8]), b[8:], nil
}

// ReadBytes consumes n raw bytes from b and returns the remainder.
func ReadBytes(b []byte, n int) ([]byte, []byte, error) {
	if len(b) < n {
		return nil, nil, ErrShortBuffer
	}
	return b[:n], b[n:], nil
}

// EncodeNullTerminatedUTF16 encodes s as UTF-16LE followed by a single null code
// unit and no length prefix, the format used by InitCommandRequestPacket's
// FriendlyName and InitCommandAckPacket's ResponderFriendlyName.
func EncodeNullTerminatedUTF16(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, (len(units)+1)*2)
	for _, u := range units {
		out = PutUint16(out, u)
	}
	out = PutUint16(out, 0)
	return out
}

// DecodeNullTerminatedUTF16 decodes a UTF-16LE string terminated by a 0x0000 code
// unit, returning the decoded string and the remainder of b after the terminator.
// It tolerates trailing bytes after the terminator, as InitCommandAckPacket readers
// must per spec §4.1.
func DecodeNullTerminatedUTF16(b []byte) (string, []byte, error) {
	var units []uint16
	rest := b
	for {
		u, r, err := ReadUint16(rest)
		if err != nil {
			return "", nil, err
		}
		rest = r
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units)), rest, nil
}

// EncodePTPString encodes s using the PTP string format: a one-byte count of
// UTF-16LE code units including a null terminator, followed by that many code
// units. The empty string encodes to a single zero byte with no terminator.
func EncodePTPString(s string) []byte {
	if s == "" {
		return []byte{0}
	}
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, 1+(len(units)+1)*2)
	out = append(out, byte(len(units)+1))
	for _, u := range units {
		out = PutUint16(out, u)
	}
	out = PutUint16(out, 0)
	return out
}

// DecodePTPString decodes a PTP-format string (see EncodePTPString) and returns the
// decoded value along with the remainder of b. A length byte of 0 decodes to the
// empty string and advances exactly one byte.
func DecodePTPString(b []byte) (string, []byte, error) {
	if len(b) < 1 {
		return "", nil, ErrShortBuffer
	}
	count := int(b[0])
	rest := b[1:]
	if count == 0 {
		return "", rest, nil
	}
	nbytes := count * 2
	if len(rest) < nbytes {
		return "", nil, ErrShortBuffer
	}
	raw, rest := rest[:nbytes], rest[nbytes:]
	units := make([]uint16, count)
	for i := 0; i < count; i++ {
		units[i] = binary.LittleEndian.Uint16(raw[i*2 : i*2+2])
	}
	// Drop the trailing null terminator code unit before decoding to a Go string.
	if n := len(units); n > 0 && units[n-1] == 0 {
		units = units[:n-1]
	}
	return string(utf16.Decode(units)), rest, nil
}
