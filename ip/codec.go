package ip

import (
	"fmt"
	"io"

	"github.com/putto11262002/sabaipics-core/internal/wire"
)

// ReadFrame reads one PTP/IP frame from r: the 8-byte header, then the announced
// payload. It validates Length >= HeaderSize and never panics on a short or
// malformed header (spec §4.1, framing layer).
func ReadFrame(r io.Reader) (PacketType, []byte, error) {
	hdr := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return PKT_Invalid, nil, fmt.Errorf("ip: read frame header: %w", err)
	}

	length, rest, err := wire.ReadUint32(hdr)
	if err != nil {
		return PKT_Invalid, nil, err
	}
	tag, _, err := wire.ReadUint32(rest)
	if err != nil {
		return PKT_Invalid, nil, err
	}

	if length < HeaderSize {
		return PKT_Invalid, nil, fmt.Errorf("ip: frame length %d shorter than header size %d", length, HeaderSize)
	}

	payload := make([]byte, length-HeaderSize)
	if len(payload) > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return PKT_Invalid, nil, fmt.Errorf("ip: read frame payload: %w", err)
		}
	}

	return PacketType(tag), payload, nil
}

// WriteFrame serialises p as a complete PTP/IP frame and writes it to w.
func WriteFrame(w io.Writer, p PacketOut) error {
	payload := p.Payload()
	length := uint32(HeaderSize + len(payload))

	buf := wire.PutUint32(nil, length)
	buf = wire.PutUint32(buf, uint32(p.PacketType()))
	buf = append(buf, payload...)

	_, err := w.Write(buf)
	if err != nil {
		return fmt.Errorf("ip: write frame: %w", err)
	}
	return nil
}

// Decode reads one frame from r and parses it into its typed PacketIn. It returns
// ErrUnknownPacketType (wrapped) for any tag outside the fourteen recognised types.
func Decode(r io.Reader) (PacketIn, error) {
	tag, payload, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}

	p, err := NewPacketIn(tag)
	if err != nil {
		return nil, err
	}
	if err := p.UnmarshalPayload(payload); err != nil {
		return nil, err
	}
	return p, nil
}
