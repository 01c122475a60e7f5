package scanner

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/putto11262002/sabaipics-core/ip"
	"github.com/putto11262002/sabaipics-core/ptperr"
	"github.com/putto11262002/sabaipics-core/transport"
)

// probeIO adapts a transport.Conn to io.Reader/io.Writer for the Init handshake,
// the same shape session.connIO gives the Session once a camera is handed off.
type probeIO struct {
	conn    *transport.Conn
	ctx     context.Context
	timeout time.Duration
}

func (w *probeIO) Read(p []byte) (int, error) {
	b, err := w.conn.RecvExact(w.ctx, len(p), w.timeout)
	if err != nil {
		return 0, err
	}
	copy(p, b)
	return len(p), nil
}

func (w *probeIO) Write(p []byte) (int, error) {
	if err := w.conn.SendExact(w.ctx, p, w.timeout); err != nil {
		return 0, err
	}
	return len(p), nil
}

// initResult is what stages 2 and 4 of the probe (spec §4.4) hand to stage 5.
type initResult struct {
	connectionNumber uint32
	cameraName       string
}

// initCommandChannel performs stage 2: send InitCommandRequest, read
// InitCommandAck, extract connection_number and camera_name.
func initCommandChannel(ctx context.Context, conn *transport.Conn, clientGUID uuid.UUID, friendlyName string, timeout time.Duration) (initResult, error) {
	io := &probeIO{conn: conn, ctx: ctx, timeout: timeout}
	if err := ip.WriteFrame(io, ip.NewInitCommandRequestPacket(clientGUID, friendlyName)); err != nil {
		return initResult{}, err
	}
	pkt, err := ip.Decode(io)
	if err != nil {
		return initResult{}, err
	}
	ack, ok := pkt.(*ip.InitCommandAckPacket)
	if !ok {
		if fail, ok := pkt.(*ip.InitFailPacket); ok {
			return initResult{}, ptperr.Wrap(ptperr.KindProtocol, "command channel init failed", fail)
		}
		return initResult{}, ptperr.New(ptperr.KindProtocol, "unexpected packet during command channel init")
	}
	return initResult{connectionNumber: ack.ConnectionNumber, cameraName: ack.ResponderName}, nil
}

// initEventChannel performs stage 4: send InitEventRequest carrying the
// connection number from stage 2, read InitEventAck.
func initEventChannel(ctx context.Context, conn *transport.Conn, connectionNumber uint32, timeout time.Duration) error {
	io := &probeIO{conn: conn, ctx: ctx, timeout: timeout}
	if err := ip.WriteFrame(io, ip.NewInitEventRequestPacket(connectionNumber)); err != nil {
		return err
	}
	pkt, err := ip.Decode(io)
	if err != nil {
		return err
	}
	if _, ok := pkt.(*ip.InitEventAckPacket); !ok {
		if fail, ok := pkt.(*ip.InitFailPacket); ok {
			return ptperr.Wrap(ptperr.KindProtocol, "event channel init failed", fail)
		}
		return ptperr.New(ptperr.KindProtocol, "unexpected packet during event channel init")
	}
	return nil
}
