package session

import (
	"context"
	"fmt"
	"time"

	"github.com/putto11262002/sabaipics-core/ip"
	"github.com/putto11262002/sabaipics-core/ptp"
	"github.com/putto11262002/sabaipics-core/ptperr"
	"github.com/putto11262002/sabaipics-core/transport"
)

// connIO adapts a transport.Conn's exact-byte primitives to io.Reader/io.Writer so
// the ip package's frame codec can be used directly against it.
type connIO struct {
	conn    *transport.Conn
	ctx     context.Context
	timeout time.Duration
}

func (w *connIO) Read(p []byte) (int, error) {
	b, err := w.conn.RecvExact(w.ctx, len(p), w.timeout)
	if err != nil {
		return 0, err
	}
	copy(p, b)
	return len(p), nil
}

func (w *connIO) Write(p []byte) (int, error) {
	if err := w.conn.SendExact(w.ctx, p, w.timeout); err != nil {
		return 0, err
	}
	return len(p), nil
}

// readResponseCycle consumes packets from io until the OperationResponsePacket
// matching txID arrives, reassembling any intervening data phase (spec §4.5.1).
//
// A bare EndDataPacket occasionally arrives a second time, after the data phase
// has already closed, where none was expected; per spec §4.5 that duplicate is
// discarded rather than accumulated, and the loop keeps reading for the response.
func readResponseCycle(r *connIO, txID ptp.TransactionID) (ptp.OperationResponse, []byte, error) {
	var data []byte
	var totalLen uint64
	haveLen := false
	endSeen := false

	for {
		pkt, err := ip.Decode(r)
		if err != nil {
			return ptp.OperationResponse{}, nil, err
		}

		switch p := pkt.(type) {
		case *ip.StartDataPacket:
			if p.TransactionId != txID {
				return ptp.OperationResponse{}, nil, ptperr.ErrTransactionMismatch
			}
			totalLen = p.TotalDataLength
			haveLen = true

		case *ip.DataPacket:
			if p.TransactionId != txID {
				return ptp.OperationResponse{}, nil, ptperr.ErrTransactionMismatch
			}
			data = append(data, p.Payload_...)

		case *ip.EndDataPacket:
			if p.TransactionId != txID {
				return ptp.OperationResponse{}, nil, ptperr.ErrTransactionMismatch
			}
			if endSeen {
				continue
			}
			endSeen = true
			data = append(data, p.Payload_...)
			if haveLen && uint64(len(data)) != totalLen {
				return ptp.OperationResponse{}, nil, ptperr.ErrSizeMismatch
			}

		case *ip.OperationResponsePacket:
			if p.TransactionID != txID {
				return ptp.OperationResponse{}, nil, ptperr.ErrTransactionMismatch
			}
			return p.OperationResponse, data, nil

		default:
			// Stray packet on the command channel (e.g. an out-of-band Ping); ignore
			// and keep waiting for the response.
		}
	}
}

func responseCodeError(op string, resp ptp.OperationResponse) error {
	return ptperr.Wrap(ptperr.KindProtocol, fmt.Sprintf("%s response code %#x", op, uint16(resp.ResponseCode)), ptperr.ErrResponseNotOK)
}
