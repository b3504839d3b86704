// SPDX-License-Identifier: GPL-3.0-or-later

package tcp

import (
	"log/slog"
	"math"

	"github.com/rbmk-project/tcpcore/bytestream"
	"github.com/rbmk-project/tcpcore/reassembler"
	"github.com/rbmk-project/tcpcore/seqnum"
)

// Receiver converts incoming segments into an in-order byte stream.
//
// The zero value is invalid; construct using [NewReceiver].
type Receiver struct {
	// hasZeroPoint indicates whether we have seen the SYN.
	hasZeroPoint bool

	// logger is the optional logger.
	logger *slog.Logger

	// reassembler writes into the inbound stream.
	reassembler *reassembler.Reassembler

	// zeroPoint is the sequence number of the SYN.
	zeroPoint seqnum.Wrap32
}

// NewReceiver creates a new [*Receiver] writing into the given reassembler.
//
// The config may be nil, in which case we use the defaults.
func NewReceiver(r *reassembler.Reassembler, config *Config) *Receiver {
	return &Receiver{
		logger:      config.logger(),
		reassembler: r,
	}
}

// Reader returns the read capability of the inbound stream.
func (rx *Receiver) Reader() *bytestream.Reader {
	return rx.reassembler.Reader()
}

// Reassembler returns the underlying [*reassembler.Reassembler].
func (rx *Receiver) Reassembler() *reassembler.Reassembler {
	return rx.reassembler
}

// Receive processes a segment from the peer's [*Sender].
func (rx *Receiver) Receive(msg SenderMessage) {
	w := rx.reassembler.Writer()
	if msg.RST {
		if !w.HasError() && rx.logger != nil {
			rx.logger.Info("tcpReset", slog.String("direction", "inbound"))
		}
		rx.reassembler.Reader().SetError()
	}
	if w.HasError() {
		return
	}

	if !rx.hasZeroPoint {
		if !msg.SYN {
			return
		}
		rx.zeroPoint, rx.hasZeroPoint = msg.Seqno, true
	}

	// The SYN occupies absolute sequence number zero, hence the +1
	// for the checkpoint and the -1 for the stream index.
	checkpoint := w.BytesPushed() + 1
	absSeqno := msg.Seqno.Unwrap(rx.zeroPoint, checkpoint)
	if msg.SYN {
		absSeqno++
	}
	if absSeqno == 0 {
		// only the SYN may occupy absolute sequence number zero
		return
	}
	rx.reassembler.Insert(absSeqno-1, msg.Payload, msg.FIN)
}

// Send returns the acknowledgment and window to report to the peer.
func (rx *Receiver) Send() ReceiverMessage {
	w := rx.reassembler.Writer()
	msg := ReceiverMessage{
		WindowSize: uint16(min(w.AvailableCapacity(), math.MaxUint16)),
		RST:        w.HasError(),
	}
	if rx.hasZeroPoint {
		// The FIN occupies one sequence number once the stream is closed.
		next := w.BytesPushed() + 1
		if w.IsClosed() {
			next++
		}
		msg.Ackno, msg.HasAckno = seqnum.Wrap(next, rx.zeroPoint), true
	}
	return msg
}
