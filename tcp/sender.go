// SPDX-License-Identifier: GPL-3.0-or-later

package tcp

import (
	"bytes"
	"log/slog"

	"github.com/rbmk-project/tcpcore/bytestream"
	"github.com/rbmk-project/tcpcore/seqnum"
)

// Sender turns an outbound byte stream into segments.
//
// The zero value is invalid; construct using [NewSender].
type Sender struct {
	// ackedSeqno is the absolute sequence number up to which the
	// peer acknowledged all the outstanding segments.
	ackedSeqno uint64

	// finSent indicates whether we emitted the FIN.
	finSent bool

	// inFlight is the number of outstanding sequence numbers.
	inFlight uint64

	// initialRTO is the initial retransmission timeout.
	initialRTO uint64

	// input is the outbound stream.
	input *bytestream.Stream

	// isn is the initial sequence number.
	isn seqnum.Wrap32

	// logger is the optional logger.
	logger *slog.Logger

	// maxPayload is the maximum payload size.
	maxPayload uint64

	// nextSeqno is the next absolute sequence number to send.
	nextSeqno uint64

	// outstanding contains the segments not yet fully acknowledged.
	outstanding []SenderMessage

	// retransmissions counts the consecutive retransmissions.
	retransmissions uint64

	// synSent indicates whether we emitted the SYN.
	synSent bool

	// timer is the retransmission timer.
	timer retransmissionTimer

	// window is the window advertised by the peer.
	window uint16
}

// NewSender creates a new [*Sender] reading from input and numbering
// segments starting from isn.
//
// The config may be nil, in which case we use the defaults.
func NewSender(input *bytestream.Stream, isn seqnum.Wrap32, config *Config) *Sender {
	rto := config.initialRTO()
	return &Sender{
		initialRTO: rto,
		input:      input,
		isn:        isn,
		logger:     config.logger(),
		maxPayload: config.maxPayloadSize(),
		timer:      newRetransmissionTimer(rto),
		window:     1,
	}
}

// Writer returns the write capability of the outbound stream.
func (tx *Sender) Writer() *bytestream.Writer {
	return tx.input.Writer()
}

// Reader returns the read capability of the outbound stream.
//
// Callers should only use it to inspect the stream: the [*Sender]
// must remain the only consumer.
func (tx *Sender) Reader() *bytestream.Reader {
	return tx.input.Reader()
}

// SequenceNumbersInFlight returns how many sequence numbers are outstanding.
func (tx *Sender) SequenceNumbersInFlight() uint64 {
	return tx.inFlight
}

// ConsecutiveRetransmissions returns how many consecutive retransmissions
// happened since the last acknowledgment of new data.
func (tx *Sender) ConsecutiveRetransmissions() uint64 {
	return tx.retransmissions
}

// MakeEmptyMessage returns a segment that occupies no sequence numbers,
// carrying the next sequence number and the outbound error flag.
func (tx *Sender) MakeEmptyMessage() SenderMessage {
	return SenderMessage{
		Seqno: seqnum.Wrap(tx.nextSeqno, tx.isn),
		RST:   tx.input.HasError(),
	}
}

// Push emits as many segments as the window and the outbound stream allow.
//
// A zero window is treated as a window of one so that we keep probing
// the receiver until it advertises free space.
func (tx *Sender) Push(transmit TransmitFunc) {
	window := max(uint64(tx.window), 1)
	reader := tx.input.Reader()
	for window > tx.inFlight && !tx.finSent {
		msg := tx.MakeEmptyMessage()
		if !tx.synSent {
			msg.SYN, tx.synSent = true, true
		}

		remaining := window - tx.inFlight
		size := min(tx.maxPayload, remaining-msg.SequenceLength())
		if payload := bytestream.Read(reader, size); len(payload) > 0 {
			msg.Payload = payload
		}

		if remaining > msg.SequenceLength() && reader.IsFinished() {
			msg.FIN, tx.finSent = true, true
		}

		if msg.IsEmpty() {
			return
		}

		transmit(msg)
		if !tx.timer.active {
			tx.timer.start()
		}
		tx.nextSeqno += msg.SequenceLength()
		tx.inFlight += msg.SequenceLength()
		msg.Payload = bytes.Clone(msg.Payload)
		tx.outstanding = append(tx.outstanding, msg)
	}
}

// Receive processes an acknowledgment from the peer's [*Receiver].
func (tx *Sender) Receive(msg ReceiverMessage) {
	if msg.RST {
		if !tx.input.HasError() && tx.logger != nil {
			tx.logger.Info("tcpReset", slog.String("direction", "outbound"))
		}
		tx.input.SetError()
	}
	if tx.input.HasError() {
		return
	}

	tx.window = msg.WindowSize
	if !msg.HasAckno {
		return
	}

	ackno := msg.Ackno.Unwrap(tx.isn, tx.nextSeqno)
	if ackno > tx.nextSeqno {
		return // cannot acknowledge what we did not send
	}

	acked := false
	for len(tx.outstanding) > 0 {
		length := tx.outstanding[0].SequenceLength()
		if tx.ackedSeqno+length > ackno {
			break // only whole segments are acknowledged
		}
		acked = true
		tx.ackedSeqno += length
		tx.inFlight -= length
		tx.outstanding[0] = SenderMessage{}
		tx.outstanding = tx.outstanding[1:]
	}
	if !acked {
		return
	}

	tx.retransmissions = 0
	tx.timer.reload(tx.initialRTO)
	if len(tx.outstanding) > 0 {
		tx.timer.start()
	} else {
		tx.timer.stop()
	}
}

// Tick advances time by ms milliseconds and retransmits the oldest
// outstanding segment if the retransmission timer expired.
func (tx *Sender) Tick(ms uint64, transmit TransmitFunc) {
	if len(tx.outstanding) == 0 {
		return
	}
	if !tx.timer.tick(ms).expired() {
		return
	}

	msg := tx.outstanding[0]
	msg.Payload = bytes.Clone(msg.Payload)
	transmit(msg)

	// A zero window is flow control, not congestion: do not back off.
	if tx.window != 0 {
		tx.retransmissions++
		tx.timer.backoff()
	}
	tx.timer.reset()

	if tx.logger != nil {
		tx.logger.Info(
			"tcpRetransmit",
			slog.Uint64("seqno", uint64(msg.Seqno)),
			slog.Uint64("sequenceLength", msg.SequenceLength()),
			slog.Uint64("consecutiveRetransmissions", tx.retransmissions),
			slog.Uint64("rtoMs", tx.timer.rto),
			slog.Uint64("windowSize", uint64(tx.window)),
		)
	}
}
