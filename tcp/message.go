// SPDX-License-Identifier: GPL-3.0-or-later

package tcp

import "github.com/rbmk-project/tcpcore/seqnum"

// SenderMessage is a segment flowing from a [*Sender] to a [*Receiver].
type SenderMessage struct {
	// Seqno is the sequence number of the first sequence-space unit
	// occupied by this segment (the SYN if set, otherwise the payload).
	Seqno seqnum.Wrap32

	// SYN marks the beginning of the stream.
	SYN bool

	// Payload contains the stream bytes.
	Payload []byte

	// FIN marks the end of the stream.
	FIN bool

	// RST signals that the stream suffered an error.
	RST bool
}

// SequenceLength returns the number of sequence numbers occupied by the
// segment. SYN and FIN occupy one sequence number each.
func (m *SenderMessage) SequenceLength() uint64 {
	n := uint64(len(m.Payload))
	if m.SYN {
		n++
	}
	if m.FIN {
		n++
	}
	return n
}

// IsEmpty returns whether the segment occupies no sequence numbers.
func (m *SenderMessage) IsEmpty() bool {
	return m.SequenceLength() == 0
}

// ReceiverMessage is an acknowledgment flowing from a [*Receiver] to
// a [*Sender].
type ReceiverMessage struct {
	// Ackno is the next sequence number the receiver needs. It is only
	// meaningful when HasAckno is true.
	Ackno seqnum.Wrap32

	// HasAckno is false until the receiver observes the SYN.
	HasAckno bool

	// WindowSize is the receiver's available capacity, capped at 65535.
	WindowSize uint16

	// RST signals that the stream suffered an error.
	RST bool
}

// TransmitFunc sends a [SenderMessage] to the peer.
//
// The [*Sender] keeps its own copy of the payload for retransmission,
// so the callback may retain or modify msg.Payload.
type TransmitFunc func(msg SenderMessage)
