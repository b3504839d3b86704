// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package tcp implements the sender and receiver halves of a TCP-like
reliable byte stream.

The [*Receiver] turns incoming [SenderMessage] segments into an in-order
byte stream using a [*reassembler.Reassembler] and reports the cumulative
acknowledgment and window through [ReceiverMessage]. The [*Sender] reads
from an outbound [*bytestream.Stream], emits segments that fit into the
peer's advertised window, and retransmits the oldest outstanding segment
when the retransmission timer expires.

# Execution Model

Everything in this package is synchronous and single-threaded. Time only
advances when the caller invokes [*Sender.Tick], and segments are emitted
by invoking the [TransmitFunc] passed to [*Sender.Push] and [*Sender.Tick].
There are no goroutines and no wall clock access. The types in this
package are NOT safe for concurrent use.

# Errors

Neither type returns errors. A segment carrying RST latches the error flag
of the corresponding stream, after which incoming messages are ignored.
Stale or impossible acknowledgments are silently discarded, and excess
bytes are clipped by the underlying streams.

# Non-Goals

There is no congestion control and no selective acknowledgment. The
only back-off is the doubling of the retransmission timeout.
*/
package tcp
