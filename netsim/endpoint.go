//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// TCP endpoint.
//

package netsim

import (
	"io"
	"log/slog"
	"net"
	"net/netip"

	"github.com/pkg/errors"
	"github.com/rbmk-project/common/errclass"
	"github.com/rbmk-project/common/runtimex"
	"github.com/rbmk-project/tcpcore/bytestream"
	"github.com/rbmk-project/tcpcore/netsim/packet"
	"github.com/rbmk-project/tcpcore/reassembler"
	"github.com/rbmk-project/tcpcore/seqnum"
	"github.com/rbmk-project/tcpcore/tcp"
)

// EndpointConfig contains the [*Endpoint] settings.
type EndpointConfig struct {
	// Capacity is the optional capacity of the inbound and outbound
	// streams. If zero, we use [tcp.DefaultCapacity].
	Capacity uint64

	// ISN is the initial sequence number.
	ISN seqnum.Wrap32

	// LocalAddr is the local endpoint address.
	LocalAddr netip.AddrPort

	// Logger is the optional structured logger. If nil, we
	// will not be emitting structured logs.
	Logger *slog.Logger

	// RemoteAddr is the remote endpoint address.
	RemoteAddr netip.AddrPort

	// TCP is the optional [*tcp.Config]. If nil, we use the defaults
	// and inherit the Logger.
	TCP *tcp.Config
}

// capacity returns the stream capacity.
func (c *EndpointConfig) capacity() uint64 {
	if c.Capacity > 0 {
		return c.Capacity
	}
	return tcp.DefaultCapacity
}

// tcpConfig returns the [*tcp.Config] to use.
func (c *EndpointConfig) tcpConfig() *tcp.Config {
	if c.TCP != nil {
		return c.TCP
	}
	return &tcp.Config{Logger: c.Logger}
}

// Endpoint is one side of a simulated TCP connection.
//
// An [*Endpoint] owns a [*tcp.Sender] draining the outbound stream and
// a [*tcp.Receiver] filling the inbound stream. Every segment leaving
// the endpoint carries the sender's sequence space and the receiver's
// acknowledgment, serialized as a TCP/IPv4 datagram.
//
// Nothing happens in the background: datagrams accumulate until the
// caller collects them with [*Endpoint.Output], and time only advances
// through [*Endpoint.Tick].
//
// The zero value is invalid; construct using [NewEndpoint].
//
// This type IS NOT goroutine safe.
type Endpoint struct {
	// aborted indicates that we gave up retransmitting.
	aborted bool

	// laddr is the local address.
	laddr netip.AddrPort

	// limit is the consecutive retransmissions limit.
	limit uint64

	// logger is the optional logger.
	logger *slog.Logger

	// output contains the datagrams not yet collected.
	output [][]byte

	// raddr is the remote address.
	raddr netip.AddrPort

	// receiver reassembles the inbound stream.
	receiver *tcp.Receiver

	// sender segments the outbound stream.
	sender *tcp.Sender

	// sent indicates whether we transmitted since it was last cleared.
	sent bool
}

// NewEndpoint creates a new [*Endpoint].
//
// This function panics if the local or remote address is invalid.
func NewEndpoint(config *EndpointConfig) *Endpoint {
	runtimex.Assert(config.LocalAddr.IsValid(), "invalid local address")
	runtimex.Assert(config.RemoteAddr.IsValid(), "invalid remote address")
	tcpConfig := config.tcpConfig()
	inbound := reassembler.New(bytestream.New(config.capacity()))
	outbound := bytestream.New(config.capacity())
	return &Endpoint{
		laddr:    config.LocalAddr,
		limit:    tcpConfig.RetransmissionLimit(),
		logger:   config.Logger,
		raddr:    config.RemoteAddr,
		receiver: tcp.NewReceiver(inbound, tcpConfig),
		sender:   tcp.NewSender(outbound, config.ISN, tcpConfig),
	}
}

// LocalAddr returns the local address.
func (ep *Endpoint) LocalAddr() netip.AddrPort {
	return ep.laddr
}

// RemoteAddr returns the remote address.
func (ep *Endpoint) RemoteAddr() netip.AddrPort {
	return ep.raddr
}

// Sender returns the underlying [*tcp.Sender].
func (ep *Endpoint) Sender() *tcp.Sender {
	return ep.sender
}

// Receiver returns the underlying [*tcp.Receiver].
func (ep *Endpoint) Receiver() *tcp.Receiver {
	return ep.receiver
}

// Active returns whether neither stream is in error.
func (ep *Endpoint) Active() bool {
	return !ep.sender.Writer().HasError() && !ep.receiver.Reader().HasError()
}

// Done returns whether both directions of the connection are finished:
// we read the whole inbound stream and the peer acknowledged our FIN.
func (ep *Endpoint) Done() bool {
	return ep.receiver.Reader().IsFinished() &&
		ep.sender.Reader().IsFinished() &&
		ep.sender.SequenceNumbersInFlight() == 0
}

// err returns the error to report when the endpoint is not active.
func (ep *Endpoint) err() error {
	switch {
	case ep.aborted:
		return ECONNABORTED
	case !ep.Active():
		return ECONNRESET
	default:
		return nil
	}
}

// Connect sends the SYN, unless we already sent it.
func (ep *Endpoint) Connect() {
	ep.push()
}

// Write appends data to the outbound stream and emits segments.
//
// It returns [io.ErrShortWrite] when the outbound stream is full and
// [net.ErrClosed] after [*Endpoint.Close].
func (ep *Endpoint) Write(data []byte) (int, error) {
	if err := ep.err(); err != nil {
		return 0, err
	}
	count, err := ep.sender.Writer().Write(data)
	if errors.Is(err, bytestream.ErrClosed) {
		err = net.ErrClosed
	}
	ep.push()
	return count, err
}

// Read reads from the inbound stream.
//
// It returns [io.EOF] once the peer closed its stream and we consumed
// all the data. When no data is available yet, it returns zero bytes
// and a nil error: callers should advance the simulation and retry.
func (ep *Endpoint) Read(buf []byte) (int, error) {
	count, err := ep.read(buf)
	if ep.logger != nil && (count > 0 || err != nil) {
		ep.logger.Info(
			"endpointReadDone",
			slog.Int("ioBytesCount", count),
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.String("localAddr", ep.laddr.String()),
			slog.String("remoteAddr", ep.raddr.String()),
		)
	}
	return count, err
}

// read implements [*Endpoint.Read].
func (ep *Endpoint) read(buf []byte) (int, error) {
	if err := ep.err(); err != nil {
		return 0, err
	}
	reader := ep.receiver.Reader()
	if reader.IsFinished() {
		return 0, io.EOF
	}
	count := copy(buf, bytestream.Read(reader, uint64(len(buf))))
	return count, nil
}

// Close closes the outbound stream and emits the FIN as soon as the
// window allows. It is idempotent.
func (ep *Endpoint) Close() error {
	if err := ep.err(); err != nil {
		return err
	}
	ep.sender.Writer().Close()
	ep.push()
	return nil
}

// Abort latches the error on both streams and sends an RST.
func (ep *Endpoint) Abort() {
	if !ep.Active() {
		return
	}
	ep.sender.Writer().SetError()
	ep.receiver.Reader().SetError()
	ep.transmit(ep.sender.MakeEmptyMessage())
}

// Tick advances time by ms milliseconds, retransmitting if needed, and
// aborts the connection when the peer stopped acknowledging.
func (ep *Endpoint) Tick(ms uint64) {
	if !ep.Active() {
		return
	}
	ep.sender.Tick(ms, ep.transmit)
	if retx := ep.sender.ConsecutiveRetransmissions(); retx > ep.limit {
		ep.aborted = true
		if ep.logger != nil {
			ep.logger.Info(
				"endpointAbort",
				slog.Uint64("consecutiveRetransmissions", retx),
				slog.String("localAddr", ep.laddr.String()),
				slog.String("remoteAddr", ep.raddr.String()),
			)
		}
		ep.Abort()
	}
}

// Input processes a datagram coming from the network.
//
// Datagrams belonging to other connections are silently ignored.
func (ep *Endpoint) Input(raw []byte) error {
	pkt, err := packet.Parse(raw)
	if err != nil {
		return errors.Wrap(err, "netsim: cannot parse datagram")
	}
	if netip.AddrPortFrom(pkt.DstAddr, pkt.DstPort) != ep.laddr ||
		netip.AddrPortFrom(pkt.SrcAddr, pkt.SrcPort) != ep.raddr {
		return nil
	}
	if !ep.Active() {
		return nil
	}

	sm := pkt.SenderMessage()
	ep.receiver.Receive(sm)
	ep.sender.Receive(pkt.ReceiverMessage())
	if !ep.Active() {
		return nil
	}

	// Segments occupying sequence space must be acknowledged even
	// when we have nothing to send.
	ep.sent = false
	ep.push()
	if sm.SequenceLength() > 0 && !ep.sent {
		ep.transmit(ep.sender.MakeEmptyMessage())
	}
	return nil
}

// Output returns and clears the datagrams emitted so far.
func (ep *Endpoint) Output() [][]byte {
	output := ep.output
	ep.output = nil
	return output
}

// push emits the segments the sender is willing to send.
func (ep *Endpoint) push() {
	if ep.Active() {
		ep.sender.Push(ep.transmit)
	}
}

// transmit implements [tcp.TransmitFunc].
func (ep *Endpoint) transmit(sm tcp.SenderMessage) {
	pkt := packet.New(sm, ep.receiver.Send())
	pkt.SrcAddr, pkt.SrcPort = ep.laddr.Addr(), ep.laddr.Port()
	pkt.DstAddr, pkt.DstPort = ep.raddr.Addr(), ep.raddr.Port()
	raw, err := pkt.Marshal()
	if err != nil {
		if ep.logger != nil {
			ep.logger.Warn(
				"endpointMarshalError",
				slog.Any("err", err),
				slog.String("errClass", errclass.New(err)),
				slog.String("localAddr", ep.laddr.String()),
				slog.String("remoteAddr", ep.raddr.String()),
			)
		}
		return
	}
	ep.output = append(ep.output, raw)
	ep.sent = true
}
