// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package packet contains [*Packet] and the related definitions.

A [*Packet] is a TCP/IPv4 datagram carrying one combined segment: the
sequence space part produced by a [*tcp.Sender] and the acknowledgment
part produced by a [*tcp.Receiver]. Use [New] to combine the two
messages, [*Packet.Marshal] to serialize the datagram, and [Parse] to
parse and validate it again.
*/
package packet

import (
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"net/netip"
	"strings"

	ipv4header "github.com/brown-csci1680/iptcp-headers"
	"github.com/google/netstack/tcpip/header"
	"github.com/pkg/errors"
	"github.com/rbmk-project/tcpcore/seqnum"
	"github.com/rbmk-project/tcpcore/tcp"
)

// IPProtocolTCP is the TCP protocol number.
const IPProtocolTCP = 6

// DefaultTTL is the TTL used by [New].
const DefaultTTL = 64

// TCPFlags is a set of TCP flags.
type TCPFlags uint8

// String returns the string representation of the TCP flags.
func (flags TCPFlags) String() string {
	var builder strings.Builder
	for _, entry := range []struct {
		flag TCPFlags
		name string
	}{
		{TCPFlagFIN, "F"},
		{TCPFlagSYN, "S"},
		{TCPFlagRST, "R"},
		{TCPFlagPSH, "P"},
		{TCPFlagACK, "A"},
	} {
		if flags&entry.flag != 0 {
			builder.WriteString(entry.name)
		} else {
			builder.WriteString(".")
		}
	}
	return builder.String()
}

const (
	// TCPFlagFIN is the FIN flag.
	TCPFlagFIN = TCPFlags(header.TCPFlagFin)

	// TCPFlagSYN is the SYN flag.
	TCPFlagSYN = TCPFlags(header.TCPFlagSyn)

	// TCPFlagRST is the RST flag.
	TCPFlagRST = TCPFlags(header.TCPFlagRst)

	// TCPFlagPSH is the PSH flag.
	TCPFlagPSH = TCPFlags(header.TCPFlagPsh)

	// TCPFlagACK is the ACK flag.
	TCPFlagACK = TCPFlags(header.TCPFlagAck)
)

var (
	// ErrChecksum indicates that a checksum does not verify.
	ErrChecksum = errors.New("packet: invalid checksum")

	// ErrProtocol indicates a datagram we cannot represent.
	ErrProtocol = errors.New("packet: unsupported protocol")

	// ErrTruncated indicates a datagram shorter than its headers claim.
	ErrTruncated = errors.New("packet: truncated datagram")
)

// Packet is a TCP/IPv4 datagram.
type Packet struct {
	// SrcAddr is the source address.
	SrcAddr netip.Addr

	// DstAddr is the destination address.
	DstAddr netip.Addr

	// SrcPort is the source port.
	SrcPort uint16

	// DstPort is the destination port.
	DstPort uint16

	// TTL is the time to live.
	TTL uint8

	// Flags contains the TCP flags.
	Flags TCPFlags

	// Seqno is the sequence number.
	Seqno seqnum.Wrap32

	// Ackno is the acknowledgment number, valid when Flags contains ACK.
	Ackno seqnum.Wrap32

	// Window is the advertised window.
	Window uint16

	// Payload is the segment payload.
	Payload []byte
}

// New combines a sender and a receiver message into a [*Packet].
//
// The caller is responsible for filling the addresses and ports.
func New(sm tcp.SenderMessage, rm tcp.ReceiverMessage) *Packet {
	pkt := &Packet{
		TTL:     DefaultTTL,
		Seqno:   sm.Seqno,
		Window:  rm.WindowSize,
		Payload: sm.Payload,
	}
	if sm.SYN {
		pkt.Flags |= TCPFlagSYN
	}
	if sm.FIN {
		pkt.Flags |= TCPFlagFIN
	}
	if sm.RST || rm.RST {
		pkt.Flags |= TCPFlagRST
	}
	if rm.HasAckno {
		pkt.Flags |= TCPFlagACK
		pkt.Ackno = rm.Ackno
	}
	if len(sm.Payload) > 0 {
		pkt.Flags |= TCPFlagPSH
	}
	return pkt
}

// SenderMessage returns the sequence space part of the packet.
func (p *Packet) SenderMessage() tcp.SenderMessage {
	return tcp.SenderMessage{
		Seqno:   p.Seqno,
		SYN:     p.Flags&TCPFlagSYN != 0,
		Payload: p.Payload,
		FIN:     p.Flags&TCPFlagFIN != 0,
		RST:     p.Flags&TCPFlagRST != 0,
	}
}

// ReceiverMessage returns the acknowledgment part of the packet.
func (p *Packet) ReceiverMessage() tcp.ReceiverMessage {
	return tcp.ReceiverMessage{
		Ackno:      p.Ackno,
		HasAckno:   p.Flags&TCPFlagACK != 0,
		WindowSize: p.Window,
		RST:        p.Flags&TCPFlagRST != 0,
	}
}

// Clone returns a deep copy of the packet.
func (p *Packet) Clone() *Packet {
	clone := *p
	clone.Payload = append([]byte(nil), p.Payload...)
	return &clone
}

// Reply returns an empty packet flowing in the opposite direction.
func (p *Packet) Reply() *Packet {
	return &Packet{
		SrcAddr: p.DstAddr,
		DstAddr: p.SrcAddr,
		SrcPort: p.DstPort,
		DstPort: p.SrcPort,
		TTL:     DefaultTTL,
	}
}

// String returns the string representation of the packet.
func (p *Packet) String() string {
	return fmt.Sprintf(
		"%s -> %s tcp flags=%s seq=%d ack=%d win=%d length=%d",
		net.JoinHostPort(p.SrcAddr.String(), fmt.Sprintf("%d", p.SrcPort)),
		net.JoinHostPort(p.DstAddr.String(), fmt.Sprintf("%d", p.DstPort)),
		p.Flags.String(),
		p.Seqno,
		p.Ackno,
		p.Window,
		len(p.Payload),
	)
}

// maxPayloadSize is the largest payload fitting a datagram.
const maxPayloadSize = math.MaxUint16 - ipv4header.HeaderLen - header.TCPMinimumSize

// Marshal serializes the packet as an IPv4 datagram.
func (p *Packet) Marshal() ([]byte, error) {
	if !p.SrcAddr.Is4() || !p.DstAddr.Is4() {
		return nil, errors.Wrapf(ErrProtocol, "non-IPv4 addresses %s -> %s", p.SrcAddr, p.DstAddr)
	}
	if len(p.Payload) > maxPayloadSize {
		return nil, errors.Errorf("packet: payload too large: %d bytes", len(p.Payload))
	}

	segment := make([]byte, header.TCPMinimumSize+len(p.Payload))
	header.TCP(segment).Encode(&header.TCPFields{
		SrcPort:    p.SrcPort,
		DstPort:    p.DstPort,
		SeqNum:     uint32(p.Seqno),
		AckNum:     uint32(p.Ackno),
		DataOffset: header.TCPMinimumSize,
		Flags:      uint8(p.Flags),
		WindowSize: p.Window,
	})
	copy(segment[header.TCPMinimumSize:], p.Payload)
	sum := header.Checksum(segment, pseudoHeaderChecksum(p.SrcAddr, p.DstAddr, len(segment)))
	header.TCP(segment).SetChecksum(^sum)

	iph := &ipv4header.IPv4Header{
		Version:  4,
		Len:      ipv4header.HeaderLen,
		TotalLen: ipv4header.HeaderLen + len(segment),
		TTL:      int(p.TTL),
		Protocol: IPProtocolTCP,
		Src:      p.SrcAddr,
		Dst:      p.DstAddr,
		Options:  []byte{},
	}
	hdr, err := iph.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "packet: cannot marshal IPv4 header")
	}
	iph.Checksum = int(^header.Checksum(hdr, 0))
	if hdr, err = iph.Marshal(); err != nil {
		return nil, errors.Wrap(err, "packet: cannot marshal IPv4 header")
	}

	return append(hdr, segment...), nil
}

// Parse parses and validates an IPv4 datagram produced by [*Packet.Marshal].
//
// The returned packet's payload aliases the raw datagram.
func Parse(raw []byte) (*Packet, error) {
	iph, err := ipv4header.ParseHeader(raw)
	if err != nil {
		return nil, errors.Wrap(err, "packet: cannot parse IPv4 header")
	}
	if iph.Len < ipv4header.HeaderLen || iph.TotalLen < iph.Len || len(raw) < iph.TotalLen {
		return nil, errors.Wrapf(ErrTruncated, "IPv4 total length %d, have %d bytes", iph.TotalLen, len(raw))
	}
	if header.Checksum(raw[:iph.Len], 0) != 0xffff {
		return nil, errors.Wrap(ErrChecksum, "IPv4 header")
	}
	if iph.Protocol != IPProtocolTCP {
		return nil, errors.Wrapf(ErrProtocol, "IP protocol %d", iph.Protocol)
	}

	segment := header.TCP(raw[iph.Len:iph.TotalLen])
	if len(segment) < header.TCPMinimumSize {
		return nil, errors.Wrapf(ErrTruncated, "TCP segment of %d bytes", len(segment))
	}
	offset := int(segment.DataOffset())
	if offset < header.TCPMinimumSize || offset > len(segment) {
		return nil, errors.Wrapf(ErrTruncated, "TCP data offset %d", offset)
	}
	if header.Checksum(segment, pseudoHeaderChecksum(iph.Src, iph.Dst, len(segment))) != 0xffff {
		return nil, errors.Wrap(ErrChecksum, "TCP segment")
	}

	pkt := &Packet{
		SrcAddr: iph.Src,
		DstAddr: iph.Dst,
		SrcPort: segment.SourcePort(),
		DstPort: segment.DestinationPort(),
		TTL:     uint8(iph.TTL),
		Flags:   TCPFlags(segment.Flags()),
		Seqno:   seqnum.Wrap32(segment.SequenceNumber()),
		Ackno:   seqnum.Wrap32(segment.AckNumber()),
		Window:  segment.WindowSize(),
	}
	if payload := segment[offset:]; len(payload) > 0 {
		pkt.Payload = payload
	}
	return pkt, nil
}

// pseudoHeaderChecksum returns the partial checksum of the TCP pseudo header.
func pseudoHeaderChecksum(src, dst netip.Addr, length int) uint16 {
	var pseudo [12]byte
	srcBytes, dstBytes := src.As4(), dst.As4()
	copy(pseudo[0:4], srcBytes[:])
	copy(pseudo[4:8], dstBytes[:])
	pseudo[9] = IPProtocolTCP
	binary.BigEndian.PutUint16(pseudo[10:12], uint16(length))
	return header.Checksum(pseudo[:], 0)
}

// Target is the verdict of a [Filter].
type Target int

const (
	// ACCEPT lets the packet continue its journey.
	ACCEPT = Target(iota)

	// DROP discards the packet.
	DROP
)

// String returns the string representation of the target.
func (t Target) String() string {
	switch t {
	case ACCEPT:
		return "ACCEPT"
	case DROP:
		return "DROP"
	default:
		return "UNKNOWN"
	}
}

// Filter inspects packets travelling through a link.
//
// The returned packets are injected after the inspected one, which
// is delivered only when the verdict is [ACCEPT].
type Filter interface {
	Filter(pkt *Packet) (Target, []*Packet)
}

// FilterFunc adapts a function to the [Filter] interface.
type FilterFunc func(pkt *Packet) (Target, []*Packet)

var _ Filter = FilterFunc(nil)

// Filter implements [Filter].
func (fx FilterFunc) Filter(pkt *Packet) (Target, []*Packet) {
	return fx(pkt)
}
