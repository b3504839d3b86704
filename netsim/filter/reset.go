// SPDX-License-Identifier: GPL-3.0-or-later

package filter

import (
	"encoding/binary"
	"net/netip"

	"github.com/miekg/dns"
	"github.com/rbmk-project/tcpcore/netsim/packet"
)

// TCPResetter implements RST-based TCP connection interruption.
//
// When configured with a pattern, it only injects RST segments
// for packets containing that pattern, while allowing empty
// packets (e.g., SYN) to pass through. This enables pattern matching
// on application content while allowing the connection to start.
type TCPResetter struct {
	// target specifies an optional specific endpoint to filter;
	// if zero, applies to all TCP connections.
	target netip.AddrPort

	// pattern is an optional byte pattern to match in payload;
	// if nil, only considers the target (if set).
	pattern []byte
}

// NewTCPResetter creates a new [*TCPResetter].
//
// If target is zero, it applies to all TCP connections.
//
// If pattern is nil, it doesn't perform payload matching.
func NewTCPResetter(target netip.AddrPort, pattern []byte) *TCPResetter {
	return &TCPResetter{target: target, pattern: pattern}
}

var _ packet.Filter = &TCPResetter{}

// Filter implements [packet.Filter].
func (r *TCPResetter) Filter(pkt *packet.Packet) (packet.Target, []*packet.Packet) {
	if !matchesTarget(pkt, r.target) || !matches(pkt, r.pattern) {
		return packet.ACCEPT, nil
	}
	return packet.ACCEPT, []*packet.Packet{newReset(pkt)}
}

// DNSResetter injects an RST towards the client when a segment carries
// a DNS-over-TCP query for a blocked domain.
//
// The query must fit a single segment, which is how real censors
// commonly inspect DNS-over-TCP traffic.
type DNSResetter struct {
	// domains contains the blocked FQDNs in canonical form.
	domains map[string]struct{}
}

// NewDNSResetter creates a new [*DNSResetter] for the given domains.
func NewDNSResetter(domains ...string) *DNSResetter {
	r := &DNSResetter{domains: make(map[string]struct{})}
	for _, domain := range domains {
		r.domains[dns.CanonicalName(domain)] = struct{}{}
	}
	return r
}

var _ packet.Filter = &DNSResetter{}

// Filter implements [packet.Filter].
func (r *DNSResetter) Filter(pkt *packet.Packet) (packet.Target, []*packet.Packet) {
	// Only consider segments to the DNS port carrying a whole message
	if pkt.DstPort != 53 || len(pkt.Payload) < 2 {
		return packet.ACCEPT, nil
	}
	length := int(binary.BigEndian.Uint16(pkt.Payload))
	if len(pkt.Payload) != 2+length {
		return packet.ACCEPT, nil
	}

	// Parse the DNS query
	query := new(dns.Msg)
	if err := query.Unpack(pkt.Payload[2:]); err != nil {
		return packet.ACCEPT, nil
	}
	if query.Response || len(query.Question) != 1 {
		return packet.ACCEPT, nil
	}
	if _, found := r.domains[dns.CanonicalName(query.Question[0].Name)]; !found {
		return packet.ACCEPT, nil
	}

	return packet.DROP, []*packet.Packet{newReset(pkt)}
}

// matchesTarget returns whether the packet is directed to the optional target.
func matchesTarget(pkt *packet.Packet, target netip.AddrPort) bool {
	if !target.IsValid() {
		return true
	}
	return pkt.DstAddr == target.Addr() && pkt.DstPort == target.Port()
}

// newReset creates an RST segment directed to the source of pkt.
func newReset(pkt *packet.Packet) *packet.Packet {
	rst := pkt.Reply()
	rst.Flags = packet.TCPFlagRST
	rst.Seqno = pkt.Ackno
	return rst
}
