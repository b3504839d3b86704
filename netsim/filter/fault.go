// SPDX-License-Identifier: GPL-3.0-or-later

package filter

import (
	"bytes"
	"sync"

	"github.com/rbmk-project/common/runtimex"
	"github.com/rbmk-project/tcpcore/netsim/packet"
)

// counter counts matching packets and fires on every Nth.
type counter struct {
	// every is the firing period.
	every int

	// mu protects seen.
	mu sync.Mutex

	// seen counts the matching packets.
	seen int
}

// newCounter creates a [*counter] firing every n packets.
func newCounter(every int) *counter {
	runtimex.Assert(every > 0, "every must be positive")
	return &counter{every: every}
}

// fire counts a packet and returns whether it is the Nth.
func (c *counter) fire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen++
	return c.seen%c.every == 0
}

// matches returns whether the payload matches the optional pattern.
func matches(pkt *packet.Packet, pattern []byte) bool {
	if pattern == nil {
		return true
	}
	return len(pkt.Payload) > 0 && bytes.Contains(pkt.Payload, pattern)
}

// Dropper drops every Nth matching packet.
type Dropper struct {
	// counter decides which packets to drop.
	counter *counter

	// pattern is an optional byte pattern to match in payload;
	// if nil, all packets match.
	pattern []byte
}

// NewDropper creates a new [*Dropper] dropping every Nth packet.
//
// If pattern is nil, it doesn't perform payload matching.
//
// This function panics if every is not positive.
func NewDropper(every int, pattern []byte) *Dropper {
	return &Dropper{counter: newCounter(every), pattern: pattern}
}

var _ packet.Filter = &Dropper{}

// Filter implements [packet.Filter].
func (d *Dropper) Filter(pkt *packet.Packet) (packet.Target, []*packet.Packet) {
	if matches(pkt, d.pattern) && d.counter.fire() {
		return packet.DROP, nil
	}
	return packet.ACCEPT, nil
}

// Duplicator injects a copy of every Nth packet.
type Duplicator struct {
	counter *counter
}

// NewDuplicator creates a new [*Duplicator].
//
// This function panics if every is not positive.
func NewDuplicator(every int) *Duplicator {
	return &Duplicator{counter: newCounter(every)}
}

var _ packet.Filter = &Duplicator{}

// Filter implements [packet.Filter].
func (d *Duplicator) Filter(pkt *packet.Packet) (packet.Target, []*packet.Packet) {
	if d.counter.fire() {
		return packet.ACCEPT, []*packet.Packet{pkt.Clone()}
	}
	return packet.ACCEPT, nil
}

// Reorderer holds every Nth packet back and releases it after the
// next packet, thus swapping the two.
//
// A held packet is released only when another packet traverses the
// filter. If no other packet follows, the held packet is effectively
// dropped and the peer must recover it through retransmission.
type Reorderer struct {
	// counter decides which packets to hold.
	counter *counter

	// held is the packet being held, if any.
	held *packet.Packet

	// mu protects held.
	mu sync.Mutex
}

// NewReorderer creates a new [*Reorderer].
//
// This function panics if every is not positive.
func NewReorderer(every int) *Reorderer {
	return &Reorderer{counter: newCounter(every)}
}

var _ packet.Filter = &Reorderer{}

// Filter implements [packet.Filter].
func (r *Reorderer) Filter(pkt *packet.Packet) (packet.Target, []*packet.Packet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if held := r.held; held != nil {
		r.held = nil
		return packet.ACCEPT, []*packet.Packet{held}
	}
	if r.counter.fire() {
		r.held = pkt
		return packet.DROP, nil
	}
	return packet.ACCEPT, nil
}

// Chain applies filters in order.
//
// A packet dropped by a filter is not seen by the following ones,
// while injected packets bypass the rest of the chain.
type Chain []packet.Filter

var _ packet.Filter = Chain{}

// Filter implements [packet.Filter].
func (c Chain) Filter(pkt *packet.Packet) (packet.Target, []*packet.Packet) {
	var injected []*packet.Packet
	for _, f := range c {
		target, more := f.Filter(pkt)
		injected = append(injected, more...)
		if target == packet.DROP {
			return packet.DROP, injected
		}
	}
	return packet.ACCEPT, injected
}
