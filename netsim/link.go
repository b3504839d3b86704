//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Simulated point-to-point link.
//

package netsim

import (
	"log/slog"
	"net/netip"

	"github.com/rbmk-project/common/errclass"
	"github.com/rbmk-project/tcpcore/netsim/packet"
)

// LinkConfig contains the [*Link] settings.
//
// The zero value is ready to use and models an ideal link.
type LinkConfig struct {
	// DelayMs is the one-way propagation delay in milliseconds.
	DelayMs uint64

	// LeftToRight is the optional filter for packets sent by the left endpoint.
	LeftToRight packet.Filter

	// Logger is the optional structured logger.
	Logger *slog.Logger

	// RightToLeft is the optional filter for packets sent by the right endpoint.
	RightToLeft packet.Filter
}

// inflight is a datagram travelling through the link.
type inflight struct {
	// due is the delivery time in milliseconds.
	due uint64

	// raw is the serialized datagram.
	raw []byte
}

// Link models a link between two [*Endpoint] instances.
//
// Time is virtual and only advances through [*Link.Step]. Each datagram
// experiences the configured delay individually and datagrams are
// delivered in the order in which they entered the link.
//
// The zero value is not ready to use; construct using [NewLink].
//
// This type IS NOT goroutine safe.
type Link struct {
	// config is the link configuration.
	config LinkConfig

	// endpoints routes datagrams by destination address.
	endpoints map[netip.AddrPort]*Endpoint

	// left is the left endpoint.
	left *Endpoint

	// now is the current virtual time in milliseconds.
	now uint64

	// queue contains the datagrams travelling through the link.
	queue []inflight

	// right is the right endpoint.
	right *Endpoint
}

// NewLink creates a new [*Link] between the left and right endpoints.
//
// The config may be nil, in which case we model an ideal link.
func NewLink(left, right *Endpoint, config *LinkConfig) *Link {
	lnk := &Link{
		endpoints: map[netip.AddrPort]*Endpoint{
			left.LocalAddr():  left,
			right.LocalAddr(): right,
		},
		left:  left,
		right: right,
	}
	if config != nil {
		lnk.config = *config
	}
	return lnk
}

// Now returns the current virtual time in milliseconds.
func (lnk *Link) Now() uint64 {
	return lnk.now
}

// InFlight returns the number of datagrams travelling through the link.
func (lnk *Link) InFlight() int {
	return len(lnk.queue)
}

// Step moves the datagrams emitted by both endpoints into the link,
// advances time by ms milliseconds, delivers the datagrams that reached
// their destination, and finally ticks both endpoints.
func (lnk *Link) Step(ms uint64) {
	lnk.collect(lnk.left, lnk.config.LeftToRight)
	lnk.collect(lnk.right, lnk.config.RightToLeft)
	lnk.now += ms
	lnk.deliver()
	lnk.left.Tick(ms)
	lnk.right.Tick(ms)
}

// RunUntil steps the link by stepMs milliseconds until cond returns
// true or maxSteps steps elapsed. It returns the final value of cond.
func (lnk *Link) RunUntil(cond func() bool, stepMs uint64, maxSteps int) bool {
	for step := 0; step < maxSteps && !cond(); step++ {
		lnk.Step(stepMs)
	}
	return cond()
}

// collect filters the output of src and enqueues what survives.
func (lnk *Link) collect(src *Endpoint, filter packet.Filter) {
	for _, raw := range src.Output() {
		if filter == nil {
			lnk.enqueue(raw)
			continue
		}
		pkt, err := packet.Parse(raw)
		if err != nil {
			lnk.logDrop(raw, err)
			continue
		}
		target, injected := filter.Filter(pkt)
		if target == packet.ACCEPT {
			lnk.enqueuePacket(pkt)
		}
		for _, pkt := range injected {
			lnk.enqueuePacket(pkt)
		}
	}
}

// enqueuePacket serializes and enqueues a packet.
func (lnk *Link) enqueuePacket(pkt *packet.Packet) {
	raw, err := pkt.Marshal()
	if err != nil {
		lnk.logDrop(nil, err)
		return
	}
	lnk.enqueue(raw)
}

// enqueue appends a datagram to the queue.
func (lnk *Link) enqueue(raw []byte) {
	lnk.queue = append(lnk.queue, inflight{due: lnk.now + lnk.config.DelayMs, raw: raw})
}

// deliver delivers the datagrams whose delay elapsed.
func (lnk *Link) deliver() {
	for len(lnk.queue) > 0 && lnk.queue[0].due <= lnk.now {
		raw := lnk.queue[0].raw
		lnk.queue[0] = inflight{}
		lnk.queue = lnk.queue[1:]
		lnk.route(raw)
	}
}

// route delivers a datagram to the endpoint owning its destination.
func (lnk *Link) route(raw []byte) {
	pkt, err := packet.Parse(raw)
	if err != nil {
		lnk.logDrop(raw, err)
		return
	}
	dst := lnk.endpoints[netip.AddrPortFrom(pkt.DstAddr, pkt.DstPort)]
	if dst == nil {
		return
	}
	if lnk.config.Logger != nil {
		lnk.config.Logger.Debug("linkDeliver", slog.String("packet", pkt.String()), slog.Uint64("t", lnk.now))
	}
	if err := dst.Input(raw); err != nil {
		lnk.logDrop(raw, err)
	}
}

// logDrop logs a datagram we could not handle.
func (lnk *Link) logDrop(raw []byte, err error) {
	if lnk.config.Logger != nil {
		lnk.config.Logger.Info(
			"linkDrop",
			slog.Int("length", len(raw)),
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.Uint64("t", lnk.now),
		)
	}
}
