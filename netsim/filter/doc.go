// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package filter implements channel faults and censorship techniques for testing.

All filters implement the [packet.Filter] interface and can be composed
using [Chain] to model lossy links or complex censorship scenarios. The
filters are deterministic: given the same packet sequence they always
take the same decisions, which keeps simulations reproducible.

# Packet Loss

The [*Dropper] type drops every Nth packet, optionally only considering
packets whose payload contains a given pattern.

# Duplication and Reordering

The [*Duplicator] type injects a copy of every Nth packet. The [*Reorderer]
type holds every Nth packet back and releases it right after the next
packet, swapping their order.

# TCP Reset Injection

The [*TCPResetter] type implements RST-based connection disruption. It can
match on specific payload patterns while allowing empty segments to pass
through, modeling how real censors selectively terminate connections based
on application layer content. The [*DNSResetter] type does the same when
a segment carries a DNS-over-TCP query for a blocked domain.
*/
package filter
