// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package netsim provides a deterministic network simulation framework
that developers can use to test the TCP core end to end.

# Usage and Features

The [NewEndpoint] function creates one side of a TCP connection. An
[*Endpoint] wraps a [*tcp.Sender] and a [*tcp.Receiver] and exposes
Write, Read, and Close on top of them. Every segment it emits is
serialized as a TCP/IPv4 datagram (see the [netsim/packet] package)
and queued until the caller collects it using [*Endpoint.Output].
Datagrams coming from the network are passed to [*Endpoint.Input].

The [*Link] type connects two endpoints. It models a propagation delay
and applies an optional [packet.Filter] to each direction, which allows
simulating packet loss, duplication, reordering, and censorship (see
the [netsim/filter] package). You don't need to use a [*Link] as long
as you correctly forward datagrams.

Time is virtual: nothing runs in the background and the simulation only
advances when calling [*Link.Step] or [*Endpoint.Tick]. Therefore, the
same scenario always produces the same sequence of events.

The errors returned by [*Endpoint] are the same [syscall.Errno] the
kernel would generate in similar cases (we use the [x/sys] repository
to pull system-dependent error values).

This package contains examples showing how to use it.
*/
package netsim
