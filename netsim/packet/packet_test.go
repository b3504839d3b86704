// SPDX-License-Identifier: GPL-3.0-or-later

package packet_test

import (
	"net/netip"
	"testing"

	"github.com/pkg/errors"
	"github.com/rbmk-project/tcpcore/netsim/packet"
	"github.com/rbmk-project/tcpcore/seqnum"
	"github.com/rbmk-project/tcpcore/tcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPacket returns a packet with addresses and ports filled.
func newPacket(sm tcp.SenderMessage, rm tcp.ReceiverMessage) *packet.Packet {
	pkt := packet.New(sm, rm)
	pkt.SrcAddr = netip.MustParseAddr("10.0.0.1")
	pkt.DstAddr = netip.MustParseAddr("10.0.0.2")
	pkt.SrcPort = 54321
	pkt.DstPort = 443
	return pkt
}

func TestNew(t *testing.T) {
	t.Run("SYN without ack", func(t *testing.T) {
		sm := tcp.SenderMessage{Seqno: 7, SYN: true}
		rm := tcp.ReceiverMessage{WindowSize: 1000}
		pkt := packet.New(sm, rm)
		assert.Equal(t, packet.TCPFlagSYN, pkt.Flags)
		assert.Equal(t, sm, pkt.SenderMessage())
		assert.Equal(t, rm, pkt.ReceiverMessage())
	})

	t.Run("data with ack and FIN", func(t *testing.T) {
		sm := tcp.SenderMessage{Seqno: 8, Payload: []byte("abc"), FIN: true}
		rm := tcp.ReceiverMessage{Ackno: 100, HasAckno: true, WindowSize: 5}
		pkt := packet.New(sm, rm)
		assert.Equal(t, packet.TCPFlagFIN|packet.TCPFlagPSH|packet.TCPFlagACK, pkt.Flags)
		assert.Equal(t, sm, pkt.SenderMessage())
		assert.Equal(t, rm, pkt.ReceiverMessage())
	})

	t.Run("RST from either side", func(t *testing.T) {
		pkt := packet.New(tcp.SenderMessage{RST: true}, tcp.ReceiverMessage{})
		assert.True(t, pkt.ReceiverMessage().RST)
		pkt = packet.New(tcp.SenderMessage{}, tcp.ReceiverMessage{RST: true})
		assert.True(t, pkt.SenderMessage().RST)
	})
}

func TestMarshalParse(t *testing.T) {
	t.Run("valid datagrams", func(t *testing.T) {
		for _, payload := range [][]byte{nil, []byte("a"), []byte("hello, world")} {
			orig := newPacket(
				tcp.SenderMessage{Seqno: seqnum.Wrap32(0xfffffff0), Payload: payload},
				tcp.ReceiverMessage{Ackno: 17, HasAckno: true, WindowSize: 65535},
			)
			raw, err := orig.Marshal()
			require.NoError(t, err)
			assert.Len(t, raw, 40+len(payload))

			parsed, err := packet.Parse(raw)
			require.NoError(t, err)
			assert.Equal(t, orig, parsed)
		}
	})

	t.Run("corrupted payload", func(t *testing.T) {
		raw, err := newPacket(tcp.SenderMessage{Payload: []byte("abc")}, tcp.ReceiverMessage{}).Marshal()
		require.NoError(t, err)
		raw[len(raw)-1] ^= 0x01
		_, err = packet.Parse(raw)
		assert.Equal(t, packet.ErrChecksum, errors.Cause(err))
	})

	t.Run("corrupted IPv4 header", func(t *testing.T) {
		raw, err := newPacket(tcp.SenderMessage{}, tcp.ReceiverMessage{}).Marshal()
		require.NoError(t, err)
		raw[8] ^= 0x10 // TTL
		_, err = packet.Parse(raw)
		assert.Equal(t, packet.ErrChecksum, errors.Cause(err))
	})

	t.Run("truncated datagram", func(t *testing.T) {
		raw, err := newPacket(tcp.SenderMessage{Payload: []byte("abc")}, tcp.ReceiverMessage{}).Marshal()
		require.NoError(t, err)
		_, err = packet.Parse(raw[:len(raw)-1])
		assert.Equal(t, packet.ErrTruncated, errors.Cause(err))
	})

	t.Run("short buffer", func(t *testing.T) {
		_, err := packet.Parse([]byte{0x45, 0x00})
		assert.Error(t, err)
	})

	t.Run("IPv6 addresses", func(t *testing.T) {
		pkt := newPacket(tcp.SenderMessage{}, tcp.ReceiverMessage{})
		pkt.DstAddr = netip.MustParseAddr("::1")
		_, err := pkt.Marshal()
		assert.Equal(t, packet.ErrProtocol, errors.Cause(err))
	})
}

func TestString(t *testing.T) {
	pkt := newPacket(
		tcp.SenderMessage{Seqno: 1, SYN: true},
		tcp.ReceiverMessage{Ackno: 2, HasAckno: true, WindowSize: 3},
	)
	assert.Equal(t, "10.0.0.1:54321 -> 10.0.0.2:443 tcp flags=.S..A seq=1 ack=2 win=3 length=0", pkt.String())
}

func TestReplyAndClone(t *testing.T) {
	pkt := newPacket(tcp.SenderMessage{Payload: []byte("abc")}, tcp.ReceiverMessage{})
	reply := pkt.Reply()
	assert.Equal(t, pkt.DstAddr, reply.SrcAddr)
	assert.Equal(t, pkt.SrcPort, reply.DstPort)

	clone := pkt.Clone()
	clone.Payload[0] = 'x'
	assert.Equal(t, []byte("abc"), pkt.Payload)
}

func TestTarget(t *testing.T) {
	assert.Equal(t, "ACCEPT", packet.ACCEPT.String())
	assert.Equal(t, "DROP", packet.DROP.String())
	assert.Equal(t, "UNKNOWN", packet.Target(7).String())
}
