// SPDX-License-Identifier: GPL-3.0-or-later

package bytestream_test

import (
	"io"
	"testing"

	"github.com/rbmk-project/tcpcore/bytestream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("zero capacity panics", func(t *testing.T) {
		assert.Panics(t, func() { bytestream.New(0) })
	})

	t.Run("fresh stream", func(t *testing.T) {
		s := bytestream.New(15)
		assert.Equal(t, uint64(15), s.Capacity())
		assert.Equal(t, uint64(15), s.Writer().AvailableCapacity())
		assert.False(t, s.Writer().IsClosed())
		assert.False(t, s.Writer().IsFull())
		assert.False(t, s.Reader().IsFinished())
		assert.False(t, s.HasError())
		assert.Nil(t, s.Reader().Peek())
	})
}

func TestPushPop(t *testing.T) {
	t.Run("truncates to capacity", func(t *testing.T) {
		s := bytestream.New(2)
		w, r := s.Writer(), s.Reader()

		w.Push([]byte("cat"))
		assert.Equal(t, []byte("ca"), r.Peek())
		assert.Equal(t, uint64(0), w.AvailableCapacity())
		assert.True(t, w.IsFull())
		assert.Equal(t, uint64(2), w.BytesPushed())

		r.Pop(1)
		assert.Equal(t, []byte("a"), r.Peek())
		assert.Equal(t, uint64(1), w.AvailableCapacity())
		assert.Equal(t, uint64(1), r.BytesPopped())
		assert.Equal(t, uint64(1), r.BytesBuffered())
	})

	t.Run("pop more than buffered", func(t *testing.T) {
		s := bytestream.New(8)
		s.Writer().Push([]byte("abc"))
		s.Reader().Pop(100)
		assert.Equal(t, uint64(3), s.Reader().BytesPopped())
		assert.Equal(t, uint64(0), s.Reader().BytesBuffered())
	})

	t.Run("push after close is a no-op", func(t *testing.T) {
		s := bytestream.New(8)
		w := s.Writer()
		w.Push([]byte("ab"))
		w.Close()
		w.Close()
		w.Push([]byte("cd"))
		assert.True(t, w.IsClosed())
		assert.Equal(t, uint64(2), w.BytesPushed())
		assert.False(t, s.Reader().IsFinished())
		s.Reader().Pop(2)
		assert.True(t, s.Reader().IsFinished())
	})

	t.Run("empty push is a no-op", func(t *testing.T) {
		s := bytestream.New(8)
		s.Writer().Push(nil)
		s.Writer().Push([]byte{})
		assert.Equal(t, uint64(0), s.Writer().BytesPushed())
	})

	t.Run("peek returns the contiguous run across wraparound", func(t *testing.T) {
		s := bytestream.New(4)
		w, r := s.Writer(), s.Reader()
		w.Push([]byte("abc"))
		r.Pop(3)
		w.Push([]byte("defg"))
		assert.Equal(t, []byte("d"), r.Peek())
		assert.Equal(t, uint64(4), r.BytesBuffered())
		assert.Equal(t, []byte("defg"), bytestream.Read(r, 10))
		assert.Equal(t, uint64(7), r.BytesPopped())
	})

	t.Run("read returns nil when there is nothing to read", func(t *testing.T) {
		s := bytestream.New(4)
		w, r := s.Writer(), s.Reader()
		assert.Nil(t, r.Peek())
		assert.Nil(t, bytestream.Read(r, 3))
		w.Push([]byte("ab"))
		assert.Nil(t, bytestream.Read(r, 0))
		assert.Equal(t, []byte("ab"), bytestream.Read(r, 3))
		assert.Nil(t, bytestream.Read(r, 3))
	})

	t.Run("capacity invariant under mixed operations", func(t *testing.T) {
		const capacity = 7
		s := bytestream.New(capacity)
		w, r := s.Writer(), s.Reader()
		var expect []byte
		for i := 0; i < 200; i++ {
			data := make([]byte, i%11)
			for j := range data {
				data[j] = byte(i + j)
			}
			accepted := min(uint64(len(data)), w.AvailableCapacity())
			expect = append(expect, data[:accepted]...)
			w.Push(data)
			require.LessOrEqual(t, w.BytesPushed()-r.BytesPopped(), uint64(capacity))
			if i%3 == 0 {
				got := bytestream.Read(r, uint64(i%5))
				require.Equal(t, string(expect[:len(got)]), string(got))
				expect = expect[len(got):]
			}
			require.LessOrEqual(t, w.BytesPushed()-r.BytesPopped(), uint64(capacity))
			require.Equal(t, capacity-(w.BytesPushed()-r.BytesPopped()), w.AvailableCapacity())
		}
	})
}

func TestWrite(t *testing.T) {
	t.Run("full write", func(t *testing.T) {
		s := bytestream.New(8)
		count, err := s.Writer().Write([]byte("hello"))
		assert.NoError(t, err)
		assert.Equal(t, 5, count)
	})

	t.Run("short write", func(t *testing.T) {
		s := bytestream.New(3)
		count, err := s.Writer().Write([]byte("hello"))
		assert.ErrorIs(t, err, io.ErrShortWrite)
		assert.Equal(t, 3, count)
	})

	t.Run("closed stream", func(t *testing.T) {
		s := bytestream.New(3)
		s.Writer().Close()
		count, err := s.Writer().Write([]byte("hello"))
		assert.ErrorIs(t, err, bytestream.ErrClosed)
		assert.Equal(t, 0, count)
	})
}

func TestError(t *testing.T) {
	s := bytestream.New(8)
	w, r := s.Writer(), s.Reader()
	w.Push([]byte("abc"))

	r.SetError()
	assert.True(t, w.HasError())
	assert.True(t, r.HasError())
	assert.True(t, s.HasError())

	// mutating operations become no-ops
	w.Push([]byte("def"))
	r.Pop(1)
	assert.Equal(t, uint64(3), w.BytesPushed())
	assert.Equal(t, uint64(0), r.BytesPopped())
	assert.Empty(t, bytestream.Read(r, 3))
}
