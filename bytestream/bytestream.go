// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package bytestream implements a capacity-bounded, closable byte stream.

A [*Stream] is a FIFO of bytes split into two capabilities: the [*Writer],
which may push bytes and close the stream, and the [*Reader], which may
peek and pop bytes. Both capabilities share the stream's error latch.

Pushing more bytes than the available capacity silently truncates the
input. This is the backpressure mechanism: callers poll the available
capacity and the counters rather than receiving errors.
*/
package bytestream

import (
	"errors"
	"io"

	"github.com/rbmk-project/common/runtimex"
)

// ErrClosed is returned by [*Writer.Write] when the stream is closed.
var ErrClosed = errors.New("bytestream: write to closed stream")

// Stream is a bounded byte stream backed by a ring buffer.
//
// The zero value is invalid; construct using [New].
type Stream struct {
	// buf is the ring buffer, len(buf) == capacity.
	buf []byte

	// closed indicates that the writer signaled the end of the stream.
	closed bool

	// failed is the error latch shared by both capabilities.
	failed bool

	// popped is the cumulative number of popped bytes.
	popped uint64

	// pushed is the cumulative number of pushed bytes.
	pushed uint64
}

// New creates a new [*Stream] with the given capacity.
//
// This function panics if capacity is zero.
func New(capacity uint64) *Stream {
	runtimex.Assert(capacity > 0, "bytestream: capacity must be positive")
	return &Stream{buf: make([]byte, capacity)}
}

// Capacity returns the stream capacity.
func (s *Stream) Capacity() uint64 {
	return uint64(len(s.buf))
}

// SetError latches the error flag. The flag is never cleared.
func (s *Stream) SetError() {
	s.failed = true
}

// HasError returns whether the stream suffered an error.
func (s *Stream) HasError() bool {
	return s.failed
}

// Writer returns the write capability.
func (s *Stream) Writer() *Writer {
	return &Writer{s}
}

// Reader returns the read capability.
func (s *Stream) Reader() *Reader {
	return &Reader{s}
}

// buffered returns the number of bytes pushed and not yet popped.
func (s *Stream) buffered() uint64 {
	return s.pushed - s.popped
}

// available returns the number of bytes that can be pushed right now.
func (s *Stream) available() uint64 {
	return s.Capacity() - s.buffered()
}

// Writer is the write capability of a [*Stream].
type Writer struct {
	s *Stream
}

// Push appends data to the stream, truncating to the available capacity.
//
// Push is a no-op when the stream is closed, full, or failed, or when
// data is empty.
func (w *Writer) Push(data []byte) {
	s := w.s
	if s.closed || s.failed || s.available() == 0 || len(data) == 0 {
		return
	}
	if avail := s.available(); uint64(len(data)) > avail {
		data = data[:avail]
	}
	idx := s.pushed % s.Capacity()
	n := copy(s.buf[idx:], data)
	copy(s.buf, data[n:])
	s.pushed += uint64(len(data))
}

// Write implements [io.Writer] on top of [*Writer.Push].
//
// It returns [ErrClosed] when the stream is closed and [io.ErrShortWrite]
// when the data did not fit into the available capacity.
func (w *Writer) Write(data []byte) (int, error) {
	if w.s.closed {
		return 0, ErrClosed
	}
	before := w.s.pushed
	w.Push(data)
	count := int(w.s.pushed - before)
	if count < len(data) {
		return count, io.ErrShortWrite
	}
	return count, nil
}

// Close signals that no more bytes will be pushed. It is idempotent.
func (w *Writer) Close() {
	w.s.closed = true
}

// IsClosed returns whether the stream has been closed.
func (w *Writer) IsClosed() bool {
	return w.s.closed
}

// IsFull returns whether the available capacity is zero.
func (w *Writer) IsFull() bool {
	return w.s.available() == 0
}

// AvailableCapacity returns how many bytes can be pushed right now.
func (w *Writer) AvailableCapacity() uint64 {
	return w.s.available()
}

// BytesPushed returns the cumulative number of pushed bytes.
func (w *Writer) BytesPushed() uint64 {
	return w.s.pushed
}

// SetError latches the shared error flag.
func (w *Writer) SetError() {
	w.s.SetError()
}

// HasError returns the shared error flag.
func (w *Writer) HasError() bool {
	return w.s.failed
}

// Reader is the read capability of a [*Stream].
type Reader struct {
	s *Stream
}

// Peek returns the next contiguous run of buffered bytes without
// consuming them. The run may be shorter than [*Reader.BytesBuffered]
// when the buffered bytes wrap around the end of the ring.
//
// The returned slice aliases the internal buffer and is only valid
// until the next mutating operation on the stream.
func (r *Reader) Peek() []byte {
	s := r.s
	if s.buffered() == 0 {
		return nil
	}
	start := s.popped % s.Capacity()
	end := start + s.buffered()
	if end > s.Capacity() {
		end = s.Capacity()
	}
	return s.buf[start:end]
}

// Pop removes up to n bytes from the front of the stream. It is a
// no-op once the stream has failed.
func (r *Reader) Pop(n uint64) {
	if r.s.failed {
		return
	}
	r.s.popped += min(n, r.s.buffered())
}

// IsFinished returns whether the stream is closed and fully drained.
func (r *Reader) IsFinished() bool {
	return r.s.closed && r.s.buffered() == 0
}

// BytesBuffered returns the number of bytes pushed and not yet popped.
func (r *Reader) BytesBuffered() uint64 {
	return r.s.buffered()
}

// BytesPopped returns the cumulative number of popped bytes.
func (r *Reader) BytesPopped() uint64 {
	return r.s.popped
}

// SetError latches the shared error flag.
func (r *Reader) SetError() {
	r.s.SetError()
}

// HasError returns the shared error flag.
func (r *Reader) HasError() bool {
	return r.s.failed
}

// Read peeks and pops up to n bytes from the reader into a new slice.
//
// Like [*Reader.Peek], it returns nil when there is nothing to read.
func Read(r *Reader, n uint64) []byte {
	if n == 0 || r.BytesBuffered() == 0 || r.HasError() {
		return nil
	}
	out := make([]byte, 0, min(n, r.BytesBuffered()))
	for uint64(len(out)) < n {
		chunk := r.Peek()
		if len(chunk) == 0 || r.HasError() {
			break
		}
		if want := n - uint64(len(out)); uint64(len(chunk)) > want {
			chunk = chunk[:want]
		}
		out = append(out, chunk...)
		r.Pop(uint64(len(chunk)))
	}
	return out
}
