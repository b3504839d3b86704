// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package reassembler rebuilds an in-order byte stream from substrings that
may arrive out of order, overlapping, or duplicated.

Each substring carries the absolute offset of its first byte within the
stream. As soon as the next expected byte becomes known, the [*Reassembler]
pushes it into its output [*bytestream.Stream]. Bytes beyond the stream's
available capacity are discarded: the sender will present them again once
the application frees up space.

# Pending Store

Bytes that cannot be written yet are kept in an ordered map from offset to
chunk. Stored chunks never overlap: when a new substring arrives, chunks
straddling its boundaries are split at the boundaries and every chunk in
between is replaced by the new substring.
*/
package reassembler

import (
	"slices"

	"github.com/google/btree"
	"github.com/rbmk-project/tcpcore/bytestream"
)

// chunk is a pending byte range.
type chunk struct {
	offset uint64
	data   []byte
}

// end returns the offset one past the last byte of the chunk.
func (c chunk) end() uint64 {
	return c.offset + uint64(len(c.data))
}

// chunkLess orders chunks by offset.
func chunkLess(a, b chunk) bool {
	return a.offset < b.offset
}

// btreeDegree is the degree of the pending-store B-tree.
const btreeDegree = 16

// Reassembler writes reassembled substrings into a [*bytestream.Stream].
//
// The zero value is invalid; construct using [New].
type Reassembler struct {
	// endIndex is the offset one past the last stream byte, if known.
	endIndex uint64

	// hasEnd indicates whether endIndex is valid.
	hasEnd bool

	// output is the stream we write into.
	output *bytestream.Stream

	// pending contains the non-overlapping chunks we cannot write yet.
	pending *btree.BTreeG[chunk]

	// pendingBytes is the sum of the lengths of the pending chunks.
	pendingBytes uint64
}

// New creates a new [*Reassembler] writing into output.
func New(output *bytestream.Stream) *Reassembler {
	return &Reassembler{
		output:  output,
		pending: btree.NewG(btreeDegree, chunkLess),
	}
}

// Reader returns the read capability of the output stream.
func (r *Reassembler) Reader() *bytestream.Reader {
	return r.output.Reader()
}

// Writer returns the write capability of the output stream.
//
// Callers should only use it to inspect the stream: the [*Reassembler]
// must remain the only producer.
func (r *Reassembler) Writer() *bytestream.Writer {
	return r.output.Writer()
}

// Writable returns whether the output is neither closed nor full.
func (r *Reassembler) Writable() bool {
	w := r.output.Writer()
	return !w.IsClosed() && !w.IsFull()
}

// BytesPending returns the number of bytes stored but not yet written.
func (r *Reassembler) BytesPending() uint64 {
	return r.pendingBytes
}

// Insert inserts a substring starting at offset. When isLast is true, the
// substring ends the stream.
//
// The data slice is copied and may be reused after Insert returns.
func (r *Reassembler) Insert(offset uint64, data []byte, isLast bool) {
	defer r.maybeClose()

	w := r.output.Writer()
	if len(data) == 0 {
		if isLast && !r.hasEnd {
			r.endIndex, r.hasEnd = offset, true
		}
		return
	}

	// Discard already-written, too-far-ahead, or unwritable substrings.
	first := w.BytesPushed()
	right := first + w.AvailableCapacity()
	if offset+uint64(len(data)) <= first || offset >= right || !r.Writable() {
		return
	}

	// Clip to the window [first, right).
	if offset < first {
		data = data[first-offset:]
		offset = first
	}
	if offset+uint64(len(data)) > right {
		data = data[:right-offset]
		isLast = false
	}
	incoming := chunk{offset: offset, data: slices.Clone(data)}
	if isLast && !r.hasEnd {
		r.endIndex, r.hasEnd = incoming.end(), true
	}

	r.store(incoming)
	r.drain()
}

// store replaces whatever is pending in [c.offset, c.end()) with c.
func (r *Reassembler) store(c chunk) {
	r.split(c.end())
	r.split(c.offset)
	var covered []chunk
	r.pending.AscendRange(chunk{offset: c.offset}, chunk{offset: c.end()}, func(item chunk) bool {
		covered = append(covered, item)
		return true
	})
	for _, item := range covered {
		r.pending.Delete(item)
		r.pendingBytes -= uint64(len(item.data))
	}
	r.pending.ReplaceOrInsert(c)
	r.pendingBytes += uint64(len(c.data))
}

// split ensures no pending chunk straddles pos by truncating the
// straddling chunk and storing its remainder at pos.
func (r *Reassembler) split(pos uint64) {
	var (
		prev  chunk
		found bool
	)
	r.pending.DescendLessOrEqual(chunk{offset: pos}, func(item chunk) bool {
		prev, found = item, true
		return false
	})
	if !found || prev.offset == pos || prev.end() <= pos {
		return
	}
	cut := pos - prev.offset
	r.pending.ReplaceOrInsert(chunk{offset: prev.offset, data: prev.data[:cut:cut]})
	r.pending.ReplaceOrInsert(chunk{offset: pos, data: prev.data[cut:]})
}

// drain pushes every pending chunk that starts at the write position.
func (r *Reassembler) drain() {
	w := r.output.Writer()
	for {
		head, ok := r.pending.Min()
		if !ok || head.offset != w.BytesPushed() {
			return
		}
		r.pending.DeleteMin()
		r.pendingBytes -= uint64(len(head.data))
		w.Push(head.data)
	}
}

// maybeClose closes the output once every byte up to the end is written.
func (r *Reassembler) maybeClose() {
	w := r.output.Writer()
	if r.hasEnd && r.endIndex == w.BytesPushed() {
		w.Close()
	}
}
