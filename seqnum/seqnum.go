// SPDX-License-Identifier: GPL-3.0-or-later

// Package seqnum maps unbounded absolute sequence numbers to and from
// 32-bit wrapping sequence numbers.
//
// All arithmetic on [Wrap32] is performed in uint32, so overflow wraps
// modulo 2^32 by construction.
package seqnum

import "strconv"

// Wrap32 is a 32-bit sequence number relative to an arbitrary zero point.
type Wrap32 uint32

// Wrap returns the [Wrap32] representing the absolute sequence number n
// given the zero point.
func Wrap(n uint64, zero Wrap32) Wrap32 {
	return zero + Wrap32(uint32(n))
}

// Unwrap returns the absolute sequence number that wraps to w given the
// zero point and that is closest to checkpoint.
//
// Candidates below zero are never returned. When the two nearest
// candidates are equally distant (2^31), the larger one wins.
func (w Wrap32) Unwrap(zero Wrap32, checkpoint uint64) uint64 {
	anchor := Wrap(checkpoint, zero)
	forward := uint64(uint32(w - anchor))
	backward := uint64(uint32(anchor - w))
	if backward < forward && checkpoint >= backward {
		return checkpoint - backward
	}
	return checkpoint + forward
}

// Add returns w advanced by n, wrapping around.
func (w Wrap32) Add(n uint32) Wrap32 {
	return w + Wrap32(n)
}

// String returns the decimal representation of w.
func (w Wrap32) String() string {
	return strconv.FormatUint(uint64(w), 10)
}
