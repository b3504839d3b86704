// SPDX-License-Identifier: GPL-3.0-or-later

package seqnum_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/rbmk-project/tcpcore/seqnum"
	"github.com/stretchr/testify/assert"
)

func TestWrap(t *testing.T) {
	type testcase struct {
		name   string
		n      uint64
		zero   seqnum.Wrap32
		expect seqnum.Wrap32
	}

	var tests = []testcase{
		{"zero", 0, 0, 0},
		{"two to the 32", 1 << 32, 0, 0},
		{"two to the 32 plus 17", 3<<32 + 17, 15, 32},
		{"wraps around", 7<<32 - 2, 15, 13},
		{"zero point only", 0, math.MaxUint32, math.MaxUint32},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, seqnum.Wrap(tc.n, tc.zero))
		})
	}
}

func TestUnwrap(t *testing.T) {
	type testcase struct {
		name       string
		w          seqnum.Wrap32
		zero       seqnum.Wrap32
		checkpoint uint64
		expect     uint64
	}

	const big = uint64(1) << 32
	var tests = []testcase{
		{"first after zero", 1, 0, 0, 1},
		{"first after first wrap", 1, 0, math.MaxUint32, big + 1},
		{"last before third wrap", math.MaxUint32 - 1, 0, 3 * big, 3*big - 2},
		{"tenth before third wrap", math.MaxUint32 - 10, 0, 3 * big, 3*big - 11},
		{"nonzero zero point", math.MaxUint32, 10, 3 * big, 3*big - 11},
		{"big nonzero zero point", math.MaxUint32, math.MaxUint32, 0, 0},
		{"equal to zero point", 16, 16, 0, 0},
		{"behind zero point", 15, 16, 0, math.MaxUint32},
		{"never negative", 0, math.MaxInt32, 0, math.MaxInt32 + 2},
		{"tie picks forward", 1 << 31, 0, 0, 1 << 31},
		{"tie picks forward with large checkpoint", 0, 0, 3 << 31, 2 * big},
		{"backward within range", 0, 0, big + 100, big},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, tc.w.Unwrap(tc.zero, tc.checkpoint))
		})
	}
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 10000; i++ {
		zero := seqnum.Wrap32(rng.Uint32())
		checkpoint := rng.Uint64N(1 << 62)
		delta := rng.Uint64N(1 << 31)
		var n uint64
		if rng.IntN(2) == 0 || checkpoint < delta {
			n = checkpoint + delta
		} else {
			n = checkpoint - delta
		}
		if got := seqnum.Wrap(n, zero).Unwrap(zero, checkpoint); got != n {
			t.Fatalf("zero=%d checkpoint=%d: expected %d, got %d", zero, checkpoint, n, got)
		}
	}
}

func TestAdd(t *testing.T) {
	assert.Equal(t, seqnum.Wrap32(4), seqnum.Wrap32(math.MaxUint32-1).Add(6))
	assert.Equal(t, "4294967295", seqnum.Wrap32(math.MaxUint32).String())
}
