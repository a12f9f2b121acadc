// Copyright 2024 The Erigon Authors
// (original work)
// Copyright 2026 The Flowstate Authors
// (modifications)
// This file is part of Flowstate.
//
// Flowstate is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Flowstate is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Flowstate. If not, see <http://www.gnu.org/licenses/>.

// Package xmath holds the small integer helpers the state table needs for
// vnode-width and bitmap-size arithmetic.
package xmath

import "math/bits"

// Integer limit values used when validating vnode identifiers read directly
// from a row (spec: vnode_column_in_pk must be a small-integer in [0, V)).
const (
	MaxUint16 = 1<<16 - 1
	MaxUint32 = 1<<32 - 1
)

// CeilDiv returns ceil(x/y), or 0 if y is 0.
func CeilDiv(x, y int) int {
	if y == 0 {
		return 0
	}
	return (x + y - 1) / y
}

// SafeAdd returns x+y and whether the addition overflowed.
func SafeAdd(x, y uint64) (uint64, bool) {
	sum, carryOut := bits.Add64(x, y, 0)
	return sum, carryOut != 0
}

// BytesForBits returns the minimum number of bytes needed to hold n distinct
// values, i.e. the vnode width V_BYTES for a vnode count V = n.
func BytesForBits(n uint32) int {
	if n <= 1 {
		return 1
	}
	bitLen := bits.Len32(n - 1)
	return CeilDiv(bitLen, 8)
}

// IsPowerOfTwo reports whether n is a power of two (n > 0).
func IsPowerOfTwo(n uint32) bool {
	return n > 0 && n&(n-1) == 0
}
