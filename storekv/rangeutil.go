// Copyright 2026 The Flowstate Authors
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

package storekv

// PrefixEnd computes the exclusive upper bound of the range of all keys
// sharing prefix as their prefix: bump the last byte that isn't 0xFF,
// carrying, and truncate there. If every byte is 0xFF (or prefix is
// empty), there is no finite upper bound and PrefixEnd returns nil,
// meaning "unbounded" to a KeyRange.Upper.
func PrefixEnd(prefix []byte) []byte {
	out := append([]byte(nil), prefix...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] == 0xFF {
			continue
		}
		out[i]++
		return out[:i+1]
	}
	return nil
}

// JustAfter returns the shortest byte string strictly greater than b,
// under lexicographic compare, used to convert an Excluded lower bound
// into an Included one (spec §4.4 "Excluded lower -> 'just after
// serialized'"). Appending a single zero byte always works: any string
// with b as a strict prefix compares greater than b, and b+0x00 is the
// least such string.
func JustAfter(b []byte) []byte {
	out := make([]byte, len(b)+1)
	copy(out, b)
	return out
}
