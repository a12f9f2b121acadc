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

package statetable

import "github.com/flowstate/statetable/storekv"

// BoundKind classifies one end of a range scan.
type BoundKind uint8

const (
	Unbounded BoundKind = iota
	Included
	Excluded
)

// Bound is one end of a (Bound<Row>, Bound<Row>) range, in the caller's
// terms — a pk prefix row, not yet serialized.
type Bound struct {
	Kind BoundKind
	Row  Row
}

// UnboundedBound is the zero-value convenience constructor.
func UnboundedBound() Bound { return Bound{Kind: Unbounded} }

// IncludedBound builds an inclusive bound from a pk prefix.
func IncludedBound(row Row) Bound { return Bound{Kind: Included, Row: row} }

// ExcludedBound builds an exclusive bound from a pk prefix.
func ExcludedBound(row Row) Bound { return Bound{Kind: Excluded, Row: row} }

// toByteRange converts a (lower, upper) pair of pk-prefix Bounds into a
// storekv.KeyRange for a single named vnode, per spec §4.4 "Range form":
// Included -> serialized; Excluded upper -> serialized; Excluded lower ->
// "just after serialized"; Included upper bound on a prefix -> end-of-
// prefix; Unbounded -> unbounded. The result is always prefixed with
// vnode.
func (d *TableDescriptor) toByteRange(lower, upper Bound, vnode uint16) (storekv.KeyRange, error) {
	vnodePrefix := make([]byte, d.VnodeBytes)
	putVnode(vnodePrefix, vnode)

	var lo, hi []byte
	switch lower.Kind {
	case Unbounded:
		lo = append([]byte(nil), vnodePrefix...)
	case Included:
		enc, err := EncodePKPrefix(d, lower.Row)
		if err != nil {
			return storekv.KeyRange{}, err
		}
		lo = concat(vnodePrefix, enc)
	case Excluded:
		enc, err := EncodePKPrefix(d, lower.Row)
		if err != nil {
			return storekv.KeyRange{}, err
		}
		lo = storekv.JustAfter(concat(vnodePrefix, enc))
	}

	switch upper.Kind {
	case Unbounded:
		hi = storekv.PrefixEnd(vnodePrefix)
	case Excluded:
		enc, err := EncodePKPrefix(d, upper.Row)
		if err != nil {
			return storekv.KeyRange{}, err
		}
		hi = concat(vnodePrefix, enc)
	case Included:
		// An included upper bound names a pk *prefix*: every key sharing
		// that prefix is in range, so the true exclusive upper edge is
		// the end-of-prefix bump, not the encoded bytes themselves.
		enc, err := EncodePKPrefix(d, upper.Row)
		if err != nil {
			return storekv.KeyRange{}, err
		}
		hi = storekv.PrefixEnd(concat(vnodePrefix, enc))
	}
	return storekv.KeyRange{Lower: lo, Upper: hi}, nil
}

// prefixRange builds the [vnode||prefix, vnode||prefix+) half-open range
// used by the prefix form of Iter (spec §4.4).
func (d *TableDescriptor) prefixRange(vnode uint16, prefixBytes []byte) storekv.KeyRange {
	vnodePrefix := make([]byte, d.VnodeBytes)
	putVnode(vnodePrefix, vnode)
	lo := concat(vnodePrefix, prefixBytes)
	hi := storekv.PrefixEnd(lo)
	return storekv.KeyRange{Lower: lo, Upper: hi}
}

func concat(a, b []byte) []byte {
	out := make([]byte, len(a)+len(b))
	copy(out, a)
	copy(out[len(a):], b)
	return out
}
