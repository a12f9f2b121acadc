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

// This file is the Distribution Mapper (spec §4.2): computing the vnode a
// row belongs to, and the vnode bitmap an instance owns.
package statetable

import (
	"bytes"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bits-and-blooms/bitset"
	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"github.com/flowstate/statetable/internal/xmath"
)

// nullDistKeyMarker is the documented, cluster-wide-stable constant fed
// into the hash in place of a distribution-key column that is null (spec §4.2
// "the hash treats nulls as a distinct bucket (documented constant)").
var nullDistKeyMarker = []byte{0xFE, 0x4e, 0x55, 0x4c, 0x4c} // "NULL" tagged

// VnodeBitmap is the set of vnodes a table instance owns. Backed by a
// Roaring bitmap: the owned set is typically a small number of contiguous
// or near-contiguous ranges out of V, which roaring compresses well and
// lets Contains/Clone stay cheap even as V grows into the tens of
// thousands for large clusters.
type VnodeBitmap struct {
	bm   *roaring.Bitmap
	size uint16
}

// NewVnodeBitmap returns an empty bitmap over [0, size).
func NewVnodeBitmap(size uint16) *VnodeBitmap {
	return &VnodeBitmap{bm: roaring.New(), size: size}
}

// FullVnodeBitmap returns a bitmap owning every vnode in [0, size) —
// the default FromDescriptor uses for a table with a distribution key.
func FullVnodeBitmap(size uint16) *VnodeBitmap {
	b := NewVnodeBitmap(size)
	for v := uint32(0); v < uint32(size); v++ {
		b.bm.Add(v)
	}
	return b
}

// SingletonVnodeBitmap returns a bitmap owning only vnode 0, the only
// legal bitmap for a table with no distribution key (spec §4.4 "the new
// bitmap must equal the old" / singleton invariance).
func SingletonVnodeBitmap(size uint16) *VnodeBitmap {
	b := NewVnodeBitmap(size)
	b.bm.Add(0)
	return b
}

func (b *VnodeBitmap) Size() uint16 { return b.size }

func (b *VnodeBitmap) Set(v uint16)    { b.bm.Add(uint32(v)) }
func (b *VnodeBitmap) Unset(v uint16)  { b.bm.Remove(uint32(v)) }
func (b *VnodeBitmap) Contains(v uint16) bool { return b.bm.Contains(uint32(v)) }

// Each calls fn for every owned vnode in ascending order.
func (b *VnodeBitmap) Each(fn func(v uint16)) {
	it := b.bm.Iterator()
	for it.HasNext() {
		fn(uint16(it.Next()))
	}
}

func (b *VnodeBitmap) Clone() *VnodeBitmap {
	return &VnodeBitmap{bm: b.bm.Clone(), size: b.size}
}

func (b *VnodeBitmap) Equals(other *VnodeBitmap) bool {
	if other == nil || b.size != other.size {
		return false
	}
	return b.bm.Equals(other.bm)
}

func (b *VnodeBitmap) IsEmpty() bool { return b.bm.IsEmpty() }

// VnodeOf computes the vnode a full row hashes to (spec §4.2). row is
// indexed by global column position, matching desc.Columns. Exported so
// callers that need to reason about distribution ahead of a write (e.g.
// the demo CLI probing for a vnode outside an owned bitmap) don't have to
// duplicate the hash.
func VnodeOf(desc *TableDescriptor, row Row) (uint16, error) {
	return vnodeOf(desc, row)
}

// vnodeOf computes the vnode a full row hashes to (spec §4.2). row is
// indexed by global column position, matching desc.Columns.
func vnodeOf(desc *TableDescriptor, row Row) (uint16, error) {
	if desc.VnodeColumnInPK != NoColumn {
		col := desc.PKIndices[desc.VnodeColumnInPK]
		v, err := asSmallUint(row[col])
		if err != nil {
			return 0, errors.Wrap(err, "vnode_column_in_pk")
		}
		if v >= uint32(desc.VnodeCount) {
			return 0, errors.Errorf("vnode_column_in_pk value %d out of range [0,%d)", v, desc.VnodeCount)
		}
		return uint16(v), nil
	}
	if len(desc.DistKeyIndices) == 0 {
		return 0, nil
	}
	h := xxhash.New()
	for _, idx := range desc.DistKeyIndices {
		d := row[idx]
		if d == nil {
			_, _ = h.Write(nullDistKeyMarker)
			continue
		}
		b, err := distKeyBytes(desc.Columns[idx].Type, d)
		if err != nil {
			return 0, err
		}
		_, _ = h.Write(b)
	}
	return uint16(h.Sum64() % uint64(desc.VnodeCount)), nil
}

// computeChunkVnodes is the vectorized form used by WriteChunk.
func computeChunkVnodes(desc *TableDescriptor, rows []Row) ([]uint16, error) {
	out := make([]uint16, len(rows))
	for i, r := range rows {
		v, err := vnodeOf(desc, r)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// computeVisibility marks which rows in a chunk hash to an owned vnode.
// Uses a flat bitset rather than the persisted Roaring bitmap: this one is
// scratch, sized exactly to the chunk, and discarded once WriteChunk
// returns, so the simpler dense representation is cheaper than building a
// transient Roaring bitmap.
func computeVisibility(owned *VnodeBitmap, vnodes []uint16) *bitset.BitSet {
	vis := bitset.New(uint(len(vnodes)))
	for i, v := range vnodes {
		if owned.Contains(v) {
			vis.Set(uint(i))
		}
	}
	return vis
}

func asSmallUint(d Datum) (uint32, error) {
	switch v := d.(type) {
	case int16:
		if v < 0 {
			return 0, errors.New("vnode column value is negative")
		}
		return uint32(v), nil
	case int32:
		if v < 0 {
			return 0, errors.New("vnode column value is negative")
		}
		return uint32(v), nil
	case int64:
		if v < 0 || v > xmath.MaxUint32 {
			return 0, errors.New("vnode column value out of range")
		}
		return uint32(v), nil
	default:
		return 0, errors.Errorf("vnode column value %#v is not a small integer", d)
	}
}

func distKeyBytes(t ColumnType, d Datum) ([]byte, error) {
	var buf []byte
	switch t {
	case TypeInt16, TypeInt32, TypeInt64, TypeBool:
		// Fixed-width scalars: memcomparable ascending encoding makes a
		// perfectly good, allocation-cheap hash input (order-preservation
		// isn't needed for hashing, just determinism).
		var b bytes.Buffer
		if err := encodePKPayload(&b, d, t); err != nil {
			return nil, err
		}
		buf = b.Bytes()
	case TypeBytes, TypeString:
		raw, err := asBytes(d)
		if err != nil {
			return nil, err
		}
		buf = raw
	default:
		return nil, errUnknownType(t)
	}
	return buf, nil
}
