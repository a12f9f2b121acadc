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

import (
	"github.com/pkg/errors"

	"github.com/flowstate/statetable/internal/xmath"
)

// DefaultVnodeCount is V, the default virtual node domain size. Must stay a
// power of two; V_BYTES is derived from it.
const DefaultVnodeCount = 256

// NoColumn marks an unset pk-relative column reference (VnodeColumnInPK,
// WatermarkColumnInPK).
const NoColumn = -1

// TableDescriptor is the immutable, catalog-supplied schema for one logical
// table partition. See spec §3 "Table descriptor" for the field-by-field
// contract; this struct is a direct transliteration.
type TableDescriptor struct {
	TableID uint32
	Columns []ColumnDesc

	PKIndices []int
	PKOrder   []SortOrder // parallel to PKIndices

	DistKeyIndices     []int
	DistKeyInPKIndices []int

	// VnodeColumnInPK is a position into PKIndices whose value IS the
	// precomputed vnode, or NoColumn if the vnode must be hashed.
	VnodeColumnInPK int

	// WatermarkColumnInPK is a position into PKIndices that carries the
	// monotone watermark scalar, or NoColumn if this table has none.
	WatermarkColumnInPK int

	// ValueIndices projects which columns are persisted in the value
	// payload; nil means all columns.
	ValueIndices []int

	PrefixHintLen int

	RetentionSeconds *uint32

	VnodeCount uint16 // V, must be a power of two
	VnodeBytes int    // V_BYTES, derived if zero

	// DisableSanityCheck opts this table out of the debug-only sanity
	// verifier, for operators with known-benign write conflicts (e.g.
	// materialized-view replay). See spec §4.4 and §9.
	DisableSanityCheck bool
}

// Validate checks internal consistency of the descriptor. It does not
// (cannot) check anything that depends on runtime state such as a vnode
// bitmap.
func (d *TableDescriptor) Validate() error {
	if len(d.PKIndices) == 0 {
		return errors.New("table descriptor: pk_indices must be non-empty")
	}
	if len(d.PKOrder) != len(d.PKIndices) {
		return errors.Errorf("table descriptor: pk_order length %d != pk_indices length %d", len(d.PKOrder), len(d.PKIndices))
	}
	for _, idx := range d.PKIndices {
		if idx < 0 || idx >= len(d.Columns) {
			return errors.Errorf("table descriptor: pk index %d out of range for %d columns", idx, len(d.Columns))
		}
	}
	for _, idx := range d.DistKeyIndices {
		if idx < 0 || idx >= len(d.Columns) {
			return errors.Errorf("table descriptor: dist key index %d out of range", idx)
		}
	}
	if d.VnodeColumnInPK != NoColumn && (d.VnodeColumnInPK < 0 || d.VnodeColumnInPK >= len(d.PKIndices)) {
		return errors.Errorf("table descriptor: vnode_column_in_pk %d out of range for %d pk columns", d.VnodeColumnInPK, len(d.PKIndices))
	}
	if d.WatermarkColumnInPK != NoColumn && (d.WatermarkColumnInPK < 0 || d.WatermarkColumnInPK >= len(d.PKIndices)) {
		return errors.Errorf("table descriptor: watermark_column_in_pk %d out of range for %d pk columns", d.WatermarkColumnInPK, len(d.PKIndices))
	}
	for _, idx := range d.ValueIndices {
		if idx < 0 || idx >= len(d.Columns) {
			return errors.Errorf("table descriptor: value index %d out of range", idx)
		}
	}
	if d.VnodeCount != 0 && !xmath.IsPowerOfTwo(uint32(d.VnodeCount)) {
		return errors.Errorf("table descriptor: vnode_count %d is not a power of two", d.VnodeCount)
	}
	return nil
}

// normalize fills in derived defaults (vnode count/width) and returns a
// copy so callers cannot mutate the descriptor backing an open Table.
func (d *TableDescriptor) normalize() *TableDescriptor {
	out := *d
	out.Columns = append([]ColumnDesc(nil), d.Columns...)
	out.PKIndices = append([]int(nil), d.PKIndices...)
	out.PKOrder = append([]SortOrder(nil), d.PKOrder...)
	out.DistKeyIndices = append([]int(nil), d.DistKeyIndices...)
	out.DistKeyInPKIndices = append([]int(nil), d.DistKeyInPKIndices...)
	out.ValueIndices = append([]int(nil), d.ValueIndices...)
	if out.VnodeCount == 0 {
		out.VnodeCount = DefaultVnodeCount
	}
	if out.VnodeBytes == 0 {
		out.VnodeBytes = xmath.BytesForBits(uint32(out.VnodeCount))
	}
	return &out
}

// valueIndicesOrAll returns ValueIndices, defaulting to every column index
// when the descriptor leaves the projection unset.
func (d *TableDescriptor) valueIndicesOrAll() []int {
	if d.ValueIndices != nil {
		return d.ValueIndices
	}
	all := make([]int, len(d.Columns))
	for i := range all {
		all[i] = i
	}
	return all
}

// pkColumn returns the ColumnDesc and SortOrder for the i-th pk column.
func (d *TableDescriptor) pkColumn(i int) (ColumnDesc, SortOrder) {
	return d.Columns[d.PKIndices[i]], d.PKOrder[i]
}
