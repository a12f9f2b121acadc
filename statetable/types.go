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

// Package statetable implements the per-operator durable state store that
// backs stateful streaming operators (joins, aggregates, materialized
// views): row<->key/value serialization, virtual-node distribution, the
// per-epoch write/seal protocol and watermark-driven retention.
package statetable

import "fmt"

// ColumnType is the set of scalar types a table column may declare. It is
// deliberately small: the state table cares about byte layout, not about
// the richer type system the catalog (out of scope) exposes to SQL.
type ColumnType uint8

const (
	TypeInt16 ColumnType = iota
	TypeInt32
	TypeInt64
	TypeBool
	TypeBytes
	TypeString
)

func (t ColumnType) String() string {
	switch t {
	case TypeInt16:
		return "int16"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeBool:
		return "bool"
	case TypeBytes:
		return "bytes"
	case TypeString:
		return "string"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Datum is a single column value. nil means SQL NULL. The concrete dynamic
// type must match the column's declared ColumnType: int16/int32/int64 for
// the integer types, bool, []byte for TypeBytes and string for TypeString.
// The encoders accept either []byte or string for both byte-like types;
// the decoders return []byte for TypeBytes and string for TypeString.
type Datum = interface{}

// Row is an ordered tuple of Datum values, one per table column, in the
// order columns were declared on the TableDescriptor.
type Row []Datum

// Clone returns a shallow copy of the row (datums themselves are treated as
// immutable).
func (r Row) Clone() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// Project returns a new Row containing only the columns named by indices,
// in the given order.
func (r Row) Project(indices []int) Row {
	out := make(Row, len(indices))
	for i, idx := range indices {
		out[i] = r[idx]
	}
	return out
}

// SortOrder describes how one pk column participates in the declared
// ordering: ascending or descending, and whether NULL sorts first or last.
type SortOrder struct {
	Desc       bool
	NullsFirst bool
}

// ColumnDesc names and types one column of the table.
type ColumnDesc struct {
	Name string
	Type ColumnType
}

// RowOp is the per-row operation kind used by WriteChunk.
type RowOp uint8

const (
	OpInsert RowOp = iota
	OpDelete
	OpUpdateInsert
	OpUpdateDelete
)

func (op RowOp) String() string {
	switch op {
	case OpInsert:
		return "Insert"
	case OpDelete:
		return "Delete"
	case OpUpdateInsert:
		return "UpdateInsert"
	case OpUpdateDelete:
		return "UpdateDelete"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(op))
	}
}

// EpochPair is the (prev, curr) epoch marker a barrier carries.
type EpochPair struct {
	Prev uint64
	Curr uint64
}

func (e EpochPair) String() string {
	return fmt.Sprintf("(%d->%d)", e.Prev, e.Curr)
}
