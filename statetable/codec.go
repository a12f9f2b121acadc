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

// This file is the Row Codec (spec §4.1): memcomparable encoding of pk
// prefixes and full rows, and the companion value encoding. The pk encoder
// guarantees that for any two keys k1 < k2 in declared order, their byte
// encodings compare equivalently under lexicographic byte compare —
// descending columns and null position are handled by bit inversion, not
// by a different comparator at read time, so the bytes can be handed
// straight to a byte-ordered store.
package statetable

import (
	"bytes"
	"encoding/binary"

	varint "github.com/multiformats/go-varint"
)

// Per-column markers. The non-null marker is always the same value so that
// ascending columns compare purely on payload bytes once the marker byte
// is known equal; nullsFirst/nullsLast only changes which marker the null
// case uses.
const (
	markerNullFirst = 0x00
	markerNonNull   = 0x01
	markerNullLast  = 0x02
)

const bytesGroupSize = 8

// EncodePKPrefix encodes the first len(row) pk columns of a table in
// memcomparable form. row must already be projected to just the pk prefix,
// in pk order (i.e. row[i] corresponds to desc.PKIndices[i]).
func EncodePKPrefix(desc *TableDescriptor, pkPrefix Row) ([]byte, error) {
	var buf bytes.Buffer
	for i, d := range pkPrefix {
		col, order := desc.pkColumn(i)
		if err := encodeDatum(&buf, d, col.Type, order); err != nil {
			return nil, newCodecError("encode_pk_prefix", err)
		}
	}
	return buf.Bytes(), nil
}

// EncodePKWithVnode prepends the big-endian vnode to the full pk
// memcomparable encoding (spec §4.1 serialize_pk_with_vnode).
func EncodePKWithVnode(desc *TableDescriptor, pkRow Row, vnode uint16) ([]byte, error) {
	pkBytes, err := EncodePKPrefix(desc, pkRow)
	if err != nil {
		return nil, err
	}
	out := make([]byte, desc.VnodeBytes+len(pkBytes))
	putVnode(out[:desc.VnodeBytes], vnode)
	copy(out[desc.VnodeBytes:], pkBytes)
	return out, nil
}

// DecodePKWithVnode is the inverse of EncodePKWithVnode: it recovers the
// vnode and the full pk row from a stored key.
func DecodePKWithVnode(desc *TableDescriptor, key []byte) (uint16, Row, error) {
	if len(key) < desc.VnodeBytes {
		return 0, nil, newCodecError("deserialize_pk_with_vnode", errShortKey)
	}
	vnode := getVnode(key[:desc.VnodeBytes])
	rest := key[desc.VnodeBytes:]
	row := make(Row, len(desc.PKIndices))
	for i := range desc.PKIndices {
		col, order := desc.pkColumn(i)
		d, n, err := decodeDatum(rest, col.Type, order)
		if err != nil {
			return 0, nil, newCodecError("deserialize_pk_with_vnode", err)
		}
		row[i] = d
		rest = rest[n:]
	}
	if len(rest) != 0 {
		return 0, nil, newCodecError("deserialize_pk_with_vnode", errTrailingBytes)
	}
	return vnode, row, nil
}

// SerializeValue encodes the projected columns of a full row (indexed by
// global column position, as in the table descriptor) into the value
// payload. valueIndices nil selects every column.
func SerializeValue(desc *TableDescriptor, row Row, valueIndices []int) ([]byte, error) {
	if valueIndices == nil {
		valueIndices = desc.valueIndicesOrAll()
	}
	var buf bytes.Buffer
	for _, idx := range valueIndices {
		if err := encodeValueDatum(&buf, row[idx], desc.Columns[idx].Type); err != nil {
			return nil, newCodecError("serialize_value", err)
		}
	}
	return buf.Bytes(), nil
}

// DeserializeValue decodes a value payload back into a sparse Row sized to
// len(desc.Columns), with only valueIndices positions populated (pk
// columns, if not also value-projected, are left nil — callers that need
// the full row splice in the pk separately, as GetRow does).
func DeserializeValue(desc *TableDescriptor, data []byte, valueIndices []int) (Row, error) {
	if valueIndices == nil {
		valueIndices = desc.valueIndicesOrAll()
	}
	row := make(Row, len(desc.Columns))
	rest := data
	for _, idx := range valueIndices {
		d, n, err := decodeValueDatum(rest, desc.Columns[idx].Type)
		if err != nil {
			return nil, newCodecError("deserialize_value", err)
		}
		row[idx] = d
		rest = rest[n:]
	}
	if len(rest) != 0 {
		return nil, newCodecError("deserialize_value", errTrailingBytes)
	}
	return row, nil
}

func putVnode(dst []byte, vnode uint16) {
	switch len(dst) {
	case 1:
		dst[0] = byte(vnode)
	case 2:
		binary.BigEndian.PutUint16(dst, vnode)
	default:
		// wide vnode widths: zero-pad high bytes, vnode in the low 2 bytes.
		for i := range dst {
			dst[i] = 0
		}
		binary.BigEndian.PutUint16(dst[len(dst)-2:], vnode)
	}
}

func getVnode(src []byte) uint16 {
	switch len(src) {
	case 1:
		return uint16(src[0])
	case 2:
		return binary.BigEndian.Uint16(src)
	default:
		return binary.BigEndian.Uint16(src[len(src)-2:])
	}
}

// --- memcomparable pk encoding -------------------------------------------

func encodeDatum(buf *bytes.Buffer, d Datum, t ColumnType, order SortOrder) error {
	start := buf.Len()
	if d == nil {
		// The marker is inverted along with the payload below when
		// order.Desc, so the pre-invert marker is chosen for the position
		// nulls must occupy *after* that inversion, not before it.
		nullsFirst := order.NullsFirst
		if order.Desc {
			nullsFirst = !nullsFirst
		}
		if nullsFirst {
			buf.WriteByte(markerNullFirst)
		} else {
			buf.WriteByte(markerNullLast)
		}
	} else {
		buf.WriteByte(markerNonNull)
		if err := encodePKPayload(buf, d, t); err != nil {
			return err
		}
	}
	if order.Desc {
		invertRange(buf.Bytes()[start:])
	}
	return nil
}

func encodePKPayload(buf *bytes.Buffer, d Datum, t ColumnType) error {
	switch t {
	case TypeInt16:
		v, ok := d.(int16)
		if !ok {
			return errTypeMismatch(t, d)
		}
		var tmp [2]byte
		binary.BigEndian.PutUint16(tmp[:], uint16(v)^0x8000)
		buf.Write(tmp[:])
	case TypeInt32:
		v, ok := d.(int32)
		if !ok {
			return errTypeMismatch(t, d)
		}
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], uint32(v)^0x80000000)
		buf.Write(tmp[:])
	case TypeInt64:
		v, ok := d.(int64)
		if !ok {
			return errTypeMismatch(t, d)
		}
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], uint64(v)^0x8000000000000000)
		buf.Write(tmp[:])
	case TypeBool:
		v, ok := d.(bool)
		if !ok {
			return errTypeMismatch(t, d)
		}
		if v {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case TypeBytes, TypeString:
		b, err := asBytes(d)
		if err != nil {
			return err
		}
		encodeBytesAscending(buf, b)
	default:
		return errUnknownType(t)
	}
	return nil
}

// encodeBytesAscending emits data in fixed 8-byte groups each followed by a
// marker byte: 8 means "group full, more data follows"; 0..7 means "this
// group holds that many valid bytes (zero padded), no more data". Every
// group is exactly 9 bytes, which keeps the encoding self-delimiting
// without a separate length prefix, and a shorter string that is a strict
// prefix of a longer one always sorts first because its terminal marker
// (<=7) is less than a continuation marker (8).
func encodeBytesAscending(buf *bytes.Buffer, data []byte) {
	for {
		n := len(data)
		if n >= bytesGroupSize {
			buf.Write(data[:bytesGroupSize])
			buf.WriteByte(8)
			data = data[bytesGroupSize:]
			continue
		}
		var group [bytesGroupSize]byte
		copy(group[:], data)
		buf.Write(group[:])
		buf.WriteByte(byte(n))
		return
	}
}

func decodeBytesAscending(src []byte) ([]byte, int, error) {
	var out []byte
	consumed := 0
	for {
		if len(src) < bytesGroupSize+1 {
			return nil, 0, errShortKey
		}
		group := src[:bytesGroupSize]
		marker := src[bytesGroupSize]
		consumed += bytesGroupSize + 1
		src = src[bytesGroupSize+1:]
		if marker == 8 {
			out = append(out, group...)
			continue
		}
		if marker > 8 {
			return nil, 0, errMalformedBytesGroup
		}
		out = append(out, group[:marker]...)
		return out, consumed, nil
	}
}

func decodeDatum(src []byte, t ColumnType, order SortOrder) (Datum, int, error) {
	if len(src) == 0 {
		return nil, 0, errShortKey
	}
	// Undo the descending bit inversion over exactly the bytes this column
	// occupies; we don't know the length up front for variable-width
	// columns, so invert progressively as we learn it below instead for
	// those, and up front for fixed-width columns.
	if !order.Desc {
		marker := src[0]
		if marker == markerNullFirst || marker == markerNullLast {
			return nil, 1, nil
		}
		if marker != markerNonNull {
			return nil, 0, errBadMarker
		}
		return decodePKPayload(src[1:], t)
	}
	return decodeDescDatum(src, t, order)
}

// decodeDescDatum mirrors decodeDatum for Desc columns, where the whole
// column (marker + payload) was bit-inverted at encode time. Fixed-width
// columns have a known total length so we invert then decode directly;
// variable-width (bytes) columns are inverted group by group as they're
// consumed, since the total length isn't known in advance.
func decodeDescDatum(src []byte, t ColumnType, order SortOrder) (Datum, int, error) {
	fixedLen, variable := fixedPayloadLen(t)
	if !variable {
		total := 1 + fixedLen
		if len(src) < total {
			return nil, 0, errShortKey
		}
		tmp := make([]byte, total)
		copy(tmp, src[:total])
		invertRange(tmp)
		marker := tmp[0]
		if marker == markerNullFirst || marker == markerNullLast {
			return nil, total, nil
		}
		if marker != markerNonNull {
			return nil, 0, errBadMarker
		}
		d, _, err := decodePKPayload(tmp[1:], t)
		return d, total, err
	}
	// Variable-width (bytes/string): invert the marker byte first to see
	// whether there's a payload at all.
	if len(src) == 0 {
		return nil, 0, errShortKey
	}
	marker := invertByte(src[0])
	if marker == markerNullFirst || marker == markerNullLast {
		return nil, 1, nil
	}
	if marker != markerNonNull {
		return nil, 0, errBadMarker
	}
	consumed := 1
	rest := src[1:]
	var out []byte
	for {
		if len(rest) < bytesGroupSize+1 {
			return nil, 0, errShortKey
		}
		group := make([]byte, bytesGroupSize+1)
		copy(group, rest[:bytesGroupSize+1])
		invertRange(group)
		groupMarker := group[bytesGroupSize]
		out = append(out, group[:min(int(groupMarker), bytesGroupSize)]...)
		consumed += bytesGroupSize + 1
		rest = rest[bytesGroupSize+1:]
		if groupMarker == 8 {
			continue
		}
		if groupMarker > 8 {
			return nil, 0, errMalformedBytesGroup
		}
		break
	}
	if t == TypeString {
		return string(out), consumed, nil
	}
	return out, consumed, nil
}

func fixedPayloadLen(t ColumnType) (n int, variable bool) {
	switch t {
	case TypeInt16:
		return 2, false
	case TypeInt32:
		return 4, false
	case TypeInt64:
		return 8, false
	case TypeBool:
		return 1, false
	default:
		return 0, true
	}
}

func decodePKPayload(src []byte, t ColumnType) (Datum, int, error) {
	switch t {
	case TypeInt16:
		if len(src) < 2 {
			return nil, 0, errShortKey
		}
		return int16(binary.BigEndian.Uint16(src) ^ 0x8000), 2, nil
	case TypeInt32:
		if len(src) < 4 {
			return nil, 0, errShortKey
		}
		return int32(binary.BigEndian.Uint32(src) ^ 0x80000000), 4, nil
	case TypeInt64:
		if len(src) < 8 {
			return nil, 0, errShortKey
		}
		return int64(binary.BigEndian.Uint64(src) ^ 0x8000000000000000), 8, nil
	case TypeBool:
		if len(src) < 1 {
			return nil, 0, errShortKey
		}
		return src[0] != 0, 1, nil
	case TypeBytes:
		b, n, err := decodeBytesAscending(src)
		return b, n, err
	case TypeString:
		b, n, err := decodeBytesAscending(src)
		if err != nil {
			return nil, 0, err
		}
		return string(b), n, nil
	default:
		return nil, 0, errUnknownType(t)
	}
}

func invertRange(b []byte) {
	for i := range b {
		b[i] = ^b[i]
	}
}

func invertByte(b byte) byte { return ^b }

// --- value encoding (length-prefixed where needed) -----------------------

func encodeValueDatum(buf *bytes.Buffer, d Datum, t ColumnType) error {
	if d == nil {
		buf.WriteByte(0) // null flag
		return nil
	}
	buf.WriteByte(1)
	switch t {
	case TypeInt16:
		v, ok := d.(int16)
		if !ok {
			return errTypeMismatch(t, d)
		}
		var tmp [2]byte
		binary.BigEndian.PutUint16(tmp[:], uint16(v))
		buf.Write(tmp[:])
	case TypeInt32:
		v, ok := d.(int32)
		if !ok {
			return errTypeMismatch(t, d)
		}
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], uint32(v))
		buf.Write(tmp[:])
	case TypeInt64:
		v, ok := d.(int64)
		if !ok {
			return errTypeMismatch(t, d)
		}
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], uint64(v))
		buf.Write(tmp[:])
	case TypeBool:
		v, ok := d.(bool)
		if !ok {
			return errTypeMismatch(t, d)
		}
		if v {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case TypeBytes, TypeString:
		b, err := asBytes(d)
		if err != nil {
			return err
		}
		lenBuf := varint.ToUvarint(uint64(len(b)))
		buf.Write(lenBuf)
		buf.Write(b)
	default:
		return errUnknownType(t)
	}
	return nil
}

func decodeValueDatum(src []byte, t ColumnType) (Datum, int, error) {
	if len(src) == 0 {
		return nil, 0, errShortKey
	}
	if src[0] == 0 {
		return nil, 1, nil
	}
	src = src[1:]
	switch t {
	case TypeInt16:
		if len(src) < 2 {
			return nil, 0, errShortKey
		}
		return int16(binary.BigEndian.Uint16(src)), 3, nil
	case TypeInt32:
		if len(src) < 4 {
			return nil, 0, errShortKey
		}
		return int32(binary.BigEndian.Uint32(src)), 5, nil
	case TypeInt64:
		if len(src) < 8 {
			return nil, 0, errShortKey
		}
		return int64(binary.BigEndian.Uint64(src)), 9, nil
	case TypeBool:
		if len(src) < 1 {
			return nil, 0, errShortKey
		}
		return src[0] != 0, 2, nil
	case TypeBytes, TypeString:
		n, read, err := varint.FromUvarint(src)
		if err != nil {
			return nil, 0, err
		}
		total := 1 + read + int(n)
		if len(src) < read+int(n) {
			return nil, 0, errShortKey
		}
		b := append([]byte(nil), src[read:read+int(n)]...)
		if t == TypeString {
			return string(b), total, nil
		}
		return b, total, nil
	default:
		return nil, 0, errUnknownType(t)
	}
}

func asBytes(d Datum) ([]byte, error) {
	switch v := d.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errTypeMismatch(TypeBytes, d)
	}
}
