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

import "bytes"

// CleaningPeriod is the number of watermark-carrying commits coalesced
// before a delete-range is actually emitted (spec §4.4, default 5). It is
// a process-wide policy knob, not part of the table descriptor, so tests
// and the demo CLI may override it.
var CleaningPeriod = 5

// watermarkColumn returns the ColumnDesc/SortOrder of the table's
// configured watermark column, or ok=false if the table has none.
func (d *TableDescriptor) watermarkColumn() (ColumnDesc, SortOrder, bool) {
	if d.WatermarkColumnInPK == NoColumn {
		return ColumnDesc{}, SortOrder{}, false
	}
	col, order := d.pkColumn(d.WatermarkColumnInPK)
	return col, order, true
}

// compareWatermark orders two watermark datums under the declared order of
// the watermark column, by comparing their memcomparable encodings —
// reusing the same codec that orders stored keys means the watermark's
// notion of "monotone" always agrees with what a range scan over that
// column would observe.
func compareWatermark(col ColumnDesc, order SortOrder, a, b Datum) (int, error) {
	var bufA, bufB bytes.Buffer
	if err := encodeDatum(&bufA, a, col.Type, order); err != nil {
		return 0, err
	}
	if err := encodeDatum(&bufB, b, col.Type, order); err != nil {
		return 0, err
	}
	return bytes.Compare(bufA.Bytes(), bufB.Bytes()), nil
}

// watermarkSuffix returns the memcomparable single-column pk-prefix for a
// watermark value, used as the lo/hi bound of a delete-range (spec §4.4
// step 2). A nil watermark encodes to empty bytes, matching
// "last_watermark_suffix is... empty bytes if last_watermark is None".
func watermarkSuffix(col ColumnDesc, order SortOrder, w *Datum) ([]byte, error) {
	if w == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := encodeDatum(&buf, *w, col.Type, order); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
