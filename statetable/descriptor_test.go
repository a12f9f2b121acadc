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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateRejectsEmptyPK(t *testing.T) {
	d := &TableDescriptor{Columns: []ColumnDesc{{Type: TypeInt32}}}
	require.Error(t, d.Validate())
}

func TestValidateRejectsMismatchedPKOrderLength(t *testing.T) {
	d := &TableDescriptor{
		Columns:   []ColumnDesc{{Type: TypeInt32}},
		PKIndices: []int{0},
		PKOrder:   []SortOrder{{}, {}},
	}
	require.Error(t, d.Validate())
}

func TestValidateRejectsOutOfRangePKIndex(t *testing.T) {
	d := &TableDescriptor{
		Columns:   []ColumnDesc{{Type: TypeInt32}},
		PKIndices: []int{5},
		PKOrder:   []SortOrder{{}},
	}
	require.Error(t, d.Validate())
}

func TestValidateRejectsNonPowerOfTwoVnodeCount(t *testing.T) {
	d := &TableDescriptor{
		Columns:    []ColumnDesc{{Type: TypeInt32}},
		PKIndices:  []int{0},
		PKOrder:    []SortOrder{{}},
		VnodeCount: 100,
	}
	require.Error(t, d.Validate())
}

func TestValidateAcceptsWellFormedDescriptor(t *testing.T) {
	d := &TableDescriptor{
		Columns:             []ColumnDesc{{Type: TypeInt32}, {Type: TypeInt64}},
		PKIndices:           []int{0},
		PKOrder:             []SortOrder{{}},
		VnodeColumnInPK:     NoColumn,
		WatermarkColumnInPK: NoColumn,
		VnodeCount:          128,
	}
	require.NoError(t, d.Validate())
}

func TestNormalizeFillsDefaults(t *testing.T) {
	d := &TableDescriptor{
		Columns:             []ColumnDesc{{Type: TypeInt32}},
		PKIndices:           []int{0},
		PKOrder:             []SortOrder{{}},
		VnodeColumnInPK:     NoColumn,
		WatermarkColumnInPK: NoColumn,
	}
	nd := d.normalize()
	require.EqualValues(t, DefaultVnodeCount, nd.VnodeCount)
	require.Greater(t, nd.VnodeBytes, 0)
}

func TestNormalizeCopiesSlicesIndependently(t *testing.T) {
	d := &TableDescriptor{
		Columns:             []ColumnDesc{{Type: TypeInt32}},
		PKIndices:           []int{0},
		PKOrder:             []SortOrder{{}},
		VnodeColumnInPK:     NoColumn,
		WatermarkColumnInPK: NoColumn,
	}
	nd := d.normalize()
	nd.PKIndices[0] = 99
	require.Equal(t, 0, d.PKIndices[0])
}

func TestValueIndicesOrAllDefaultsToEveryColumn(t *testing.T) {
	d := &TableDescriptor{Columns: []ColumnDesc{{Type: TypeInt32}, {Type: TypeInt64}}}
	require.Equal(t, []int{0, 1}, d.valueIndicesOrAll())
}
