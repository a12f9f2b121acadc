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
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowstate/statetable/storekv/memkv"
)

func newTestTable(t *testing.T, desc *TableDescriptor, vnodes *VnodeBitmap) *Table {
	t.Helper()
	store := memkv.New()
	tbl, err := FromDescriptor(desc, store, vnodes, nil)
	require.NoError(t, err)
	require.NoError(t, tbl.InitEpoch(context.Background(), EpochPair{Prev: 0, Curr: 1}))
	return tbl
}

func singletonDesc(id uint32) *TableDescriptor {
	return &TableDescriptor{
		TableID:             id,
		Columns:             []ColumnDesc{{Name: "id", Type: TypeInt32}, {Name: "v", Type: TypeInt64}},
		PKIndices:           []int{0},
		PKOrder:             []SortOrder{{}},
		VnodeColumnInPK:     NoColumn,
		WatermarkColumnInPK: NoColumn,
	}
}

// TestS1InsertGetRoundTrip is spec.md §8 S1.
func TestS1InsertGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	tbl := newTestTable(t, singletonDesc(1), nil)

	require.NoError(t, tbl.Insert(ctx, Row{int32(7), int64(42)}))
	row, err := tbl.GetRow(ctx, Row{int32(7)})
	require.NoError(t, err)
	require.Equal(t, Row{int32(7), int64(42)}, row)

	require.NoError(t, tbl.Commit(ctx, EpochPair{Prev: 1, Curr: 2}))
	row, err = tbl.GetRow(ctx, Row{int32(7)})
	require.NoError(t, err)
	require.Equal(t, Row{int32(7), int64(42)}, row)
}

// TestS2UpdatePreservesPK is spec.md §8 S2.
func TestS2UpdatePreservesPK(t *testing.T) {
	ctx := context.Background()
	tbl := newTestTable(t, singletonDesc(2), nil)

	require.NoError(t, tbl.Insert(ctx, Row{int32(7), int64(42)}))
	require.NoError(t, tbl.Commit(ctx, EpochPair{Prev: 1, Curr: 2}))

	require.NoError(t, tbl.Update(ctx, Row{int32(7), int64(42)}, Row{int32(7), int64(100)}))
	row, err := tbl.GetRow(ctx, Row{int32(7)})
	require.NoError(t, err)
	require.Equal(t, Row{int32(7), int64(100)}, row)

	require.NoError(t, tbl.Commit(ctx, EpochPair{Prev: 2, Curr: 3}))
	row, err = tbl.GetRow(ctx, Row{int32(7)})
	require.NoError(t, err)
	require.Equal(t, Row{int32(7), int64(100)}, row)
}

func TestUpdateRejectsChangedPK(t *testing.T) {
	ctx := context.Background()
	tbl := newTestTable(t, singletonDesc(20), nil)
	require.NoError(t, tbl.Insert(ctx, Row{int32(7), int64(42)}))
	err := tbl.Update(ctx, Row{int32(7), int64(42)}, Row{int32(8), int64(42)})
	require.Error(t, err)
	var cv *ContractViolation
	require.ErrorAs(t, err, &cv)
}

// TestS3DeleteInvisibility is spec.md §8 S3.
func TestS3DeleteInvisibility(t *testing.T) {
	ctx := context.Background()
	tbl := newTestTable(t, singletonDesc(3), nil)

	require.NoError(t, tbl.Insert(ctx, Row{int32(7), int64(100)}))
	require.NoError(t, tbl.Delete(ctx, Row{int32(7), int64(100)}))

	row, err := tbl.GetRow(ctx, Row{int32(7)})
	require.NoError(t, err)
	require.Nil(t, row)

	require.NoError(t, tbl.Commit(ctx, EpochPair{Prev: 1, Curr: 2}))
	row, err = tbl.GetRow(ctx, Row{int32(7)})
	require.NoError(t, err)
	require.Nil(t, row)
}

// TestS4RangeScanOrder is spec.md §8 S4.
func TestS4RangeScanOrder(t *testing.T) {
	ctx := context.Background()
	desc := &TableDescriptor{
		TableID:             4,
		Columns:             []ColumnDesc{{Name: "k", Type: TypeInt32}, {Name: "v", Type: TypeInt32}},
		PKIndices:           []int{0},
		PKOrder:             []SortOrder{{}},
		VnodeColumnInPK:     NoColumn,
		WatermarkColumnInPK: NoColumn,
	}
	tbl := newTestTable(t, desc, nil)

	for _, k := range []int32{3, 1, 2} {
		require.NoError(t, tbl.Insert(ctx, Row{k, k * 10}))
	}

	it, err := tbl.Iter(ctx, nil)
	require.NoError(t, err)
	defer it.Close()

	var got []int32
	for {
		row, _, ok, err := it.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, row[0].(int32))
	}
	require.Equal(t, []int32{1, 2, 3}, got)
}

// TestS5VnodeFiltering is spec.md §8 S5.
func TestS5VnodeFiltering(t *testing.T) {
	ctx := context.Background()
	desc := &TableDescriptor{
		TableID:             5,
		Columns:             []ColumnDesc{{Name: "id", Type: TypeInt32}, {Name: "region", Type: TypeInt32}},
		PKIndices:           []int{0},
		PKOrder:             []SortOrder{{}},
		DistKeyIndices:      []int{1},
		VnodeColumnInPK:     NoColumn,
		WatermarkColumnInPK: NoColumn,
		VnodeCount:          256,
	}
	bitmap := NewVnodeBitmap(256)
	bitmap.Set(0)
	bitmap.Set(1)

	tbl := newTestTable(t, desc, bitmap)

	var owned, unowned int32 = -1, -1
	for region := int32(0); region < 4096 && (owned < 0 || unowned < 0); region++ {
		v, err := VnodeOf(tbl.Descriptor(), Row{region, region})
		require.NoError(t, err)
		if bitmap.Contains(v) && owned < 0 {
			owned = region
		}
		if !bitmap.Contains(v) && unowned < 0 {
			unowned = region
		}
	}
	require.GreaterOrEqual(t, owned, int32(0))
	require.GreaterOrEqual(t, unowned, int32(0))

	ops := []RowOp{OpInsert, OpInsert}
	rows := []Row{{owned, owned}, {unowned, unowned}}
	require.NoError(t, tbl.WriteChunk(ctx, ops, rows))

	// The pk (id) does not cover the dist key (region), so GetRow cannot
	// resolve the vnode; scan the owned row's vnode instead.
	ov, err := VnodeOf(desc, Row{owned, owned})
	require.NoError(t, err)
	it, err := tbl.IterRange(ctx, UnboundedBound(), UnboundedBound(), ov)
	require.NoError(t, err)
	defer it.Close()
	row, _, ok, err := it.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Row{owned, owned}, row)

	// The unowned row hashes outside the bitmap; WriteChunk returned nil
	// instead of panicking (as a direct Insert would), so it was dropped.
	u, err := VnodeOf(desc, Row{unowned, unowned})
	require.NoError(t, err)
	require.False(t, bitmap.Contains(u))
}

// TestS6WatermarkRetention is spec.md §8 S6.
func TestS6WatermarkRetention(t *testing.T) {
	ctx := context.Background()
	desc := &TableDescriptor{
		TableID:             6,
		Columns:             []ColumnDesc{{Name: "t", Type: TypeInt64}, {Name: "v", Type: TypeInt32}},
		PKIndices:           []int{0},
		PKOrder:             []SortOrder{{}},
		VnodeColumnInPK:     NoColumn,
		WatermarkColumnInPK: 0,
	}
	tbl := newTestTable(t, desc, nil)
	savedPeriod := CleaningPeriod
	CleaningPeriod = 5
	defer func() { CleaningPeriod = savedPeriod }()

	for i, tv := range []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10} {
		require.NoError(t, tbl.Insert(ctx, Row{tv, int32(i)}))
	}

	epoch := uint64(1)
	for _, w := range []int64{1, 3, 5, 7, 9} {
		require.NoError(t, tbl.UpdateWatermark(w))
		require.NoError(t, tbl.Commit(ctx, EpochPair{Prev: epoch, Curr: epoch + 1}))
		epoch++
	}

	it, err := tbl.Iter(ctx, nil)
	require.NoError(t, err)
	defer it.Close()

	count := 0
	for {
		row, _, ok, err := it.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		count++
		require.GreaterOrEqual(t, row[0].(int64), int64(9))
	}
	require.Greater(t, count, 0)
}

func TestInsertOutsideOwnedVnodePanics(t *testing.T) {
	ctx := context.Background()
	desc := &TableDescriptor{
		TableID:             7,
		Columns:             []ColumnDesc{{Name: "id", Type: TypeInt32}, {Name: "region", Type: TypeInt32}},
		PKIndices:           []int{0},
		PKOrder:             []SortOrder{{}},
		DistKeyIndices:      []int{1},
		VnodeColumnInPK:     NoColumn,
		WatermarkColumnInPK: NoColumn,
		VnodeCount:          256,
	}
	bitmap := NewVnodeBitmap(256) // owns nothing
	tbl := newTestTable(t, desc, bitmap)

	require.Panics(t, func() {
		_ = tbl.Insert(ctx, Row{int32(1), int32(2)})
	})
}

func TestCommitRejectsWrongPriorEpoch(t *testing.T) {
	ctx := context.Background()
	tbl := newTestTable(t, singletonDesc(8), nil)
	err := tbl.Commit(ctx, EpochPair{Prev: 99, Curr: 100})
	require.Error(t, err)
	var cv *ContractViolation
	require.ErrorAs(t, err, &cv)
}

func TestWriteChunkRejectsMismatchedLengths(t *testing.T) {
	ctx := context.Background()
	tbl := newTestTable(t, singletonDesc(9), nil)
	err := tbl.WriteChunk(ctx, []RowOp{OpInsert, OpInsert}, []Row{{int32(1), int64(1)}})
	require.Error(t, err)
}

func TestWriteChunkUpdatePairWithoutDeleteFails(t *testing.T) {
	ctx := context.Background()
	tbl := newTestTable(t, singletonDesc(10), nil)
	err := tbl.WriteChunk(ctx, []RowOp{OpUpdateInsert}, []Row{{int32(1), int64(1)}})
	require.Error(t, err)
}

func TestUpdateVnodeBitmapRejectsSingletonViolation(t *testing.T) {
	tbl := newTestTable(t, singletonDesc(11), nil)
	bad := NewVnodeBitmap(tbl.Vnodes().Size())
	bad.Set(1)
	_, err := tbl.UpdateVnodeBitmap(bad)
	require.Error(t, err)
}

func TestUpdateVnodeBitmapRejectsSizeMismatch(t *testing.T) {
	tbl := newTestTable(t, singletonDesc(12), nil)
	bad := NewVnodeBitmap(tbl.Vnodes().Size() * 2)
	_, err := tbl.UpdateVnodeBitmap(bad)
	require.Error(t, err)
}

func TestMayExistNeverFalseNegative(t *testing.T) {
	ctx := context.Background()
	tbl := newTestTable(t, singletonDesc(13), nil)
	require.NoError(t, tbl.Insert(ctx, Row{int32(1), int64(9)}))

	ok, err := tbl.MayExist(ctx, Row{int32(1)})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tbl.MayExist(ctx, Row{int32(2)})
	require.NoError(t, err)
	require.False(t, ok)
}
