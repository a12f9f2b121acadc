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

package memkv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowstate/statetable/storekv"
)

func TestGetMissingKey(t *testing.T) {
	h := New()
	require.NoError(t, h.Init(context.Background(), 0))
	_, found, err := h.Get(context.Background(), []byte("a"), storekv.ReadOptions{})
	require.NoError(t, err)
	require.False(t, found)
}

func TestInsertVisibleBeforeSeal(t *testing.T) {
	ctx := context.Background()
	h := New()
	require.NoError(t, h.Init(ctx, 0))
	require.NoError(t, h.Insert([]byte("a"), []byte("v1"), nil))
	require.True(t, h.IsDirty())

	v, found, err := h.Get(ctx, []byte("a"), storekv.ReadOptions{})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("v1"), v)
}

func TestSealPersistsAndClearsPending(t *testing.T) {
	ctx := context.Background()
	h := New()
	require.NoError(t, h.Init(ctx, 0))
	require.NoError(t, h.Insert([]byte("a"), []byte("v1"), nil))
	require.NoError(t, h.SealCurrentEpoch(ctx, 1, nil))

	require.False(t, h.IsDirty())
	require.EqualValues(t, 1, h.Epoch())

	v, found, err := h.Get(ctx, []byte("a"), storekv.ReadOptions{})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("v1"), v)
}

func TestDeleteHidesKeyBeforeAndAfterSeal(t *testing.T) {
	ctx := context.Background()
	h := New()
	require.NoError(t, h.Init(ctx, 0))
	require.NoError(t, h.Insert([]byte("a"), []byte("v1"), nil))
	require.NoError(t, h.SealCurrentEpoch(ctx, 1, nil))

	require.NoError(t, h.Delete([]byte("a"), []byte("v1")))
	_, found, err := h.Get(ctx, []byte("a"), storekv.ReadOptions{})
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, h.SealCurrentEpoch(ctx, 2, nil))
	_, found, err = h.Get(ctx, []byte("a"), storekv.ReadOptions{})
	require.NoError(t, err)
	require.False(t, found)
}

func TestIterMergesCommittedAndPendingInOrder(t *testing.T) {
	ctx := context.Background()
	h := New()
	require.NoError(t, h.Init(ctx, 0))
	require.NoError(t, h.Insert([]byte("b"), []byte("vb"), nil))
	require.NoError(t, h.Insert([]byte("d"), []byte("vd"), nil))
	require.NoError(t, h.SealCurrentEpoch(ctx, 1, nil))

	require.NoError(t, h.Insert([]byte("a"), []byte("va"), nil))
	require.NoError(t, h.Insert([]byte("c"), []byte("vc"), nil))

	it, err := h.Iter(ctx, storekv.KeyRange{}, storekv.ReadOptions{})
	require.NoError(t, err)
	defer it.Close()

	var keys []string
	for {
		kv, ok, err := it.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		keys = append(keys, string(kv.Key))
	}
	require.Equal(t, []string{"a", "b", "c", "d"}, keys)
}

func TestIterRespectsBounds(t *testing.T) {
	ctx := context.Background()
	h := New()
	require.NoError(t, h.Init(ctx, 0))
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, h.Insert([]byte(k), []byte(k), nil))
	}
	require.NoError(t, h.SealCurrentEpoch(ctx, 1, nil))

	it, err := h.Iter(ctx, storekv.KeyRange{Lower: []byte("b"), Upper: []byte("d")}, storekv.ReadOptions{})
	require.NoError(t, err)
	defer it.Close()

	var keys []string
	for {
		kv, ok, err := it.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		keys = append(keys, string(kv.Key))
	}
	require.Equal(t, []string{"b", "c"}, keys)
}

func TestSealAppliesDeleteRanges(t *testing.T) {
	ctx := context.Background()
	h := New()
	require.NoError(t, h.Init(ctx, 0))
	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, h.Insert([]byte(k), []byte(k), nil))
	}
	require.NoError(t, h.SealCurrentEpoch(ctx, 1, nil))

	require.NoError(t, h.SealCurrentEpoch(ctx, 2, []storekv.DeleteRange{{Lower: []byte("b"), Upper: []byte("d")}}))

	for _, k := range []string{"b", "c"} {
		_, found, err := h.Get(ctx, []byte(k), storekv.ReadOptions{})
		require.NoError(t, err)
		require.False(t, found, "key %s should have been deleted", k)
	}
	for _, k := range []string{"a", "d"} {
		_, found, err := h.Get(ctx, []byte(k), storekv.ReadOptions{})
		require.NoError(t, err)
		require.True(t, found, "key %s should remain", k)
	}
}

func TestSealBeforeInitFails(t *testing.T) {
	h := New()
	err := h.SealCurrentEpoch(context.Background(), 1, nil)
	require.Error(t, err)
}
