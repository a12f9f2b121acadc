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

package boltkv

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/flowstate/statetable/storekv"
)

func openTestHandle(t *testing.T) *Handle {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	h, err := Open(path, 1, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestInsertAndSealPersists(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)
	require.NoError(t, h.Init(ctx, 0))
	require.NoError(t, h.Insert([]byte("a"), []byte("v1"), nil))
	require.NoError(t, h.SealCurrentEpoch(ctx, 1, nil))

	v, found, err := h.Get(ctx, []byte("a"), storekv.ReadOptions{})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("v1"), v)
}

func TestBloomFilterSkipsNegativeLookup(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)
	require.NoError(t, h.Init(ctx, 0))
	require.NoError(t, h.Insert([]byte("a"), []byte("v1"), nil))
	require.NoError(t, h.SealCurrentEpoch(ctx, 1, nil))

	_, found, err := h.Get(ctx, []byte("not-there"), storekv.ReadOptions{CheckBloomFilter: true})
	require.NoError(t, err)
	require.False(t, found)
}

func TestReopenRebuildsBloomFromExistingKeys(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	h1, err := Open(path, 1, nil)
	require.NoError(t, err)
	require.NoError(t, h1.Init(ctx, 0))
	require.NoError(t, h1.Insert([]byte("a"), []byte("v1"), nil))
	require.NoError(t, h1.SealCurrentEpoch(ctx, 1, nil))
	require.NoError(t, h1.Close())

	h2, err := Open(path, 1, nil)
	require.NoError(t, err)
	defer h2.Close()

	v, found, err := h2.Get(ctx, []byte("a"), storekv.ReadOptions{CheckBloomFilter: true})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("v1"), v)
}

func TestIterMergesCommittedAndPending(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)
	require.NoError(t, h.Init(ctx, 0))
	require.NoError(t, h.Insert([]byte("b"), []byte("vb"), nil))
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
	require.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestSealAppliesDeleteRangesAtomically(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)
	require.NoError(t, h.Init(ctx, 0))
	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, h.Insert([]byte(k), []byte(k), nil))
	}
	require.NoError(t, h.SealCurrentEpoch(ctx, 1, nil))

	require.NoError(t, h.SealCurrentEpoch(ctx, 2, []storekv.DeleteRange{{Lower: []byte("b"), Upper: []byte("d")}}))

	for _, k := range []string{"b", "c"} {
		_, found, err := h.Get(ctx, []byte(k), storekv.ReadOptions{})
		require.NoError(t, err)
		require.False(t, found)
	}
	_, found, err := h.Get(ctx, []byte("a"), storekv.ReadOptions{})
	require.NoError(t, err)
	require.True(t, found)
}

func TestEpochPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "epoch.db")
	h1, err := Open(path, 1, nil)
	require.NoError(t, err)
	require.NoError(t, h1.Init(ctx, 5))
	require.NoError(t, h1.Close())

	h2, err := Open(path, 1, nil)
	require.NoError(t, err)
	defer h2.Close()
	var persisted []byte
	require.NoError(t, h2.db.View(func(tx *bolt.Tx) error {
		persisted = append([]byte(nil), tx.Bucket(metaBucketName).Get(h2.bucketName)...)
		return nil
	}))
	require.Equal(t, encodeEpoch(5), persisted)
	require.NoError(t, h2.Init(ctx, 5))
	require.EqualValues(t, 5, h2.Epoch())
}
