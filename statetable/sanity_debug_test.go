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

//go:build debug

package statetable

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowstate/statetable/storekv/memkv"
)

func TestSanityVerifierCatchesDoubleInsert(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	require.NoError(t, store.Init(ctx, 0))
	require.NoError(t, store.Insert([]byte("k"), []byte("v1"), nil))

	v := newSanityVerifier(1, false, newTableMetrics(1))

	defer func() {
		r := recover()
		require.NotNil(t, r)
		sv, ok := r.(*SanityViolation)
		require.True(t, ok)
		require.Equal(t, "double_insert", sv.Kind)
	}()
	v.beforeInsert(ctx, store, 0, []byte("k"))
}

func TestSanityVerifierCatchesDeleteMiss(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	require.NoError(t, store.Init(ctx, 0))

	v := newSanityVerifier(1, false, newTableMetrics(1))

	require.Panics(t, func() {
		v.beforeDelete(ctx, store, 0, []byte("missing"), []byte("old"), "delete_miss")
	})
}

func TestSanityVerifierCatchesUpdateMismatch(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	require.NoError(t, store.Init(ctx, 0))
	require.NoError(t, store.Insert([]byte("k"), []byte("actual"), nil))

	v := newSanityVerifier(1, false, newTableMetrics(1))

	require.Panics(t, func() {
		v.beforeDelete(ctx, store, 0, []byte("k"), []byte("claimed"), "update_mismatch")
	})
}

func TestSanityVerifierDisabledNeverPanics(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	require.NoError(t, store.Init(ctx, 0))
	require.NoError(t, store.Insert([]byte("k"), []byte("v1"), nil))

	v := newSanityVerifier(1, true, newTableMetrics(1))

	require.NotPanics(t, func() {
		v.beforeInsert(ctx, store, 0, []byte("k"))
		v.beforeDelete(ctx, store, 0, []byte("missing"), []byte("old"), "delete_miss")
	})
}

func TestSanityVerifierAllowsCleanInsertAndMatchingDelete(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	require.NoError(t, store.Init(ctx, 0))

	v := newSanityVerifier(1, false, newTableMetrics(1))

	require.NotPanics(t, func() {
		v.beforeInsert(ctx, store, 0, []byte("k"))
	})
	require.NoError(t, store.Insert([]byte("k"), []byte("v1"), nil))
	require.NotPanics(t, func() {
		v.beforeDelete(ctx, store, 0, []byte("k"), []byte("v1"), "delete")
	})
}

