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

// This is the Sanity Verifier (spec §4.4, §9): in debug builds, every
// write becomes a read-before-write that compares the operator's claim
// about the table's prior state against what the store actually holds.
// Gated behind the "debug" build tag so release binaries pay nothing —
// see sanity_release.go for the no-op twin.
package statetable

import (
	"bytes"
	"context"

	"github.com/flowstate/statetable/storekv"
)

type sanityVerifier struct {
	enabled bool
	tableID uint32
	metrics *tableMetrics
}

func newSanityVerifier(tableID uint32, disabled bool, metrics *tableMetrics) *sanityVerifier {
	return &sanityVerifier{enabled: !disabled, tableID: tableID, metrics: metrics}
}

// beforeInsert aborts if key already has a value staged or committed: a
// double-insert without an intervening delete is an operator bug.
func (s *sanityVerifier) beforeInsert(ctx context.Context, store storekv.Handle, vnode uint16, key []byte) {
	if !s.enabled {
		return
	}
	existing, found, err := store.Get(ctx, key, storekv.ReadOptions{TableID: s.tableID})
	if err != nil || !found {
		return
	}
	s.metrics.sanityViolation("double_insert")
	panic(&SanityViolation{
		TableID:  s.tableID,
		Vnode:    vnode,
		Key:      key,
		Kind:     "double_insert",
		Observed: existing,
	})
}

// beforeDelete aborts if key is missing, or present with a value that
// disagrees with the caller's claimed old value: a delete-miss or an
// update-mismatch.
func (s *sanityVerifier) beforeDelete(ctx context.Context, store storekv.Handle, vnode uint16, key, claimedOld []byte, kind string) {
	if !s.enabled {
		return
	}
	existing, found, err := store.Get(ctx, key, storekv.ReadOptions{TableID: s.tableID})
	if err != nil {
		return
	}
	if !found {
		s.metrics.sanityViolation(kind)
		panic(&SanityViolation{TableID: s.tableID, Vnode: vnode, Key: key, Kind: kind, Expected: claimedOld})
	}
	if !bytes.Equal(existing, claimedOld) {
		s.metrics.sanityViolation(kind)
		panic(&SanityViolation{TableID: s.tableID, Vnode: vnode, Key: key, Kind: kind, Observed: existing, Expected: claimedOld})
	}
}
