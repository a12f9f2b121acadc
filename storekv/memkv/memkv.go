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

// Package memkv is the fast, pure in-memory reference implementation of
// storekv.Handle: a pending-write buffer over a committed snapshot, both
// kept in byte-lexicographic key order via tidwall/btree. Iter collects the
// in-range items of both trees into one map (pending entries replacing
// committed ones), drops tombstones and sorts the remaining keys (spec.md
// §4.3, §5 ordering guarantees).
// It is the backing used by the statetable package tests.
package memkv

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/tidwall/btree"

	"github.com/flowstate/statetable/storekv"
)

type kvItem struct {
	key     string
	value   []byte
	deleted bool
}

func lessItem(a, b kvItem) bool { return a.key < b.key }

// Handle is a single-writer, in-process storekv.Handle.
type Handle struct {
	committed *btree.BTreeG[kvItem]
	pending   *btree.BTreeG[kvItem]
	epoch     uint64
	inited    bool
}

// New returns an empty Handle.
func New() *Handle {
	return &Handle{
		committed: btree.NewBTreeG(lessItem),
		pending:   btree.NewBTreeG(lessItem),
	}
}

func (h *Handle) Init(_ context.Context, epoch uint64) error {
	h.epoch = epoch
	h.inited = true
	return nil
}

func (h *Handle) Get(_ context.Context, key []byte, _ storekv.ReadOptions) ([]byte, bool, error) {
	if item, ok := h.pending.Get(kvItem{key: string(key)}); ok {
		if item.deleted {
			return nil, false, nil
		}
		return item.value, true, nil
	}
	if item, ok := h.committed.Get(kvItem{key: string(key)}); ok {
		return item.value, true, nil
	}
	return nil, false, nil
}

func (h *Handle) Insert(key, newValue, _ []byte) error {
	h.pending.Set(kvItem{key: string(key), value: append([]byte(nil), newValue...)})
	return nil
}

func (h *Handle) Delete(key, _ []byte) error {
	h.pending.Set(kvItem{key: string(key), deleted: true})
	return nil
}

func (h *Handle) IsDirty() bool { return h.pending.Len() > 0 }

func (h *Handle) Epoch() uint64 { return h.epoch }

func (h *Handle) Iter(_ context.Context, r storekv.KeyRange, _ storekv.ReadOptions) (storekv.Iterator, error) {
	// Ascend starts at the pivot, so every visited item already satisfies
	// the lower bound; only the upper bound needs checking per item.
	collect := func(t *btree.BTreeG[kvItem], into map[string]kvItem) {
		t.Ascend(kvItem{key: pivotKey(r.Lower)}, func(item kvItem) bool {
			if r.Upper != nil && item.key >= string(r.Upper) {
				return false
			}
			into[item.key] = item
			return true
		})
	}

	merged := make(map[string]kvItem)
	collect(h.committed, merged)
	collect(h.pending, merged)

	keys := make([]string, 0, len(merged))
	for k, item := range merged {
		if item.deleted {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]storekv.KV, 0, len(keys))
	for _, k := range keys {
		out = append(out, storekv.KV{Key: []byte(k), Value: merged[k].value})
	}
	return &sliceIterator{items: out}, nil
}

func (h *Handle) SealCurrentEpoch(_ context.Context, next uint64, deleteRanges []storekv.DeleteRange) error {
	if !h.inited {
		return errors.New("memkv: seal_current_epoch called before init")
	}
	for _, dr := range deleteRanges {
		var toDelete []string
		h.committed.Ascend(kvItem{key: pivotKey(dr.Lower)}, func(item kvItem) bool {
			if dr.Upper != nil && item.key >= string(dr.Upper) {
				return false
			}
			if dr.Lower != nil && item.key < string(dr.Lower) {
				return true
			}
			toDelete = append(toDelete, item.key)
			return true
		})
		for _, k := range toDelete {
			h.committed.Delete(kvItem{key: k})
		}
	}

	h.pending.Scan(func(item kvItem) bool {
		if item.deleted {
			h.committed.Delete(kvItem{key: item.key})
		} else {
			h.committed.Set(item)
		}
		return true
	})
	h.pending = btree.NewBTreeG(lessItem)
	h.epoch = next
	return nil
}

func pivotKey(lower []byte) string {
	if lower == nil {
		return ""
	}
	return string(lower)
}

