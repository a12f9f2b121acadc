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

// Package storekv defines the narrow capability the state table consumes
// from the external, log-structured key-value engine (spec §4.3 "Local
// Store Handle"). The state table depends on no other store surface: point
// get, range scan that transparently merges pending writes with committed
// contents, staged insert/delete, dirty/epoch introspection, and an atomic
// per-epoch seal that also applies delete-ranges.
//
// Two reference implementations live under this package: memkv (pure
// in-memory, used by tests) and boltkv (bbolt-backed, stands in for the
// real log-structured engine in the demo CLI and in persistence tests).
package storekv

import "context"

// ReadOptions mirrors spec §4.3's read_opts bag verbatim.
type ReadOptions struct {
	PrefixHint           []byte
	CheckBloomFilter     bool
	RetentionSeconds     *uint32
	TableID              uint32
	IgnoreRangeTombstone bool
	ReadFromBackup       bool
}

// KeyRange is a half-open byte range [Lower, Upper). A nil Upper means
// unbounded.
type KeyRange struct {
	Lower []byte
	Upper []byte
}

// DeleteRange is a half-open byte range handed to SealCurrentEpoch to be
// tombstoned atomically with the staged writes.
type DeleteRange struct {
	Lower []byte
	Upper []byte
}

// KV is one key/value pair yielded by an Iterator.
type KV struct {
	Key   []byte
	Value []byte
}

// Iterator walks key/value pairs in byte-lexicographic key order, merging
// any pending (uncommitted) writes with the committed contents of the
// store. It must be Closed after use.
type Iterator interface {
	// Next advances the iterator and reports whether a value was
	// produced; ok is false (with a nil error) once the range is
	// exhausted.
	Next(ctx context.Context) (kv KV, ok bool, err error)
	Close() error
}

// Handle is the capability the State Table Core consumes from the store
// (spec §4.3). Exactly one Handle exists per (table_id, owning operator);
// it is a small, non-owning value that refers to shared backing storage
// with its own lifecycle — never pass the backing store itself around by
// pointer-to-interface cycles; pass this handle.
type Handle interface {
	// Init binds the handle to a starting epoch. Called once.
	Init(ctx context.Context, epoch uint64) error

	// Get performs a point lookup, merging any pending write for key with
	// the committed value.
	Get(ctx context.Context, key []byte, opts ReadOptions) (value []byte, found bool, err error)

	// Iter opens an ordered iterator over r, merging pending writes with
	// committed contents.
	Iter(ctx context.Context, r KeyRange, opts ReadOptions) (Iterator, error)

	// Insert stages an upsert. oldValue is an optional sanity hint; nil
	// means "not provided".
	Insert(key, newValue, oldValue []byte) error

	// Delete stages a tombstone. oldValue is required by the sanity
	// verifier contract (spec §4.3), though a storekv implementation
	// itself does not have to validate it — that's the debug verifier's
	// job, layered above this capability.
	Delete(key, oldValue []byte) error

	// IsDirty reports whether any op has been staged since the last seal.
	IsDirty() bool

	// Epoch returns the epoch this handle currently believes it is at.
	Epoch() uint64

	// SealCurrentEpoch atomically flushes staged writes plus deleteRanges,
	// then advances to next.
	SealCurrentEpoch(ctx context.Context, next uint64, deleteRanges []DeleteRange) error
}
