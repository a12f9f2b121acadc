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

// Package boltkv is the persistent reference implementation of
// storekv.Handle. It stands in for the out-of-scope log-structured store:
// one bbolt bucket per table_id, values snappy-compressed before the put
// (mirroring the real store's sstable-level block compression) and a
// per-bucket bloom filter consulted ahead of a bbolt lookup when the
// caller asks for one (ReadOptions.CheckBloomFilter, derived from
// prefix_hint_len). SealCurrentEpoch is one bbolt read-write transaction:
// the delete-ranges and the staged writes land together or not at all.
package boltkv

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/snappy"
	"github.com/holiman/bloomfilter/v2"
	"github.com/pkg/errors"
	"github.com/tidwall/btree"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/flowstate/statetable/storekv"
)

var metaBucketName = []byte("_statetable_meta")

const bloomExpectedItems = 1 << 20
const bloomFalsePositiveRate = 0.01

type kvItem struct {
	key     string
	value   []byte
	deleted bool
}

func lessItem(a, b kvItem) bool { return a.key < b.key }

// Handle is a bbolt-backed storekv.Handle for one table_id within one
// database file. Multiple Handles may share a *bolt.DB (one bucket per
// table_id), matching spec.md §5 "the store is shared across tables (by
// table_id namespacing)".
type Handle struct {
	db         *bolt.DB
	ownsDB     bool
	bucketName []byte
	tableID    uint32
	pending    *btree.BTreeG[kvItem]
	bloom      *bloomfilter.Filter
	epoch      uint64
	log        *zap.SugaredLogger
}

// Open opens (creating if needed) a bbolt database at path and returns a
// Handle bound to tableID's bucket. The bloom filter is rebuilt from the
// bucket's existing keys so restarts don't regress point-lookup skipping.
//
// Open takes bbolt's file lock for the lifetime of the returned Handle
// (until Close). A process that needs handles for several table_ids
// backed by the same file should open the *bolt.DB once and call
// NewHandle per table_id instead of calling Open repeatedly, which would
// try (and, past Options.Timeout, fail) to re-acquire a lock it already
// holds.
func Open(path string, tableID uint32, logger *zap.SugaredLogger) (*Handle, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "boltkv: open")
	}
	h, err := NewHandle(db, tableID, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	h.ownsDB = true
	return h, nil
}

// NewHandle binds a Handle to tableID's bucket within an already-open
// *bolt.DB, for callers that share one database file across multiple
// table_ids (spec.md §5 "the store is shared across tables, by table_id
// namespacing"). The returned Handle's Close is a no-op: the caller owns
// db's lifecycle.
func NewHandle(db *bolt.DB, tableID uint32, logger *zap.SugaredLogger) (*Handle, error) {
	bucketName := []byte(fmt.Sprintf("table-%d", tableID))

	bloom, err := bloomfilter.NewOptimal(bloomExpectedItems, bloomFalsePositiveRate)
	if err != nil {
		return nil, errors.Wrap(err, "boltkv: new bloom filter")
	}

	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	h := &Handle{
		db:         db,
		bucketName: bucketName,
		tableID:    tableID,
		pending:    btree.NewBTreeG(lessItem),
		bloom:      bloom,
		log:        logger.With("table_id", tableID),
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		_, err = tx.CreateBucketIfNotExists(metaBucketName)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, _ []byte) error {
			h.bloom.Add(xxhash.Sum64(k))
			return nil
		})
	}); err != nil {
		return nil, errors.Wrap(err, "boltkv: prepare buckets")
	}
	return h, nil
}

// Close releases the handle's resources. Only a Handle returned by Open
// (which opened its own *bolt.DB) actually closes the database; a Handle
// built via NewHandle over a caller-supplied *bolt.DB leaves it open for
// the caller to close once, after every sibling Handle is done with it.
func (h *Handle) Close() error {
	if !h.ownsDB {
		return nil
	}
	return h.db.Close()
}

func (h *Handle) Init(_ context.Context, epoch uint64) error {
	if err := h.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucketName).Put(h.bucketName, encodeEpoch(epoch))
	}); err != nil {
		return errors.Wrap(err, "boltkv: init")
	}
	h.epoch = epoch
	h.log.Infow("initialized epoch", "epoch", epoch)
	return nil
}

func (h *Handle) Get(_ context.Context, key []byte, opts storekv.ReadOptions) ([]byte, bool, error) {
	if item, ok := h.pending.Get(kvItem{key: string(key)}); ok {
		if item.deleted {
			return nil, false, nil
		}
		return item.value, true, nil
	}
	if opts.CheckBloomFilter && !h.bloom.Contains(xxhash.Sum64(key)) {
		return nil, false, nil
	}
	var value []byte
	var found bool
	err := h.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(h.bucketName).Get(key)
		if raw == nil {
			return nil
		}
		found = true
		v, err := snappy.Decode(nil, raw)
		if err != nil {
			return errors.Wrap(err, "boltkv: snappy decode")
		}
		value = v
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, found, nil
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
	merged := make(map[string]kvItem)

	err := h.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(h.bucketName).Cursor()
		var k, raw []byte
		if r.Lower != nil {
			k, raw = c.Seek(r.Lower)
		} else {
			k, raw = c.First()
		}
		for ; k != nil; k, raw = c.Next() {
			if r.Upper != nil && bytes.Compare(k, r.Upper) >= 0 {
				break
			}
			v, err := snappy.Decode(nil, raw)
			if err != nil {
				return errors.Wrap(err, "boltkv: snappy decode")
			}
			merged[string(k)] = kvItem{key: string(k), value: v}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.pending.Ascend(kvItem{key: pivotKey(r.Lower)}, func(item kvItem) bool {
		if r.Upper != nil && item.key >= string(r.Upper) {
			return false
		}
		merged[item.key] = item
		return true
	})

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
	err := h.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(h.bucketName)
		for _, dr := range deleteRanges {
			if err := deleteRangeTx(b, dr); err != nil {
				return err
			}
		}

		var txErr error
		h.pending.Scan(func(item kvItem) bool {
			if item.deleted {
				txErr = b.Delete([]byte(item.key))
			} else {
				compressed := snappy.Encode(nil, item.value)
				txErr = b.Put([]byte(item.key), compressed)
				if txErr == nil {
					h.bloom.Add(xxhash.Sum64([]byte(item.key)))
				}
			}
			return txErr == nil
		})
		if txErr != nil {
			return txErr
		}
		return tx.Bucket(metaBucketName).Put(h.bucketName, encodeEpoch(next))
	})
	if err != nil {
		return errors.Wrap(err, "boltkv: seal_current_epoch")
	}
	h.pending = btree.NewBTreeG(lessItem)
	h.epoch = next
	h.log.Infow("sealed epoch", "epoch", next, "delete_ranges", len(deleteRanges))
	return nil
}

func deleteRangeTx(b *bolt.Bucket, dr storekv.DeleteRange) error {
	c := b.Cursor()
	var k []byte
	if dr.Lower != nil {
		k, _ = c.Seek(dr.Lower)
	} else {
		k, _ = c.First()
	}
	for k != nil {
		if dr.Upper != nil && bytes.Compare(k, dr.Upper) >= 0 {
			break
		}
		if err := c.Delete(); err != nil {
			return err
		}
		k, _ = c.Next()
	}
	return nil
}

func encodeEpoch(epoch uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], epoch)
	return buf[:]
}

func pivotKey(lower []byte) string {
	if lower == nil {
		return ""
	}
	return string(lower)
}
