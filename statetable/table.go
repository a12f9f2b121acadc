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

// This file is the State Table Core (spec §4.4) plus the Epoch Coordinator
// (spec §4.5): the schema-bound view over one logical table partition that
// operators actually call, and the thin two-phase commit driver sitting on
// top of the Local Store Handle.
package statetable

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/flowstate/statetable/storekv"
)

// state is the per-instance lifecycle (spec §4.6): Uninit -> Open ->
// Committing -> Open ... -> Rebinding -> Open.
type state uint8

const (
	stateUninit state = iota
	stateOpen
	stateCommitting
	stateRebinding
)

// Table is a schema-bound, single-writer view over one logical table
// partition. It is not safe for concurrent use: the owning operator task
// is the sole mutator (spec §5).
type Table struct {
	desc    *TableDescriptor
	store   storekv.Handle
	vnodes  *VnodeBitmap
	sanity  *sanityVerifier
	metrics *tableMetrics
	log     *zap.SugaredLogger

	epoch EpochPair
	st    state

	curWatermark     *Datum
	lastWatermark    *Datum
	commitsSinceClean int
}

// FromDescriptor builds a Table instance from an immutable descriptor, a
// store handle, and the vnode bitmap this instance owns. When vnodes is
// nil it defaults to SingletonVnodeBitmap(desc.VnodeCount) if the table has
// no distribution key (spec §3 "empty means singleton"), and to
// FullVnodeBitmap(desc.VnodeCount) otherwise.
func FromDescriptor(desc *TableDescriptor, store storekv.Handle, vnodes *VnodeBitmap, logger *zap.SugaredLogger) (*Table, error) {
	if err := desc.Validate(); err != nil {
		return nil, errors.Wrap(err, "from_descriptor")
	}
	nd := desc.normalize()

	if vnodes == nil {
		if len(nd.DistKeyIndices) == 0 {
			vnodes = SingletonVnodeBitmap(nd.VnodeCount)
		} else {
			vnodes = FullVnodeBitmap(nd.VnodeCount)
		}
	}
	if vnodes.Size() != nd.VnodeCount {
		return nil, errors.Errorf("from_descriptor: vnode bitmap size %d != table vnode count %d", vnodes.Size(), nd.VnodeCount)
	}
	if len(nd.DistKeyIndices) == 0 && nd.VnodeColumnInPK == NoColumn {
		singleton := SingletonVnodeBitmap(nd.VnodeCount)
		if !vnodes.Equals(singleton) {
			return nil, errors.New("from_descriptor: singleton table (no dist key) must own only vnode 0")
		}
	}

	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	metrics := newTableMetrics(nd.TableID)

	return &Table{
		desc:    nd,
		store:   store,
		vnodes:  vnodes,
		sanity:  newSanityVerifier(nd.TableID, nd.DisableSanityCheck, metrics),
		metrics: metrics,
		log:     logger.With("table_id", nd.TableID),
		st:      stateUninit,
	}, nil
}

// InitEpoch binds the instance (and its store handle) to a starting
// epoch. Spec §4.6: Uninit -> Open.
func (t *Table) InitEpoch(ctx context.Context, ep EpochPair) error {
	if t.st != stateUninit {
		return newContractViolation("init_epoch called outside Uninit state")
	}
	if err := t.store.Init(ctx, ep.Curr); err != nil {
		return newStorageError("init_epoch", err)
	}
	t.epoch = ep
	t.st = stateOpen
	t.log.Infow("initialized epoch", "epoch", ep)
	return nil
}

// Epoch returns the epoch pair this instance currently believes it is at.
func (t *Table) Epoch() EpochPair { return t.epoch }

// Descriptor returns the normalized descriptor backing this instance.
func (t *Table) Descriptor() *TableDescriptor { return t.desc }

// Vnodes returns the bitmap of vnodes this instance owns.
func (t *Table) Vnodes() *VnodeBitmap { return t.vnodes }

// IsDirty reports whether any write has been staged since the last seal.
func (t *Table) IsDirty() bool { return t.store.IsDirty() }

func (t *Table) requireOpen(op string) error {
	if t.st != stateOpen {
		return newContractViolation("%s called while table is not Open (state=%d)", op, t.st)
	}
	return nil
}

// --- point operations (spec §4.4) ----------------------------------------

// GetRow performs a point lookup from a (possibly partial) pk prefix. The
// prefix must carry enough leading pk columns to resolve the vnode: either
// all of dist_key_in_pk_indices / vnode_column_in_pk, in which case any
// proper prefix is fine, or — in the common case where those columns lead
// the pk — simply at least that many columns.
func (t *Table) GetRow(ctx context.Context, pkPrefix Row) (Row, error) {
	if err := t.requireOpen("get_row"); err != nil {
		return nil, err
	}
	if len(pkPrefix) > len(t.desc.PKIndices) {
		return nil, newContractViolation("get_row: prefix length %d exceeds pk length %d", len(pkPrefix), len(t.desc.PKIndices))
	}
	vnode, err := t.vnodeFromPKPrefix(pkPrefix)
	if err != nil {
		return nil, err
	}
	keyBytes, err := EncodePKPrefix(t.desc, pkPrefix)
	if err != nil {
		return nil, err
	}
	vnodePrefix := make([]byte, t.desc.VnodeBytes)
	putVnode(vnodePrefix, vnode)
	key := concat(vnodePrefix, keyBytes)

	opts := storekv.ReadOptions{TableID: t.desc.TableID, RetentionSeconds: t.desc.RetentionSeconds}
	if t.desc.PrefixHintLen > 0 && t.desc.PrefixHintLen == len(pkPrefix) {
		opts.CheckBloomFilter = true
		opts.PrefixHint = key
	}

	val, found, err := t.store.Get(ctx, key, opts)
	if err != nil {
		return nil, newStorageError("get_row", err)
	}
	if !found {
		return nil, nil
	}
	return t.assembleRow(pkPrefix, val)
}

// MayExist reports whether a row exists for pkPrefix. It always performs a
// full GetRow (which passes the bloom-filter hint to the store when
// PrefixHintLen matches the prefix length), so its answer is exact; it has
// no cheaper bloom-only path (recovered from original_source's
// `may_exist`, see DESIGN.md).
func (t *Table) MayExist(ctx context.Context, pkPrefix Row) (bool, error) {
	row, err := t.GetRow(ctx, pkPrefix)
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

// assembleRow splices the decoded value back together with the pk columns
// supplied by the caller (and any pk columns also present as value
// columns are simply overwritten by the authoritative value-decoded
// copy, matching DeserializeValue's convention of only populating
// value-projected indices).
func (t *Table) assembleRow(pkPrefix Row, val []byte) (Row, error) {
	full, err := DeserializeValue(t.desc, val, t.desc.ValueIndices)
	if err != nil {
		return nil, err
	}
	for i, d := range pkPrefix {
		full[t.desc.PKIndices[i]] = d
	}
	return full, nil
}

// Insert stages an upsert for a newly-inserted row.
func (t *Table) Insert(ctx context.Context, row Row) error {
	if err := t.requireOpen("insert"); err != nil {
		return err
	}
	return t.stageInsert(ctx, row, nil)
}

// Delete stages a tombstone for oldRow.
func (t *Table) Delete(ctx context.Context, oldRow Row) error {
	if err := t.requireOpen("delete"); err != nil {
		return err
	}
	return t.stageDelete(ctx, oldRow, "delete_miss")
}

// Update stages the delete-then-insert pair for a row whose pk is
// unchanged. oldRow and newRow must share the same pk; this is checked in
// every build and a mismatch returns a ContractViolation.
func (t *Table) Update(ctx context.Context, oldRow, newRow Row) error {
	if err := t.requireOpen("update"); err != nil {
		return err
	}
	if err := t.assertSamePK(oldRow, newRow); err != nil {
		return err
	}
	if err := t.stageDelete(ctx, oldRow, "update_mismatch"); err != nil {
		return err
	}
	return t.stageInsert(ctx, newRow, nil)
}

func (t *Table) assertSamePK(oldRow, newRow Row) error {
	for _, idx := range t.desc.PKIndices {
		if oldRow[idx] != newRow[idx] {
			return newContractViolation("update: pk column %d differs between old (%v) and new (%v) row", idx, oldRow[idx], newRow[idx])
		}
	}
	return nil
}

func (t *Table) stageInsert(ctx context.Context, row Row, oldValueHint []byte) error {
	vnode, key, value, err := t.encodeRow(row)
	if err != nil {
		return err
	}
	if !t.vnodes.Contains(vnode) {
		fatalf("insert: row hashes to vnode %d which is not owned by this instance (table_id=%d)", vnode, t.desc.TableID)
	}
	t.sanity.beforeInsert(ctx, t.store, vnode, key)
	if err := t.store.Insert(key, value, oldValueHint); err != nil {
		return newStorageError("insert", err)
	}
	return nil
}

func (t *Table) stageDelete(ctx context.Context, row Row, sanityKind string) error {
	vnode, key, value, err := t.encodeRow(row)
	if err != nil {
		return err
	}
	if !t.vnodes.Contains(vnode) {
		fatalf("delete: row hashes to vnode %d which is not owned by this instance (table_id=%d)", vnode, t.desc.TableID)
	}
	t.sanity.beforeDelete(ctx, t.store, vnode, key, value, sanityKind)
	if err := t.store.Delete(key, value); err != nil {
		return newStorageError("delete", err)
	}
	return nil
}

func (t *Table) encodeRow(row Row) (vnode uint16, key, value []byte, err error) {
	vnode, err = vnodeOf(t.desc, row)
	if err != nil {
		return 0, nil, nil, err
	}
	pkRow := row.Project(t.desc.PKIndices)
	key, err = EncodePKWithVnode(t.desc, pkRow, vnode)
	if err != nil {
		return 0, nil, nil, err
	}
	value, err = SerializeValue(t.desc, row, t.desc.ValueIndices)
	if err != nil {
		return 0, nil, nil, err
	}
	return vnode, key, value, nil
}

// vnodeFromPKPrefix computes the vnode from a (possibly partial) pk
// prefix. If the distribution key isn't fully contained in the supplied
// prefix, the vnode cannot be resolved and this returns a contract
// violation: callers must supply enough leading pk columns.
func (t *Table) vnodeFromPKPrefix(pkPrefix Row) (uint16, error) {
	full := make(Row, len(t.desc.Columns))
	needed := t.distNeededIndices()
	have := make(map[int]bool, len(pkPrefix))
	for i, d := range pkPrefix {
		col := t.desc.PKIndices[i]
		full[col] = d
		have[col] = true
	}
	for _, col := range needed {
		if !have[col] {
			return 0, newContractViolation("pk prefix of length %d does not cover the distribution key; cannot resolve vnode", len(pkPrefix))
		}
	}
	return vnodeOf(t.desc, full)
}

// distNeededIndices returns the global column indices vnodeOf actually
// reads: either the vnode_column_in_pk column, or the dist key columns.
func (t *Table) distNeededIndices() []int {
	if t.desc.VnodeColumnInPK != NoColumn {
		return []int{t.desc.PKIndices[t.desc.VnodeColumnInPK]}
	}
	return t.desc.DistKeyIndices
}

// --- chunk write (spec §4.4) ---------------------------------------------

// WriteChunk applies a batch of ops aligned 1:1 with rows. Rows that hash
// to a vnode outside this instance's owned bitmap are silently dropped
// (spec §3 "write-chunk respects vnode bitmap").
func (t *Table) WriteChunk(ctx context.Context, ops []RowOp, rows []Row) error {
	if err := t.requireOpen("write_chunk"); err != nil {
		return err
	}
	if len(ops) != len(rows) {
		return newContractViolation("write_chunk: ops length %d != rows length %d", len(ops), len(rows))
	}
	vnodes, err := computeChunkVnodes(t.desc, rows)
	if err != nil {
		return err
	}
	vis := computeVisibility(t.vnodes, vnodes)

	var pendingOld Row
	for i, op := range ops {
		if !vis.Test(uint(i)) {
			continue
		}
		row := rows[i]
		switch op {
		case OpInsert:
			if err := t.stageInsert(ctx, row, nil); err != nil {
				return err
			}
		case OpDelete:
			if err := t.stageDelete(ctx, row, "delete_miss"); err != nil {
				return err
			}
		case OpUpdateDelete:
			pendingOld = row
		case OpUpdateInsert:
			if pendingOld == nil {
				return newContractViolation("write_chunk: UpdateInsert at index %d with no preceding UpdateDelete", i)
			}
			if err := t.assertSamePK(pendingOld, row); err != nil {
				return err
			}
			if err := t.stageDelete(ctx, pendingOld, "update_mismatch"); err != nil {
				return err
			}
			if err := t.stageInsert(ctx, row, nil); err != nil {
				return err
			}
			pendingOld = nil
		default:
			return newContractViolation("write_chunk: unknown op %v at index %d", op, i)
		}
	}
	return nil
}

// --- range scan (spec §4.4) -----------------------------------------------

// Iter scans every row sharing pkPrefix, in ascending byte-lex key order
// within the vnode pkPrefix resolves to.
func (t *Table) Iter(ctx context.Context, pkPrefix Row) (*RowIter, error) {
	if err := t.requireOpen("iter"); err != nil {
		return nil, err
	}
	vnode, err := t.vnodeFromPKPrefix(pkPrefix)
	if err != nil {
		return nil, err
	}
	prefixBytes, err := EncodePKPrefix(t.desc, pkPrefix)
	if err != nil {
		return nil, err
	}
	r := t.desc.prefixRange(vnode, prefixBytes)
	return t.openIter(ctx, r)
}

// IterRange scans a caller-named vnode over a (lower, upper) bound pair
// expressed in pk-prefix terms (spec §4.4 "Range form"). A single scan is
// confined to one vnode; fanning out across owned vnodes is the caller's
// responsibility.
func (t *Table) IterRange(ctx context.Context, lower, upper Bound, vnode uint16) (*RowIter, error) {
	if err := t.requireOpen("iter_range"); err != nil {
		return nil, err
	}
	if !t.vnodes.Contains(vnode) {
		return nil, newContractViolation("iter_range: vnode %d is not owned by this instance", vnode)
	}
	r, err := t.desc.toByteRange(lower, upper, vnode)
	if err != nil {
		return nil, err
	}
	return t.openIter(ctx, r)
}

func (t *Table) openIter(ctx context.Context, r storekv.KeyRange) (*RowIter, error) {
	opts := storekv.ReadOptions{TableID: t.desc.TableID, RetentionSeconds: t.desc.RetentionSeconds}
	it, err := t.store.Iter(ctx, r, opts)
	if err != nil {
		return nil, newStorageError("iter", err)
	}
	return &RowIter{desc: t.desc, it: it}, nil
}

// --- watermark & retention (spec §4.4) ------------------------------------

// UpdateWatermark records a new watermark value for the configured
// watermark column. w must be monotonically non-decreasing under that
// column's declared order; violations are a programming error.
func (t *Table) UpdateWatermark(w Datum) error {
	col, order, ok := t.desc.watermarkColumn()
	if !ok {
		return newContractViolation("update_watermark: table %d has no watermark column configured", t.desc.TableID)
	}
	if t.curWatermark != nil {
		cmp, err := compareWatermark(col, order, w, *t.curWatermark)
		if err != nil {
			return err
		}
		if cmp < 0 {
			return newContractViolation("update_watermark: new watermark %v is less than current %v", w, *t.curWatermark)
		}
	}
	t.curWatermark = &w
	return nil
}

// Commit drives the two-phase pattern (spec §4.4, §4.5): assert the store
// is at the expected prior epoch, compute watermark-derived delete ranges,
// and seal. On success the instance's epoch advances to ep.Curr.
func (t *Table) Commit(ctx context.Context, ep EpochPair) error {
	if err := t.requireOpen("commit"); err != nil {
		return err
	}
	if t.store.Epoch() != ep.Prev {
		return newContractViolation("commit: store epoch %d != expected prev %d", t.store.Epoch(), ep.Prev)
	}
	t.st = stateCommitting

	ranges, err := t.computeDeleteRanges()
	if err != nil {
		t.st = stateOpen
		return err
	}

	if err := t.seal(ctx, ep.Curr, ranges); err != nil {
		// Per spec §4.6, an error in Committing is terminal for the
		// instance; the operator tears down, so the state is
		// deliberately left as Committing rather than reverted.
		return err
	}

	t.epoch = ep
	t.st = stateOpen
	t.metrics.commit()
	t.log.Infow("committed epoch", "epoch", ep, "delete_ranges", len(ranges))
	return nil
}

// CommitNoDataExpected advances the epoch for a read-only table with no
// pending writes and no delete ranges. Fatal if the instance is dirty.
func (t *Table) CommitNoDataExpected(ctx context.Context, ep EpochPair) error {
	if err := t.requireOpen("commit_no_data_expected"); err != nil {
		return err
	}
	if t.store.Epoch() != ep.Prev {
		return newContractViolation("commit_no_data_expected: store epoch %d != expected prev %d", t.store.Epoch(), ep.Prev)
	}
	if t.IsDirty() {
		fatalf("commit_no_data_expected: table %d has pending writes", t.desc.TableID)
	}
	t.st = stateCommitting
	if err := t.seal(ctx, ep.Curr, nil); err != nil {
		return err
	}
	t.epoch = ep
	t.st = stateOpen
	return nil
}

func (t *Table) seal(ctx context.Context, next uint64, ranges []storekv.DeleteRange) error {
	select {
	case <-ctx.Done():
		return ErrSealCancelled
	default:
	}
	if err := t.store.SealCurrentEpoch(ctx, next, ranges); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return ErrSealCancelled
		}
		return newStorageError("seal_current_epoch", err)
	}
	return nil
}

// computeDeleteRanges implements spec §4.4 step 2: coalesce watermark
// advances over CleaningPeriod commits, then emit one delete-range per
// owned vnode spanning [last_watermark, cur_watermark).
func (t *Table) computeDeleteRanges() ([]storekv.DeleteRange, error) {
	if t.curWatermark == nil {
		return nil, nil
	}
	t.commitsSinceClean++
	t.metrics.setHasWatermark(true)
	if t.commitsSinceClean < CleaningPeriod {
		return nil, nil
	}

	col, order, ok := t.desc.watermarkColumn()
	if !ok {
		return nil, nil
	}
	loSuffix, err := watermarkSuffix(col, order, t.lastWatermark)
	if err != nil {
		return nil, err
	}
	hiSuffix, err := watermarkSuffix(col, order, t.curWatermark)
	if err != nil {
		return nil, err
	}

	var ranges []storekv.DeleteRange
	t.vnodes.Each(func(v uint16) {
		vnodePrefix := make([]byte, t.desc.VnodeBytes)
		putVnode(vnodePrefix, v)
		ranges = append(ranges, storekv.DeleteRange{
			Lower: concat(vnodePrefix, loSuffix),
			Upper: concat(vnodePrefix, hiSuffix),
		})
	})

	t.lastWatermark = t.curWatermark
	t.commitsSinceClean = 0
	t.metrics.deleteRanges(len(ranges))
	t.log.Infow("watermark cleaning", "ranges", len(ranges))
	return ranges, nil
}

// --- vnode rebinding (spec §4.4) ------------------------------------------

// UpdateVnodeBitmap replaces the bitmap this instance owns, returning the
// previous bitmap so the caller can invalidate caches for evicted vnodes.
// Fatal (panics) if the instance has pending writes. A bitmap of a
// different size is not fatal: it returns a contract violation, as does a
// new bitmap that differs for a singleton table (singleton invariance,
// spec §4.4).
func (t *Table) UpdateVnodeBitmap(newBitmap *VnodeBitmap) (*VnodeBitmap, error) {
	if err := t.requireOpen("update_vnode_bitmap"); err != nil {
		return nil, err
	}
	if t.IsDirty() {
		fatalf("update_vnode_bitmap: table %d has pending writes", t.desc.TableID)
	}
	if newBitmap.Size() != t.vnodes.Size() {
		return nil, newContractViolation("update_vnode_bitmap: new bitmap size %d != current size %d", newBitmap.Size(), t.vnodes.Size())
	}
	if len(t.desc.DistKeyIndices) == 0 && t.desc.VnodeColumnInPK == NoColumn {
		if !newBitmap.Equals(t.vnodes) {
			return nil, newContractViolation("update_vnode_bitmap: singleton table must keep owning only vnode 0")
		}
	}
	t.st = stateRebinding
	prev := t.vnodes
	t.vnodes = newBitmap
	t.curWatermark = nil
	t.lastWatermark = nil
	t.commitsSinceClean = 0
	t.metrics.setHasWatermark(false)
	t.st = stateOpen
	t.log.Infow("rebound vnode bitmap")
	return prev, nil
}
