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

	"github.com/flowstate/statetable/storekv"
)

// RowIter is a lazy, restartable sequence of decoded rows. It carries no
// server-side cursor state beyond the underlying storekv.Iterator: Close
// may be called at any time without exhausting the sequence, and a fresh
// Iter/IterRange call with the same arguments always re-derives the same
// range deterministically (spec.md's original_source notes that the
// RisingWave iterators must tolerate being paused across scheduler await
// points; this Go port achieves the same property by simply not holding
// any state Close doesn't already clean up).
type RowIter struct {
	desc *TableDescriptor
	it   storekv.Iterator
}

// Next advances the iterator, returning the decoded row and its vnode. ok
// is false with a nil error once the range is exhausted.
func (r *RowIter) Next(ctx context.Context) (row Row, vnode uint16, ok bool, err error) {
	kv, ok, err := r.it.Next(ctx)
	if err != nil {
		return nil, 0, false, newStorageError("iter", err)
	}
	if !ok {
		return nil, 0, false, nil
	}
	vnode, pkRow, err := DecodePKWithVnode(r.desc, kv.Key)
	if err != nil {
		return nil, 0, false, err
	}
	valRow, err := DeserializeValue(r.desc, kv.Value, r.desc.ValueIndices)
	if err != nil {
		return nil, 0, false, err
	}
	for i, idx := range r.desc.PKIndices {
		valRow[idx] = pkRow[i]
	}
	return valRow, vnode, true, nil
}

// Close releases the underlying store iterator.
func (r *RowIter) Close() error { return r.it.Close() }
