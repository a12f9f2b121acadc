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

	"github.com/flowstate/statetable/storekv"
)

// sliceIterator walks a pre-merged, already-sorted snapshot. Iter builds
// the whole merge eagerly since memkv is meant to be fast and small, not
// to scale to ranges that don't fit in memory.
type sliceIterator struct {
	items []storekv.KV
	pos   int
}

func (it *sliceIterator) Next(_ context.Context) (storekv.KV, bool, error) {
	if it.pos >= len(it.items) {
		return storekv.KV{}, false, nil
	}
	kv := it.items[it.pos]
	it.pos++
	return kv, true, nil
}

func (it *sliceIterator) Close() error { return nil }
