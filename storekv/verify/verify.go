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

// Package verify implements the debug dual-backing decorator called out
// in spec.md's design notes (§9 "Dynamic dispatch"): every operation is
// routed to two storekv.Handle backings and their read results compared,
// so a divergence between (for example) the in-memory reference store and
// the bbolt-backed one surfaces as a test failure rather than silent data
// corruption. It is a testing aid, not a production code path.
package verify

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/flowstate/statetable/storekv"
)

// Mismatch describes one divergence between the primary and shadow
// backing caught by Handle.
type Mismatch struct {
	Op      string
	Key     []byte
	Primary []byte
	Shadow  []byte
}

func (m *Mismatch) Error() string {
	return fmt.Sprintf("verify: %s mismatch at key %x: primary=%x shadow=%x", m.Op, m.Key, m.Primary, m.Shadow)
}

// Handle wraps a primary storekv.Handle and a shadow one, applying every
// write and seal to both and comparing every read. Read results, IsDirty
// and Epoch are answered from primary; the shadow exists purely to be
// compared against, and a divergence is returned as a *Mismatch error.
type Handle struct {
	primary storekv.Handle
	shadow  storekv.Handle
}

// New returns a verifying Handle. primary's reads are authoritative;
// shadow is checked for agreement on every Get and Iter.
func New(primary, shadow storekv.Handle) *Handle {
	return &Handle{primary: primary, shadow: shadow}
}

func (h *Handle) Init(ctx context.Context, epoch uint64) error {
	if err := h.primary.Init(ctx, epoch); err != nil {
		return err
	}
	return h.shadow.Init(ctx, epoch)
}

func (h *Handle) Get(ctx context.Context, key []byte, opts storekv.ReadOptions) ([]byte, bool, error) {
	pv, pFound, err := h.primary.Get(ctx, key, opts)
	if err != nil {
		return nil, false, err
	}
	sv, sFound, err := h.shadow.Get(ctx, key, opts)
	if err != nil {
		return nil, false, err
	}
	if pFound != sFound || !bytes.Equal(pv, sv) {
		return nil, false, &Mismatch{Op: "get", Key: key, Primary: pv, Shadow: sv}
	}
	return pv, pFound, nil
}

func (h *Handle) Iter(ctx context.Context, r storekv.KeyRange, opts storekv.ReadOptions) (storekv.Iterator, error) {
	pit, err := h.primary.Iter(ctx, r, opts)
	if err != nil {
		return nil, err
	}
	sit, err := h.shadow.Iter(ctx, r, opts)
	if err != nil {
		return nil, err
	}
	return &verifyIterator{ctx: ctx, primary: pit, shadow: sit}, nil
}

func (h *Handle) Insert(key, newValue, oldValue []byte) error {
	if err := h.primary.Insert(key, newValue, oldValue); err != nil {
		return err
	}
	return h.shadow.Insert(key, newValue, oldValue)
}

func (h *Handle) Delete(key, oldValue []byte) error {
	if err := h.primary.Delete(key, oldValue); err != nil {
		return err
	}
	return h.shadow.Delete(key, oldValue)
}

func (h *Handle) IsDirty() bool { return h.primary.IsDirty() }

func (h *Handle) Epoch() uint64 { return h.primary.Epoch() }

func (h *Handle) SealCurrentEpoch(ctx context.Context, next uint64, deleteRanges []storekv.DeleteRange) error {
	if err := h.primary.SealCurrentEpoch(ctx, next, deleteRanges); err != nil {
		return err
	}
	if err := h.shadow.SealCurrentEpoch(ctx, next, deleteRanges); err != nil {
		return errors.Wrap(err, "verify: shadow seal diverged from primary")
	}
	return nil
}

type verifyIterator struct {
	ctx     context.Context
	primary storekv.Iterator
	shadow  storekv.Iterator
}

func (it *verifyIterator) Next(ctx context.Context) (storekv.KV, bool, error) {
	pkv, pok, err := it.primary.Next(ctx)
	if err != nil {
		return storekv.KV{}, false, err
	}
	skv, sok, err := it.shadow.Next(ctx)
	if err != nil {
		return storekv.KV{}, false, err
	}
	if pok != sok {
		return storekv.KV{}, false, &Mismatch{Op: "iter_ok", Primary: pkv.Key, Shadow: skv.Key}
	}
	if !pok {
		return storekv.KV{}, false, nil
	}
	if !bytes.Equal(pkv.Key, skv.Key) || !bytes.Equal(pkv.Value, skv.Value) {
		return storekv.KV{}, false, &Mismatch{Op: "iter", Key: pkv.Key, Primary: pkv.Value, Shadow: skv.Value}
	}
	return pkv, true, nil
}

func (it *verifyIterator) Close() error {
	pErr := it.primary.Close()
	sErr := it.shadow.Close()
	if pErr != nil {
		return pErr
	}
	return sErr
}
