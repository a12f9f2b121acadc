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

//go:build !debug

package statetable

import (
	"context"

	"github.com/flowstate/statetable/storekv"
)

// sanityVerifier is a zero-size no-op in release builds: every call below
// compiles away to nothing, so production incurs none of the debug
// build's read-before-write cost (spec §9 "keep the verifier behind a
// compile-time switch so release builds incur zero overhead").
type sanityVerifier struct{}

func newSanityVerifier(uint32, bool, *tableMetrics) *sanityVerifier { return &sanityVerifier{} }

func (s *sanityVerifier) beforeInsert(context.Context, storekv.Handle, uint16, []byte) {}

func (s *sanityVerifier) beforeDelete(context.Context, storekv.Handle, uint16, []byte, []byte, string) {
}
