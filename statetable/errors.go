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
	"fmt"

	"github.com/pkg/errors"
)

// CodecError wraps a row<->bytes (de)serialization failure: malformed
// bytes, or a schema mismatch discovered while decoding.
type CodecError struct {
	Op  string
	Err error
}

func (e *CodecError) Error() string { return fmt.Sprintf("codec error in %s: %v", e.Op, e.Err) }
func (e *CodecError) Unwrap() error { return e.Err }

func newCodecError(op string, err error) error {
	return &CodecError{Op: op, Err: errors.WithStack(err)}
}

// ContractViolation reports a caller-detectable misuse of the table API
// that is returned (not panicked) because it can be checked before any
// mutation is staged: a chunk whose ops/rows lengths disagree, an epoch
// pair that doesn't advance from the store's current epoch, a vnode bitmap
// of the wrong size, and the like. See spec §7.
type ContractViolation struct {
	Reason string
}

func (e *ContractViolation) Error() string { return "contract violation: " + e.Reason }

func newContractViolation(format string, args ...interface{}) error {
	return &ContractViolation{Reason: fmt.Sprintf(format, args...)}
}

// StorageError wraps a failure returned by the underlying storekv.Handle.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage error in %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

func newStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// ErrSealCancelled is returned by Commit when seal_current_epoch's context
// is cancelled mid-flight. Per spec §5 this is treated as fatal by the
// caller: the store's durability state is no longer known to match the
// operator's in-memory state, and the scheduler must restart the operator
// from the prior epoch's checkpoint.
var ErrSealCancelled = errors.New("statetable: seal_current_epoch cancelled, operator must restart")

// SanityViolation is the diagnostic payload carried by the panic the
// debug-only sanity verifier raises on a double-insert, delete-miss, or
// update-mismatch. It is never constructed in release builds.
type SanityViolation struct {
	TableID  uint32
	Vnode    uint16
	Key      []byte
	Kind     string
	Observed []byte
	Expected []byte
}

func (v *SanityViolation) Error() string {
	return fmt.Sprintf("sanity violation [%s]: table=%d vnode=%d key=%x observed=%x expected=%x",
		v.Kind, v.TableID, v.Vnode, v.Key, v.Observed, v.Expected)
}

// fatalf panics with a ContractViolation for the invariants spec §7 marks
// as unconditionally fatal regardless of build (write outside an owned
// vnode, rebind while dirty): these indicate a scheduler-level bug that
// must not be allowed to silently corrupt committed state.
func fatalf(format string, args ...interface{}) {
	panic(&ContractViolation{Reason: fmt.Sprintf(format, args...)})
}
