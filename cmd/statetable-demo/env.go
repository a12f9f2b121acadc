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

package main

import (
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/flowstate/statetable"
	"github.com/flowstate/statetable/storekv"
	"github.com/flowstate/statetable/storekv/boltkv"
	"github.com/flowstate/statetable/storekv/memkv"
)

// demoEnv owns the storekv backend for the lifetime of one demo run. For
// --backend=bolt, boltDB is opened lazily on the first scenario and shared
// across every scenario's table_id (boltkv.NewHandle, not boltkv.Open, so
// each scenario gets its own bucket without re-acquiring bbolt's file lock).
type demoEnv struct {
	vnodes  uint16
	backend string
	dbPath  string
	boltDB  *bolt.DB
	logger  *zap.SugaredLogger
}

func newEnv(backend, dbPath string, vnodes uint16, cleaningPeriod int) (*demoEnv, error) {
	statetable.CleaningPeriod = cleaningPeriod
	return &demoEnv{vnodes: vnodes, backend: backend, dbPath: dbPath}, validateBackendFlag(backend, dbPath)
}

func validateBackendFlag(backend, dbPath string) error {
	switch backend {
	case "memkv", "bolt":
		return nil
	default:
		return errors.Errorf("unknown --backend %q (want memkv or bolt)", backend)
	}
}

// newHandle opens a storekv.Handle for one table scenario, named by
// tableID so multiple scenarios sharing a --backend=bolt database file
// land in distinct buckets of the same --db-path file (boltkv.go: "Multiple
// Handles may share a *bolt.DB, one bucket per table_id").
func (e *demoEnv) newHandle(tableID uint32, logger *zap.SugaredLogger) (storekv.Handle, error) {
	switch e.backend {
	case "memkv":
		return memkv.New(), nil
	case "bolt":
		if e.boltDB == nil {
			db, err := bolt.Open(e.dbPath, 0o600, &bolt.Options{Timeout: time.Second})
			if err != nil {
				return nil, errors.Wrap(err, "statetable-demo: open bolt db")
			}
			e.boltDB = db
		}
		return boltkv.NewHandle(e.boltDB, tableID, logger)
	default:
		return nil, errors.Errorf("unknown backend %q", e.backend)
	}
}

func (e *demoEnv) Close() {
	if e.boltDB != nil {
		_ = e.boltDB.Close()
	}
}
