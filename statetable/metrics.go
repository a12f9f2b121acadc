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
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	commitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "statetable",
		Name:      "commits_total",
		Help:      "Number of epochs committed per table.",
	}, []string{"table_id"})

	deleteRangesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "statetable",
		Name:      "delete_ranges_total",
		Help:      "Number of watermark-driven delete-ranges emitted per table.",
	}, []string{"table_id"})

	sanityViolationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "statetable",
		Name:      "sanity_violations_total",
		Help:      "Number of debug sanity-verifier trips per table (should be zero outside test/staging).",
	}, []string{"table_id", "kind"})

	hasWatermark = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "statetable",
		Name:      "has_watermark",
		Help:      "1 if the table has observed a watermark since the last rebind, else 0.",
	}, []string{"table_id"})
)

func registerMetricsOnce() {
	metricsOnce.Do(func() {
		prometheus.MustRegister(commitsTotal, deleteRangesTotal, sanityViolationsTotal, hasWatermark)
	})
}

type tableMetrics struct {
	tableID string
}

func newTableMetrics(tableID uint32) *tableMetrics {
	registerMetricsOnce()
	return &tableMetrics{tableID: strconv.FormatUint(uint64(tableID), 10)}
}

func (m *tableMetrics) commit()                     { commitsTotal.WithLabelValues(m.tableID).Inc() }
func (m *tableMetrics) deleteRanges(n int)           { deleteRangesTotal.WithLabelValues(m.tableID).Add(float64(n)) }
func (m *tableMetrics) sanityViolation(kind string)  { sanityViolationsTotal.WithLabelValues(m.tableID, kind).Inc() }
func (m *tableMetrics) setHasWatermark(has bool) {
	v := 0.0
	if has {
		v = 1.0
	}
	hasWatermark.WithLabelValues(m.tableID).Set(v)
}
