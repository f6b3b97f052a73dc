// Copyright 2025 CorpusForge
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package preprocess

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsPreprocess holds Prometheus metrics for the pipeline.
type metricsPreprocess struct {
	once sync.Once

	// Outcomes
	samplesGood    prometheus.Counter
	samplesBad     prometheus.Counter
	samplesUgly    prometheus.Counter
	samplesSkipped prometheus.Counter

	// Sinks
	sinkRecords prometheus.Counter
	sinkMerges  prometheus.Counter

	// Durations
	transformDuration prometheus.Histogram
	mergeDuration     prometheus.Histogram
	totalDuration     prometheus.Histogram
}

var prepMetrics metricsPreprocess

func (m *metricsPreprocess) init() {
	m.once.Do(func() {
		m.samplesGood = prometheus.NewCounter(prometheus.CounterOpts{Name: "clprep_samples_good_total", Help: "Samples accepted into the corpus"})
		m.samplesBad = prometheus.NewCounter(prometheus.CounterOpts{Name: "clprep_samples_bad_total", Help: "Samples rejected as invalid code"})
		m.samplesUgly = prometheus.NewCounter(prometheus.CounterOpts{Name: "clprep_samples_ugly_total", Help: "Samples rejected as not useful"})
		m.samplesSkipped = prometheus.NewCounter(prometheus.CounterOpts{Name: "clprep_samples_skipped_total", Help: "Samples skipped as already processed"})

		m.sinkRecords = prometheus.NewCounter(prometheus.CounterOpts{Name: "clprep_sink_records_total", Help: "Records appended to worker sinks"})
		m.sinkMerges = prometheus.NewCounter(prometheus.CounterOpts{Name: "clprep_sink_merges_total", Help: "Sink files merged into the store"})

		buckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
		m.transformDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "clprep_transform_seconds", Help: "Per-sample transform duration", Buckets: buckets})
		m.mergeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "clprep_merge_seconds", Help: "Sink merge duration", Buckets: buckets})
		m.totalDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "clprep_total_seconds", Help: "Total run duration", Buckets: buckets})

		prometheus.MustRegister(
			m.samplesGood, m.samplesBad, m.samplesUgly, m.samplesSkipped,
			m.sinkRecords, m.sinkMerges,
			m.transformDuration, m.mergeDuration, m.totalDuration,
		)
	})
}

// record helpers - used by the pipeline for metrics tracking
func recordOutcome(s Status) {
	prepMetrics.init()
	switch s {
	case StatusGood:
		prepMetrics.samplesGood.Inc()
	case StatusBad:
		prepMetrics.samplesBad.Inc()
	case StatusUgly:
		prepMetrics.samplesUgly.Inc()
	}
}

func recordSkipped() { prepMetrics.init(); prepMetrics.samplesSkipped.Inc() }

func recordSinkRecord() { prepMetrics.init(); prepMetrics.sinkRecords.Inc() }

func recordSinkMerge() { prepMetrics.init(); prepMetrics.sinkMerges.Inc() }

func observeTransform(d time.Duration) {
	prepMetrics.init()
	prepMetrics.transformDuration.Observe(d.Seconds())
}

func observeMerge(d time.Duration) {
	prepMetrics.init()
	prepMetrics.mergeDuration.Observe(d.Seconds())
}

func observeTotal(d time.Duration) {
	prepMetrics.init()
	prepMetrics.totalDuration.Observe(d.Seconds())
}
