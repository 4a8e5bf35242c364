// Copyright 2023 The Colossus Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package synchronizer

import (
	m "github.com/joystream/colossus/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	// all metrics fields must be exported
	// to be able to return them by Metrics()
	// using reflection
	Cycles            prometheus.Counter
	CycleFailures     prometheus.Counter
	ObjectsAdded      prometheus.Counter
	ObjectsDeleted    prometheus.Counter
	DownloadedBytes   prometheus.Counter
	DownloadFailures  prometheus.Counter
	LastCycleDuration prometheus.Gauge
}

func newMetrics() metrics {
	subsystem := "synchronizer"

	return metrics{
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "cycles",
			Help:      "Number of started sync cycles.",
		}),
		CycleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "cycle_failures",
			Help:      "Number of sync cycles that were aborted.",
		}),
		ObjectsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "objects_added",
			Help:      "Number of objects downloaded from other operators.",
		}),
		ObjectsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "objects_deleted",
			Help:      "Number of objects removed from the upload directory.",
		}),
		DownloadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "downloaded_bytes",
			Help:      "Total size of downloaded objects.",
		}),
		DownloadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "download_failures",
			Help:      "Number of failed object downloads.",
		}),
		LastCycleDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "last_cycle_duration_seconds",
			Help:      "Duration of the last completed sync cycle.",
		}),
	}
}

func (mt *metrics) collectors() []prometheus.Collector {
	return m.PrometheusCollectorsFromFields(*mt)
}

func (mt *metrics) objectDeleted() {
	if mt == nil {
		return
	}
	mt.ObjectsDeleted.Inc()
}

func (mt *metrics) objectDownloaded(size int64) {
	if mt == nil {
		return
	}
	mt.ObjectsAdded.Inc()
	mt.DownloadedBytes.Add(float64(size))
}

func (mt *metrics) downloadFailed() {
	if mt == nil {
		return
	}
	mt.DownloadFailures.Inc()
}
