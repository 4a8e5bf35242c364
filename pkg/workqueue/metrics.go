// Copyright 2023 The Colossus Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package workqueue

import (
	m "github.com/joystream/colossus/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	// all metrics fields must be exported
	// to be able to return them by Metrics()
	// using reflection
	TasksExecuted prometheus.Counter
	TasksFailed   prometheus.Counter
	InFlight      prometheus.Gauge
}

func newMetrics() metrics {
	subsystem := "workqueue"

	return metrics{
		TasksExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "tasks_executed",
			Help:      "Number of tasks that completed without error.",
		}),
		TasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "tasks_failed",
			Help:      "Number of tasks that returned an error.",
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "tasks_in_flight",
			Help:      "Number of tasks currently executing.",
		}),
	}
}

func (mt *metrics) collectors() []prometheus.Collector {
	return m.PrometheusCollectorsFromFields(*mt)
}
