// Copyright 2023 The Colossus Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package workqueue

import (
	"context"

	"github.com/joystream/colossus/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// Spawner drains a source with a fixed number of processors.
type Spawner struct {
	logger  logging.Logger
	active  atomic.Int32
	metrics metrics
}

func NewSpawner(logger logging.Logger) *Spawner {
	return &Spawner{
		logger:  logger,
		metrics: newMetrics(),
	}
}

// Run starts n processors that exit once the source is empty and waits for
// all of them. A task that adds follow-up tasks to the source is always
// followed by another Get from the same processor, so nothing added during
// the run is left behind.
func (s *Spawner) Run(ctx context.Context, src Source, n int) error {
	if n < 1 {
		n = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		p := newProcessor(src, ProcessorOptions{
			ExitOnCompletion: true,
			Logger:           s.logger,
		}, &s.metrics)
		g.Go(func() error {
			s.active.Inc()
			defer s.active.Dec()
			return p.Run(ctx)
		})
	}
	return g.Wait()
}

// Active returns the number of running processors.
func (s *Spawner) Active() int {
	return int(s.active.Load())
}

func (s *Spawner) Metrics() []prometheus.Collector {
	return s.metrics.collectors()
}
