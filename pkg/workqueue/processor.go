// Copyright 2023 The Colossus Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package workqueue

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/joystream/colossus/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultPollInterval is how long a polling processor waits on an empty
// source before asking again.
const DefaultPollInterval = 3 * time.Second

type ProcessorOptions struct {
	// ExitOnCompletion makes Run return as soon as the source is empty.
	ExitOnCompletion bool
	PollInterval     time.Duration
	Clock            clockwork.Clock
	Logger           logging.Logger
}

// Processor executes tasks from a source one after another.
type Processor struct {
	src              Source
	exitOnCompletion bool
	pollInterval     time.Duration
	clock            clockwork.Clock
	logger           logging.Logger
	metrics          *metrics
}

func NewProcessor(src Source, o ProcessorOptions) *Processor {
	m := newMetrics()
	return newProcessor(src, o, &m)
}

func newProcessor(src Source, o ProcessorOptions, m *metrics) *Processor {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return &Processor{
		src:              src,
		exitOnCompletion: o.ExitOnCompletion,
		pollInterval:     o.PollInterval,
		clock:            o.Clock,
		logger:           o.Logger,
		metrics:          m,
	}
}

// Run executes tasks until the source is drained, if the processor exits on
// completion, or until the context is canceled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		t, ok := p.src.Get()
		if !ok {
			if p.exitOnCompletion {
				return nil
			}
			select {
			case <-p.clock.After(p.pollInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		p.execute(ctx, t)
	}
}

func (p *Processor) execute(ctx context.Context, t Task) {
	p.logger.Debugf("workqueue: %s", t.Description())

	p.metrics.InFlight.Inc()
	defer p.metrics.InFlight.Dec()

	if err := t.Execute(ctx); err != nil {
		p.metrics.TasksFailed.Inc()
		p.logger.Errorf("workqueue: %s: %v", t.Description(), err)
		return
	}
	p.metrics.TasksExecuted.Inc()
}

func (p *Processor) Metrics() []prometheus.Collector {
	return p.metrics.collectors()
}
