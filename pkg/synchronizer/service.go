// Copyright 2023 The Colossus Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package synchronizer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/joystream/colossus/pkg/logging"
)

const DefaultInterval = time.Minute

var closeTimeout = 10 * time.Second

// Cycler runs a single sync cycle.
type Cycler interface {
	RunCycle(ctx context.Context) (Result, error)
}

// activeCounter is implemented by cyclers that run tasks in parallel.
type activeCounter interface {
	Active() int
}

// Status describes the state of the recurring sync.
type Status struct {
	Running bool `json:"running"`
	// ActiveWorkers is the number of task processors of the running cycle.
	ActiveWorkers int       `json:"activeWorkers"`
	Cycles        int       `json:"cycles"`
	Failures      int       `json:"failures"`
	LastStart     time.Time `json:"lastStart,omitempty"`
	LastEnd       time.Time `json:"lastEnd,omitempty"`
	LastResult    Result    `json:"lastResult"`
	LastError     string    `json:"lastError,omitempty"`
}

// Service runs sync cycles one after another, waiting for the interval
// between the end of a cycle and the start of the next. A failed cycle is
// logged and does not stop the service.
type Service struct {
	cycler   Cycler
	interval time.Duration
	clock    clockwork.Clock
	logger   logging.Logger

	mtx    sync.Mutex
	status Status

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewService starts the recurring sync. The first cycle starts immediately.
func NewService(c Cycler, interval time.Duration, clock clockwork.Clock, logger logging.Logger) *Service {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Service{
		cycler:   c,
		interval: interval,
		clock:    clock,
		logger:   logger,
		quit:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.manage()
	return s
}

func (s *Service) manage() {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		s.run(ctx)

		select {
		case <-s.clock.After(s.interval):
		case <-s.quit:
			return
		}
	}
}

func (s *Service) run(ctx context.Context) {
	s.mtx.Lock()
	s.status.Running = true
	s.status.LastStart = s.clock.Now()
	s.mtx.Unlock()

	res, err := s.cycler.RunCycle(ctx)

	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.status.Running = false
	s.status.LastEnd = s.clock.Now()
	s.status.Cycles++
	if err != nil {
		s.status.Failures++
		s.status.LastError = err.Error()
		s.logger.Errorf("synchronizer: sync cycle: %v", err)
		return
	}
	s.status.LastResult = res
	s.status.LastError = ""
}

func (s *Service) Status() Status {
	s.mtx.Lock()
	st := s.status
	s.mtx.Unlock()

	if a, ok := s.cycler.(activeCounter); ok {
		st.ActiveWorkers = a.Active()
	}
	return st
}

// Close stops the service, canceling a running cycle.
func (s *Service) Close() error {
	close(s.quit)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-time.After(closeTimeout):
		return errors.New("synchronizer: closed with running cycle")
	}
}
