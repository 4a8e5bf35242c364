// Copyright 2023 The Colossus Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package workqueue_test

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/joystream/colossus/pkg/logging"
	"github.com/joystream/colossus/pkg/workqueue"
	"go.uber.org/atomic"
)

type task struct {
	name string
	fn   func(ctx context.Context) error
}

func (t *task) Description() string { return t.name }

func (t *task) Execute(ctx context.Context) error {
	if t.fn == nil {
		return nil
	}
	return t.fn(ctx)
}

var logger = logging.New(ioutil.Discard, 0)

func TestWorkingStackLIFO(t *testing.T) {
	t.Parallel()

	s := workqueue.NewWorkingStack()
	s.Add(&task{name: "a"}, &task{name: "b"})
	s.Add(&task{name: "c"})

	if s.Len() != 3 {
		t.Fatalf("got len %d, want 3", s.Len())
	}

	var got []string
	for {
		tk, ok := s.Get()
		if !ok {
			break
		}
		got = append(got, tk.Description())
	}
	if diff := cmp.Diff([]string{"c", "b", "a"}, got); diff != "" {
		t.Errorf("order mismatch (-want +have):\n%s", diff)
	}
	if _, ok := s.Get(); ok {
		t.Error("expected empty stack")
	}
}

func TestWorkingStackConcurrent(t *testing.T) {
	t.Parallel()

	s := workqueue.NewWorkingStack()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Add(&task{name: fmt.Sprint(i)})
		}(i)
	}
	wg.Wait()

	var got atomic.Int32
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if _, ok := s.Get(); !ok {
					return
				}
				got.Inc()
			}
		}()
	}
	wg.Wait()

	if got.Load() != 50 {
		t.Errorf("got %d tasks, want 50", got.Load())
	}
}

func TestProcessorExitOnCompletion(t *testing.T) {
	t.Parallel()

	var executed atomic.Int32
	s := workqueue.NewWorkingStack()
	for i := 0; i < 5; i++ {
		s.Add(&task{name: fmt.Sprint(i), fn: func(context.Context) error {
			executed.Inc()
			return nil
		}})
	}
	s.Add(&task{name: "failing", fn: func(context.Context) error {
		return errors.New("boom")
	}})

	p := workqueue.NewProcessor(s, workqueue.ProcessorOptions{
		ExitOnCompletion: true,
		Logger:           logger,
	})
	if err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if executed.Load() != 5 {
		t.Errorf("got %d executed tasks, want 5", executed.Load())
	}
	if s.Len() != 0 {
		t.Errorf("got %d tasks left, want 0", s.Len())
	}
}

func TestProcessorPolling(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	s := workqueue.NewWorkingStack()
	p := workqueue.NewProcessor(s, workqueue.ProcessorOptions{
		Clock:  clock,
		Logger: logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errC := make(chan error, 1)
	go func() {
		errC <- p.Run(ctx)
	}()

	// the processor found no work and waits for the poll interval
	clock.BlockUntil(1)

	done := make(chan struct{})
	s.Add(&task{name: "late", fn: func(context.Context) error {
		close(done)
		return nil
	}})
	clock.Advance(workqueue.DefaultPollInterval)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("task added after start was not executed")
	}

	cancel()
	select {
	case err := <-errC:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("got error %v, want %v", err, context.Canceled)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("processor did not stop on cancel")
	}
}

func TestSpawnerConcurrencyBound(t *testing.T) {
	t.Parallel()

	var (
		inFlight    atomic.Int32
		maxInFlight atomic.Int32
		executed    atomic.Int32
	)
	s := workqueue.NewWorkingStack()
	for i := 0; i < 10; i++ {
		s.Add(&task{name: fmt.Sprint(i), fn: func(context.Context) error {
			n := inFlight.Inc()
			defer inFlight.Dec()
			for {
				cur := maxInFlight.Load()
				if n <= cur || maxInFlight.CAS(cur, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			executed.Inc()
			return nil
		}})
	}

	if err := workqueue.NewSpawner(logger).Run(context.Background(), s, 3); err != nil {
		t.Fatal(err)
	}

	if executed.Load() != 10 {
		t.Errorf("got %d executed tasks, want 10", executed.Load())
	}
	if n := maxInFlight.Load(); n > 3 {
		t.Errorf("got %d concurrent tasks, want at most 3", n)
	}
}

func TestSpawnerFollowUpTasks(t *testing.T) {
	t.Parallel()

	var executed atomic.Int32
	s := workqueue.NewWorkingStack()
	for i := 0; i < 4; i++ {
		i := i
		s.Add(&task{name: fmt.Sprintf("prepare %d", i), fn: func(context.Context) error {
			s.Add(&task{name: fmt.Sprintf("download %d", i), fn: func(context.Context) error {
				executed.Inc()
				return nil
			}})
			return nil
		}})
	}

	if err := workqueue.NewSpawner(logger).Run(context.Background(), s, 2); err != nil {
		t.Fatal(err)
	}
	if executed.Load() != 4 {
		t.Errorf("got %d follow-up tasks executed, want 4", executed.Load())
	}
}

func TestSpawnerMinimumOneProcessor(t *testing.T) {
	t.Parallel()

	var executed atomic.Int32
	s := workqueue.NewWorkingStack()
	s.Add(&task{name: "a", fn: func(context.Context) error {
		executed.Inc()
		return nil
	}})

	if err := workqueue.NewSpawner(logger).Run(context.Background(), s, 0); err != nil {
		t.Fatal(err)
	}
	if executed.Load() != 1 {
		t.Errorf("got %d executed tasks, want 1", executed.Load())
	}
}

func TestSpawnerCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := workqueue.NewWorkingStack()
	s.Add(&task{name: "a"})

	err := workqueue.NewSpawner(logger).Run(ctx, s, 2)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got error %v, want %v", err, context.Canceled)
	}
}
