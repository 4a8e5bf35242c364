// Copyright 2023 The Colossus Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package workqueue runs a dynamically growing set of tasks on a bounded
// number of concurrent processors.
package workqueue

import (
	"context"
	"sync"
)

// Task is a unit of work. Errors returned by Execute are logged by the
// processor and the task is never retried.
type Task interface {
	Description() string
	Execute(ctx context.Context) error
}

// Sink accepts new tasks.
type Sink interface {
	Add(tasks ...Task)
}

// Source hands out tasks one at a time. It returns false when no task is
// available.
type Source interface {
	Get() (Task, bool)
}

var (
	_ Sink   = (*WorkingStack)(nil)
	_ Source = (*WorkingStack)(nil)
)

// WorkingStack is a LIFO list of tasks shared by a sink and its processors.
type WorkingStack struct {
	mtx   sync.Mutex
	tasks []Task
}

func NewWorkingStack() *WorkingStack {
	return &WorkingStack{}
}

func (s *WorkingStack) Add(tasks ...Task) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.tasks = append(s.tasks, tasks...)
}

func (s *WorkingStack) Get() (Task, bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	n := len(s.tasks)
	if n == 0 {
		return nil, false
	}
	t := s.tasks[n-1]
	s.tasks[n-1] = nil
	s.tasks = s.tasks[:n-1]
	return t, true
}

func (s *WorkingStack) Len() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.tasks)
}
