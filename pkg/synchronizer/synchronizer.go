// Copyright 2023 The Colossus Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package synchronizer brings the local upload directory in line with the
// storage obligations of a worker.
//
// A cycle compares the objects the worker must store with the files present
// on disk, deletes the extra files and downloads the missing ones from other
// operators that store the same bags.
package synchronizer

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/joystream/colossus/pkg/availability"
	"github.com/joystream/colossus/pkg/logging"
	"github.com/joystream/colossus/pkg/objectindex"
	"github.com/joystream/colossus/pkg/obligations"
	"github.com/joystream/colossus/pkg/tracing"
	"github.com/joystream/colossus/pkg/workqueue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultConcurrency = 20
	DefaultTempDirName = "temp"
)

// Resolver returns the obligations of a worker.
type Resolver interface {
	Resolve(ctx context.Context, workerID int) (obligations.Snapshot, error)
}

type Options struct {
	WorkerID    int
	Concurrency int
	UploadDir   string
	TempDirName string
	// OperatorURL, if set, is used as the only source of every missing
	// object and no availability probes are made.
	OperatorURL     string
	DownloadTimeout time.Duration
	Tracer          *tracing.Tracer
}

// Result summarizes a finished cycle.
type Result struct {
	Added    int           `json:"added"`
	Deleted  int           `json:"deleted"`
	Duration time.Duration `json:"duration"`
}

type Synchronizer struct {
	o        Options
	fs       afero.Fs
	resolver Resolver
	prober   availability.Interface
	index    *objectindex.Index
	client   *http.Client
	spawner  *workqueue.Spawner
	logger   logging.Logger
	metrics  metrics
}

func New(o Options, fs afero.Fs, resolver Resolver, prober availability.Interface, index *objectindex.Index, client *http.Client, logger logging.Logger) *Synchronizer {
	if o.Concurrency < 1 {
		o.Concurrency = DefaultConcurrency
	}
	if o.TempDirName == "" {
		o.TempDirName = DefaultTempDirName
	}
	if o.DownloadTimeout <= 0 {
		o.DownloadTimeout = DefaultDownloadTimeout
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Synchronizer{
		o:        o,
		fs:       fs,
		resolver: resolver,
		prober:   prober,
		index:    index,
		client:   client,
		spawner:  workqueue.NewSpawner(logger),
		logger:   logger,
		metrics:  newMetrics(),
	}
}

// RunCycle runs one reconciliation and waits for all of its tasks. Only a
// failure to resolve obligations or to list the upload directory is
// returned; task failures are logged.
func (s *Synchronizer) RunCycle(ctx context.Context) (res Result, err error) {
	start := time.Now()
	s.metrics.Cycles.Inc()

	span, logger, ctx := s.o.Tracer.StartSpanFromContext(ctx, "sync-cycle", s.logger)
	span.SetTag(tracing.TagWorker, s.o.WorkerID)
	defer func() {
		if err != nil {
			markError(span, err)
		}
		span.Finish()
	}()

	logger.Infof("synchronizer: started syncing for worker %d", s.o.WorkerID)

	var (
		snapshot obligations.Snapshot
		localIDs map[string]struct{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snapshot, err = s.resolver.Resolve(gctx, s.o.WorkerID)
		return err
	})
	g.Go(func() (err error) {
		localIDs, err = s.localIDs()
		return err
	})
	if err := g.Wait(); err != nil {
		s.metrics.CycleFailures.Inc()
		return Result{}, fmt.Errorf("synchronizer: %w", err)
	}

	requiredIDs := snapshot.RequiredIDs()
	toAdd := difference(requiredIDs, localIDs)
	toDelete := difference(localIDs, requiredIDs)

	logger.Debugf("synchronizer: sync - new objects: %d", len(toAdd))
	logger.Debugf("synchronizer: sync - obsolete objects: %d", len(toDelete))
	span.SetTag("added", len(toAdd))
	span.SetTag("deleted", len(toDelete))

	stack := workqueue.NewWorkingStack()
	stack.Add(s.deleteTasks(toDelete)...)
	stack.Add(s.addTasks(snapshot, toAdd, stack)...)

	if err := s.spawner.Run(ctx, stack, s.o.Concurrency); err != nil {
		s.metrics.CycleFailures.Inc()
		return Result{}, fmt.Errorf("synchronizer: run tasks: %w", err)
	}

	res = Result{
		Added:    len(toAdd),
		Deleted:  len(toDelete),
		Duration: time.Since(start),
	}
	s.metrics.LastCycleDuration.Set(res.Duration.Seconds())
	logger.Infof("synchronizer: sync ended for worker %d: %d added, %d deleted in %s", s.o.WorkerID, res.Added, res.Deleted, res.Duration)
	return res, nil
}

// localIDs refreshes the index from the upload directory, picking up files
// changed outside the synchronizer, and returns its content.
func (s *Synchronizer) localIDs() (map[string]struct{}, error) {
	if s.index == nil {
		return objectindex.ListIDs(s.fs, s.o.UploadDir, s.o.TempDirName)
	}
	if err := s.index.Load(s.o.UploadDir, s.o.TempDirName); err != nil {
		return nil, err
	}
	return s.index.IDs(), nil
}

func (s *Synchronizer) deleteTasks(ids []string) []workqueue.Task {
	tasks := make([]workqueue.Task, 0, len(ids))
	for _, id := range ids {
		tasks = append(tasks, &DeleteLocalFileTask{
			FS:        s.fs,
			UploadDir: s.o.UploadDir,
			ID:        id,
			Index:     s.index,
			Tracer:    s.o.Tracer,
			metrics:   &s.metrics,
		})
	}
	return tasks
}

func (s *Synchronizer) addTasks(snapshot obligations.Snapshot, ids []string, sink workqueue.Sink) []workqueue.Task {
	var sourceURLs map[string][]string
	if s.o.OperatorURL == "" {
		sourceURLs = snapshot.SourceURLs()
	}

	tasks := make([]workqueue.Task, 0, len(ids))
	for _, id := range ids {
		download := DownloadFileTask{
			Client:      s.client,
			FS:          s.fs,
			BaseURL:     s.o.OperatorURL,
			ID:          id,
			UploadDir:   s.o.UploadDir,
			TempDirName: s.o.TempDirName,
			Timeout:     s.o.DownloadTimeout,
			Index:       s.index,
			Logger:      s.logger,
			Tracer:      s.o.Tracer,
			metrics:     &s.metrics,
		}
		if s.o.OperatorURL != "" {
			tasks = append(tasks, &download)
			continue
		}
		tasks = append(tasks, &PrepareDownloadFileTask{
			Candidates: sourceURLs[id],
			ID:         id,
			Prober:     s.prober,
			Sink:       sink,
			Download:   download,
			Logger:     s.logger,
			Tracer:     s.o.Tracer,
		})
	}
	return tasks
}

// Active returns the number of task processors of the running cycle.
func (s *Synchronizer) Active() int {
	return s.spawner.Active()
}

func (s *Synchronizer) Metrics() []prometheus.Collector {
	return append(s.metrics.collectors(), s.spawner.Metrics()...)
}

// difference returns the sorted ids of a that are not in b.
func difference(a, b map[string]struct{}) []string {
	var res []string
	for id := range a {
		if _, ok := b[id]; !ok {
			res = append(res, id)
		}
	}
	sort.Strings(res)
	return res
}
