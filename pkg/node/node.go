// Copyright 2023 The Colossus Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package node wires the storage node components together and manages
// their lifecycle.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"github.com/joystream/colossus/pkg/api"
	"github.com/joystream/colossus/pkg/availability"
	"github.com/joystream/colossus/pkg/debugapi"
	"github.com/joystream/colossus/pkg/logging"
	"github.com/joystream/colossus/pkg/objectindex"
	"github.com/joystream/colossus/pkg/obligations"
	"github.com/joystream/colossus/pkg/querynode"
	"github.com/joystream/colossus/pkg/synchronizer"
	"github.com/joystream/colossus/pkg/tracing"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

var ErrShutdownInProgress = errors.New("shutdown in progress")

type Colossus struct {
	apiServer          *http.Server
	debugAPIServer     *http.Server
	syncCloser         io.Closer
	tracerCloser       io.Closer
	errorLogWriter     io.Writer
	apiAddr            net.Addr
	debugAPIAddr       net.Addr
	shutdownInProgress bool
	shutdownMutex      sync.Mutex
}

type Options struct {
	WorkerID           int
	UploadDir          string
	TempDirName        string
	QueryNodeEndpoint  string
	QueryPageSize      int
	SyncEnabled        bool
	SyncInterval       time.Duration
	SyncWorkers        int
	OperatorURL        string
	APIAddr            string
	DebugAPIAddr       string
	ProbeTimeout       time.Duration
	DownloadTimeout    time.Duration
	AvailabilityTTL    time.Duration
	TracingEnabled     bool
	TracingEndpoint    string
	TracingServiceName string
	// FS defaults to the operating system filesystem.
	FS afero.Fs
	// Clock defaults to the real clock.
	Clock clockwork.Clock
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func NewColossus(o Options, logger logging.Logger) (c *Colossus, err error) {
	sink := writerFunc(func(p []byte) (int, error) {
		logger.Error(string(p))
		return len(p), nil
	})

	tracer, tracerCloser, err := tracing.NewTracer(&tracing.Options{
		Enabled:     o.TracingEnabled,
		Endpoint:    o.TracingEndpoint,
		ServiceName: o.TracingServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("tracer: %w", err)
	}

	c = &Colossus{
		tracerCloser:   tracerCloser,
		errorLogWriter: sink,
	}

	defer func(c *Colossus) {
		if err != nil {
			logger.Errorf("got error, shutting down: %v", err)
			if err2 := c.Shutdown(); err2 != nil {
				logger.Errorf("got error while shutting down: %v", err2)
			}
		}
	}(c)

	if o.FS == nil {
		o.FS = afero.NewOsFs()
	}
	if o.TempDirName == "" {
		o.TempDirName = synchronizer.DefaultTempDirName
	}

	if err := o.FS.MkdirAll(o.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("upload dir: %w", err)
	}
	// files left in the temp dir by a previous process are incomplete
	if err := synchronizer.ResetTempDir(o.FS, o.UploadDir, o.TempDirName); err != nil {
		return nil, err
	}

	var debugAPIService *debugapi.Service
	if o.DebugAPIAddr != "" {
		// set up basic debug api endpoints for debugging and /health endpoint
		debugAPIService = debugapi.New(logger)

		debugAPIListener, err := net.Listen("tcp", o.DebugAPIAddr)
		if err != nil {
			return nil, fmt.Errorf("debug api listener: %w", err)
		}

		debugAPIServer := &http.Server{
			IdleTimeout:       30 * time.Second,
			ReadHeaderTimeout: 3 * time.Second,
			Handler:           debugAPIService,
			ErrorLog:          stdlog.New(c.errorLogWriter, "", 0),
		}

		go func() {
			logger.Infof("debug api address: %s", debugAPIListener.Addr())

			if err := debugAPIServer.Serve(debugAPIListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Debugf("debug api server: %v", err)
				logger.Error("unable to serve debug api")
			}
		}()

		c.debugAPIServer = debugAPIServer
		c.debugAPIAddr = debugAPIListener.Addr()

		debugAPIService.MustRegisterMetrics(logger.Metrics()...)
	}

	index := objectindex.New(o.FS)
	if err := index.Load(o.UploadDir, o.TempDirName); err != nil {
		return nil, fmt.Errorf("object index: %w", err)
	}
	logger.Infof("found %d data objects in %s", index.Len(), o.UploadDir)

	if o.APIAddr != "" {
		apiService := api.New(index, o.FS, logger, api.Options{
			UploadDir: o.UploadDir,
			Tracer:    tracer,
		})

		apiListener, err := net.Listen("tcp", o.APIAddr)
		if err != nil {
			return nil, fmt.Errorf("api listener: %w", err)
		}

		apiServer := &http.Server{
			IdleTimeout:       30 * time.Second,
			ReadHeaderTimeout: 3 * time.Second,
			Handler:           apiService,
			ErrorLog:          stdlog.New(c.errorLogWriter, "", 0),
		}

		go func() {
			logger.Infof("api address: %s", apiListener.Addr())

			if err := apiServer.Serve(apiListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Debugf("api server: %v", err)
				logger.Error("unable to serve api")
			}
		}()

		c.apiServer = apiServer
		c.apiAddr = apiListener.Addr()

		if debugAPIService != nil {
			debugAPIService.MustRegisterMetrics(apiService.Metrics()...)
		}
	}

	var syncStatus debugapi.SyncStatuser
	if o.SyncEnabled {
		s, p := newSynchronizer(o, index, tracer, logger)
		service := synchronizer.NewService(s, o.SyncInterval, o.Clock, logger)
		c.syncCloser = service
		syncStatus = service

		if debugAPIService != nil {
			debugAPIService.MustRegisterMetrics(s.Metrics()...)
			debugAPIService.MustRegisterMetrics(p.Metrics()...)
		}
		logger.Infof("sync enabled for worker %d every %s", o.WorkerID, o.SyncInterval)
	} else {
		logger.Info("sync disabled")
	}

	if debugAPIService != nil {
		// inject dependencies and configure full debug api http path routes
		debugAPIService.Configure(syncStatus)
	}

	return c, nil
}

// RunSyncCycle runs a single sync cycle outside of a running node.
func RunSyncCycle(ctx context.Context, o Options, logger logging.Logger) (synchronizer.Result, error) {
	if o.FS == nil {
		o.FS = afero.NewOsFs()
	}
	if o.TempDirName == "" {
		o.TempDirName = synchronizer.DefaultTempDirName
	}
	if err := o.FS.MkdirAll(o.UploadDir, 0o755); err != nil {
		return synchronizer.Result{}, fmt.Errorf("upload dir: %w", err)
	}
	if err := o.FS.MkdirAll(filepath.Join(o.UploadDir, o.TempDirName), 0o755); err != nil {
		return synchronizer.Result{}, fmt.Errorf("temp dir: %w", err)
	}

	index := objectindex.New(o.FS)
	if err := index.Load(o.UploadDir, o.TempDirName); err != nil {
		return synchronizer.Result{}, fmt.Errorf("object index: %w", err)
	}

	tracer, tracerCloser, err := tracing.NewTracer(&tracing.Options{
		Enabled:     o.TracingEnabled,
		Endpoint:    o.TracingEndpoint,
		ServiceName: o.TracingServiceName,
	})
	if err != nil {
		return synchronizer.Result{}, fmt.Errorf("tracer: %w", err)
	}
	defer func() {
		if err := tracerCloser.Close(); err != nil {
			logger.Debugf("tracer close: %v", err)
		}
	}()

	s, _ := newSynchronizer(o, index, tracer, logger)
	return s.RunCycle(ctx)
}

func newSynchronizer(o Options, index *objectindex.Index, tracer *tracing.Tracer, logger logging.Logger) (*synchronizer.Synchronizer, *availability.Prober) {
	client := &http.Client{}

	prober := availability.New(availability.Options{
		Client:  client,
		Timeout: o.ProbeTimeout,
		TTL:     o.AvailabilityTTL,
		Logger:  logger,
		Tracer:  tracer,
	})

	qn := querynode.NewClient(o.QueryNodeEndpoint, querynode.Options{
		HTTPClient: client,
		Logger:     logger,
	})

	s := synchronizer.New(synchronizer.Options{
		WorkerID:        o.WorkerID,
		Concurrency:     o.SyncWorkers,
		UploadDir:       o.UploadDir,
		TempDirName:     o.TempDirName,
		OperatorURL:     o.OperatorURL,
		DownloadTimeout: o.DownloadTimeout,
		Tracer:          tracer,
	}, o.FS, obligations.New(qn, o.QueryPageSize, logger), prober, index, client, logger)

	return s, prober
}

// APIAddr returns the address the api listens on, or nil if it is disabled.
func (c *Colossus) APIAddr() net.Addr {
	return c.apiAddr
}

// DebugAPIAddr returns the address the debug api listens on, or nil if it
// is disabled.
func (c *Colossus) DebugAPIAddr() net.Addr {
	return c.debugAPIAddr
}

func (c *Colossus) Shutdown() error {
	var mErr error

	// if a shutdown is already in process, return here
	c.shutdownMutex.Lock()
	if c.shutdownInProgress {
		c.shutdownMutex.Unlock()
		return ErrShutdownInProgress
	}
	c.shutdownInProgress = true
	c.shutdownMutex.Unlock()

	// tryClose is a convenient closure which decrease
	// repetitive io.Closer tryClose procedure.
	tryClose := func(cl io.Closer, errMsg string) {
		if cl == nil {
			return
		}
		if err := cl.Close(); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("%s: %w", errMsg, err))
		}
	}

	tryClose(c.syncCloser, "sync")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var eg errgroup.Group
	if c.apiServer != nil {
		eg.Go(func() error {
			if err := c.apiServer.Shutdown(ctx); err != nil {
				return fmt.Errorf("api server: %w", err)
			}
			return nil
		})
	}
	if c.debugAPIServer != nil {
		eg.Go(func() error {
			if err := c.debugAPIServer.Shutdown(ctx); err != nil {
				return fmt.Errorf("debug api server: %w", err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		mErr = multierror.Append(mErr, err)
	}

	tryClose(c.tracerCloser, "tracer")

	return mErr
}
