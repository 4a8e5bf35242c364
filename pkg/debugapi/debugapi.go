// Copyright 2023 The Colossus Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package debugapi exposes the debug API used to
// inspect the runtime state of the storage node.
package debugapi

import (
	"net/http"
	"sync"

	"github.com/joystream/colossus/pkg/logging"
	"github.com/joystream/colossus/pkg/synchronizer"
	"github.com/prometheus/client_golang/prometheus"
)

// SyncStatuser reports the state of the recurring sync.
type SyncStatuser interface {
	Status() synchronizer.Status
}

// Service implements http.Handler interface to be used in HTTP server.
type Service struct {
	logger          logging.Logger
	metricsRegistry *prometheus.Registry
	syncStatus      SyncStatuser
	// handler is changed in the Configure method
	handler   http.Handler
	handlerMu sync.RWMutex
}

// New creates a new Debug API Service with only basic routers enabled in order
// to expose /health endpoint, Go metrics and pprof. It is useful to expose
// these endpoints before all dependencies are configured and injected to have
// access to basic debugging tools and /health endpoint.
func New(logger logging.Logger) *Service {
	s := new(Service)
	s.logger = logger
	s.metricsRegistry = newMetricsRegistry()

	s.setRouter(s.newBasicRouter())

	return s
}

// Configure injects required dependencies and constructs HTTP routes that
// depend on them. A nil syncStatus means that sync is disabled. It is
// intended and safe to call this method only once.
func (s *Service) Configure(syncStatus SyncStatuser) {
	s.syncStatus = syncStatus

	s.setRouter(s.newRouter())
}

// ServeHTTP implements http.Handler interface.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// protect handler as it is changed by the Configure method
	s.handlerMu.RLock()
	h := s.handler
	s.handlerMu.RUnlock()

	h.ServeHTTP(w, r)
}
