// Copyright 2023 The Colossus Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package api serves the public peer surface of a storage node: the list
// of stored objects and their content. Other operators use it as a source
// when they synchronize.
package api

import (
	"net/http"

	"github.com/joystream/colossus/pkg/logging"
	"github.com/joystream/colossus/pkg/objectindex"
	"github.com/joystream/colossus/pkg/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
)

type Service interface {
	http.Handler
	Metrics() []prometheus.Collector
}

type server struct {
	index     *objectindex.Index
	fs        afero.Fs
	uploadDir string
	logger    logging.Logger
	tracer    *tracing.Tracer
	http.Handler
	metrics metrics
}

type Options struct {
	UploadDir string
	Tracer    *tracing.Tracer
}

func New(index *objectindex.Index, fs afero.Fs, logger logging.Logger, o Options) Service {
	s := &server{
		index:     index,
		fs:        fs,
		uploadDir: o.UploadDir,
		logger:    logger,
		tracer:    o.Tracer,
		metrics:   newMetrics(),
	}

	s.setupRouting()

	return s
}
