// Copyright 2023 The Colossus Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package availability asks peer operators which data objects they
// currently store.
//
// Both successful listings and failing operators are cached for a limited
// time. An operator that failed is not contacted again until its entry
// expires.
package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/joystream/colossus/pkg/logging"
	m "github.com/joystream/colossus/pkg/metrics"
	"github.com/joystream/colossus/pkg/tracing"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/prometheus/client_golang/prometheus"
	"resenje.org/singleflight"
)

// SyncListingPath is the operator endpoint that lists available object ids.
const SyncListingPath = "api/v1/sync"

const (
	DefaultTimeout   = 2 * time.Minute
	DefaultTTL       = 5 * time.Minute
	DefaultCacheSize = 10000
)

// ErrUnexpectedStatus is returned when an operator answers with a non-2xx status.
var ErrUnexpectedStatus = errors.New("unexpected response status")

// IDSet is the listing of an operator.
type IDSet map[string]struct{}

// Has reports whether id is in the set. A nil set has no ids.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Interface is the probe used by the download preparation.
type Interface interface {
	// AvailableIDs returns the object ids the operator reports as stored.
	// An operator recently marked as bad yields no ids and no error. The
	// returned set is shared with the cache and must not be modified.
	AvailableIDs(ctx context.Context, operatorURL string) (IDSet, error)
}

var _ Interface = (*Prober)(nil)

type Options struct {
	Client    *http.Client
	Timeout   time.Duration
	TTL       time.Duration
	CacheSize int
	Logger    logging.Logger
	Tracer    *tracing.Tracer
}

type Prober struct {
	client    *http.Client
	timeout   time.Duration
	available *expirable.LRU[string, IDSet]
	bad       *expirable.LRU[string, struct{}]
	sf        singleflight.Group
	logger    logging.Logger
	tracer    *tracing.Tracer
	metrics   metrics
}

func New(o Options) *Prober {
	if o.Client == nil {
		o.Client = http.DefaultClient
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.CacheSize <= 0 {
		o.CacheSize = DefaultCacheSize
	}
	return &Prober{
		client:    o.Client,
		timeout:   o.Timeout,
		available: expirable.NewLRU[string, IDSet](o.CacheSize, nil, o.TTL),
		bad:       expirable.NewLRU[string, struct{}](o.CacheSize, nil, o.TTL),
		logger:    o.Logger,
		tracer:    o.Tracer,
		metrics:   newMetrics(),
	}
}

func (p *Prober) AvailableIDs(ctx context.Context, operatorURL string) (IDSet, error) {
	if _, ok := p.bad.Get(operatorURL); ok {
		p.metrics.BadOperatorHits.Inc()
		p.logger.Tracef("availability: skipping bad operator %s", operatorURL)
		return nil, nil
	}
	if ids, ok := p.available.Get(operatorURL); ok {
		p.metrics.CacheHits.Inc()
		return ids, nil
	}

	// the shared call runs on a detached context
	parent := tracing.FromContext(ctx)
	v, _, err := p.sf.Do(ctx, operatorURL, func(ctx context.Context) (interface{}, error) {
		if parent != nil {
			ctx = tracing.WithContext(ctx, parent)
		}
		ids, err := p.fetch(ctx, operatorURL)
		if err != nil {
			// canceled when every caller gave up, not an operator failure
			if !errors.Is(err, context.Canceled) {
				p.bad.Add(operatorURL, struct{}{})
			}
			p.available.Remove(operatorURL)
			return nil, err
		}
		p.available.Add(operatorURL, ids)
		return ids, nil
	})
	if err != nil {
		p.metrics.ProbeFailures.Inc()
		return nil, fmt.Errorf("probe operator %s: %w", operatorURL, err)
	}
	return v.(IDSet), nil
}

func (p *Prober) fetch(ctx context.Context, operatorURL string) (ids IDSet, err error) {
	p.metrics.Probes.Inc()

	span, _, ctx := p.tracer.StartSpanFromContext(ctx, "availability-probe", nil)
	span.SetTag(tracing.TagOperator, operatorURL)
	defer func() {
		if err != nil {
			ext.Error.Set(span, true)
			span.LogKV("error", err.Error())
		}
		span.Finish()
	}()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ListingURL(operatorURL), nil)
	if err != nil {
		return nil, err
	}
	_ = p.tracer.AddContextHTTPHeader(ctx, req.Header)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}

	var list []string
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	ids = make(IDSet, len(list))
	for _, id := range list {
		ids[id] = struct{}{}
	}
	return ids, nil
}

// ListingURL joins the operator base URL with SyncListingPath.
func ListingURL(operatorURL string) string {
	return strings.TrimRight(operatorURL, "/") + "/" + SyncListingPath
}

type metrics struct {
	// all metrics fields must be exported
	// to be able to return them by Metrics()
	// using reflection
	Probes          prometheus.Counter
	ProbeFailures   prometheus.Counter
	CacheHits       prometheus.Counter
	BadOperatorHits prometheus.Counter
}

func newMetrics() metrics {
	subsystem := "availability"

	return metrics{
		Probes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "probes",
			Help:      "Number of listing requests sent to operators.",
		}),
		ProbeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "probe_failures",
			Help:      "Number of failed operator probes.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "cache_hits",
			Help:      "Number of probes answered from the listing cache.",
		}),
		BadOperatorHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "bad_operator_hits",
			Help:      "Number of probes skipped because the operator recently failed.",
		}),
	}
}

func (p *Prober) Metrics() []prometheus.Collector {
	return m.PrometheusCollectorsFromFields(p.metrics)
}
