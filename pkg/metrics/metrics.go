// Copyright 2020 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metrics

import (
	"reflect"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace is prefixed before every metric. If it is changed, it must be done
// before any metrics collector is registered.
const Namespace = "colossus"

// Collector is implemented by every component that exposes metrics.
type Collector interface {
	Metrics() []prometheus.Collector
}

// PrometheusCollectorsFromFields returns all exported fields of the struct
// (or pointer to struct) v that implement prometheus.Collector.
func PrometheusCollectorsFromFields(v interface{}) (cs []prometheus.Collector) {
	s := reflect.Indirect(reflect.ValueOf(v))
	if s.Kind() != reflect.Struct {
		return nil
	}
	for i := 0; i < s.NumField(); i++ {
		f := s.Field(i)
		if !f.CanInterface() {
			continue
		}
		if f.Kind() == reflect.Ptr || f.Kind() == reflect.Interface {
			if f.IsNil() {
				continue
			}
		}
		if c, ok := f.Interface().(prometheus.Collector); ok {
			cs = append(cs, c)
		}
	}
	return cs
}
