// Copyright 2020 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package logging provides the logger interface abstraction
// and implementation for the storage node. It uses logrus under the hood.
package logging

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type Logger interface {
	Tracef(format string, args ...interface{})
	Trace(args ...interface{})
	Debugf(format string, args ...interface{})
	Debug(args ...interface{})
	Infof(format string, args ...interface{})
	Info(args ...interface{})
	Warningf(format string, args ...interface{})
	Warning(args ...interface{})
	Errorf(format string, args ...interface{})
	Error(args ...interface{})
	WithField(key string, value interface{}) *logrus.Entry
	WithFields(fields logrus.Fields) *logrus.Entry
	NewEntry() *logrus.Entry
	Metrics() []prometheus.Collector
}

type logger struct {
	*logrus.Logger
	metrics metrics
}

func New(w io.Writer, level logrus.Level) Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level)
	l.Formatter = &logrus.TextFormatter{
		FullTimestamp: true,
	}
	metrics := newMetrics()
	l.AddHook(metrics)
	return &logger{
		Logger:  l,
		metrics: metrics,
	}
}

func (l *logger) NewEntry() *logrus.Entry {
	return logrus.NewEntry(l.Logger)
}

// ParseVerbosity maps a command line verbosity value to a logrus level.
// The silent flag reports that nothing should be written at all.
func ParseVerbosity(verbosity string) (level logrus.Level, silent bool, err error) {
	switch verbosity {
	case "0", "silent":
		return logrus.PanicLevel, true, nil
	case "1", "error":
		return logrus.ErrorLevel, false, nil
	case "2", "warn":
		return logrus.WarnLevel, false, nil
	case "3", "info":
		return logrus.InfoLevel, false, nil
	case "4", "debug":
		return logrus.DebugLevel, false, nil
	case "5", "trace":
		return logrus.TraceLevel, false, nil
	}
	return 0, false, fmt.Errorf("unknown verbosity level %q", verbosity)
}
