// Copyright 2018 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exports Prometheus metrics about source fetches and
// queries.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/googlegenomics/bigwig/bbi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors registered by New.
type Metrics struct {
	fetches       *prometheus.CounterVec
	fetchBytes    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	queries       *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		fetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bigwig_source_fetches_total",
				Help: "Total number of byte range fetches issued to sources",
			},
			[]string{"source", "status"},
		),
		fetchBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bigwig_source_fetch_bytes_total",
				Help: "Total number of bytes returned by sources",
			},
			[]string{"source"},
		),
		fetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bigwig_source_fetch_duration_seconds",
				Help:    "Source fetch latency in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"source"},
		),
		queries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bigwig_queries_total",
				Help: "Total number of queries answered",
			},
			[]string{"kind", "status"},
		),
	}
}

// Status returns the label value used for the outcome err.
func Status(err error) string {
	var formatErr *bbi.FormatError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &formatErr):
		return "format_error"
	case errors.Is(err, bbi.ErrSizeLimitExceeded):
		return "size_limit"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "error"
}

// ObserveQuery counts one query of the given kind.
func (m *Metrics) ObserveQuery(kind string, err error) {
	m.queries.WithLabelValues(kind, Status(err)).Inc()
}

// Source wraps src so that its fetches are counted under name.  The result
// implements bbi.Sizer if src does.
func (m *Metrics) Source(name string, src bbi.Source) bbi.Source {
	s := &source{metrics: m, name: name, src: src}
	if sizer, ok := src.(bbi.Sizer); ok {
		return &sizedSource{source: s, sizer: sizer}
	}
	return s
}

type source struct {
	metrics *Metrics
	name    string
	src     bbi.Source
}

func (s *source) Fetch(ctx context.Context, offset uint64, length uint32) ([]byte, error) {
	start := time.Now()
	data, err := s.src.Fetch(ctx, offset, length)
	s.metrics.fetchDuration.WithLabelValues(s.name).Observe(time.Since(start).Seconds())
	s.metrics.fetches.WithLabelValues(s.name, Status(err)).Inc()
	s.metrics.fetchBytes.WithLabelValues(s.name).Add(float64(len(data)))
	return data, err
}

type sizedSource struct {
	*source
	sizer bbi.Sizer
}

func (s *sizedSource) Size(ctx context.Context) (uint64, error) {
	return s.sizer.Size(ctx)
}
