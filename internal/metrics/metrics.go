// Copyright (C) The netquery contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics exposes Prometheus counters and histograms for a
// running query pipeline, wrapped in an operator.Operator so any query
// can be instrumented by splicing a Recorder into its chain.
package metrics

import (
	"context"
	"net/http"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lukemarshall2222/netquery/pkg/operator"
	"github.com/lukemarshall2222/netquery/pkg/record"
)

// Recorder counts records and epoch boundaries flowing through the
// point it is spliced into a pipeline, and reports the wall-clock time
// between consecutive Reset calls (the observed epoch duration).
type Recorder struct {
	next operator.Operator

	recordsTotal prometheus.Counter
	epochsTotal  prometheus.Counter
	epochSeconds prometheus.Histogram

	lastReset time.Time
}

// NewRecorder wraps next with Prometheus counters registered under the
// given query name label. Construct one per named pipeline stage you
// want visibility into (e.g. "ddos:input", "ddos:output").
func NewRecorder(reg prometheus.Registerer, queryName, stage string, next operator.Operator) *Recorder {
	labels := prometheus.Labels{"query": queryName, "stage": stage}
	r := &Recorder{
		next: next,
		recordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "netquery_records_total",
			Help:        "Total records passed through a pipeline stage.",
			ConstLabels: labels,
		}),
		epochsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "netquery_epochs_total",
			Help:        "Total epoch boundaries (Reset calls) observed at a pipeline stage.",
			ConstLabels: labels,
		}),
		epochSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "netquery_epoch_seconds",
			Help:        "Wall-clock duration between consecutive epoch boundaries at a pipeline stage.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(r.recordsTotal, r.epochsTotal, r.epochSeconds)
	return r
}

func (r *Recorder) Next(rec record.Record) error {
	r.recordsTotal.Inc()
	return r.next.Next(rec)
}

func (r *Recorder) Reset(rec record.Record) error {
	r.epochsTotal.Inc()
	now := time.Now()
	if !r.lastReset.IsZero() {
		r.epochSeconds.Observe(now.Sub(r.lastReset).Seconds())
	}
	r.lastReset = now
	return r.next.Reset(rec)
}

// Server exposes a /metrics endpoint over an isolated registry, so one
// process can run several independently-scraped pipelines without
// cross-contaminating the default global registry.
type Server struct {
	registry *prometheus.Registry
	http     *http.Server
}

// NewServer builds a Server bound to addr with its own registry.
// Registry is exported so callers construct Recorders against it
// before Start is called.
func NewServer(addr string) *Server {
	reg := prometheus.NewRegistry()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &Server{
		registry: reg,
		http:     &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
	}
}

// Registry returns the isolated Prometheus registry Recorders should
// register against.
func (s *Server) Registry() prometheus.Registerer { return s.registry }

// Start runs the HTTP server in the background until ctx is cancelled.
func (s *Server) Start(ctx context.Context) {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			cclog.Errorf("metrics: server stopped: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			cclog.Warnf("metrics: shutdown: %v", err)
		}
	}()
}
