// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics holds the Prometheus collectors of a block server.
// Every method is safe on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"

	"code.hybscloud.com/blockserver/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry  *prometheus.Registry
	sessions  prometheus.Gauge
	requests  *prometheus.CounterVec
	responses *prometheus.CounterVec
	backlog   prometheus.Gauge
	ringFull  prometheus.Counter
	batch     prometheus.Histogram
}

func New(cfg config.MetricsConfig) *Metrics {
	ns := cfg.Namespace
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	sessions := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "sessions_open"})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "requests_total"}, []string{"op"})
	responses := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "responses_total"}, []string{"status"})
	backlog := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "responses_queued"})
	ringFull := prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "ring_full_total"})
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.ExponentialBuckets(1, 2, 8)
	}
	batch := prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: ns, Name: "batch_size", Buckets: buckets})
	r.MustRegister(sessions, requests, responses, backlog, ringFull, batch)

	return &Metrics{
		registry:  r,
		sessions:  sessions,
		requests:  requests,
		responses: responses,
		backlog:   backlog,
		ringFull:  ringFull,
		batch:     batch,
	}
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.sessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.sessions.Dec()
	}
}

// Request counts one decoded request of kind op.
func (m *Metrics) Request(op string) {
	if m != nil {
		m.requests.WithLabelValues(op).Inc()
	}
}

// Response counts one response carrying status.
func (m *Metrics) Response(status string) {
	if m != nil {
		m.responses.WithLabelValues(status).Inc()
	}
}

// Queued adjusts the number of responses waiting for ring space.
func (m *Metrics) Queued(delta int) {
	if m != nil {
		m.backlog.Add(float64(delta))
	}
}

// RingFull counts a response that found the ring full.
func (m *Metrics) RingFull() {
	if m != nil {
		m.ringFull.Inc()
	}
}

// Batch observes the size of one batch handed to the driver.
func (m *Metrics) Batch(n int) {
	if m != nil {
		m.batch.Observe(float64(n))
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
