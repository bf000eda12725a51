// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blockserver

import (
	"code.hybscloud.com/blockserver/fifo"
	"code.hybscloud.com/blockserver/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	tracerName       = "code.hybscloud.com/blockserver"
	defaultBatchSize = 16
)

// Option configures a [BlockServer].
type Option func(*options)

type options struct {
	logger      *zap.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	fifoDepth   int
	batchSize   int
	maxTransfer uint32
}

func defaultOptions() options {
	return options{
		logger:    zap.NewNop(),
		tracer:    otel.Tracer(tracerName),
		fifoDepth: fifo.DefaultDepth,
		batchSize: defaultBatchSize,
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records server activity into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracerProvider traces session admission with tp instead of the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithFifoDepth sets the depth of each session FIFO.
// depth must be a power of two >= 2.
func WithFifoDepth(depth int) Option {
	return func(o *options) { o.fifoDepth = depth }
}

// WithBatchSize sets how many decoded requests are handed to
// [Driver.OnRequests] at most at once.
func WithBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithMaxTransfer limits the blocks a single request may cover.
// Zero means unlimited.
func WithMaxTransfer(blocks uint32) Option {
	return func(o *options) { o.maxTransfer = blocks }
}
