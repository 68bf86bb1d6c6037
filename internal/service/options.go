package service

import (
	"log/slog"
	"time"

	"license-lease-system/internal/metrics"
)

type options struct {
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option 组件构造参数
type Option func(*options)

// WithClock 替换当前时间来源，测试中使用固定时钟
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}
