package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// 结果标签
const (
	ResultSuccess = "success"
	ResultDenied  = "denied"
	ResultError   = "error"
)

// Metrics 租约与下载相关的 prometheus 指标
type Metrics struct {
	Registry *prometheus.Registry

	leaseIssued         *prometheus.CounterVec
	leaseOperations     *prometheus.CounterVec
	leaseResolutions    *prometheus.CounterVec
	downloadResolutions *prometheus.CounterVec
}

// New 创建独立的 registry 并注册全部指标
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		leaseIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lease_issued_total",
			Help: "Execution lease issuance attempts by result and error code.",
		}, []string{"result", "code"}),
		leaseOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lease_operations_total",
			Help: "Lease heartbeat and revoke calls by operation and result.",
		}, []string{"op", "result"}),
		leaseResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lease_resolutions_total",
			Help: "Bearer lease token resolutions by result and error code.",
		}, []string{"result", "code"}),
		downloadResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "artifact_download_resolutions_total",
			Help: "Artifact download resolutions by audit result.",
		}, []string{"result", "source"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.leaseIssued,
		m.leaseOperations,
		m.leaseResolutions,
		m.downloadResolutions,
	)
	return m
}

// 以下方法允许 nil 接收者，未启用指标时直接忽略

func (m *Metrics) LeaseIssued(result, code string) {
	if m == nil {
		return
	}
	m.leaseIssued.WithLabelValues(result, code).Inc()
}

func (m *Metrics) LeaseOperation(op, result string) {
	if m == nil {
		return
	}
	m.leaseOperations.WithLabelValues(op, result).Inc()
}

func (m *Metrics) LeaseResolved(result, code string) {
	if m == nil {
		return
	}
	m.leaseResolutions.WithLabelValues(result, code).Inc()
}

func (m *Metrics) DownloadResolved(result, source string) {
	if m == nil {
		return
	}
	m.downloadResolutions.WithLabelValues(result, source).Inc()
}

// ResultFor 按 HTTP 状态归类：<500 为 denied，>=500 为 error
func ResultFor(status int) string {
	if status >= 500 {
		return ResultError
	}
	return ResultDenied
}
