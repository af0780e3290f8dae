// Package metrics 提供Prometheus监控指标
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paiban/courierplan/pkg/allocator/scenario"
	"github.com/paiban/courierplan/pkg/allocator/solver"
)

var (
	// Registry 专用注册表
	Registry = prometheus.NewRegistry()

	// HTTPRequests HTTP请求总数
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "courierplan_http_requests_total", Help: "HTTP请求总数"},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration HTTP请求延迟
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "courierplan_http_request_duration_seconds", Help: "HTTP请求延迟", Buckets: prometheus.DefBuckets},
		[]string{"method", "path"},
	)

	// Solves 求解次数
	Solves = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "allocator_solves_total", Help: "分配模型求解次数"},
		[]string{"backend", "status"},
	)
	// SolveDuration 求解耗时
	SolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "allocator_solve_duration_seconds",
			Help:    "分配模型求解耗时",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 300},
		},
		[]string{"backend"},
	)
	// Scenarios 场景运行次数
	Scenarios = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "allocator_scenarios_total", Help: "场景运行次数"},
		[]string{"kind", "status"},
	)
	// GeocodeLookups 坐标查询次数
	GeocodeLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "allocator_geocode_lookups_total", Help: "坐标查询次数"},
		[]string{"source", "result"},
	)
)

var regOnce sync.Once

// RegisterDefault 注册全部指标
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration, Solves, SolveDuration, Scenarios, GeocodeLookups)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler 返回指标导出处理器
func Handler() http.Handler {
	RegisterDefault()
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordRequestMetrics 记录请求指标
func RecordRequestMetrics(method, path string, status int, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordGeocodeLookup 记录坐标查询，source 为命中层级
func RecordGeocodeLookup(source, result string) {
	GeocodeLookups.WithLabelValues(source, result).Inc()
}

// Recorder 求解与场景观测器
type Recorder struct{}

// ObserveSolve 记录求解
func (Recorder) ObserveSolve(backend string, status solver.Status, duration time.Duration) {
	Solves.WithLabelValues(backend, string(status)).Inc()
	SolveDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// ObserveScenario 记录场景
func (Recorder) ObserveScenario(kind scenario.Kind, status string, _ time.Duration) {
	Scenarios.WithLabelValues(string(kind), status).Inc()
}
