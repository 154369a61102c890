package stats

import (
	"errors"
	"net/http"

	"github.com/dushixiang/quanterra/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder 采集器自身的运行指标
type Recorder struct {
	registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	devices       *prometheus.CounterVec
	failures      *prometheus.CounterVec
	unmapped      prometheus.Counter
	samples       prometheus.Counter
	acknowledged  prometheus.Counter
	cycleDuration prometheus.Histogram
	lastSuccess   prometheus.Gauge
}

// New 创建指标记录器，每个进程一个独立的 registry
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quanterra_cycles_total",
			Help: "Collection cycles by outcome.",
		}, []string{"outcome"}),
		devices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quanterra_devices_total",
			Help: "Devices processed by stage (registered, reachable, harvested, failed).",
		}, []string{"stage"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quanterra_fetch_failures_total",
			Help: "Device fetch failures by kind.",
		}, []string{"kind"}),
		unmapped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quanterra_unmapped_addresses_total",
			Help: "Harvested addresses dropped because no station identity was found.",
		}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quanterra_samples_dispatched_total",
			Help: "Metric samples handed to the monitoring sink.",
		}),
		acknowledged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quanterra_samples_acknowledged_total",
			Help: "Metric samples acknowledged by the monitoring sink.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quanterra_cycle_duration_seconds",
			Help:    "Duration of collection cycles.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quanterra_last_success_timestamp_seconds",
			Help: "Unix time of the last cycle that completed without a cycle-level error.",
		}),
	}

	r.registry.MustRegister(
		r.cycles,
		r.devices,
		r.failures,
		r.unmapped,
		r.samples,
		r.acknowledged,
		r.cycleDuration,
		r.lastSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Outcome 将周期错误归类为指标标签
func Outcome(err error) string {
	var dispatchErr *service.SinkDispatchError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, service.ErrInventoryUnavailable):
		return "inventory_unavailable"
	case errors.Is(err, service.ErrMappingConflict):
		return "mapping_conflict"
	case errors.As(err, &dispatchErr):
		return "sink_error"
	default:
		return "error"
	}
}

// ObserveCycle 记录一轮采集
func (r *Recorder) ObserveCycle(result *service.CycleResult, err error) {
	r.cycles.WithLabelValues(Outcome(err)).Inc()
	if result == nil {
		return
	}

	r.devices.WithLabelValues("registered").Add(float64(result.Registered))
	r.devices.WithLabelValues("reachable").Add(float64(result.Reachable))
	r.devices.WithLabelValues("harvested").Add(float64(result.Harvested))
	r.devices.WithLabelValues("failed").Add(float64(result.Failed))
	for kind, n := range result.FailuresByKind {
		r.failures.WithLabelValues(kind).Add(float64(n))
	}
	r.unmapped.Add(float64(result.Unmapped))
	r.samples.Add(float64(result.Samples))
	r.acknowledged.Add(float64(result.Acknowledged))
	r.cycleDuration.Observe(result.Duration.Seconds())

	if err == nil {
		r.lastSuccess.Set(float64(result.StartedAt.Add(result.Duration).Unix()))
	}
}

// Registry 返回底层 registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler Prometheus 抓取接口
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
