package output

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/faas-sim/faas-sim/sim/cluster"
)

// PrometheusExporter mirrors every cluster.ClusterSample onto a set of
// Prometheus gauges, giving the monitoring period a second,
// ecosystem-idiomatic consumer alongside the CSV sink. It implements
// cluster.MonitorSink.
type PrometheusExporter struct {
	rps                  prometheus.Gauge
	actualScale          prometheus.Gauge
	desiredScale         prometheus.Gauge
	runningInstances     prometheus.Gauge
	activeInstances      prometheus.Gauge
	existingInstances    prometheus.Gauge
	terminatingInstances prometheus.Gauge
	workerCPUAvg         prometheus.Gauge
	workerMemAvg         prometheus.Gauge
}

// NewPrometheusExporter registers a gauge per ClusterSample field with reg
// and returns an exporter ready to Observe samples.
func NewPrometheusExporter(reg prometheus.Registerer) *PrometheusExporter {
	gauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "faas_sim",
			Name:      name,
			Help:      help,
		})
		reg.MustRegister(g)
		return g
	}
	return &PrometheusExporter{
		rps:                  gauge("rps", "Configured arrival rate at the last monitoring tick."),
		actualScale:          gauge("actual_scale", "Sum of every function's actual scale."),
		desiredScale:         gauge("desired_scale", "Sum of every function's autoscaler-desired scale."),
		runningInstances:     gauge("running_instances", "Instances in RUNNING or IDLE state."),
		activeInstances:      gauge("active_instances", "Instances not in TERMINATING state."),
		existingInstances:    gauge("existing_instances", "Every instance across every node."),
		terminatingInstances: gauge("terminating_instances", "Instances in TERMINATING state."),
		workerCPUAvg:         gauge("worker_cpu_avg_pct", "Mean CPU utilization across nodes."),
		workerMemAvg:         gauge("worker_mem_avg_pct", "Mean memory usage across nodes, offset-adjusted."),
	}
}

// Observe implements cluster.MonitorSink.
func (p *PrometheusExporter) Observe(sample cluster.ClusterSample) {
	p.rps.Set(sample.RPS)
	p.actualScale.Set(float64(sample.ActualScale))
	p.desiredScale.Set(float64(sample.DesiredScale))
	p.runningInstances.Set(float64(sample.RunningInstances))
	p.activeInstances.Set(float64(sample.ActiveInstances))
	p.existingInstances.Set(float64(sample.ExistingInstances))
	p.terminatingInstances.Set(float64(sample.TerminatingInstances))
	p.workerCPUAvg.Set(sample.WorkerCPUAvg)
	p.workerMemAvg.Set(sample.WorkerMemAvg)
}
