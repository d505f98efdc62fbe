// Package output writes the simulator's two fixed-schema result CSVs
// (cluster resource samples and per-request outcomes), and optionally
// mirrors the cluster samples as Prometheus gauges.
package output

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/faas-sim/faas-sim/sim"
	"github.com/faas-sim/faas-sim/sim/cluster"
)

// RequestRecord is one completed (or failed) request's outcome row,
// mirroring the reference implementation's drain() dict.
type RequestRecord struct {
	ReqID        string
	FlowID       int64
	Dag          string
	Node         string
	Host         string
	RPS          int
	ArrivalTime  int64
	StartTime    int64
	EndTime      int64
	CPUTime      int64
	Latency      float64 // math.NaN() when Failed
	Function     string
	Duration     int64
	Memory       int
	SurvivalProb float64
	Failed       bool
}

// Sink accumulates cluster samples and request records in memory over the
// course of a run and implements both cluster.Drainer and
// cluster.MonitorSink, mirroring the reference Cluster's self.trace/self.sink
// lists. ResultWriter reads from it at the end of the run.
type Sink struct {
	Requests []RequestRecord
	Samples  []cluster.ClusterSample

	// Forward optionally mirrors every sample into a secondary sink (e.g.
	// a Prometheus Registry), without Sink needing to know about metrics
	// exporters.
	Forward cluster.MonitorSink
}

// NewSink creates an empty Sink.
func NewSink() *Sink {
	return &Sink{}
}

// Drain implements cluster.Drainer.
func (s *Sink) Drain(node *cluster.Node, request *sim.Request) {
	latency := float64(request.EndTime - request.ArrivalTime - request.Duration)
	if request.Failed {
		latency = math.NaN()
	}
	s.Requests = append(s.Requests, RequestRecord{
		ReqID:        request.ReqID,
		FlowID:       request.FlowID,
		Dag:          request.DagName,
		Node:         node.Name,
		Host:         node.Kind.String(),
		RPS:          request.RPS,
		ArrivalTime:  request.ArrivalTime,
		StartTime:    request.StartTime,
		EndTime:      request.EndTime,
		CPUTime:      request.TotalCputime,
		Latency:      latency,
		Function:     request.Dest,
		Duration:     request.Duration,
		Memory:       request.Memory,
		SurvivalProb: round5(node.SurvivalProb(request.EndTime)),
		Failed:       request.Failed,
	})
}

// Observe implements cluster.MonitorSink.
func (s *Sink) Observe(sample cluster.ClusterSample) {
	s.Samples = append(s.Samples, sample)
	if s.Forward != nil {
		s.Forward.Observe(sample)
	}
}

func round5(f float64) float64 {
	return math.Round(f*1e5) / 1e5
}

// ResultWriter writes the accumulated Sink contents to the two fixed-schema
// CSV files, keyed the way the reference implementation names them:
// cluster_<key>.csv and requests_<key>.csv.
type ResultWriter struct {
	Dir string
}

// NewResultWriter creates a ResultWriter that writes into dir.
func NewResultWriter(dir string) *ResultWriter {
	return &ResultWriter{Dir: dir}
}

var clusterHeaders = []string{
	"rps", "timestamp", "actual_scale", "desired_scale", "running_instances",
	"active_instances", "existing_instances", "terminating_instances",
	"worker_cpu_avg", "worker_mem_avg",
}

var requestHeaders = []string{
	"req_id", "flow_id", "dag", "node", "host", "rps", "arrival_time",
	"start_time", "end_time", "cpu_time", "latency", "function", "duration",
	"memory", "survival_prob", "failed",
}

// WriteCluster writes every ClusterSample in s to <dir>/cluster_<key>.csv.
func (w *ResultWriter) WriteCluster(key string, samples []cluster.ClusterSample) error {
	path := fmt.Sprintf("%s/cluster_%s.csv", w.Dir, key)
	rows := make([][]string, 0, len(samples))
	for _, s := range samples {
		rows = append(rows, []string{
			formatFloat(s.RPS), strconv.FormatInt(s.Timestamp, 10),
			strconv.Itoa(s.ActualScale), strconv.Itoa(s.DesiredScale),
			strconv.Itoa(s.RunningInstances), strconv.Itoa(s.ActiveInstances),
			strconv.Itoa(s.ExistingInstances), strconv.Itoa(s.TerminatingInstances),
			formatFloat(s.WorkerCPUAvg), formatFloat(s.WorkerMemAvg),
		})
	}
	return writeCSV(path, clusterHeaders, rows)
}

// WriteRequests writes every RequestRecord in records to
// <dir>/requests_<key>.csv, sorted (stably) by FlowID, matching the
// reference implementation's self.sink.sort(key=lambda r: r["flow_id"]).
func (w *ResultWriter) WriteRequests(key string, records []RequestRecord) error {
	sorted := append([]RequestRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].FlowID < sorted[j].FlowID })

	path := fmt.Sprintf("%s/requests_%s.csv", w.Dir, key)
	rows := make([][]string, 0, len(sorted))
	for _, r := range sorted {
		rows = append(rows, []string{
			r.ReqID, strconv.FormatInt(r.FlowID, 10), r.Dag, r.Node, r.Host,
			strconv.Itoa(r.RPS), strconv.FormatInt(r.ArrivalTime, 10),
			strconv.FormatInt(r.StartTime, 10), strconv.FormatInt(r.EndTime, 10),
			strconv.FormatInt(r.CPUTime, 10), formatFloat(r.Latency),
			r.Function, strconv.FormatInt(r.Duration, 10), strconv.Itoa(r.Memory),
			formatFloat(r.SurvivalProb), strconv.FormatBool(r.Failed),
		})
	}
	return writeCSV(path, requestHeaders, rows)
}

func formatFloat(f float64) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func writeCSV(path string, headers []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(headers); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
