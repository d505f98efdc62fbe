package output

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faas-sim/faas-sim/sim"
	"github.com/faas-sim/faas-sim/sim/cluster"
)

func TestSink_DrainAccumulatesRequestRecords(t *testing.T) {
	sink := NewSink()
	node := cluster.NewNode("n1", "node-1", 8, 8192, 0, 10, 0)
	r := sim.NewRequest(1, 5, "F0", 100, 64, "d")
	r.ArrivalTime = 0
	r.StartTime = 5
	r.EndTime = 120
	r.TotalCputime = 100

	sink.Drain(node, r)

	require.Len(t, sink.Requests, 1)
	assert.Equal(t, "1-F0", sink.Requests[0].ReqID)
	assert.Equal(t, "node-1", sink.Requests[0].Node)
	assert.False(t, sink.Requests[0].Failed)
}

func TestSink_DrainFailedRequestRecordsNaNLatency(t *testing.T) {
	sink := NewSink()
	node := cluster.NewNode("n1", "node-1", 8, 8192, 0, 10, 0)
	r := sim.NewRequest(1, 5, "F0", 100, 64, "d")
	r.Failed = true

	sink.Drain(node, r)

	assert.True(t, math.IsNaN(sink.Requests[0].Latency))
}

func TestResultWriter_WriteRequests_SortsByFlowIDAndWritesNaN(t *testing.T) {
	dir := t.TempDir()
	w := NewResultWriter(dir)

	records := []RequestRecord{
		{ReqID: "3-F0", FlowID: 3, Latency: 10},
		{ReqID: "1-F0", FlowID: 1, Latency: math.NaN(), Failed: true},
	}
	require.NoError(t, w.WriteRequests("test", records))

	data, err := os.ReadFile(filepath.Join(dir, "requests_test.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3) // header + 2 rows
	assert.True(t, strings.HasPrefix(lines[1], "1-F0,"))
	assert.Contains(t, lines[1], "NaN")
	assert.True(t, strings.HasPrefix(lines[2], "3-F0,"))
}

func TestResultWriter_WriteCluster_WritesHeaderAndRows(t *testing.T) {
	dir := t.TempDir()
	w := NewResultWriter(dir)

	samples := []cluster.ClusterSample{
		{Timestamp: 1000, RPS: 2.5, ActualScale: 1, DesiredScale: 2},
	}
	require.NoError(t, w.WriteCluster("test", samples))

	data, err := os.ReadFile(filepath.Join(dir, "cluster_test.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "desired_scale")
	assert.Contains(t, lines[1], "2.5")
}
