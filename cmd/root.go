// cmd/root.go
package cmd

import (
	"fmt"
	"math/rand"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/faas-sim/faas-sim/sim"
	"github.com/faas-sim/faas-sim/sim/cluster"
	"github.com/faas-sim/faas-sim/sim/dag"
	"github.com/faas-sim/faas-sim/sim/output"
	"github.com/faas-sim/faas-sim/sim/trace"
	"github.com/faas-sim/faas-sim/sim/workload"
)

var (
	mode           string
	tracePath      string
	invocationCSV  string
	hvmHash        string
	logfile        string
	logLevel       string
	display        bool
	nodisplay      bool
	numVMs         int
	numCores       int
	stages         int
	invocations    int
	width          int
	depth          int
	rps            float64
	configPath     string
	configOverride []string
	seed           int64
	outDir         string
	runKey         string
	traceLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "noserver-sim",
	Short: "Discrete-event simulator for a FaaS control plane",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the simulation",
	RunE:  runSimulation,
}

// Execute runs the root command, exiting with a non-zero status on any
// returned error (invalid mode, invalid DAG dimensions, config load
// failure), matching spec.md §6's exit-code contract.
//
// --config.<section>.<KEY>=value overrides are pulled out of os.Args
// before cobra's flag parser ever sees them: pflag needs every flag name
// registered ahead of time, but these names are only known at invocation
// time, so they are stripped here and collected into configOverride in
// left-to-right order.
func Execute() {
	remaining, overrides := extractConfigOverrides(os.Args[1:])
	configOverride = overrides
	rootCmd.SetArgs(remaining)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// extractConfigOverrides splits args into plain cobra/pflag arguments and
// --config.<section>.<KEY>=value overrides (in --flag=value or --flag value
// form), preserving the overrides' relative order for last-wins semantics.
func extractConfigOverrides(args []string) (remaining, overrides []string) {
	const prefix = "--config."
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, prefix) {
			remaining = append(remaining, arg)
			continue
		}
		rest := arg[len(prefix):]
		if eq := strings.IndexByte(rest, '='); eq >= 0 {
			overrides = append(overrides, rest)
			continue
		}
		if i+1 < len(args) {
			overrides = append(overrides, rest+"="+args[i+1])
			i++
		}
	}
	return remaining, overrides
}

func init() {
	runCmd.Flags().StringVar(&mode, "mode", "", "Arrival mode: test, rps, dag, benchmark, trace (required)")
	runCmd.Flags().StringVar(&tracePath, "trace", "", "Path to a DAG bundle (JSON), used by --mode trace")
	runCmd.Flags().StringVar(&invocationCSV, "invocation-csv", "", "Optional CSV invocation schedule for --mode trace (timestamp,dag_name,num_invocations)")
	runCmd.Flags().StringVar(&hvmHash, "hvm", "", "HarvestVM hash to enable (overrides harvestvm.USE_HARVESTVM on)")
	runCmd.Flags().StringVar(&logfile, "logfile", "", "Path to write logs to (stderr if empty)")
	runCmd.Flags().StringVar(&logLevel, "log", "info", "Log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&display, "display", true, "Mirror cluster samples as Prometheus gauges")
	runCmd.Flags().BoolVar(&nodisplay, "nodisplay", false, "Disable Prometheus mirroring, overriding --display")
	runCmd.Flags().IntVar(&numVMs, "vm", 1, "Number of worker nodes")
	runCmd.Flags().IntVar(&numCores, "cores", 4, "CPU cores per worker node")
	runCmd.Flags().IntVar(&stages, "stages", 1, "Number of distinct functions (test/rps mode)")
	runCmd.Flags().IntVar(&invocations, "invocations", 100, "Total invocation count (benchmark/dag mode)")
	runCmd.Flags().IntVar(&width, "width", 1, "Synthetic DAG width (benchmark/dag mode)")
	runCmd.Flags().IntVar(&depth, "depth", 1, "Synthetic DAG depth (benchmark/dag mode)")
	runCmd.Flags().Float64Var(&rps, "rps", 1, "Target requests/sec (ignored by --mode rps, which sweeps its own curve)")
	runCmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	runCmd.Flags().Int64Var(&seed, "seed", 1, "RNG seed")
	runCmd.Flags().StringVar(&outDir, "out", ".", "Directory to write result CSVs into")
	runCmd.Flags().StringVar(&runKey, "key", "run", "Suffix used to name the result CSVs (cluster_<key>.csv, requests_<key>.csv)")
	runCmd.Flags().StringVar(&traceLevel, "trace-level", string(trace.LevelNone), "Decision trace verbosity: none, decisions")

	rootCmd.AddCommand(runCmd)
}

func runSimulation(cmd *cobra.Command, args []string) error {
	if err := configureLogging(); err != nil {
		return err
	}
	if nodisplay {
		display = false
	}

	cfg, err := sim.LoadConfig(configPath)
	if err != nil {
		return err
	}
	for _, override := range configOverride {
		path, value, err := splitOverride(override)
		if err != nil {
			return err
		}
		if err := sim.ApplyOverride(cfg, path, value); err != nil {
			return err
		}
	}
	if hvmHash != "" {
		cfg.HarvestVM.UseHarvestVM = true
		cfg.HarvestVM.Hashes = []string{hvmHash}
		cfg.HarvestVM.NumHVMs = 1
	}

	switch workload.Mode(mode) {
	case workload.ModeTest:
		return runTestMode(cfg)
	case workload.ModeRPS:
		return runRPSMode(cfg)
	case workload.ModeBenchmark, workload.ModeDAG:
		return runSyntheticMode(cfg)
	case workload.ModeTrace:
		return runTraceMode(cfg)
	default:
		return fmt.Errorf("invalid --mode %q: want one of test, rps, dag, benchmark, trace", mode)
	}
}

func configureLogging() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid --log level %q: %w", logLevel, err)
	}
	sim.Log.SetLevel(level)
	if logfile != "" {
		f, err := os.OpenFile(logfile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open --logfile %s: %w", logfile, err)
		}
		logrus.SetOutput(f)
	}
	return nil
}

func splitOverride(raw string) (path, value string, err error) {
	for i := 0; i < len(raw); i++ {
		if raw[i] == '=' {
			return raw[:i], raw[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("override %q must be of the form <section>.<KEY>=value", raw)
}

func newMonitor(rt *cluster.Runtime, sink *output.Sink) {
	rt.Metrics = sink
	if display {
		reg := prometheus.NewRegistry()
		sink.Forward = output.NewPrometheusExporter(reg)
	}
}

func newClusterFromNodes(cfg *sim.Config, functions []*sim.Function, nodes []*cluster.Node) (*cluster.Cluster, *output.Sink) {
	rt := cluster.NewRuntime(cfg, seed)
	for _, fn := range functions {
		rt.AddFunction(fn)
	}
	for _, n := range nodes {
		rt.AddNode(n)
	}
	c := cluster.NewCluster(rt, functions)
	sink := output.NewSink()
	c.Monitor = sink
	newMonitor(rt, sink)
	if trace.IsValidLevel(traceLevel) && trace.Level(traceLevel) != trace.LevelNone {
		rt.Trace = trace.NewRun(trace.Config{Level: trace.Level(traceLevel)})
	}
	return c, sink
}

func logTraceSummary(c *cluster.Cluster) {
	if c.RT.Trace == nil {
		return
	}
	summary := trace.Summarize(c.RT.Trace)
	sim.Log.WithClock(c.RT.Now()).Infof(
		"(trace) admitted=%d rejected=%d unique_targets=%d mean_regret=%.4f",
		summary.AdmittedCount, summary.RejectedCount, summary.UniqueTargets, summary.MeanRegret,
	)
}

func writeResults(sink *output.Sink) error {
	w := output.NewResultWriter(outDir)
	if err := w.WriteCluster(runKey, sink.Samples); err != nil {
		return err
	}
	return w.WriteRequests(runKey, sink.Requests)
}

func functionNames(functions []*sim.Function) []string {
	names := make([]string, len(functions))
	for i, fn := range functions {
		names[i] = fn.Name
	}
	return names
}

func runTestMode(cfg *sim.Config) error {
	functions := workload.SyntheticFunctions(stages, 1, 10)
	nodes := workload.SyntheticNodes(numVMs, numCores, cfg.Node.InstanceSizeMib, 0, cfg.Node.MaxNumInstances)
	c, sink := newClusterFromNodes(cfg, functions, nodes)
	c.RPS = rps

	gen := workload.NewGenerator(c, rand.New(rand.NewSource(seed)))
	gen.RunTest(functionNames(functions), rps, 1000, 64, 1)
	logTraceSummary(c)
	return writeResults(sink)
}

func runRPSMode(cfg *sim.Config) error {
	functions := workload.SyntheticFunctions(stages, 1, 10)
	nodes := workload.SyntheticNodes(numVMs, numCores, cfg.Node.InstanceSizeMib, 0, cfg.Node.MaxNumInstances)
	c, sink := newClusterFromNodes(cfg, functions, nodes)

	gen := workload.NewGenerator(c, rand.New(rand.NewSource(seed)))
	gen.RunRPS(functionNames(functions), workload.DefaultRPSSweep(), numCores, 64, 1000)
	logTraceSummary(c)
	return writeResults(sink)
}

func runSyntheticMode(cfg *sim.Config) error {
	if width <= 0 || depth <= 0 {
		return fmt.Errorf("invalid dag dimensions: --width=%d --depth=%d must both be positive", width, depth)
	}

	dummyGraph := dag.Synthetic("gen_dag", width, depth, 1000, 64, 1)
	functions := make([]*sim.Function, 0, len(dummyGraph.Nodes))
	for _, name := range dummyGraph.Nodes {
		functions = append(functions, sim.NewFunction(name, 1, 1))
	}
	nodes := workload.SyntheticNodes(numVMs, numCores, cfg.Node.InstanceSizeMib, 0, cfg.Node.MaxNumInstances)
	c, sink := newClusterFromNodes(cfg, functions, nodes)
	c.RPS = rps

	rt := c.RT
	engine := dag.NewEngine(c, rt, cfg.Request.MaxDurationSec*1000)
	rt.Flows = engine

	gen := workload.NewGenerator(c, rand.New(rand.NewSource(seed)))
	gen.RunSynthetic(engine, width, depth, invocations, rps, 1000, 64, 1)
	logTraceSummary(c)
	return writeResults(sink)
}

func runTraceMode(cfg *sim.Config) error {
	if tracePath == "" {
		return fmt.Errorf("--mode trace requires --trace <bundle.json>")
	}

	bundle, err := dag.NewJSONBundleLoader(tracePath).Load()
	if err != nil {
		return err
	}

	seen := map[string]bool{}
	var functions []*sim.Function
	dags := make(map[string]*dag.Graph, len(bundle))
	for _, g := range bundle {
		dags[g.Name] = g
		for _, name := range g.Nodes {
			if !seen[name] {
				seen[name] = true
				functions = append(functions, sim.NewFunction(name, 1, 1))
			}
		}
	}

	nodes := workload.SyntheticNodes(numVMs, numCores, cfg.Node.InstanceSizeMib, 0, cfg.Node.MaxNumInstances)
	c, sink := newClusterFromNodes(cfg, functions, nodes)
	c.RPS = rps

	rt := c.RT
	maxDurationMilli := cfg.Request.MaxDurationSec * 1000
	engine := dag.NewEngine(c, rt, maxDurationMilli)
	rt.Flows = engine

	gen := workload.NewGenerator(c, rand.New(rand.NewSource(seed)))

	if invocationCSV != "" {
		records, err := workload.NewCSVInvocationReader(invocationCSV).ReadInvocations()
		if err != nil {
			return err
		}
		if err := gen.RunTraceSchedule(engine, dags, records, maxDurationMilli); err != nil {
			return err
		}
		logTraceSummary(c)
		return writeResults(sink)
	}

	if err := gen.RunTrace(engine, bundle, rps, maxDurationMilli); err != nil {
		return err
	}
	logTraceSummary(c)
	return writeResults(sink)
}
