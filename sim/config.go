package sim

import (
	"bytes"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ClusterConfig governs the tick loop's sub-periods, all expressed in
// milliseconds of virtual time.
type ClusterConfig struct {
	DispatchPeriodMilli          int64 `yaml:"DISPATCH_PERIOD_MILLI"`
	AutoscalingPeriodMilli       int64 `yaml:"AUTOSCALING_PERIOD_MILLI"`
	SchedulingPeriodMilli        int64 `yaml:"SCHEDULING_PERIOD_MILLI"`
	CRIPeriodMilli               int64 `yaml:"CRI_ENGINE_PULLING_PERIOD_MILLI"`
	UpdateConcurrencyPeriodMilli int64 `yaml:"UPDATE_CONCURRENCY_PERIOD_MILLI"`
	MonitoringPeriodMilli        int64 `yaml:"MONITORING_PERIOD_MILLI"`
	NetworkDelayMilli            int64 `yaml:"NETWORK_DELAY_MILLI"`
	DiscoveryDelayMilli          int64 `yaml:"DISCOVERY_DELAY_MILLI"`
	MemoryUsageOffsetMib         int64 `yaml:"MEMORY_USAGE_OFFSET"`
}

// NodeConfig governs a single node's capacity and instance lifecycle
// timings.
type NodeConfig struct {
	MaxNumInstances                int     `yaml:"MAX_NUM_INSTANCES"`
	InstanceSizeMib                int64   `yaml:"INSTANCE_SIZE_MIB"`
	ColdInstanceCreationDelayMilli int64   `yaml:"COLD_INSTANCE_CREATION_DELAY_MILLI"`
	WarmInstanceCreationDelayMilli int64   `yaml:"WARM_INSTANCE_CREATION_DELAY_MILLI"`
	JobMemoryOverheadMib           int64   `yaml:"JOB_MEMORY_OVERHEAD_MIB"`
	InstanceGracePeriodSec         int64   `yaml:"INSTANCE_GRACE_PERIOD_SEC"`
	InfraCPUOverheadRatio          float64 `yaml:"INFRA_CPU_OVERHEAD_RATIO"`
}

// HarvestVMConfig governs the optional preemptible-capacity subsystem.
type HarvestVMConfig struct {
	UseHarvestVM               bool     `yaml:"USE_HARVESTVM"`
	EnableHarvest              bool     `yaml:"ENABLE_HARVEST"`
	SpawnLatencyMilli          int64    `yaml:"HARVESTVM_SPAWN_LATENCY_MILLI"`
	PreemptionNotificationSec  int64    `yaml:"PREEMPTION_NOTIFICATION_SEC"`
	BaseHazard                 float64  `yaml:"BASE_HAZARD"`
	SurvivalPredictPeriodMilli int64    `yaml:"SURVIVAL_PREDICT_PERIOD_MILLI"`
	HarvestPeriodMilli         int64    `yaml:"HARVEST_PERIOD_MILLI"`
	NumHVMs                    int      `yaml:"NUM_HVMS"`
	Hashes                     []string `yaml:"HVM_HASHES"`
}

// AutoscalerConfig governs the KPA-style panic/stable window autoscaler.
type AutoscalerConfig struct {
	AlwaysPanic       bool    `yaml:"ALWAYS_PANIC"`
	PanicWindowSec    int64   `yaml:"PANIC_WINDOW_SEC"`
	StableWindowSec   int64   `yaml:"STABLE_WINDOW_SEC"`
	MaxScaleUpRate    float64 `yaml:"MAX_SCALE_UP_RATE"`
	MaxScaleDownRate  float64 `yaml:"MAX_SCALE_DOWN_RATE"`
	PanicThresholdPct float64 `yaml:"PANIC_THRESHOLD_PCT"`
}

// PolicyConfig governs scheduling/dispatch policy choices.
type PolicyConfig struct {
	LoadBalance           string  `yaml:"LOAD_BALANCE"`
	DupExecution          bool    `yaml:"DUP_EXECUTION"`
	DupExecutionThreshold float64 `yaml:"DUP_EXECUTION_THRESHOLD"`
}

// RequestConfig bounds individual request behavior.
type RequestConfig struct {
	MaxDurationSec int64 `yaml:"MAX_DURATION_SEC"`
}

// Config is the full simulator configuration surface. Every top-level
// section must be listed here to satisfy strict (KnownFields) YAML
// decoding: an unrecognized key in a config file is a fatal typo, not a
// silently-ignored extra.
type Config struct {
	Cluster    ClusterConfig    `yaml:"cluster"`
	Node       NodeConfig       `yaml:"node"`
	HarvestVM  HarvestVMConfig  `yaml:"harvestvm"`
	Autoscaler AutoscalerConfig `yaml:"autoscaler"`
	Policy     PolicyConfig     `yaml:"policy"`
	Request    RequestConfig    `yaml:"request"`
}

// defaultHVMHashes mirrors the reference implementation's built-in HVMS
// allow-list used when no harvestvm.HVM_HASHES override is configured.
var defaultHVMHashes = []string{
	"26ff823a8dd5", "11ce77b9f010", "82859cd4f643", "4c332aa9b494",
	"e5c949bb9da9", "ad1387c95d15", "28a9e9444f41", "c46f41ab97dd",
}

// DefaultConfig returns the simulator's built-in defaults, equal to the
// reference implementation's configs/default.py before any autoscale.py or
// user overrides are layered on.
func DefaultConfig() *Config {
	return &Config{
		Cluster: ClusterConfig{
			DispatchPeriodMilli:          1,
			AutoscalingPeriodMilli:       2000,
			SchedulingPeriodMilli:        5000,
			CRIPeriodMilli:               1,
			UpdateConcurrencyPeriodMilli: 1000,
			MonitoringPeriodMilli:        1000,
			NetworkDelayMilli:            10,
			DiscoveryDelayMilli:          1,
			MemoryUsageOffsetMib:         5,
		},
		Node: NodeConfig{
			MaxNumInstances:                490,
			InstanceSizeMib:                200,
			ColdInstanceCreationDelayMilli: 3000,
			WarmInstanceCreationDelayMilli: 1000,
			JobMemoryOverheadMib:           50,
			InstanceGracePeriodSec:         30,
			InfraCPUOverheadRatio:          0.0,
		},
		HarvestVM: HarvestVMConfig{
			UseHarvestVM:               false,
			EnableHarvest:              true,
			SpawnLatencyMilli:          10000,
			PreemptionNotificationSec:  30,
			BaseHazard:                 0.42,
			SurvivalPredictPeriodMilli: 500,
			HarvestPeriodMilli:         500,
			NumHVMs:                    0,
			Hashes:                     append([]string(nil), defaultHVMHashes...),
		},
		Autoscaler: AutoscalerConfig{
			AlwaysPanic:       true,
			PanicWindowSec:    60,
			StableWindowSec:   600,
			MaxScaleUpRate:    1000,
			MaxScaleDownRate:  2,
			PanicThresholdPct: 200,
		},
		Policy: PolicyConfig{
			LoadBalance:           "first_available",
			DupExecution:          false,
			DupExecutionThreshold: 0.5,
		},
		Request: RequestConfig{
			MaxDurationSec: 900,
		},
	}
}

// LoadConfig reads and strictly decodes a YAML config file, starting from
// DefaultConfig and overlaying whatever sections/keys the file sets. An
// unknown key anywhere in the document is a decode error, matching the
// reference YAML loader's KnownFields(true) behavior.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyOverride applies a single --config.<section>.<KEY>=value override to
// cfg, matching the key against the section's yaml tags by reflection. The
// section names are the Config struct's yaml tags (cluster, node, harvestvm,
// autoscaler, policy, request); KEY matches a field's yaml tag within that
// section.
func ApplyOverride(cfg *Config, path, value string) error {
	parts := strings.SplitN(path, ".", 2)
	if len(parts) != 2 {
		return fmt.Errorf("override %q must be of the form <section>.<KEY>", path)
	}
	section, key := parts[0], parts[1]

	cfgVal := reflect.ValueOf(cfg).Elem()
	cfgType := cfgVal.Type()

	var sectionVal reflect.Value
	for i := 0; i < cfgType.NumField(); i++ {
		if yamlName(cfgType.Field(i)) == section {
			sectionVal = cfgVal.Field(i)
			break
		}
	}
	if !sectionVal.IsValid() {
		return fmt.Errorf("unknown config section %q", section)
	}

	sectionType := sectionVal.Type()
	for i := 0; i < sectionType.NumField(); i++ {
		if yamlName(sectionType.Field(i)) != key {
			continue
		}
		return setFieldFromString(sectionVal.Field(i), value)
	}
	return fmt.Errorf("unknown config key %q in section %q", key, section)
}

func yamlName(f reflect.StructField) string {
	tag := f.Tag.Get("yaml")
	if comma := strings.Index(tag, ","); comma >= 0 {
		tag = tag[:comma]
	}
	return tag
}

func setFieldFromString(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("parse bool %q: %w", value, err)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("parse int %q: %w", value, err)
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("parse float %q: %w", value, err)
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type %s", field.Type().Elem())
		}
		field.Set(reflect.ValueOf(strings.Split(value, ",")))
	default:
		return fmt.Errorf("unsupported config field kind %s", field.Kind())
	}
	return nil
}
