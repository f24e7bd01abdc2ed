// Package daemon wires the broker and model processes together from a
// TOML process configuration, in the style of the teacher's daemon
// package (one Config struct loaded with BurntSushi/toml, one Daemon that
// constructs and runs everything).
package daemon

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the process-wide TOML configuration (SPEC_FULL.md AMBIENT
// STACK "Config"): transport endpoints, timers, log level, and the
// metrics/health listener address. Distinct from the spec-mandated JSON
// domain configuration (/opt/config.json, /opt/config/*.json,
// /opt/schemas/**/*.json), which is loaded with encoding/json elsewhere
// because that wire/schema format is fixed by spec §6.
type Config struct {
	Transport TransportConfig `toml:"transport"`
	Broker    BrokerConfig    `toml:"broker"`
	Model     ModelConfig     `toml:"model"`
	Logging   LoggingConfig   `toml:"logging"`
	HTTP      HTTPConfig      `toml:"http"`
}

// TransportConfig names the ZeroMQ forwarder's ingress/egress endpoints
// (spec §4.5, §4.6).
type TransportConfig struct {
	IngressEndpoint string `toml:"ingress_endpoint"` // where publishers connect, e.g. tcp://broker:5555
	EgressEndpoint  string `toml:"egress_endpoint"`  // where subscribers connect, e.g. tcp://broker:5556
	ForwarderBind   string `toml:"forwarder_bind"`   // broker-only: e.g. tcp://*:5555
	BackendBind     string `toml:"backend_bind"`     // broker-only: e.g. tcp://*:5556
}

// BrokerConfig holds the broker's lifecycle tunables (spec §3 "Broker
// state").
type BrokerConfig struct {
	ModelsConfigPath string `toml:"models_config_path"` // /opt/config.json
	DataDir          string `toml:"data_dir"`
	MaxIncstep       int    `toml:"max_incstep"`
	InitialYear      int    `toml:"initial_year"`
	BootTimerSeconds int    `toml:"boot_timer_seconds"`
	WatchdogSeconds  int    `toml:"watchdog_seconds"`
}

// BootTimer and WatchdogTimer convert the TOML integer seconds fields to
// durations.
func (b BrokerConfig) BootTimer() time.Duration {
	return time.Duration(b.BootTimerSeconds) * time.Second
}
func (b BrokerConfig) WatchdogTimer() time.Duration {
	return time.Duration(b.WatchdogSeconds) * time.Second
}

// ModelConfig holds a model process's identity and fixed directories
// (spec §6).
type ModelConfig struct {
	ID                string `toml:"id"`
	NumExpectedInputs int    `toml:"num_expected_inputs"`
	InputSchemaDir    string `toml:"input_schema_dir"`
	OutputSchemaDir   string `toml:"output_schema_dir"`
	ConfigDir         string `toml:"config_dir"`
	AbstractGraphPath string `toml:"abstract_graph_path"`
	InstanceGraphPath string `toml:"instance_graph_path"`
}

// LoggingConfig holds the configured log level. The level is parsed but not
// applied: every message goes through the standard `log` package, which
// has no levels.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// HTTPConfig controls the health/status/metrics HTTP surface (SPEC_FULL.md
// AMBIENT STACK "HTTP status surface").
type HTTPConfig struct {
	Addr string `toml:"addr"`
}

// Default returns a sensible default configuration, matching the
// reference deployment's fixed paths and timers (broker/handler.py,
// outer_wrapper.py).
func Default() Config {
	return Config{
		Transport: TransportConfig{
			IngressEndpoint: "tcp://broker:5555",
			EgressEndpoint:  "tcp://broker:5556",
			ForwarderBind:   "tcp://*:5555",
			BackendBind:     "tcp://*:5556",
		},
		Broker: BrokerConfig{
			ModelsConfigPath: "/opt/config.json",
			DataDir:          "/var/lib/incstep",
			MaxIncstep:       50,
			InitialYear:      2016,
			BootTimerSeconds: 60,
			WatchdogSeconds:  60,
		},
		Model: ModelConfig{
			InputSchemaDir:    "/opt/schemas/input",
			OutputSchemaDir:   "/opt/schemas/output",
			ConfigDir:         "/opt/config",
			AbstractGraphPath: "/abstract-graph.geojson",
			InstanceGraphPath: "/instance-graph.geojson",
		},
		Logging: LoggingConfig{Level: "info"},
		HTTP:    HTTPConfig{Addr: "127.0.0.1:9090"},
	}
}

// Load reads a TOML config file at path, overlaying it onto Default().
// A missing file is not an error; defaults are used as-is.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("daemon: parse config %s: %w", path, err)
	}
	return cfg, nil
}
