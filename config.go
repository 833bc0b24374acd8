package eventbus

import (
	"os"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EngineConfig is the ambient, bootstrap-time tuning for an Engine —
// distinct from Configuration (spec C9), which is the per-handler-
// descriptor map. Shaped like the teacher's EventBusConfig: plain struct,
// json/yaml/toml/env tags, loadable from a file or fed by env vars.
type EngineConfig struct {
	// SchedulerWorkers is the size of the engine-owned worker pool that
	// fire-and-forget dispatch launches suspending handlers onto.
	SchedulerWorkers int `json:"schedulerWorkers" yaml:"schedulerWorkers" toml:"scheduler_workers" env:"SCHEDULER_WORKERS"`

	// SchedulerQueueSize is the pool's job queue depth before activations
	// fall back to bare goroutines.
	SchedulerQueueSize int `json:"schedulerQueueSize" yaml:"schedulerQueueSize" toml:"scheduler_queue_size" env:"SCHEDULER_QUEUE_SIZE"`

	// DeadEventDisabled turns off dead-event synthesis engine-wide,
	// regardless of per-dispatch DispatchOptions.DeadEvent.
	DeadEventDisabled bool `json:"deadEventDisabled" yaml:"deadEventDisabled" toml:"dead_event_disabled" env:"DEAD_EVENT_DISABLED"`

	// StickyDisabled turns off sticky storage and replay engine-wide.
	StickyDisabled bool `json:"stickyDisabled" yaml:"stickyDisabled" toml:"sticky_disabled" env:"STICKY_DISABLED"`
}

// DefaultEngineConfig returns the configuration NewEngine uses when no
// Components overrides are supplied.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		SchedulerWorkers:   4,
		SchedulerQueueSize: 64,
	}
}

// LoadEngineConfigYAML reads and unmarshals a YAML engine config file,
// starting from DefaultEngineConfig so unset fields keep sane defaults.
func LoadEngineConfigYAML(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultEngineConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEngineConfigTOML reads and unmarshals a TOML engine config file,
// starting from DefaultEngineConfig so unset fields keep sane defaults.
func LoadEngineConfigTOML(path string) (*EngineConfig, error) {
	cfg := DefaultEngineConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ToComponents lifts the ambient config into the Components fields it
// governs, leaving collaborator fields (Logger, ErrorSink, Resolver,
// Recorder) for the caller to set directly.
func (c *EngineConfig) ToComponents() Components {
	return Components{
		SchedulerWorkers:   c.SchedulerWorkers,
		SchedulerQueueSize: c.SchedulerQueueSize,
		DeadEventDisabled:  c.DeadEventDisabled,
		StickyDisabled:     c.StickyDisabled,
	}
}
