package sim

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full simulation setup, loadable from a YAML file.
// Fields missing from the file keep the values of DefaultConfig.
type Config struct {
	Topology  string           `yaml:"topology"`
	Seed      int64            `yaml:"seed"`
	Local     LocalConfig      `yaml:"local"`
	Policies  PolicyConfig     `yaml:"policies"`
	Expanders []ExpanderConfig `yaml:"expanders"`
}

// LocalConfig groups the local DRAM tier and timing parameters.
type LocalConfig struct {
	Capacity          float64 `yaml:"capacity"`  // MiB
	PageType          string  `yaml:"page_type"` // c, p, 2m or 1g
	Epoch             int     `yaml:"epoch"`
	DRAMLatency       float64 `yaml:"dram_latency"`
	CacheBytes        uint64  `yaml:"cache_bytes"`
	CongestionLatency float64 `yaml:"congestion_latency"`
}

// DefaultConfig mirrors the command-line defaults: three identical expanders
// under "(1,(2,3))" and no local capacity.
func DefaultConfig() Config {
	def := DefaultControllerConfig()
	expanders := make([]ExpanderConfig, 3)
	for i := range expanders {
		expanders[i] = ExpanderConfig{
			ReadLatency:    100,
			WriteLatency:   150,
			ReadBandwidth:  50,
			WriteBandwidth: 50,
			Capacity:       20,
		}
	}
	return Config{
		Topology: "(1,(2,3))",
		Local: LocalConfig{
			Capacity:          def.Capacity,
			PageType:          "p",
			Epoch:             def.Epoch,
			DRAMLatency:       def.DRAMLatency,
			CacheBytes:        def.CacheBytes,
			CongestionLatency: def.CongestionLatency,
		},
		Expanders: expanders,
	}
}

// LoadConfig reads a YAML configuration over DefaultConfig.
// Unknown fields are rejected.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading simulation config: %w", err)
	}
	cfg := DefaultConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing simulation config: %w", err)
	}
	return &cfg, nil
}

// ControllerConfig converts the local section.
func (c *Config) ControllerConfig() (ControllerConfig, error) {
	pt, err := ParsePageType(c.Local.PageType)
	if err != nil {
		return ControllerConfig{}, err
	}
	cc := ControllerConfig{
		Capacity:          c.Local.Capacity,
		PageType:          pt,
		Epoch:             c.Local.Epoch,
		DRAMLatency:       c.Local.DRAMLatency,
		CacheBytes:        c.Local.CacheBytes,
		CongestionLatency: c.Local.CongestionLatency,
	}
	return cc, cc.Validate()
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Topology == "" {
		return fmt.Errorf("topology must not be empty")
	}
	if len(c.Expanders) == 0 {
		return ErrNoExpanders
	}
	for i, e := range c.Expanders {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("expander %d: %w", i+1, err)
		}
	}
	if err := c.Policies.Validate(); err != nil {
		return err
	}
	if _, err := c.ControllerConfig(); err != nil {
		return fmt.Errorf("local: %w", err)
	}
	return nil
}

// NewControllerFromConfig builds a controller, registers the expanders in
// order and constructs the topology. The seed drives every random choice
// unless opts supply another RNG.
func NewControllerFromConfig(cfg *Config, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cc, _ := cfg.ControllerConfig()
	policies, err := NewPolicySet(cfg.Policies)
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithRNG(NewPartitionedRNG(NewSimulationKey(cfg.Seed)))}, opts...)
	c, err := NewController(cc, policies, opts...)
	if err != nil {
		return nil, err
	}
	for _, e := range cfg.Expanders {
		c.InsertEndPoint(NewExpander(e))
	}
	if err := c.ConstructTopo(cfg.Topology); err != nil {
		return nil, err
	}
	return c, nil
}
