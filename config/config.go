package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/stayfinder/go-stay-cache/model"
)

const defaultLoaderTimeout = 5 * time.Second

// Config groups configuration of all cache subsystems.
// Each optional subsystem can be disabled by leaving it nil.
type Config struct {
	// Policies is the per-category policy table. Categories listed here are
	// registered at startup; categories absent fall back to a conservative
	// default policy.
	Policies map[model.Category]PolicyCfg `yaml:"policies"`

	// LoaderTimeout bounds every loader invocation, foreground and
	// background. Zero selects the default of 5s.
	LoaderTimeout time.Duration `yaml:"loader_timeout" env:"STAYCACHE_LOADER_TIMEOUT"`

	// Refresh configures the background refresh and warming scheduler.
	// If nil, warming still runs with default pacing and retry limits.
	Refresh *RefreshCfg `yaml:"refresh"`

	// Compression configures the codec used for payloads above a category's
	// compression threshold. If nil, a default gzip level is used.
	Compression *CompressionCfg `yaml:"compression"`

	// Persistence configures the optional write-behind local backend.
	// If nil, the cache is memory-only.
	Persistence *PersistenceCfg `yaml:"persistence"`

	// Telemetry configures periodic metric logs. If nil, no logs are emitted.
	Telemetry *TelemetryCfg `yaml:"telemetry"`
}

// Load reads a YAML config file and applies environment overrides on top.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config yaml file %s: %w", path, err)
	}

	cfg := &Config{}
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml from %s: %w", path, err)
	}
	if err = cfg.ParseEnv(); err != nil {
		return nil, err
	}
	cfg.AdjustConfig()
	return cfg, nil
}

// ParseEnv overrides tagged fields from environment variables.
func (cfg *Config) ParseEnv() error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// AdjustConfig fills derived and defaulted fields. Call it once after
// building a Config by hand; Load calls it automatically.
func (cfg *Config) AdjustConfig() {
	if cfg.LoaderTimeout <= 0 {
		cfg.LoaderTimeout = defaultLoaderTimeout
	}
	if cfg.Refresh.Enabled() {
		cfg.Refresh.adjust()
	}
	if cfg.Persistence.Enabled() {
		cfg.Persistence.adjust()
	}
	for c := range cfg.Policies {
		model.RegisterCategory(c)
	}
}

// Registry builds the immutable policy registry from the policy table.
func (cfg *Config) Registry() *model.PolicyRegistry {
	policies := make(map[model.Category]model.Policy, len(cfg.Policies))
	for c, p := range cfg.Policies {
		policies[c] = p.policy()
	}
	return model.NewPolicyRegistry(policies)
}
