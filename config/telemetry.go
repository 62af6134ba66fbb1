package config

import "time"

// TelemetryCfg configures periodic metric logs.
type TelemetryCfg struct {
	// Interval between metric log lines.
	// Example: "30s".
	Interval time.Duration `yaml:"interval" env:"STAYCACHE_TELEMETRY_INTERVAL"`
}

func (cfg *TelemetryCfg) Enabled() bool {
	return cfg != nil && cfg.Interval > 0
}
