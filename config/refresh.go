package config

import "time"

// RefreshCfg configures the background refresh and warming scheduler.
type RefreshCfg struct {
	// Rate limits how many scheduler scan cycles run per second.
	// Example: 100.
	Rate int `yaml:"rate"`

	// Workers is the number of goroutines executing refresh tasks.
	Workers int `yaml:"workers"`

	// MaxRetries bounds retry attempts for one failing task before it is
	// marked failed and surfaced through an error event.
	MaxRetries int `yaml:"max_retries"`

	// InitialBackoff is the first retry delay; subsequent delays grow
	// exponentially up to MaxBackoff.
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

func (cfg *RefreshCfg) Enabled() bool {
	return cfg != nil
}

func (cfg *RefreshCfg) adjust() {
	if cfg.Rate <= 0 {
		cfg.Rate = 50
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
}

// Default returns the scheduler settings used when the section is absent.
func (cfg *RefreshCfg) Default() *RefreshCfg {
	d := &RefreshCfg{}
	d.adjust()
	return d
}
