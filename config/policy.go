package config

import (
	"time"

	"github.com/stayfinder/go-stay-cache/model"
)

// PolicyCfg is the YAML shape of one per-category policy.
type PolicyCfg struct {
	// TTL is the hard expiry of entries in this category.
	// Example: "5m".
	TTL time.Duration `yaml:"ttl"`

	// MaxEntries bounds the number of live entries in this category.
	// Inserting past the bound evicts the least-recently-used entry.
	// Zero means unbounded.
	MaxEntries int `yaml:"max_entries"`

	// StaleWindow is the grace period after TTL during which an expired
	// value may still be served while a refresh is attempted.
	// Example: "30s".
	StaleWindow time.Duration `yaml:"stale_window"`

	// CompressionThreshold routes payloads larger than this many bytes
	// through compression. Zero disables compression for the category.
	CompressionThreshold int64 `yaml:"compression_threshold"`

	// RefetchInterval enables periodic proactive refresh of tracked keys
	// in this category when positive.
	// Example: "1m".
	RefetchInterval time.Duration `yaml:"refetch_interval"`
}

func (p PolicyCfg) policy() model.Policy {
	return model.Policy{
		TTL:                       p.TTL,
		MaxEntries:                p.MaxEntries,
		StaleWindow:               p.StaleWindow,
		CompressionThresholdBytes: p.CompressionThreshold,
		RefetchInterval:           p.RefetchInterval,
	}
}
