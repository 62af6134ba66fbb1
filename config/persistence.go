package config

// PersistenceCfg configures the optional write-behind local storage backend.
type PersistenceCfg struct {
	// Path is the SQLite database file backing the cache.
	// The parent directory must exist and be writable.
	Path string `yaml:"path" env:"STAYCACHE_PERSISTENCE_PATH"`

	// WarmStart reloads unexpired entries from the backend at startup.
	WarmStart bool `yaml:"warm_start" env:"STAYCACHE_WARM_START"`

	// QueueSize bounds the asynchronous write-behind queue. When the queue
	// is full, entries degrade to memory-only rather than blocking writers.
	QueueSize int `yaml:"queue_size"`
}

func (cfg *PersistenceCfg) Enabled() bool {
	return cfg != nil && cfg.Path != ""
}

func (cfg *PersistenceCfg) adjust() {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
}
