package config

// CompressionCfg
//   - Supported levels:
//     CompressNoCompression      = 0
//     CompressBestSpeed          = 1
//     CompressBestCompression    = 9
//     CompressDefaultCompression = 6  // flate.DefaultCompression
type CompressionCfg struct {
	Level int `yaml:"level" env:"STAYCACHE_COMPRESSION_LEVEL"`
}

func (cfg *CompressionCfg) Enabled() bool {
	return cfg != nil
}
