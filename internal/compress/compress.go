// Package compress provides the deterministic, reversible payload codec used
// for entries above a category's compression threshold.
package compress

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

type Codec struct {
	level int
}

// New builds a codec at the given gzip/flate level. Out-of-range levels fall
// back to the default level.
func New(level int) *Codec {
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	return &Codec{level: level}
}

func (c *Codec) Compress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(payload) / 2)

	gw, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("create gzip writer: %w", err)
	}
	if _, err = gw.Write(payload); err != nil {
		return nil, fmt.Errorf("compress payload: %w", err)
	}
	if err = gw.Close(); err != nil {
		return nil, fmt.Errorf("flush gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *Codec) Decompress(payload []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gr.Close()

	out, err := io.ReadAll(gr)
	if err != nil {
		return nil, fmt.Errorf("decompress payload: %w", err)
	}
	return out, nil
}
