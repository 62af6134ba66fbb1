// Package bytes holds small byte-level helpers shared across the cache.
package bytes

import "fmt"

// FmtMem renders a byte count in human-readable units for telemetry logs.
func FmtMem(n uint64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)

	switch {
	case n >= gb:
		return fmt.Sprintf("%dGB %dMB", n/gb, (n%gb)/mb)
	case n >= mb:
		return fmt.Sprintf("%dMB %dKB", n/mb, (n%mb)/kb)
	case n >= kb:
		return fmt.Sprintf("%dKB %dB", n/kb, n%kb)
	default:
		return fmt.Sprintf("%dB", n)
	}
}
