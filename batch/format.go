package batch

import "fmt"

var byteUnits = [...]string{"B", "KB", "MB", "GB", "TB"}

// FormatBytes renders a byte count with a 1024-based unit, one decimal
// place above bytes.
func FormatBytes(n int64) string {
	size := float64(n)
	unit := 0
	for size >= 1024 && unit < len(byteUnits)-1 {
		size /= 1024
		unit++
	}
	if unit == 0 {
		return fmt.Sprintf("%d %s", n, byteUnits[0])
	}
	return fmt.Sprintf("%.1f %s", size, byteUnits[unit])
}

// CompressionRatio reports the percentage saved going from original to
// compressed, 0 when the original size is unknown.
func CompressionRatio(original, compressed int64) float64 {
	if original == 0 {
		return 0
	}
	return (float64(original) - float64(compressed)) / float64(original) * 100
}
