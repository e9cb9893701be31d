package menu

import (
	"fmt"
	"time"
)

var byteUnits = []string{"B", "KB", "MB", "GB", "TB", "PB"}

// formatBytes renders a byte count in the largest unit that keeps the
// value above one, with two decimals past KB.
func formatBytes(n int64) string {
	v := float64(n)
	unit := 0
	for v >= 1024 && unit < len(byteUnits)-1 {
		v /= 1024
		unit++
	}
	if unit == 0 {
		return fmt.Sprintf("%d %s", n, byteUnits[0])
	}
	return fmt.Sprintf("%.2f %s", v, byteUnits[unit])
}

func formatSpeed(bytesPerSec int64) string {
	return formatBytes(bytesPerSec) + "/s"
}

// refreshStamp is the "data as of" footer on views that show live
// downloader state.
func refreshStamp() string {
	return "🕒 Updated: " + time.Now().Format("2006-01-02 15:04:05")
}

// circled returns the circled-digit glyph for a 1-based ordinal, the
// style list markers use. Past ⑳ it degrades to a plain "(n)".
func circled(n int) string {
	if n >= 1 && n <= 20 {
		return string(rune('①' + n - 1))
	}
	return fmt.Sprintf("(%d)", n)
}

// truncate shortens s to max runes, marking the cut with an ellipsis.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 1 {
		return string(runes[:max])
	}
	return string(runes[:max-1]) + "…"
}
