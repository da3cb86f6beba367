package download

import "fmt"

// progressString renders "written / expected" in binary units, matching
// what users see in file managers, e.g. "1.2 GB / 12.5 GB".
func progressString(written, expected int64) string {
	if expected <= 0 {
		return byteCountString(written)
	}
	return byteCountString(written) + " / " + byteCountString(expected)
}

func byteCountString(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
