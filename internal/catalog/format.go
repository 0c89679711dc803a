package catalog

import "fmt"

// FormatSize renders a byte count the way slot info is shown to players:
// megabytes below one gigabyte, gigabytes above, two decimals.
func FormatSize(size int64) string {
	const (
		mb = 1 << 20
		gb = 1 << 30
	)
	if size < gb {
		return fmt.Sprintf("%.2f MB", float64(size)/mb)
	}
	return fmt.Sprintf("%.2f GB", float64(size)/gb)
}
