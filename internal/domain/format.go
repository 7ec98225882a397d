package domain

import "fmt"

// FormatDistance renders meters for display: "850 m" below a kilometer,
// "1.2 km" above.
func FormatDistance(meters int) string {
	if meters < 1000 {
		return fmt.Sprintf("%d m", meters)
	}
	return fmt.Sprintf("%.1f km", float64(meters)/1000)
}

// FormatDuration renders seconds as "45 sec", "12 min" or "1 hr 5 min".
func FormatDuration(seconds int) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%d sec", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%d min", seconds/60)
	default:
		return fmt.Sprintf("%d hr %d min", seconds/3600, (seconds%3600)/60)
	}
}
