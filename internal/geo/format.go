package geo

import (
	"fmt"
	"math"
)

// FormatDistance renders meters the way clients show them: "85m" or "1.2km".
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%dm", int(math.Round(meters)))
	}
	return fmt.Sprintf("%.1fkm", meters/1000)
}
