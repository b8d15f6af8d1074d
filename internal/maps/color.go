package maps

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

const goldenRatio = 0.618033988749895

// ViewerColor returns the n-th color of a golden-ratio hue walk, so viewers
// who join one after another get well separated cursor colors.
func ViewerColor(n uint64) string {
	_, hue := math.Modf(float64(n) * goldenRatio)
	return colorful.Hsl(hue*360, 0.85, 0.55).Hex()
}
