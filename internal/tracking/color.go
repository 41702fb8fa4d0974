package tracking

import (
	"fmt"
	"hash/fnv"
	"math"
)

// ClassColor derives a stable display colour ("#rrggbb") from a class label.
// The same label always yields the same colour.
func ClassColor(class string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(class))
	hue := float64(h.Sum32() % 360)
	r, g, b := hsvToRGB(hue, 0.85, 0.95)
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

func hsvToRGB(h, s, v float64) (uint8, uint8, uint8) {
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	to8 := func(f float64) uint8 { return uint8(math.Round((f + m) * 255)) }
	return to8(r), to8(g), to8(b)
}
