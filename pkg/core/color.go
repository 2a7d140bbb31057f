// pkg/core/color.go
package core

import "math"

// Color is a linear RGBA color with components in [0, 1].
type Color struct {
	R, G, B, A float32
}

// Gray returns a color with all three channels set to magnitude.
func Gray(magnitude, alpha float32) Color {
	return Color{R: magnitude, G: magnitude, B: magnitude, A: alpha}
}

// IDColor derives a stable hue from an object id. The hue wraps every
// wrap ids, so neighbouring ids get visibly different colors.
func IDColor(id int64, wrap, alpha float32) Color {
	if wrap == 0 {
		return Gray(1, alpha)
	}
	h := float32(math.Mod(float64(float32(id)/wrap), 1))
	if h < 0 {
		h++
	}
	const s, v float32 = 0.6, 1.0

	i := int(math.Floor(float64(h * 6)))
	f := h*6 - float32(i)
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))

	c := Color{A: alpha}
	switch i % 6 {
	case 0:
		c.R, c.G, c.B = v, t, p
	case 1:
		c.R, c.G, c.B = q, v, p
	case 2:
		c.R, c.G, c.B = p, v, t
	case 3:
		c.R, c.G, c.B = p, q, v
	case 4:
		c.R, c.G, c.B = t, p, v
	default:
		c.R, c.G, c.B = v, p, q
	}
	return c
}

// Vec4 returns the color as an RGBA array.
func (c Color) Vec4() [4]float32 {
	return [4]float32{c.R, c.G, c.B, c.A}
}
