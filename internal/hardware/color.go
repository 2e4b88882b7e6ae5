package hardware

import (
	"fmt"
	"strings"
)

// Color is an RGB colour.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// String formats the colour as #rrggbb.
func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// IsBlack reports whether every channel is zero.
func (c Color) IsBlack() bool {
	return c == Color{}
}

var presets = map[string]Color{
	"red":    {255, 0, 0},
	"green":  {0, 255, 0},
	"blue":   {0, 0, 255},
	"yellow": {255, 255, 0},
	"purple": {255, 0, 255},
	"cyan":   {0, 255, 255},
	"white":  {255, 255, 255},
	"orange": {255, 165, 0},
	"pink":   {255, 192, 203},
	"lime":   {191, 255, 0},
}

// ColorByName returns a preset colour.
func ColorByName(name string) (Color, error) {
	c, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Color{}, fmt.Errorf("%w: %q", ErrUnknownColor, name)
	}
	return c, nil
}

// RGB builds a colour from integer channels, rejecting values outside 0-255.
func RGB(r, g, b int) (Color, error) {
	for _, v := range [...]int{r, g, b} {
		if v < 0 || v > 255 {
			return Color{}, fmt.Errorf("colour channel %d out of range 0-255", v)
		}
	}
	return Color{R: uint8(r), G: uint8(g), B: uint8(b)}, nil
}
