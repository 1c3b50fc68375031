// Package overlay draws diagnostic text onto preview frames using the Go
// Regular font.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Rect is the size of a rendered line of text in pixels.
type Rect struct {
	W, H int
}

var (
	parseOnce sync.Once
	parsed    *opentype.Font
	parseErr  error

	// guards faces and every use of them
	facesMu sync.Mutex
	faces   = map[float64]font.Face{}
)

func face(size float64) (font.Face, error) {
	parseOnce.Do(func() {
		parsed, parseErr = opentype.Parse(goregular.TTF)
	})
	if parseErr != nil {
		return nil, fmt.Errorf("overlay: failed to parse font: %w", parseErr)
	}
	facesMu.Lock()
	defer facesMu.Unlock()
	if f, ok := faces[size]; ok {
		return f, nil
	}
	f, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("overlay: failed to create face: %w", err)
	}
	faces[size] = f
	return f, nil
}

func measure(f font.Face, s string) Rect {
	m := f.Metrics()
	return Rect{
		W: font.MeasureString(f, s).Ceil(),
		H: m.Height.Ceil(),
	}
}

// MeasureText returns the size s occupies at the given pixel size.
func MeasureText(s string, size float64) (Rect, error) {
	f, err := face(size)
	if err != nil {
		return Rect{}, err
	}
	facesMu.Lock()
	defer facesMu.Unlock()
	return measure(f, s), nil
}

// DrawText draws s with its top left corner at x, y and returns its size.
func DrawText(dst draw.Image, s string, x, y int, size float64, c color.Color) (Rect, error) {
	f, err := face(size)
	if err != nil {
		return Rect{}, err
	}
	facesMu.Lock()
	defer facesMu.Unlock()
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: f,
		Dot:  fixed.P(x, y).Add(fixed.Point26_6{Y: f.Metrics().Ascent}),
	}
	d.DrawString(s)
	return measure(f, s), nil
}

// Label draws s on a translucent black box at x, y. The box is padded by
// pad pixels on each side.
func Label(dst draw.Image, s string, x, y int, size float64, pad int) (Rect, error) {
	r, err := MeasureText(s, size)
	if err != nil {
		return Rect{}, err
	}
	box := image.Rect(x, y, x+r.W+2*pad, y+r.H+2*pad)
	draw.Draw(dst, box, image.NewUniform(color.RGBA{A: 0xa0}), image.Point{}, draw.Over)
	if _, err := DrawText(dst, s, x+pad, y+pad, size, color.White); err != nil {
		return Rect{}, err
	}
	return Rect{W: box.Dx(), H: box.Dy()}, nil
}
