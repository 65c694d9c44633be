// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package chart

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// Surface is the logical size of a chart plus the device pixel ratio used
// for its backing store.
type Surface struct {
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	PixelRatio float64 `json:"pixel_ratio"`
}

// normalized clamps the surface to a drawable size.
func (s Surface) normalized() Surface {
	if s.PixelRatio <= 0 || math.IsNaN(s.PixelRatio) || math.IsInf(s.PixelRatio, 0) {
		s.PixelRatio = 1
	}
	if !(s.Width >= 1) {
		s.Width = 1
	}
	if !(s.Height >= 1) {
		s.Height = 1
	}
	return s
}

// BackingSize is the pixel size of the backing image.
func (s Surface) BackingSize() image.Point {
	s = s.normalized()
	return image.Pt(
		int(math.Max(1, math.Ceil(s.Width*s.PixelRatio))),
		int(math.Max(1, math.Ceil(s.Height*s.PixelRatio))),
	)
}

// Style is the fixed appearance of one chart.
type Style struct {
	Labels     []string
	Colors     []color.RGBA
	Capacity   int
	GridLines  int
	LineWidth  float64
	Background color.RGBA
	Grid       color.NRGBA
	Text       color.RGBA
}

// DefaultStyle returns the light theme used by the device dashboards.
func DefaultStyle(labels []string, colors []color.RGBA, capacity int) Style {
	return Style{
		Labels:     labels,
		Colors:     colors,
		Capacity:   capacity,
		GridLines:  4,
		LineWidth:  1.4,
		Background: color.RGBA{0xf8, 0xfa, 0xfc, 0xff},
		Grid:       color.NRGBA{148, 163, 184, 77},
		Text:       color.RGBA{0x47, 0x55, 0x69, 0xff},
	}
}

// Requester is anything that can be asked for a redraw.
type Requester interface {
	Request()
}

// Renderer paints buffered channels onto an RGBA surface.
type Renderer struct {
	style   Style
	title   string
	surface Surface
	img     *image.RGBA
	face    font.Face
	z       vector.Rasterizer
	redraw  Requester
}

// NewRenderer creates a renderer with the given style and initial surface.
// Resizes are reported to redraw.
func NewRenderer(style Style, surface Surface, redraw Requester) *Renderer {
	if style.GridLines < 1 {
		style.GridLines = 4
	}
	if style.LineWidth <= 0 {
		style.LineWidth = 1.4
	}
	r := &Renderer{style: style, redraw: redraw}
	r.Resize(surface)
	return r
}

// SetTitle changes the caption drawn on the next frame.
func (r *Renderer) SetTitle(title string) { r.title = title }

// Title returns the current caption.
func (r *Renderer) Title() string { return r.title }

// Surface returns the current logical surface.
func (r *Renderer) Surface() Surface { return r.surface }

// Image returns the backing image. It is only valid until the next Resize.
func (r *Renderer) Image() *image.RGBA { return r.img }

// Resize reallocates the backing store for surface and requests a redraw.
// It never draws synchronously.
func (r *Renderer) Resize(surface Surface) {
	surface = surface.normalized()
	size := surface.BackingSize()
	if r.img == nil || r.img.Bounds().Size() != size {
		r.img = image.NewRGBA(image.Rectangle{Max: size})
	}
	if r.face == nil || surface.PixelRatio != r.surface.PixelRatio {
		r.face = labelFace(surface.PixelRatio)
	}
	r.surface = surface
	if r.redraw != nil {
		r.redraw.Request()
	}
}

// labelFace returns an 11px face scaled to the pixel ratio, falling back to
// the fixed 7x13 bitmap face.
func labelFace(pixelRatio float64) font.Face {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return basicfont.Face7x13
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    11 * pixelRatio,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return basicfont.Face7x13
	}
	return face
}

// Draw clears the surface and paints gridlines, labels and one polyline per
// channel. Sample i is placed at i/(capacity-1) of the width, so a partly
// filled buffer occupies the left part of the plot.
func (r *Renderer) Draw(channels [][]float64, rng DisplayRange) {
	pr := r.surface.PixelRatio
	w, h := r.surface.Width, r.surface.Height
	span := rng.Span()
	if !(span > 0) || math.IsInf(span, 0) {
		rng, span = fallbackRange, fallbackRange.Span()
	}

	draw.Draw(r.img, r.img.Bounds(), image.NewUniform(r.style.Background), image.Point{}, draw.Src)

	// Gridlines and axis labels.
	grid := r.style.GridLines
	for i := 0; i <= grid; i++ {
		ratio := float64(i) / float64(grid)
		y := h - ratio*h
		r.fillRect(0, y-0.5, w, y+0.5, r.style.Grid)

		value := rng.Min + ratio*span
		baseline := math.Min(h-4, math.Max(12, y-2))
		r.text(formatLabel(value), 4, baseline)
	}

	// Traces.
	denom := float64(r.style.Capacity - 1)
	if denom < 1 {
		denom = 1
	}
	for c, values := range channels {
		if len(values) < 2 {
			continue
		}
		r.z.Reset(r.img.Bounds().Dx(), r.img.Bounds().Dy())
		hw := float32(r.style.LineWidth * pr / 2)
		prevOK := false
		var px, py float32
		for i, v := range values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				prevOK = false
				continue
			}
			x := float32(float64(i) / denom * w * pr)
			// Elevation counts up from the bottom edge, so max lands on the top row.
			elevation := h - ((rng.Max-v)/span)*h
			y := float32(clamp((h-elevation)*pr, -2*float64(hw), h*pr+2*float64(hw)))
			if prevOK {
				r.segment(px, py, x, y, hw)
			}
			px, py, prevOK = x, y, true
		}
		r.z.Draw(r.img, r.img.Bounds(), image.NewUniform(r.channelColor(c)), image.Point{})
	}

	r.legend()
	if r.title != "" {
		tw := float64(font.MeasureString(r.face, r.title).Ceil()) / pr
		r.text(r.title, (w-tw)/2, 14)
	}
}

// segment adds a stroked line of half width hw to the rasterizer.
func (r *Renderer) segment(x0, y0, x1, y1, hw float32) {
	dx, dy := x1-x0, y1-y0
	l := float32(math.Hypot(float64(dx), float64(dy)))
	if l == 0 {
		return
	}
	nx, ny := -dy/l*hw, dx/l*hw
	r.z.MoveTo(x0+nx, y0+ny)
	r.z.LineTo(x1+nx, y1+ny)
	r.z.LineTo(x1-nx, y1-ny)
	r.z.LineTo(x0-nx, y0-ny)
	r.z.ClosePath()
}

// fillRect fills a rectangle given in logical coordinates.
func (r *Renderer) fillRect(x0, y0, x1, y1 float64, c color.Color) {
	pr := r.surface.PixelRatio
	b := r.img.Bounds()
	r.z.Reset(b.Dx(), b.Dy())
	fx0 := float32(clamp(x0*pr, 0, float64(b.Dx())))
	fx1 := float32(clamp(x1*pr, 0, float64(b.Dx())))
	fy0 := float32(clamp(y0*pr, 0, float64(b.Dy())))
	fy1 := float32(clamp(y1*pr, 0, float64(b.Dy())))
	if fx1 <= fx0 || fy1 <= fy0 {
		return
	}
	r.z.MoveTo(fx0, fy0)
	r.z.LineTo(fx1, fy0)
	r.z.LineTo(fx1, fy1)
	r.z.LineTo(fx0, fy1)
	r.z.ClosePath()
	r.z.Draw(r.img, b, image.NewUniform(c), image.Point{})
}

// text draws s with its baseline at logical (x, y).
func (r *Renderer) text(s string, x, y float64) {
	pr := r.surface.PixelRatio
	d := &font.Drawer{
		Dst:  r.img,
		Src:  image.NewUniform(r.style.Text),
		Face: r.face,
		Dot:  fixed.P(int(math.Round(x*pr)), int(math.Round(y*pr))),
	}
	d.DrawString(s)
}

// legend draws one swatch and label per channel along the bottom right.
func (r *Renderer) legend() {
	pr := r.surface.PixelRatio
	x := r.surface.Width - 6
	y := r.surface.Height - 6
	for c := len(r.style.Labels) - 1; c >= 0; c-- {
		label := r.style.Labels[c]
		tw := float64(font.MeasureString(r.face, label).Ceil()) / pr
		x -= tw
		r.text(label, x, y)
		x -= 12
		r.fillRect(x, y-8, x+8, y, r.channelColor(c))
		x -= 10
	}
}

func (r *Renderer) channelColor(c int) color.RGBA {
	if len(r.style.Colors) == 0 {
		return r.style.Text
	}
	return r.style.Colors[c%len(r.style.Colors)]
}

func formatLabel(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
