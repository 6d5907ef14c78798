package report

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/shopspring/decimal"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	background = color.NRGBA{R: 0xf4, G: 0xf6, B: 0xf8, A: 0xff}
	titleColor = color.NRGBA{R: 0x1f, G: 0x3a, B: 0x5f, A: 0xff}
	textColor  = color.NRGBA{R: 0x22, G: 0x22, B: 0x22, A: 0xff}
	mutedColor = color.NRGBA{R: 0x66, G: 0x66, B: 0x66, A: 0xff}
)

const (
	margin     = 30
	titleScale = 3
	bodyScale  = 2
	lineHeight = 35
)

// Render draws the summary onto a width x height canvas.
func Render(s *Summary, width, height int) image.Image {
	canvas := imaging.New(width, height, background)

	y := 20
	canvas = drawText(canvas, "Country Summary", margin, y, titleScale, titleColor)
	y += 60
	canvas = drawText(canvas, fmt.Sprintf("Total countries: %d", s.Total), margin, y, bodyScale, textColor)
	y += lineHeight
	canvas = drawText(canvas, "Last refreshed: "+s.LastRefreshedAt.UTC().Format("2006-01-02 15:04:05 UTC"), margin, y, bodyScale, mutedColor)
	y += lineHeight + 10

	if len(s.Top) == 0 {
		return drawText(canvas, "No GDP estimates available", margin, y, bodyScale, mutedColor)
	}

	canvas = drawText(canvas, fmt.Sprintf("Top %d by estimated GDP", len(s.Top)), margin, y, bodyScale, titleColor)
	y += lineHeight
	for i, e := range s.Top {
		line := fmt.Sprintf("%d. %s - %s", i+1, e.Name, FormatGDP(e.EstimatedGDP))
		canvas = drawText(canvas, line, margin, y, bodyScale, textColor)
		y += lineHeight
	}
	return canvas
}

// drawText renders s with the 7x13 bitmap face, scales it by an integer
// factor and overlays it with its top-left corner at (x, y).
func drawText(dst *image.NRGBA, s string, x, y, scale int, c color.Color) *image.NRGBA {
	face := basicfont.Face7x13
	w := font.MeasureString(face, s).Ceil()
	h := face.Height
	if w == 0 {
		return dst
	}

	glyphs := image.NewNRGBA(image.Rect(0, 0, w, h))
	d := &font.Drawer{
		Dst:  glyphs,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(s)

	scaled := imaging.Resize(glyphs, w*scale, h*scale, imaging.NearestNeighbor)
	return imaging.Overlay(dst, scaled, image.Pt(x, y), 1.0)
}

// FormatGDP renders v with two decimals and thousands separators.
func FormatGDP(v float64) string {
	fixedStr := decimal.NewFromFloat(v).StringFixed(2)

	neg := strings.HasPrefix(fixedStr, "-")
	fixedStr = strings.TrimPrefix(fixedStr, "-")
	intPart, frac, _ := strings.Cut(fixedStr, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + "." + frac
	if neg {
		out = "-" + out
	}
	return out
}
