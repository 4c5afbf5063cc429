package postprocess

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// MaskColor is the default polygon fill: dodger blue at half opacity.
var MaskColor = color.NRGBA{R: 30, G: 144, B: 255, A: 128}

// Overlay describes what to draw over a frame.
type Overlay struct {
	// Boxes are in input coordinates and are scaled by ScaleX and ScaleY.
	Boxes []BoundingBox
	// ScaleX and ScaleY map input to frame coordinates. Zero means 1.
	ScaleX, ScaleY float32
	// Polygons are in frame coordinates.
	Polygons []Polygon
	// Fill defaults to MaskColor.
	Fill color.Color
	// Thickness of box outlines in pixels, defaults to 2.
	Thickness int
}

// Draw renders o over a copy of img. Boxes are outlined in their label
// colour with the label and score above them; polygons are filled.
//
// Arguments:
//   - img: The frame.
//
// Returns:
//   - *image.RGBA: A new image with origin (0,0).
func (o Overlay) Draw(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)

	if len(o.Polygons) > 0 {
		fill := o.Fill
		if fill == nil {
			fill = MaskColor
		}
		fillPolygons(dst, o.Polygons, fill)
	}

	sx, sy := o.ScaleX, o.ScaleY
	if sx == 0 {
		sx = 1
	}
	if sy == 0 {
		sy = 1
	}
	t := o.Thickness
	if t <= 0 {
		t = 2
	}
	for _, box := range o.Boxes {
		r := image.Rect(int(box.X*sx), int(box.Y*sy), int((box.X+box.Width)*sx), int((box.Y+box.Height)*sy))
		c := box.Color
		if c.A == 0 {
			c = color.RGBA{R: 255, A: 255}
		}
		outline(dst, r, t, c)
		label(dst, r.Min, box.Description(), c)
	}

	return dst
}

func outline(dst draw.Image, r image.Rectangle, t int, c color.Color) {
	src := image.NewUniform(c)
	for _, edge := range []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t),
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y),
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y),
	} {
		draw.Draw(dst, edge, src, image.Point{}, draw.Src)
	}
}

// label draws text on a filled tag above at, or below it when there is no room.
func label(dst draw.Image, at image.Point, text string, bg color.Color) {
	face := basicfont.Face7x13
	h := face.Height
	w := font.MeasureString(face, text).Ceil() + 4

	top := at.Y - h
	if top < dst.Bounds().Min.Y {
		top = at.Y
	}
	draw.Draw(dst, image.Rect(at.X, top, at.X+w, top+h), image.NewUniform(bg), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.White,
		Face: face,
		Dot:  fixed.P(at.X+2, top+face.Ascent),
	}
	d.DrawString(text)
}

func fillPolygons(dst *image.RGBA, polys []Polygon, c color.Color) {
	size := dst.Bounds().Size()
	z := vector.NewRasterizer(size.X, size.Y)
	z.DrawOp = draw.Over

	for _, p := range polys {
		if len(p) < 3 {
			continue
		}
		z.MoveTo(float32(p[0].X), float32(p[0].Y))
		for _, q := range p[1:] {
			z.LineTo(float32(q.X), float32(q.Y))
		}
		z.ClosePath()
	}

	z.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{})
}
