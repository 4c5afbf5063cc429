package postprocess

import (
	"image"
	"sort"

	"github.com/pkg/errors"
)

// Mask is a single-channel binary bitmap. Foreground pixels are 255 and
// background pixels are 0.
type Mask struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewMask allocates an empty w x h mask.
func NewMask(w, h int) *Mask {
	return &Mask{Width: w, Height: h, Pix: make([]uint8, w*h)}
}

// Validate checks that Pix fills the mask exactly.
func (m *Mask) Validate() error {
	if m.Width < 0 || m.Height < 0 || len(m.Pix) != m.Width*m.Height {
		return errors.Errorf("mask %dx%d has %d pixels", m.Width, m.Height, len(m.Pix))
	}
	return nil
}

// At reports whether (x,y) is foreground. Out of range pixels are background.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Pix[y*m.Width+x] != 0
}

// Set marks (x,y) as foreground.
func (m *Mask) Set(x, y int) {
	m.Pix[y*m.Width+x] = 255
}

// Fill marks the rectangle r as foreground, clipped to the mask.
func (m *Mask) Fill(r image.Rectangle) {
	r = r.Intersect(image.Rect(0, 0, m.Width, m.Height))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			m.Set(x, y)
		}
	}
}

// Count returns the number of foreground pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v != 0 {
			n++
		}
	}
	return n
}

// Polygon is an ordered list of points in original image coordinates.
type Polygon []image.Point

// Flat returns the polygon as a COCO coordinate array [x0,y0,x1,y1,...].
func (p Polygon) Flat() []float32 {
	out := make([]float32, 0, len(p)*2)
	for _, pt := range p {
		out = append(out, float32(pt.X), float32(pt.Y))
	}
	return out
}

// Bounds returns the smallest rectangle containing every point, with Max inclusive.
func (p Polygon) Bounds() image.Rectangle {
	if len(p) == 0 {
		return image.Rectangle{}
	}
	r := image.Rectangle{Min: p[0], Max: p[0]}
	for _, pt := range p[1:] {
		r.Min.X = min(r.Min.X, pt.X)
		r.Min.Y = min(r.Min.Y, pt.Y)
		r.Max.X = max(r.Max.X, pt.X)
		r.Max.Y = max(r.Max.Y, pt.Y)
	}
	return r
}

var (
	neighbours4 = []image.Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	neighbours8 = []image.Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}, {1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

// blobs labels the connected foreground components of m in raster-scan
// discovery order using a BFS flood fill over the given neighbourhood.
func blobs(m *Mask, neighbours []image.Point) [][]image.Point {
	visited := make([]bool, len(m.Pix))
	var out [][]image.Point

	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			idx := y*m.Width + x
			if m.Pix[idx] == 0 || visited[idx] {
				continue
			}

			visited[idx] = true
			queue := []image.Point{{X: x, Y: y}}
			var blob []image.Point

			for len(queue) > 0 {
				p := queue[0]
				queue = queue[1:]
				blob = append(blob, p)

				for _, d := range neighbours {
					n := p.Add(d)
					if !m.At(n.X, n.Y) {
						continue
					}
					nidx := n.Y*m.Width + n.X
					if visited[nidx] {
						continue
					}
					visited[nidx] = true
					queue = append(queue, n)
				}
			}

			out = append(out, blob)
		}
	}

	return out
}

func cross(o, a, b image.Point) int {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// ConvexHull returns the convex hull of pts using the monotone chain
// algorithm. Collinear points are dropped. pts is sorted in place.
func ConvexHull(pts []image.Point) []image.Point {
	if len(pts) == 0 {
		return nil
	}

	sort.Slice(pts, func(i, j int) bool {
		if pts[i].X == pts[j].X {
			return pts[i].Y < pts[j].Y
		}
		return pts[i].X < pts[j].X
	})

	hull := make([]image.Point, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	return hull[:len(hull)-1]
}

// rescale maps mask-space points into a origW x origH image, truncating.
func rescale(pts []image.Point, m *Mask, origW, origH int) Polygon {
	poly := make(Polygon, len(pts))
	for i, p := range pts {
		poly[i] = image.Point{
			X: int(float32(p.X) / float32(m.Width) * float32(origW)),
			Y: int(float32(p.Y) / float32(m.Height) * float32(origH)),
		}
	}
	return poly
}

// MaskToPolygons extracts one convex polygon per 4-connected blob of m.
//
// Each blob's convex hull is rescaled from mask space to an origW x origH
// image. Polygons with fewer than 3 points are discarded. The result keeps
// raster-scan discovery order.
//
// Arguments:
//   - m: The binary mask.
//   - origW: The width of the original image.
//   - origH: The height of the original image.
//
// Returns:
//   - []Polygon: The polygons, possibly empty.
func MaskToPolygons(m *Mask, origW, origH int) []Polygon {
	if m == nil || m.Width == 0 || m.Height == 0 {
		return nil
	}

	var polys []Polygon
	for _, blob := range blobs(m, neighbours4) {
		hull := ConvexHull(blob)
		if len(hull) < 3 {
			continue
		}
		polys = append(polys, rescale(hull, m, origW, origH))
	}
	return polys
}

// FindContours groups foreground pixels into 8-connected blobs and returns
// each blob's boundary pixels: those with at least one 8-neighbour that is
// background or outside the mask. Blobs with fewer than 3 boundary pixels are
// dropped. Points are rescaled to an origW x origH image and are not ordered
// along the contour.
func FindContours(m *Mask, origW, origH int) []Polygon {
	if m == nil || m.Width == 0 || m.Height == 0 {
		return nil
	}

	var polys []Polygon
	for _, blob := range blobs(m, neighbours8) {
		var boundary []image.Point
		for _, p := range blob {
			for _, d := range neighbours8 {
				n := p.Add(d)
				if !m.At(n.X, n.Y) {
					boundary = append(boundary, p)
					break
				}
			}
		}
		if len(boundary) < 3 {
			continue
		}
		polys = append(polys, rescale(boundary, m, origW, origH))
	}
	return polys
}
