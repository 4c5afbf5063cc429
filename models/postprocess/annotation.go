package postprocess

import (
	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// Segmentation is the COCO-style polygon annotation of one frame.
type Segmentation struct {
	Segmentation [][]float32 `json:"segmentation"`
}

// NewSegmentation flattens polygons into COCO coordinate arrays.
func NewSegmentation(polys []Polygon) Segmentation {
	seg := Segmentation{Segmentation: make([][]float32, 0, len(polys))}
	for _, p := range polys {
		seg.Segmentation = append(seg.Segmentation, p.Flat())
	}
	return seg
}

// JSON encodes the segmentation as {"segmentation":[[x0,y0,...],...]}.
func (s Segmentation) JSON() ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "encoding segmentation")
	}
	return b, nil
}

// BoxesJSON encodes boxes as an array of {"x","y","w","h","c"} objects. A nil
// slice encodes as [].
func BoxesJSON(boxes []BoundingBox) ([]byte, error) {
	if boxes == nil {
		boxes = []BoundingBox{}
	}
	b, err := json.Marshal(boxes)
	if err != nil {
		return nil, errors.Wrap(err, "encoding bounding boxes")
	}
	return b, nil
}
