package models

import (
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/mkorzunowicz/poopdetector/models/postprocess"
)

var (
	// Red marks poop detections of the poop-only network.
	Red = color.RGBA{R: 255, A: 255}
	// DodgerBlue marks poop detections in the combined label set.
	DodgerBlue = color.RGBA{R: 30, G: 144, B: 255, A: 255}
)

var cocoNames = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink",
	"refrigerator", "book", "clock", "vase", "scissors", "teddy bear", "hair drier",
	"toothbrush",
}

// PoopLabels returns the label set of the poop-only networks.
func PoopLabels() []postprocess.Label {
	return []postprocess.Label{{Name: "poop", Color: Red}}
}

// COCOLabels returns the 80 COCO classes. Colours are spread evenly around the
// HCL hue circle so neighbouring classes stay distinguishable.
func COCOLabels() []postprocess.Label {
	labels := make([]postprocess.Label, len(cocoNames))
	for i, name := range cocoNames {
		hue := float64(i) * 360 / float64(len(cocoNames))
		c := colorful.Hcl(hue, 0.6, 0.65).Clamped()
		r, g, b := c.RGB255()
		labels[i] = postprocess.Label{Name: name, Color: color.RGBA{R: r, G: g, B: b, A: 255}}
	}
	return labels
}

// DoubleLabels returns the COCO classes followed by a blue poop class, the
// label set of a network trained on both.
func DoubleLabels() []postprocess.Label {
	return append(COCOLabels(), postprocess.Label{Name: "poop", Color: DodgerBlue})
}

// ParseLabelColor parses a "#rrggbb" colour for a custom label.
func ParseLabelColor(hex string) (color.RGBA, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.RGBA{}, err
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}
