// Package yolov9 - YOLOv9 DFL decoding over separate regression, class and objectness heads.
package yolov9

import (
	"github.com/chewxy/math32"
	"github.com/mkorzunowicz/poopdetector/inference"
	"github.com/mkorzunowicz/poopdetector/models/postprocess"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

const (
	// RegMax is the number of DFL bins per box side.
	RegMax = 16
	// DefaultConfidenceThreshold is the minimum objectness*class score of a candidate.
	DefaultConfidenceThreshold float32 = 0.40
	// ObjectnessFloor skips cells that cannot reach any threshold.
	ObjectnessFloor float32 = 1e-4
)

// Head names the three outputs of one resolution and its stride.
type Head struct {
	Reg    string `json:"reg"    yaml:"reg"`
	Cls    string `json:"cls"    yaml:"cls"`
	Obj    string `json:"obj"    yaml:"obj"`
	Stride int    `json:"stride" yaml:"stride"`
}

// DefaultHeads are the final-branch outputs of the exported gelan network.
func DefaultHeads() []Head {
	return []Head{
		{Reg: "2981", Cls: "2986", Obj: "2957", Stride: 8},
		{Reg: "3028", Cls: "3033", Obj: "3004", Stride: 16},
		{Reg: "3075", Cls: "3080", Obj: "3051", Stride: 32},
	}
}

// OutputNames returns the nine output names of heads.
func OutputNames(heads []Head) []string {
	names := make([]string, 0, 3*len(heads))
	for _, h := range heads {
		names = append(names, h.Reg, h.Cls, h.Obj)
	}
	return names
}

// Decoder turns the outputs of every head into class-aware suppressed candidates.
type Decoder struct {
	Heads               []Head
	NumClasses          int
	ConfidenceThreshold float32
	IoUThreshold        float32
}

// NewDecoder returns a decoder with the default heads and thresholds.
func NewDecoder(numClasses int) *Decoder {
	return &Decoder{
		Heads:               DefaultHeads(),
		NumClasses:          numClasses,
		ConfidenceThreshold: DefaultConfidenceThreshold,
		IoUThreshold:        postprocess.DefaultIoUThreshold,
	}
}

// Decode pools the candidates of every head and applies class-aware NMS.
//
// Arguments:
//   - outputs: The outputs of one run.
//   - srcW: The input width; right edges are clamped to srcW-1.
//   - srcH: The input height; bottom edges are clamped to srcH-1.
//
// Returns:
//   - []postprocess.Candidate: Kept candidates, highest score first.
//   - error: ErrMissingOutput or ErrShapeMismatch.
func (d *Decoder) Decode(outputs inference.Outputs, srcW, srcH int) ([]postprocess.Candidate, error) {
	cands, err := d.Candidates(outputs, srcW, srcH)
	if err != nil {
		return nil, err
	}
	return postprocess.NMSClassAware(cands, d.IoUThreshold), nil
}

// Candidates decodes every head without suppression.
func (d *Decoder) Candidates(outputs inference.Outputs, srcW, srcH int) ([]postprocess.Candidate, error) {
	cands := make([]postprocess.Candidate, 0, 256)
	bins := make([]float32, RegMax)

	for _, h := range d.Heads {
		reg, cls, obj, err := d.views(outputs, h)
		if err != nil {
			return nil, err
		}

		s := float32(h.Stride)
		for y := 0; y < reg.h; y++ {
			for x := 0; x < reg.w; x++ {
				objectness := sigmoid(obj.at(0, y, x))
				if objectness < ObjectnessFloor {
					continue
				}

				l := reg.expect(bins, 0, y, x) * s
				t := reg.expect(bins, 1, y, x) * s
				r := reg.expect(bins, 2, y, x) * s
				b := reg.expect(bins, 3, y, x) * s

				cx := (float32(x) + 0.5) * s
				cy := (float32(y) + 0.5) * s

				x0 := math32.Max(0, cx-l)
				y0 := math32.Max(0, cy-t)
				x1 := math32.Min(float32(srcW-1), cx+r)
				y1 := math32.Min(float32(srcH-1), cy+b)

				for c := 0; c < d.NumClasses; c++ {
					conf := objectness * sigmoid(cls.at(c, y, x))
					if conf < d.ConfidenceThreshold {
						continue
					}
					cands = append(cands, postprocess.Candidate{X0: x0, Y0: y0, X1: x1, Y1: y1, Score: conf, Label: c})
				}
			}
		}
	}

	return cands, nil
}

func (d *Decoder) views(outputs inference.Outputs, h Head) (*regView, *planes, *planes, error) {
	regT, err := outputs.Get(h.Reg)
	if err != nil {
		return nil, nil, nil, err
	}
	clsT, err := outputs.Get(h.Cls)
	if err != nil {
		return nil, nil, nil, err
	}
	objT, err := outputs.Get(h.Obj)
	if err != nil {
		return nil, nil, nil, err
	}

	reg, err := newRegView(regT)
	if err != nil {
		return nil, nil, nil, err
	}
	cls, err := newPlanes(clsT, reg.h, reg.w)
	if err != nil {
		return nil, nil, nil, err
	}
	if cls.channels < d.NumClasses {
		return nil, nil, nil, errors.Wrapf(inference.ErrShapeMismatch,
			"%s has %d class channels, %d labels configured", h.Cls, cls.channels, d.NumClasses)
	}
	obj, err := newPlanes(objT, reg.h, reg.w)
	if err != nil {
		return nil, nil, nil, err
	}

	return reg, cls, obj, nil
}

// spatial returns the last two dimensions of t.
func spatial(t *inference.Tensor) (int, int, error) {
	if err := t.Validate(); err != nil {
		return 0, 0, err
	}
	dims := t.Dims()
	if len(dims) < 3 {
		return 0, 0, errors.Wrapf(inference.ErrShapeMismatch, "%s: shape %v has no channel axis", t.Name, t.Shape)
	}
	h, w := dims[len(dims)-2], dims[len(dims)-1]
	if h <= 0 || w <= 0 {
		return 0, 0, errors.Wrapf(inference.ErrShapeMismatch, "%s: empty spatial shape %v", t.Name, t.Shape)
	}
	return h, w, nil
}

// planes is a [channels, h, w] view of a head output. Leading axes are folded
// into the channel axis.
type planes struct {
	data     []float32
	strides  []int
	channels int
	h, w     int
}

func newPlanes(t *inference.Tensor, h, w int) (*planes, error) {
	th, tw, err := spatial(t)
	if err != nil {
		return nil, err
	}
	if th != h || tw != w {
		return nil, errors.Wrapf(inference.ErrShapeMismatch, "%s: spatial size %dx%d, expected %dx%d", t.Name, tw, th, w, h)
	}

	if len(t.Data)%(h*w) != 0 || len(t.Data) == 0 {
		return nil, errors.Wrapf(inference.ErrShapeMismatch, "%s: %d values do not fill %dx%d planes", t.Name, len(t.Data), w, h)
	}
	channels := len(t.Data) / (h * w)
	dense := tensor.New(tensor.WithShape(channels, h, w), tensor.WithBacking(t.Data))

	return &planes{
		data:     dense.Data().([]float32),
		strides:  dense.Strides(),
		channels: channels,
		h:        h,
		w:        w,
	}, nil
}

func (p *planes) at(c, y, x int) float32 {
	return p.data[c*p.strides[0]+y*p.strides[1]+x*p.strides[2]]
}

// regView reads the DFL bins of a regression output exported either as
// [1,16,4,H,W] (bins outermost) or as [1,64,H,W] / [1,4,16,H,W] (sides outermost).
type regView struct {
	data      []float32
	strides   []int
	binsOuter bool
	h, w      int
}

func newRegView(t *inference.Tensor) (*regView, error) {
	h, w, err := spatial(t)
	if err != nil {
		return nil, err
	}
	if len(t.Data) != 4*RegMax*h*w {
		return nil, errors.Wrapf(inference.ErrShapeMismatch, "%s: shape %v is not %d DFL channels", t.Name, t.Shape, 4*RegMax)
	}

	dims := t.Dims()
	lead := dims[:len(dims)-2]
	binsOuter := len(lead) >= 2 && lead[len(lead)-2] == RegMax && lead[len(lead)-1] == 4

	shape := []int{4, RegMax, h, w}
	if binsOuter {
		shape = []int{RegMax, 4, h, w}
	}
	dense := tensor.New(tensor.WithShape(shape...), tensor.WithBacking(t.Data))

	return &regView{
		data:      dense.Data().([]float32),
		strides:   dense.Strides(),
		binsOuter: binsOuter,
		h:         h,
		w:         w,
	}, nil
}

func (r *regView) at(side, bin, y, x int) float32 {
	i, j := side, bin
	if r.binsOuter {
		i, j = bin, side
	}
	return r.data[i*r.strides[0]+j*r.strides[1]+y*r.strides[2]+x*r.strides[3]]
}

// expect returns the softmax expectation of the bins of one side, in bin units.
func (r *regView) expect(buf []float32, side, y, x int) float32 {
	for b := range buf {
		buf[b] = r.at(side, b, y, x)
	}
	softmax(buf)

	var e float32
	for b, p := range buf {
		e += p * float32(b)
	}
	return e
}

func softmax(v []float32) {
	m := v[0]
	for _, x := range v[1:] {
		m = math32.Max(m, x)
	}

	var sum float32
	for i, x := range v {
		v[i] = math32.Exp(x - m)
		sum += v[i]
	}
	for i := range v {
		v[i] /= sum
	}
}

func sigmoid(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}
