// Package models - Label sets and the detector registry.
package models

import (
	"github.com/mkorzunowicz/poopdetector/models/postprocess"
	"github.com/pkg/errors"
)

// LabelSet identifies the dataset a network was trained on.
type LabelSet string

const (
	// LabelSetPoop is the single poop class.
	LabelSetPoop LabelSet = "poop"
	// LabelSetCOCO is the 80 COCO classes, no background.
	LabelSetCOCO LabelSet = "coco"
	// LabelSetDouble is the 80 COCO classes followed by poop.
	LabelSetDouble LabelSet = "double"
)

// ErrUnknownLabelSet is returned for an unregistered label set.
var ErrUnknownLabelSet = errors.New("unknown label set")

// Labels returns the labels of set.
func (s LabelSet) Labels() ([]postprocess.Label, error) {
	switch s {
	case LabelSetPoop:
		return PoopLabels(), nil
	case LabelSetCOCO:
		return COCOLabels(), nil
	case LabelSetDouble:
		return DoubleLabels(), nil
	default:
		return nil, errors.Wrapf(ErrUnknownLabelSet, "%q", s)
	}
}
