// Package yolox - YOLOX anchor-free grid, proposal decoding and detectors.
package yolox

import (
	"slices"
	"sync"
)

// DefaultStrides are the output strides of the YOLOX heads, in output order.
var DefaultStrides = []int{8, 16, 32}

// GridCell is one anchor-free prediction slot.
type GridCell struct {
	Col    int
	Row    int
	Stride int
}

// GenerateGrid enumerates the prediction slots of every stride in the order the
// exported graph emits them: strides in the given order, then rows, then
// columns.
//
// Arguments:
//   - strides: The head strides.
//   - height: The input height.
//   - width: The input width.
//
// Returns:
//   - []GridCell: One cell per output anchor.
func GenerateGrid(strides []int, height, width int) []GridCell {
	n := 0
	for _, s := range strides {
		if s > 0 {
			n += (height / s) * (width / s)
		}
	}

	grid := make([]GridCell, 0, n)
	for _, s := range strides {
		if s <= 0 {
			continue
		}
		for row := 0; row < height/s; row++ {
			for col := 0; col < width/s; col++ {
				grid = append(grid, GridCell{Col: col, Row: row, Stride: s})
			}
		}
	}
	return grid
}

// GridCache holds the grid of one input resolution. It is owned by a single
// detector and regenerated only when the resolution changes.
type GridCache struct {
	mu      sync.Mutex
	strides []int
	width   int
	height  int
	grid    []GridCell
}

// Get returns the cached grid, generating it if strides or resolution changed.
// The returned slice must not be modified.
func (c *GridCache) Get(strides []int, height, width int) []GridCell {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.grid == nil || c.width != width || c.height != height || !slices.Equal(c.strides, strides) {
		c.grid = GenerateGrid(strides, height, width)
		c.strides = slices.Clone(strides)
		c.width, c.height = width, height
	}
	return c.grid
}

// Reset drops the cached grid.
func (c *GridCache) Reset() {
	c.mu.Lock()
	c.grid = nil
	c.mu.Unlock()
}
