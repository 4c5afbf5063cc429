package util

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDirectoryImages(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"frame-2.png", "frame-1.jpg", "frame-3.png"} {
		img := image.NewRGBA(image.Rect(0, 0, 32, 16))
		img.Set(0, 0, color.White)
		require.NoError(t, SaveImageFile(filepath.Join(dir, name), img))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.png"), 0o755))

	images, err := LoadDirectoryImageFiles(dir)
	require.NoError(t, err)
	require.Len(t, images, 3)

	assert.Equal(t, "frame-1", images[0].Name)
	assert.Equal(t, "frame-2", images[1].Name)
	assert.Equal(t, "frame-3", images[2].Name)
	for _, img := range images {
		assert.Equal(t, image.Pt(32, 16), img.Image.Bounds().Size())
	}
}

func TestLoadDirectoryImages_Errors(t *testing.T) {
	_, err := LoadDirectoryImageFiles(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.png"), []byte("not a png"), 0o600))
	_, err = LoadDirectoryImageFiles(dir)
	assert.Error(t, err)
}

func TestSupported(t *testing.T) {
	tests := []struct {
		name     string
		expected bool
	}{
		{name: "a.JPG", expected: true},
		{name: "a.webp", expected: true},
		{name: "a.bmp", expected: true},
		{name: "a.gif", expected: false},
		{name: "a", expected: false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, supported(tt.name), tt.name)
	}
}
