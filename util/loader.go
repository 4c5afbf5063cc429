// Package util - Loading frames from disk.
package util

import (
	"bytes"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// ImageFile represents an image file.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Name is the file name without its extension.
	Name string
	// Image is the decoded frame, upright according to its EXIF orientation.
	Image image.Image
}

// SupportedExtensions are the file extensions LoadDirectoryImageFiles reads.
var SupportedExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".webp"}

// LoadImageFile decodes one image file. Phone photos are rotated according
// to their EXIF orientation so boxes line up with what the user saw.
//
// Arguments:
//   - path: The image file.
//
// Returns:
//   - ImageFile: The decoded image.
//   - error: Error if reading or decoding fails.
func LoadImageFile(path string) (ImageFile, error) {
	ext := strings.ToLower(filepath.Ext(path))
	out := ImageFile{Path: path, Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))}

	if ext == ".webp" {
		data, err := os.ReadFile(path)
		if err != nil {
			return ImageFile{}, err
		}
		img, err := webp.Decode(bytes.NewReader(data))
		if err != nil {
			return ImageFile{}, errors.Wrapf(err, "decoding %s", path)
		}
		out.Image = img
		return out, nil
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return ImageFile{}, errors.Wrapf(err, "decoding %s", path)
	}
	out.Image = img
	return out, nil
}

// LoadDirectoryImageFiles reads all image files from a directory.
//
// Arguments:
// - dir: Directory path containing image files.
//
// Returns:
// - []ImageFile: The decoded images sorted by file name.
// - error: Error if loading fails.
func LoadDirectoryImageFiles(dir string) ([]ImageFile, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var images []ImageFile
	for _, file := range files {
		if file.IsDir() || !supported(file.Name()) {
			continue
		}
		img, err := LoadImageFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}

	sort.Slice(images, func(i, j int) bool {
		return images[i].Path < images[j].Path
	})

	return images, nil
}

// SaveImageFile writes img to path; the format follows the extension.
func SaveImageFile(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return imaging.Save(img, path)
}

func supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}
