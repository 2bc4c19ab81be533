// Package imagefile turns a file on disk into a workflow.LocalImage,
// rejecting anything that is not a reasonably sized image.
package imagefile

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/kingrea/save-the-trash/internal/workflow"
)

var (
	ErrEmpty    = errors.New("imagefile: file is empty")
	ErrTooLarge = errors.New("imagefile: file is too large")
	ErrNotImage = errors.New("imagefile: file is not an image")
)

// Load reads path and validates it as an image of at most maxBytes.
// A maxBytes of zero or less disables the size check.
func Load(path string, maxBytes int64) (workflow.LocalImage, error) {
	path = expandHome(strings.TrimSpace(path))
	if path == "" {
		return workflow.LocalImage{}, fmt.Errorf("imagefile: path is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return workflow.LocalImage{}, fmt.Errorf("imagefile: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return workflow.LocalImage{}, fmt.Errorf("imagefile: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return workflow.LocalImage{}, fmt.Errorf("imagefile: %s is a directory", path)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return workflow.LocalImage{}, fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, info.Size(), maxBytes)
	}

	var r io.Reader = f
	if maxBytes > 0 {
		r = io.LimitReader(f, maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return workflow.LocalImage{}, fmt.Errorf("imagefile: read %s: %w", path, err)
	}
	return FromBytes(filepath.Base(path), data, maxBytes)
}

// FromBytes validates data already in memory.
func FromBytes(name string, data []byte, maxBytes int64) (workflow.LocalImage, error) {
	if len(data) == 0 {
		return workflow.LocalImage{}, ErrEmpty
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return workflow.LocalImage{}, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBytes)
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return workflow.LocalImage{}, fmt.Errorf("%w: detected %s", ErrNotImage, mt.String())
	}

	img := workflow.LocalImage{
		Name:        name,
		ContentType: mt.String(),
		Data:        data,
		Location:    Coordinates(data),
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		img.Width, img.Height = cfg.Width, cfg.Height
	}
	return img, nil
}

// Coordinates extracts the EXIF GPS position, or nil when the image has
// none. Malformed metadata is treated as absent.
func Coordinates(data []byte) (loc *workflow.Coordinates) {
	defer func() {
		if recover() != nil {
			loc = nil
		}
	}()
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	lat, long, err := x.LatLong()
	if err != nil || math.IsNaN(lat) || math.IsNaN(long) {
		return nil
	}
	return &workflow.Coordinates{Latitude: lat, Longitude: long}
}

// DescribeLocation renders the coordinates line shown next to the photo.
func DescribeLocation(loc *workflow.Coordinates) string {
	if loc == nil {
		return "No latitude and longitude found"
	}
	return fmt.Sprintf("Latitude: %.6f, Longitude: %.6f", loc.Latitude, loc.Longitude)
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
