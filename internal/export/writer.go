package export

import (
	"fmt"
	"path/filepath"

	"github.com/banshee-data/navmap/internal/fsutil"
	"github.com/banshee-data/navmap/internal/grid"
	"github.com/banshee-data/navmap/internal/security"
)

// Paths names the artifact files written on every map change.
type Paths struct {
	Dir    string // all artifacts must live under Dir
	Image  string // PNG raster
	Bitmap string // PGM bitmap
}

// Writer persists map artifacts.
type Writer struct {
	fs    fsutil.FileSystem
	paths Paths
}

// NewWriter validates the artifact paths and returns a Writer.
func NewWriter(fsys fsutil.FileSystem, paths Paths) (*Writer, error) {
	for _, p := range []string{paths.Image, paths.Bitmap} {
		if p == "" {
			return nil, fmt.Errorf("artifact path must not be empty")
		}
		if err := security.ValidatePathWithinDirectory(p, paths.Dir); err != nil {
			return nil, fmt.Errorf("invalid artifact path: %w", err)
		}
	}
	return &Writer{fs: fsys, paths: paths}, nil
}

// ImagePath returns where the PNG is written.
func (w *Writer) ImagePath() string { return w.paths.Image }

// BitmapPath returns where the PGM is written.
func (w *Writer) BitmapPath() string { return w.paths.Bitmap }

// WriteImage encodes and writes the PNG for g.
func (w *Writer) WriteImage(g *grid.OccupancyGrid) error {
	data, err := RasterImage(g)
	if err != nil {
		return err
	}
	return w.write(w.paths.Image, data)
}

// WriteBitmap encodes and writes the PGM for g.
func (w *Writer) WriteBitmap(g *grid.OccupancyGrid) error {
	if err := g.Validate(); err != nil {
		return err
	}
	return w.write(w.paths.Bitmap, PortableBitmap(g))
}

// WriteAll writes both artifacts. Both writes are attempted; the first error
// is returned.
func (w *Writer) WriteAll(g *grid.OccupancyGrid) error {
	bitmapErr := w.WriteBitmap(g)
	imageErr := w.WriteImage(g)
	if bitmapErr != nil {
		return bitmapErr
	}
	return imageErr
}

func (w *Writer) write(path string, data []byte) error {
	if err := w.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	if err := w.fs.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", path, err)
	}
	return nil
}
