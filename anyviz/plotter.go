package anyviz

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/unixpickle/essentials"
)

// DebugFileName returns the file name used for the grid
// rendered at the given training step.
func DebugFileName(step int) string {
	return fmt.Sprintf("training_debug_step_%06d.png", step)
}

// A FilePlotter renders snapshots to PNG files.
type FilePlotter struct {
	// Dir is the directory where images are saved.
	// If it is empty, the working directory is used.
	Dir string

	// PanelSize is passed to RenderGrid.
	PanelSize int
}

// PlotSnapshot renders the snapshot and saves it as
// DebugFileName(step) in p.Dir.
// It returns the first error encountered.
func (p *FilePlotter) PlotSnapshot(step int, s *Snapshot) error {
	dir := p.Dir
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return essentials.AddCtx("plot snapshot", err)
		}
	}
	img, err := RenderGrid(s, p.PanelSize)
	if err != nil {
		return essentials.AddCtx("plot snapshot", err)
	}
	return SavePNG(filepath.Join(dir, DebugFileName(step)), img)
}

// SavePNG encodes an image to a PNG file.
//
// The file is always closed before SavePNG returns.
// If encoding or closing fails, the partial file is
// removed.
func SavePNG(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return essentials.AddCtx("save PNG", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = essentials.AddCtx("save PNG", closeErr)
		}
		if err != nil {
			os.Remove(path)
		}
	}()
	if err := png.Encode(f, img); err != nil {
		return essentials.AddCtx("save PNG", err)
	}
	return nil
}
