package anyviz

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/unixpickle/anyvec"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	gridRows     = 2
	gridCols     = 3
	titleHeight  = 18
	panelPadding = 8

	// DefaultPanelSize is the longer side, in pixels, of each
	// heatmap in a rendered grid.
	DefaultPanelSize = 192
)

// A Snapshot is a detached copy of a single sample taken
// during training.
//
// All three tensors are channel-major (C, H, W).
type Snapshot struct {
	Channels int
	Height   int
	Width    int

	// Pred is the denoiser's reconstruction.
	Pred anyvec.Vector

	// Target is the clean (augmented) sample.
	Target anyvec.Vector

	// Noisy is the corrupted sample fed to the denoiser.
	Noisy anyvec.Vector
}

// Validate checks that every tensor matches the
// snapshot's dimensions.
func (s *Snapshot) Validate() error {
	if s.Channels <= 0 || s.Height <= 0 || s.Width <= 0 {
		return fmt.Errorf("invalid snapshot shape %dx%dx%d", s.Channels, s.Height, s.Width)
	}
	size := s.Channels * s.Height * s.Width
	for _, v := range []anyvec.Vector{s.Pred, s.Target, s.Noisy} {
		if v == nil {
			return errors.New("snapshot is missing a tensor")
		} else if v.Len() != size {
			return fmt.Errorf("snapshot tensor has %d components (expected %d)", v.Len(), size)
		}
	}
	return nil
}

type panel struct {
	Title   string
	Tensor  anyvec.Vector
	Channel int
}

func (s *Snapshot) panels() []panel {
	return []panel{
		{"Pred ch0", s.Pred, 0},
		{"Pred ch1", s.Pred, 1},
		{"GT ch0", s.Target, 0},
		{"GT ch1", s.Target, 1},
		{"Noisy ch0", s.Noisy, 0},
		{"Noisy ch1", s.Noisy, 1},
	}
}

// RenderGrid renders a 2x3 grid of titled heatmaps for
// the first two channels of the prediction, the target,
// and the noisy input, in that order.
//
// Each heatmap is rescaled with nearest-neighbor sampling
// so that its longer side is panelSize pixels.
// If panelSize is 0, DefaultPanelSize is used.
func RenderGrid(s *Snapshot, panelSize int) (image.Image, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if panelSize <= 0 {
		panelSize = DefaultPanelSize
	}
	panelWidth, panelHeight := panelDims(s.Height, s.Width, panelSize)

	cellWidth := panelWidth + panelPadding*2
	cellHeight := panelHeight + titleHeight + panelPadding*2
	res := image.NewRGBA(image.Rect(0, 0, cellWidth*gridCols, cellHeight*gridRows))
	xdraw.Draw(res, res.Bounds(), image.White, image.Point{}, xdraw.Src)

	for i, p := range s.panels() {
		cellX := (i % gridCols) * cellWidth
		cellY := (i / gridCols) * cellHeight
		drawTitle(res, p.Title, cellX, cellY, cellWidth)

		heatmap := Heatmap(p.Tensor, s.Height, s.Width, p.Channel)
		target := image.Rect(0, 0, panelWidth, panelHeight).Add(
			image.Pt(cellX+panelPadding, cellY+panelPadding+titleHeight),
		)
		xdraw.NearestNeighbor.Scale(res, target, heatmap, heatmap.Bounds(), xdraw.Src, nil)
	}

	return res, nil
}

// panelDims scales a height x width heatmap so that its
// longer side is panelSize pixels.
func panelDims(height, width, panelSize int) (panelWidth, panelHeight int) {
	if height > width {
		panelHeight = panelSize
		panelWidth = panelSize * width / height
	} else {
		panelWidth = panelSize
		panelHeight = panelSize * height / width
	}
	if panelWidth == 0 {
		panelWidth = 1
	}
	if panelHeight == 0 {
		panelHeight = 1
	}
	return
}

func drawTitle(dst *image.RGBA, title string, cellX, cellY, cellWidth int) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
	}
	textWidth := d.MeasureString(title).Ceil()
	x := cellX + (cellWidth-textWidth)/2
	y := cellY + panelPadding + basicfont.Face7x13.Ascent
	d.Dot = fixed.P(x, y)
	d.DrawString(title)
}
