package anydiffusion

import (
	"math/rand"

	"github.com/unixpickle/anyvec"
)

// XFlip is an Augmenter which mirrors samples along the
// width axis.
//
// Each sample is flipped with probability Prob.
// The augmentation label for a sample is 1 if it was
// flipped and 0 otherwise.
type XFlip struct {
	Shape Shape
	Prob  float64

	// Rand, if non-nil, is used for random draws.
	Rand *rand.Rand
}

// Augment flips a random subset of the batch.
func (x *XFlip) Augment(images anyvec.Vector, n int) (anyvec.Vector, anyvec.Vector) {
	c := images.Creator()
	if n == 0 {
		return images.Copy(), c.MakeVector(0)
	}
	size := x.Shape.Size()
	if size*n != images.Len() {
		panic("incorrect batch shape")
	}

	mapping := make([]int, images.Len())
	labels := make([]float64, n)
	for i := 0; i < n; i++ {
		flip := x.uniform() < x.Prob
		if flip {
			labels[i] = 1
		}
		for ch := 0; ch < x.Shape.Channels; ch++ {
			for row := 0; row < x.Shape.Height; row++ {
				rowStart := i*size + (ch*x.Shape.Height+row)*x.Shape.Width
				for col := 0; col < x.Shape.Width; col++ {
					src := col
					if flip {
						src = x.Shape.Width - (col + 1)
					}
					mapping[rowStart+col] = rowStart + src
				}
			}
		}
	}

	mapper := c.MakeMapper(images.Len(), mapping)
	out := c.MakeVector(images.Len())
	mapper.Map(images, out)
	return out, c.MakeVectorData(c.MakeNumericList(labels))
}

func (x *XFlip) uniform() float64 {
	if x.Rand == nil {
		return rand.Float64()
	}
	return x.Rand.Float64()
}
