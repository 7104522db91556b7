// Package anydiffusion provides training objectives for
// diffusion-based generative models.
//
// Every objective follows the same recipe: sample a noise
// level for each sample in a batch, corrupt the batch with
// Gaussian noise of that level, ask a Denoiser to
// reconstruct the clean batch, and weight the squared
// reconstruction error by a function of the noise level.
//
// Tensors are packed anyvec.Vectors.
// A batch of N samples, each with shape (C, H, W), is
// stored row-major as an N*C*H*W vector.
// Per-sample scalars, such as noise levels and weights,
// are stored as length-N vectors.
package anydiffusion

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// A Denoiser predicts clean samples from noisy ones.
//
// The noisy input is a packed batch of n samples.
// The sigma vector has one noise level per sample.
// The labels and augLabels vectors are packed per-sample
// conditioning data, and either may be nil.
//
// The result must have the same length as noisy.
type Denoiser interface {
	Denoise(noisy anydiff.Res, sigma, labels, augLabels anyvec.Vector, n int) anydiff.Res
}

// An Augmenter applies data augmentation to a batch.
//
// It returns the augmented batch (which must have the same
// size as the input) and a packed vector of augmentation
// labels that describe what was done to each sample.
// The augmentation labels may be nil.
type Augmenter interface {
	Augment(images anyvec.Vector, n int) (augmented, augLabels anyvec.Vector)
}

// An Objective computes a weighted denoising loss.
//
// The returned loss is an elementwise tensor with the same
// packed shape as b.Images.
// If aug is nil, no augmentation is applied.
type Objective interface {
	Loss(net Denoiser, b *Batch, aug Augmenter) anydiff.Res
}

// A NoiseSchedule determines how noise levels are sampled
// and how each noise level is weighted in the loss.
type NoiseSchedule interface {
	// SampleSigma draws n positive noise levels.
	SampleSigma(c anyvec.Creator, n int) anyvec.Vector

	// Weight computes the loss weight for each noise
	// level, without modifying sigma.
	Weight(sigma anyvec.Vector) anyvec.Vector
}

// Shape is the shape of a single sample.
type Shape struct {
	Channels int
	Height   int
	Width    int
}

// Size returns the number of components in a sample.
func (s Shape) Size() int {
	return s.Channels * s.Height * s.Width
}

// A Batch is a packed list of training samples.
type Batch struct {
	// Images stores Num packed samples.
	Images anyvec.Vector

	// Labels stores optional packed conditioning vectors.
	// It is either nil or a multiple of Num in length.
	Labels anyvec.Vector

	Num   int
	Shape Shape
}

// SampleSize returns the number of components in each
// sample of the batch.
//
// If b.Shape is zero, the size is inferred from the length
// of b.Images.
func (b *Batch) SampleSize() int {
	if size := b.Shape.Size(); size != 0 {
		return size
	}
	if b.Num == 0 {
		return 0
	}
	return b.Images.Len() / b.Num
}
