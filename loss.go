package anydiffusion

import (
	"math"
	"math/rand"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// corruption stores the intermediate values of a single
// loss evaluation.
type corruption struct {
	Sigma  anyvec.Vector
	Target anyvec.Vector
	Noisy  anyvec.Vector
	Pred   anydiff.Res
	Loss   anydiff.Res
}

// weightedLoss runs the procedure shared by every
// objective: sample sigma, augment, add noise, denoise,
// and weight the squared error.
//
// The gen argument is used for all random draws.
// If it is nil, the global source from math/rand is used.
func weightedLoss(sched NoiseSchedule, net Denoiser, b *Batch, aug Augmenter,
	gen *rand.Rand) *corruption {
	c := b.Images.Creator()
	if b.Num == 0 {
		empty := c.MakeVector(0)
		return &corruption{
			Sigma:  empty,
			Target: empty,
			Noisy:  empty,
			Pred:   anydiff.NewConst(empty),
			Loss:   anydiff.NewConst(empty),
		}
	}
	if b.SampleSize()*b.Num != b.Images.Len() {
		panic("incorrect batch shape")
	}

	sigma := sched.SampleSigma(c, b.Num)
	weight := sched.Weight(sigma)

	y, augLabels := b.Images, anyvec.Vector(nil)
	if aug != nil {
		y, augLabels = aug.Augment(b.Images, b.Num)
		if y.Len() != b.Images.Len() {
			panic("augmented batch size mismatch")
		}
	}

	noisy := c.MakeVector(y.Len())
	anyvec.Rand(noisy, anyvec.Normal, gen)
	anyvec.ScaleChunks(noisy, sigma)
	noisy.Add(y)

	pred := net.Denoise(anydiff.NewConst(noisy), sigma, b.Labels, augLabels, b.Num)
	if pred.Output().Len() != y.Len() {
		panic("denoiser output size mismatch")
	}

	sqErr := anydiff.Square(anydiff.Sub(pred, anydiff.NewConst(y)))
	return &corruption{
		Sigma:  sigma,
		Target: y,
		Noisy:  noisy,
		Pred:   pred,
		Loss:   anydiff.Mul(sqErr, anydiff.NewConst(broadcast(weight, y.Len()))),
	}
}

// broadcast repeats each per-sample value across its
// sample's chunk of a packed batch.
func broadcast(perSample anyvec.Vector, total int) anyvec.Vector {
	c := perSample.Creator()
	res := c.MakeVector(total)
	res.AddScalar(c.MakeNumeric(1))
	anyvec.ScaleChunks(res, perSample)
	return res
}

// uniformVec draws n values from [0, 1).
func uniformVec(c anyvec.Creator, n int, gen *rand.Rand) anyvec.Vector {
	res := c.MakeVector(n)
	anyvec.Rand(res, anyvec.Uniform, gen)
	return res
}

// MeanLoss computes the mean of every component of an
// elementwise loss.
// It returns NaN for an empty loss, or if the numeric type
// is not float32 or float64.
func MeanLoss(loss anydiff.Res) float64 {
	out := loss.Output()
	if out.Len() == 0 {
		return math.NaN()
	}
	return numericFloat(anyvec.Sum(out)) / float64(out.Len())
}

func numericFloat(n anyvec.Numeric) float64 {
	switch n := n.(type) {
	case float32:
		return float64(n)
	case float64:
		return n
	default:
		return math.NaN()
	}
}
