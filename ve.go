package anydiffusion

import (
	"math"
	"math/rand"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var v VELoss
	serializer.RegisterTypedDeserializer(v.SerializerType(), DeserializeVELoss)
}

// VELoss is the variance exploding (VE) objective from
// "Score-Based Generative Modeling through Stochastic
// Differential Equations".
//
// Noise levels are log-uniform over [SigmaMin, SigmaMax].
type VELoss struct {
	SigmaMin float64
	SigmaMax float64

	// Rand, if non-nil, is used for random draws.
	// Otherwise, the global math/rand source is used.
	Rand *rand.Rand
}

// NewVELoss creates a VELoss with validated
// hyperparameters.
func NewVELoss(sigmaMin, sigmaMax float64) (*VELoss, error) {
	res := &VELoss{SigmaMin: sigmaMin, SigmaMax: sigmaMax}
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

// DefaultVELoss creates a VELoss with the noise range
// used for CIFAR-10 in the VE paper.
func DefaultVELoss() *VELoss {
	return &VELoss{SigmaMin: 0.02, SigmaMax: 100}
}

// DeserializeVELoss deserializes a VELoss.
func DeserializeVELoss(d []byte) (*VELoss, error) {
	var sigmaMin, sigmaMax serializer.Float64
	if err := serializer.DeserializeAny(d, &sigmaMin, &sigmaMax); err != nil {
		return nil, essentials.AddCtx("deserialize VELoss", err)
	}
	res, err := NewVELoss(float64(sigmaMin), float64(sigmaMax))
	if err != nil {
		return nil, essentials.AddCtx("deserialize VELoss", err)
	}
	return res, nil
}

// Validate checks that 0 < SigmaMin < SigmaMax.
func (v *VELoss) Validate() error {
	if err := firstErr(
		checkPositive("VELoss", "SigmaMin", v.SigmaMin),
		checkPositive("VELoss", "SigmaMax", v.SigmaMax),
	); err != nil {
		return err
	}
	if v.SigmaMin >= v.SigmaMax {
		return &ConfigError{Loss: "VELoss", Field: "SigmaMin", Value: v.SigmaMin,
			Reason: "must be less than SigmaMax"}
	}
	return nil
}

// SigmaAt maps a value u in [0, 1] to the noise level
// SigmaMin*(SigmaMax/SigmaMin)^u.
func (v *VELoss) SigmaAt(u float64) float64 {
	return v.SigmaMin * math.Pow(v.SigmaMax/v.SigmaMin, u)
}

// SigmaVec applies SigmaAt to every component of u.
// The result is a new vector.
func (v *VELoss) SigmaVec(u anyvec.Vector) anyvec.Vector {
	c := u.Creator()
	res := u.Copy()
	res.Scale(c.MakeNumeric(math.Log(v.SigmaMax / v.SigmaMin)))
	anyvec.Exp(res)
	res.Scale(c.MakeNumeric(v.SigmaMin))
	return res
}

// SampleSigma draws n log-uniform noise levels.
func (v *VELoss) SampleSigma(c anyvec.Creator, n int) anyvec.Vector {
	return v.SigmaVec(uniformVec(c, n, v.Rand))
}

// Weight computes 1/sigma^2 for each noise level.
func (v *VELoss) Weight(sigma anyvec.Vector) anyvec.Vector {
	return inverseSquare(sigma)
}

// Loss computes the weighted denoising loss for a batch.
func (v *VELoss) Loss(net Denoiser, b *Batch, aug Augmenter) anydiff.Res {
	return weightedLoss(v, net, b, aug, v.Rand).Loss
}

// SerializerType returns the unique ID used to serialize
// a VELoss with the serializer package.
func (v *VELoss) SerializerType() string {
	return "github.com/unixpickle/anydiffusion.VELoss"
}

// Serialize serializes the hyperparameters of the loss.
func (v *VELoss) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		serializer.Float64(v.SigmaMin),
		serializer.Float64(v.SigmaMax),
	)
}
