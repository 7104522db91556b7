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
	var v VPLoss
	serializer.RegisterTypedDeserializer(v.SerializerType(), DeserializeVPLoss)
}

// VPLoss is the variance preserving (VP) objective from
// "Score-Based Generative Modeling through Stochastic
// Differential Equations".
//
// Diffusion times t are sampled uniformly from
// [EpsilonT, 1] and mapped to noise levels with Sigma.
type VPLoss struct {
	BetaD    float64
	BetaMin  float64
	EpsilonT float64

	// Rand, if non-nil, is used for random draws.
	// Otherwise, the global math/rand source is used.
	Rand *rand.Rand
}

// NewVPLoss creates a VPLoss with validated
// hyperparameters.
func NewVPLoss(betaD, betaMin, epsilonT float64) (*VPLoss, error) {
	res := &VPLoss{BetaD: betaD, BetaMin: betaMin, EpsilonT: epsilonT}
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

// DefaultVPLoss creates a VPLoss with the hyperparameters
// used for CIFAR-10 in the VP paper.
func DefaultVPLoss() *VPLoss {
	return &VPLoss{BetaD: 19.9, BetaMin: 0.1, EpsilonT: 1e-5}
}

// DeserializeVPLoss deserializes a VPLoss.
func DeserializeVPLoss(d []byte) (*VPLoss, error) {
	var betaD, betaMin, epsilonT serializer.Float64
	if err := serializer.DeserializeAny(d, &betaD, &betaMin, &epsilonT); err != nil {
		return nil, essentials.AddCtx("deserialize VPLoss", err)
	}
	res, err := NewVPLoss(float64(betaD), float64(betaMin), float64(epsilonT))
	if err != nil {
		return nil, essentials.AddCtx("deserialize VPLoss", err)
	}
	return res, nil
}

// Validate checks that every hyperparameter is positive
// and that EpsilonT is at most 1.
func (v *VPLoss) Validate() error {
	if err := firstErr(
		checkPositive("VPLoss", "BetaD", v.BetaD),
		checkPositive("VPLoss", "BetaMin", v.BetaMin),
		checkPositive("VPLoss", "EpsilonT", v.EpsilonT),
	); err != nil {
		return err
	}
	if v.EpsilonT > 1 {
		return &ConfigError{Loss: "VPLoss", Field: "EpsilonT", Value: v.EpsilonT,
			Reason: "must not exceed 1"}
	}
	return nil
}

// Sigma computes the noise level at diffusion time t.
func (v *VPLoss) Sigma(t float64) float64 {
	return math.Sqrt(math.Exp(0.5*v.BetaD*t*t+v.BetaMin*t) - 1)
}

// SigmaInv computes the diffusion time for a noise level.
// It is the inverse of Sigma.
func (v *VPLoss) SigmaInv(sigma float64) float64 {
	disc := v.BetaMin*v.BetaMin + 2*v.BetaD*math.Log1p(sigma*sigma)
	return (math.Sqrt(disc) - v.BetaMin) / v.BetaD
}

// SigmaVec applies Sigma to every component of t.
// The result is a new vector.
func (v *VPLoss) SigmaVec(t anyvec.Vector) anyvec.Vector {
	c := t.Creator()
	res := t.Copy()
	res.Mul(t)
	res.Scale(c.MakeNumeric(0.5 * v.BetaD))
	linear := t.Copy()
	linear.Scale(c.MakeNumeric(v.BetaMin))
	res.Add(linear)
	anyvec.Exp(res)
	res.AddScalar(c.MakeNumeric(-1))
	anyvec.Pow(res, c.MakeNumeric(0.5))
	return res
}

// SampleSigma samples n diffusion times uniformly between
// EpsilonT and 1 and returns their noise levels.
func (v *VPLoss) SampleSigma(c anyvec.Creator, n int) anyvec.Vector {
	t := uniformVec(c, n, v.Rand)
	t.Scale(c.MakeNumeric(v.EpsilonT - 1))
	t.AddScalar(c.MakeNumeric(1))
	return v.SigmaVec(t)
}

// Weight computes 1/sigma^2 for each noise level.
func (v *VPLoss) Weight(sigma anyvec.Vector) anyvec.Vector {
	return inverseSquare(sigma)
}

// Loss computes the weighted denoising loss for a batch.
func (v *VPLoss) Loss(net Denoiser, b *Batch, aug Augmenter) anydiff.Res {
	return weightedLoss(v, net, b, aug, v.Rand).Loss
}

// SerializerType returns the unique ID used to serialize
// a VPLoss with the serializer package.
func (v *VPLoss) SerializerType() string {
	return "github.com/unixpickle/anydiffusion.VPLoss"
}

// Serialize serializes the hyperparameters of the loss.
func (v *VPLoss) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		serializer.Float64(v.BetaD),
		serializer.Float64(v.BetaMin),
		serializer.Float64(v.EpsilonT),
	)
}

func inverseSquare(sigma anyvec.Vector) anyvec.Vector {
	res := sigma.Copy()
	anyvec.Pow(res, res.Creator().MakeNumeric(-2))
	return res
}
