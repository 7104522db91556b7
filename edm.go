package anydiffusion

import (
	"math"
	"math/rand"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiffusion/anyviz"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
	"k8s.io/klog/v2"
)

// DefaultPlotInterval is the number of reporting-worker
// invocations between diagnostic plots.
const DefaultPlotInterval = 100

func init() {
	var e EDMLoss
	serializer.RegisterTypedDeserializer(e.SerializerType(), DeserializeEDMLoss)
}

// A SnapshotPlotter renders diagnostic snapshots.
type SnapshotPlotter interface {
	PlotSnapshot(step int, s *anyviz.Snapshot) error
}

// EDMLoss is the objective proposed in "Elucidating the
// Design Space of Diffusion-Based Generative Models".
//
// Noise levels are log-normal, with log(sigma) drawn from
// N(PMean, PStd^2).
//
// On the reporting worker (rank 0), an EDMLoss counts its
// invocations and plots a snapshot of the first sample
// every PlotInterval invocations.
// On every worker, the mean loss of each batch is sent to
// Logger.
//
// An EDMLoss is not safe for concurrent use, since Loss
// updates PlotCounter.
type EDMLoss struct {
	PMean     float64
	PStd      float64
	SigmaData float64

	// Rand, if non-nil, is used for random draws.
	// Otherwise, the global math/rand source is used.
	Rand *rand.Rand

	// Ranker determines whether this is the reporting
	// worker.
	// If nil, every worker behaves like rank 0.
	Ranker Ranker

	// Logger, if non-nil, receives the mean of every loss.
	Logger LossLogger

	// Plotter, if non-nil, renders diagnostic snapshots.
	Plotter SnapshotPlotter

	// PlotInterval is the plotting period.
	// If it is 0, DefaultPlotInterval is used.
	PlotInterval int

	// PlotCounter is the number of times Loss has been
	// called on the reporting worker.
	PlotCounter int
}

// NewEDMLoss creates an EDMLoss with validated
// hyperparameters.
//
// The resulting loss reads its rank from the environment,
// prints mean losses to standard output, and saves plots
// to the working directory.
func NewEDMLoss(pMean, pStd, sigmaData float64) (*EDMLoss, error) {
	res := &EDMLoss{
		PMean:     pMean,
		PStd:      pStd,
		SigmaData: sigmaData,
		Ranker:    EnvRank{},
		Logger:    &LossPrinter{},
		Plotter:   &anyviz.FilePlotter{},

		PlotInterval: DefaultPlotInterval,
		PlotCounter:  0,
	}
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

// DefaultEDMLoss creates an EDMLoss with the
// hyperparameters recommended in the EDM paper.
func DefaultEDMLoss() *EDMLoss {
	res, err := NewEDMLoss(-1.2, 1.2, 0.5)
	essentials.Must(err)
	return res
}

// DeserializeEDMLoss deserializes an EDMLoss.
// The runtime fields are set up as in NewEDMLoss.
func DeserializeEDMLoss(d []byte) (*EDMLoss, error) {
	var pMean, pStd, sigmaData serializer.Float64
	if err := serializer.DeserializeAny(d, &pMean, &pStd, &sigmaData); err != nil {
		return nil, essentials.AddCtx("deserialize EDMLoss", err)
	}
	res, err := NewEDMLoss(float64(pMean), float64(pStd), float64(sigmaData))
	if err != nil {
		return nil, essentials.AddCtx("deserialize EDMLoss", err)
	}
	return res, nil
}

// Validate checks that PMean is finite and that PStd and
// SigmaData are positive.
func (e *EDMLoss) Validate() error {
	return firstErr(
		checkFinite("EDMLoss", "PMean", e.PMean),
		checkPositive("EDMLoss", "PStd", e.PStd),
		checkPositive("EDMLoss", "SigmaData", e.SigmaData),
	)
}

// SigmaAt maps a standard normal value z to the noise
// level exp(z*PStd + PMean).
func (e *EDMLoss) SigmaAt(z float64) float64 {
	return math.Exp(z*e.PStd + e.PMean)
}

// WeightAt computes the loss weight for a noise level:
// (sigma^2 + SigmaData^2) / (sigma*SigmaData)^2.
func (e *EDMLoss) WeightAt(sigma float64) float64 {
	sd := e.SigmaData
	return (sigma*sigma + sd*sd) / ((sigma * sd) * (sigma * sd))
}

// SigmaVec applies SigmaAt to every component of z.
// The result is a new vector.
func (e *EDMLoss) SigmaVec(z anyvec.Vector) anyvec.Vector {
	c := z.Creator()
	res := z.Copy()
	res.Scale(c.MakeNumeric(e.PStd))
	res.AddScalar(c.MakeNumeric(e.PMean))
	anyvec.Exp(res)
	return res
}

// SampleSigma draws n log-normal noise levels.
func (e *EDMLoss) SampleSigma(c anyvec.Creator, n int) anyvec.Vector {
	z := c.MakeVector(n)
	anyvec.Rand(z, anyvec.Normal, e.Rand)
	return e.SigmaVec(z)
}

// Weight applies WeightAt to every noise level.
func (e *EDMLoss) Weight(sigma anyvec.Vector) anyvec.Vector {
	c := sigma.Creator()
	sdSq := c.MakeNumeric(e.SigmaData * e.SigmaData)

	sigmaSq := sigma.Copy()
	sigmaSq.Mul(sigma)

	res := sigmaSq.Copy()
	res.AddScalar(sdSq)
	sigmaSq.Scale(sdSq)
	res.Div(sigmaSq)
	return res
}

// Loss computes the weighted denoising loss for a batch.
//
// Diagnostics are best-effort: a failed plot is logged and
// never affects the result.
// The mean is logged even for an empty batch, in which
// case it is NaN.
func (e *EDMLoss) Loss(net Denoiser, b *Batch, aug Augmenter) anydiff.Res {
	res := weightedLoss(e, net, b, aug, e.Rand)

	if e.Ranker == nil || e.Ranker.Rank() == 0 {
		e.PlotCounter++
		if e.PlotCounter%e.plotInterval() == 0 && e.Plotter != nil {
			e.plot(b, res)
		}
	}

	if e.Logger != nil {
		e.Logger.LogLoss(MeanLoss(res.Loss))
	}

	return res.Loss
}

// SerializerType returns the unique ID used to serialize
// an EDMLoss with the serializer package.
func (e *EDMLoss) SerializerType() string {
	return "github.com/unixpickle/anydiffusion.EDMLoss"
}

// Serialize serializes the hyperparameters of the loss.
// Runtime fields, including PlotCounter, are not saved.
func (e *EDMLoss) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		serializer.Float64(e.PMean),
		serializer.Float64(e.PStd),
		serializer.Float64(e.SigmaData),
	)
}

func (e *EDMLoss) plotInterval() int {
	if e.PlotInterval <= 0 {
		return DefaultPlotInterval
	}
	return e.PlotInterval
}

func (e *EDMLoss) plot(b *Batch, res *corruption) {
	if b.Num == 0 {
		return
	}
	shape := b.Shape
	if shape.Size() == 0 {
		klog.Warningf("EDMLoss: skipping plot %d: batch has no sample shape", e.PlotCounter)
		return
	}
	size := shape.Size()
	snapshot := &anyviz.Snapshot{
		Channels: shape.Channels,
		Height:   shape.Height,
		Width:    shape.Width,
		Pred:     res.Pred.Output().Slice(0, size),
		Target:   res.Target.Slice(0, size),
		Noisy:    res.Noisy.Slice(0, size),
	}
	if err := e.Plotter.PlotSnapshot(e.PlotCounter, snapshot); err != nil {
		klog.Warningf("EDMLoss: plot %d failed: %v", e.PlotCounter, err)
		return
	}
	klog.V(2).Infof("EDMLoss: saved plot %d", e.PlotCounter)
}
