package anydiffusion

import (
	"math"
	"math/rand"
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anydifftest"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/anyvec/anyvec64"
)

func TestLossShape(t *testing.T) {
	shape := Shape{Channels: 2, Height: 16, Width: 16}
	edm, err := NewEDMLoss(-1.2, 1.2, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	edm.Ranker = StaticRank(0)
	edm.Logger = nil
	edm.Plotter = nil

	objectives := map[string]Objective{
		"VP":  DefaultVPLoss(),
		"VE":  DefaultVELoss(),
		"EDM": edm,
	}
	for name, obj := range objectives {
		t.Run(name, func(t *testing.T) {
			seedObjective(obj, 1337)
			batch := randomBatch(anyvec32.CurrentCreator(), 4, shape)
			loss := obj.Loss(scaleDenoiser{0.9}, batch, nil)
			data := vectorData(loss.Output())
			if len(data) != 4*2*16*16 {
				t.Fatalf("expected %d components but got %d", 4*2*16*16, len(data))
			}
			for i, x := range data {
				if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
					t.Fatalf("component %d: bad loss value %f", i, x)
				}
			}
		})
	}
}

func TestLossWeighting(t *testing.T) {
	images := []float64{1, -2, 3, 0.5, 4, -1}
	sched := &fixedSchedule{
		Sigma:   []float64{0.5, 2},
		Weights: []float64{3, 0.25},
	}
	batch := &Batch{
		Images: anyvec64.MakeVectorData(images),
		Num:    2,
		Shape:  Shape{Channels: 1, Height: 1, Width: 3},
	}
	res := weightedLoss(sched, &zeroDenoiser{}, batch, nil, rand.New(rand.NewSource(1)))
	expected := []float64{3 * 1, 3 * 4, 3 * 9, 0.25 * 0.25, 0.25 * 16, 0.25 * 1}
	actual := vectorData(res.Loss.Output())
	for i, x := range expected {
		if math.Abs(actual[i]-x) > 1e-8 {
			t.Errorf("component %d: expected %f but got %f", i, x, actual[i])
		}
	}

	noise := vectorData(res.Noisy)
	for i, x := range noise {
		sigma := sched.Sigma[i/3]
		if math.Abs(x-images[i]) > sigma*10 {
			t.Errorf("component %d: noise %f too large for sigma %f", i, x-images[i], sigma)
		}
	}
}

func TestLossAugment(t *testing.T) {
	sched := &fixedSchedule{Sigma: []float64{1, 1}, Weights: []float64{1, 2}}
	batch := &Batch{
		Images: anyvec64.MakeVectorData([]float64{1, 2, 3, 4}),
		Num:    2,
	}
	net := &zeroDenoiser{}
	res := weightedLoss(sched, net, batch, shiftAugmenter{}, nil)

	expected := []float64{4, 9, 2 * 16, 2 * 25}
	actual := vectorData(res.Loss.Output())
	for i, x := range expected {
		if math.Abs(actual[i]-x) > 1e-8 {
			t.Errorf("component %d: expected %f but got %f", i, x, actual[i])
		}
	}
	if net.AugLabels == nil || net.AugLabels.Len() != 2 {
		t.Error("augment labels were not passed to the denoiser")
	}
}

func TestLossEmptyBatch(t *testing.T) {
	batch := &Batch{Images: anyvec64.MakeVector(0)}
	loss := DefaultVELoss().Loss(&zeroDenoiser{}, batch, nil)
	if loss.Output().Len() != 0 {
		t.Errorf("expected empty loss but got %d components", loss.Output().Len())
	}
	if !math.IsNaN(MeanLoss(loss)) {
		t.Error("mean of empty loss should be NaN")
	}
}

func TestLossOutputMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	batch := randomBatch(anyvec64.DefaultCreator{}, 2, Shape{Channels: 1, Height: 2, Width: 2})
	DefaultVPLoss().Loss(truncatingDenoiser{}, batch, nil)
}

func TestLossProp(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	shape := Shape{Channels: 1, Height: 2, Width: 2}
	batch := randomBatch(c, 2, shape)
	precond := &EDMPrecond{
		Net:       anynet.Net{anynet.NewFC(c, shape.Size()+1, shape.Size())},
		SigmaData: 0.5,
	}
	obj := &VELoss{SigmaMin: 0.5, SigmaMax: 2}

	checker := &anydifftest.ResChecker{
		F: func() anydiff.Res {
			obj.Rand = rand.New(rand.NewSource(1337))
			return obj.Loss(precond, batch, nil)
		},
		V: precond.Net.(anynet.Net).Parameters(),
	}
	checker.FullCheck(t)
}

func TestMeanLoss(t *testing.T) {
	loss := anydiff.NewConst(anyvec32.MakeVectorData([]float32{1, 2, 3, 6}))
	if mean := MeanLoss(loss); math.Abs(mean-3) > 1e-6 {
		t.Errorf("expected 3 but got %f", mean)
	}
}

type fixedSchedule struct {
	Sigma   []float64
	Weights []float64
}

func (f *fixedSchedule) SampleSigma(c anyvec.Creator, n int) anyvec.Vector {
	return c.MakeVectorData(c.MakeNumericList(f.Sigma[:n]))
}

func (f *fixedSchedule) Weight(sigma anyvec.Vector) anyvec.Vector {
	c := sigma.Creator()
	return c.MakeVectorData(c.MakeNumericList(f.Weights[:sigma.Len()]))
}

type zeroDenoiser struct {
	AugLabels anyvec.Vector
}

func (z *zeroDenoiser) Denoise(noisy anydiff.Res, sigma, labels, augLabels anyvec.Vector,
	n int) anydiff.Res {
	z.AugLabels = augLabels
	out := noisy.Output()
	return anydiff.NewConst(out.Creator().MakeVector(out.Len()))
}

type scaleDenoiser struct {
	Scale float64
}

func (s scaleDenoiser) Denoise(noisy anydiff.Res, sigma, labels, augLabels anyvec.Vector,
	n int) anydiff.Res {
	return anydiff.Scale(noisy, noisy.Output().Creator().MakeNumeric(s.Scale))
}

type truncatingDenoiser struct{}

func (t truncatingDenoiser) Denoise(noisy anydiff.Res, sigma, labels, augLabels anyvec.Vector,
	n int) anydiff.Res {
	return anydiff.NewConst(noisy.Output().Slice(0, noisy.Output().Len()-1))
}

// shiftAugmenter adds 1 to every component.
type shiftAugmenter struct{}

func (s shiftAugmenter) Augment(images anyvec.Vector, n int) (anyvec.Vector, anyvec.Vector) {
	c := images.Creator()
	res := images.Copy()
	res.AddScalar(c.MakeNumeric(1))
	return res, c.MakeVector(n)
}

func randomBatch(c anyvec.Creator, n int, shape Shape) *Batch {
	images := c.MakeVector(n * shape.Size())
	anyvec.Rand(images, anyvec.Normal, rand.New(rand.NewSource(42)))
	return &Batch{Images: images, Num: n, Shape: shape}
}

func seedObjective(obj Objective, seed int64) {
	gen := rand.New(rand.NewSource(seed))
	switch obj := obj.(type) {
	case *VPLoss:
		obj.Rand = gen
	case *VELoss:
		obj.Rand = gen
	case *EDMLoss:
		obj.Rand = gen
	}
}

func vectorData(v anyvec.Vector) []float64 {
	switch data := v.Data().(type) {
	case []float64:
		return data
	case []float32:
		res := make([]float64, len(data))
		for i, x := range data {
			res[i] = float64(x)
		}
		return res
	default:
		panic("unsupported numeric type")
	}
}

func TestBatchSampleSize(t *testing.T) {
	b := &Batch{Images: anyvec64.MakeVector(12), Num: 3}
	if size := b.SampleSize(); size != 4 {
		t.Errorf("inferred size: expected 4 but got %d", size)
	}
	b.Shape = Shape{Channels: 1, Height: 2, Width: 2}
	if size := b.SampleSize(); size != 4 {
		t.Errorf("shaped size: expected 4 but got %d", size)
	}
}

func TestLossBatchShapeMismatch(t *testing.T) {
	for _, b := range []*Batch{
		{Images: anyvec64.MakeVector(7), Num: 2},
		{Images: anyvec64.MakeVector(8), Num: 2, Shape: Shape{Channels: 1, Height: 3, Width: 1}},
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("expected panic for %d components with shape %v", b.Images.Len(), b.Shape)
				}
			}()
			DefaultVELoss().Loss(&zeroDenoiser{}, b, nil)
		}()
	}
}
