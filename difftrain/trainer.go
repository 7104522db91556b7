// Package difftrain connects diffusion objectives to the
// anysgd training loop.
package difftrain

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiffusion"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// A Trainer can construct batches, compute gradients, and
// tally up costs for diffusion models.
//
// It implements anysgd.Fetcher, anysgd.Gradienter, and
// anysgd.Coster.
type Trainer struct {
	Net       anydiffusion.Denoiser
	Objective anydiffusion.Objective
	Params    []*anydiff.Var

	// Augment, if non-nil, is passed to the Objective.
	Augment anydiffusion.Augmenter

	// Shape is the shape of every image.
	Shape anydiffusion.Shape

	// After every gradient computation, LastCost is set to
	// the cost from the batch.
	LastCost anyvec.Numeric

	// MaxGos specifies the maximum goroutines to use
	// simultaneously for fetching samples.
	// If it is 0, GOMAXPROCS is used.
	MaxGos int
}

// Fetch produces an *anydiffusion.Batch for the subset of
// samples.
// The s argument must implement SampleList.
// The batch may not be empty.
//
// Either every sample has a label, or none of them do.
func (t *Trainer) Fetch(s anysgd.SampleList) (anysgd.Batch, error) {
	if s.Len() == 0 {
		return nil, errors.New("fetch batch: empty batch")
	}

	l := s.(SampleList)
	images := make([]anyvec.Vector, l.Len())
	labels := make([]anyvec.Vector, l.Len())

	idxChan := make(chan int, l.Len())
	for i := 0; i < l.Len(); i++ {
		idxChan <- i
	}
	close(idxChan)

	maxGos := t.MaxGos
	if maxGos == 0 {
		maxGos = runtime.GOMAXPROCS(0)
	}

	wg := sync.WaitGroup{}
	errChan := make(chan error, maxGos)
	for i := 0; i < maxGos; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idxChan {
				sample, err := l.GetSample(i)
				if err != nil {
					errChan <- essentials.AddCtx("fetch batch", err)
					return
				}
				images[i] = sample.Image
				labels[i] = sample.Label
			}
		}()
	}

	wg.Wait()
	close(errChan)

	if err := <-errChan; err != nil {
		return nil, err
	}

	size := t.Shape.Size()
	for i, img := range images {
		if img.Len() != size {
			return nil, fmt.Errorf("fetch batch: sample %d has size %d (expected %d)",
				i, img.Len(), size)
		}
		if (labels[i] == nil) != (labels[0] == nil) {
			return nil, errors.New("fetch batch: inconsistent labels")
		}
	}

	batch := &anydiffusion.Batch{
		Images: images[0].Creator().Concat(images...),
		Num:    l.Len(),
		Shape:  t.Shape,
	}
	if labels[0] != nil {
		batch.Labels = labels[0].Creator().Concat(labels...)
	}
	return batch, nil
}

// TotalCost computes the cost for the
// *anydiffusion.Batch.
//
// The cost is the sum of the elementwise loss divided by
// the number of samples.
func (t *Trainer) TotalCost(batch anysgd.Batch) anydiff.Res {
	b := batch.(*anydiffusion.Batch)
	total := anydiff.Sum(t.Objective.Loss(t.Net, b, t.Augment))
	divisor := 1 / float64(b.Num)
	return anydiff.Scale(total, total.Output().Creator().MakeNumeric(divisor))
}

// Gradient computes the gradient for the batch's cost.
// It also sets t.LastCost to the numerical value of the
// total cost.
//
// The b argument must be an *anydiffusion.Batch.
func (t *Trainer) Gradient(b anysgd.Batch) anydiff.Grad {
	grad, lc := anysgd.CosterGrad(t, b, t.Params)
	t.LastCost = lc
	return grad
}
