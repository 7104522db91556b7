package main

import (
	"log"

	"github.com/unixpickle/anydiffusion"
	"github.com/unixpickle/anydiffusion/difftrain"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/mnist"
	"github.com/unixpickle/rip"
)

var Creator anyvec.Creator

func main() {
	log.Println("Setting up...")

	Creator = anyvec32.CurrentCreator()

	shape := anydiffusion.Shape{Channels: 1, Height: 28, Width: 28}
	precond := &anydiffusion.EDMPrecond{SigmaData: 0.5}
	network := anynet.Net{
		anynet.NewFC(Creator, precond.InputSize(shape.Size(), 10, 0), 512),
		anynet.Tanh,
		anynet.NewFC(Creator, 512, 512),
		anynet.Tanh,
		anynet.NewFC(Creator, 512, shape.Size()),
	}
	precond.Net = network

	loss := anydiffusion.DefaultEDMLoss()
	loss.Logger = &anydiffusion.LossPrinter{Prefix: "mean loss:"}

	t := &difftrain.Trainer{
		Net:       precond,
		Objective: loss,
		Params:    network.Parameters(),
		Shape:     shape,
	}

	var iterNum int
	s := &anysgd.SGD{
		Fetcher:     t,
		Gradienter:  t,
		Transformer: &anysgd.Adam{},
		Samples:     trainingSamples(),
		Rater:       anysgd.ConstRater(0.001),
		StatusFunc: func(b anysgd.Batch) {
			if iterNum > 0 {
				log.Printf("iter %d: cost=%v", iterNum, t.LastCost)
			}
			iterNum++
		},
		BatchSize: 64,
	}

	log.Println("Press ctrl+c once to stop...")
	if err := s.Run(rip.NewRIP().Chan()); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %d diagnostic plots.", loss.PlotCounter/anydiffusion.DefaultPlotInterval)
}

// trainingSamples scales MNIST digits to [-1, 1] and
// attaches one-hot class labels.
func trainingSamples() difftrain.SliceSampleList {
	ds := mnist.LoadTrainingDataSet()
	var res difftrain.SliceSampleList
	for _, sample := range ds.Samples {
		pixels := make([]float64, len(sample.Intensities))
		for i, x := range sample.Intensities {
			pixels[i] = x*2 - 1
		}
		label := make([]float64, 10)
		label[sample.Label] = 1
		res = append(res, &difftrain.Sample{
			Image: Creator.MakeVectorData(Creator.MakeNumericList(pixels)),
			Label: Creator.MakeVectorData(Creator.MakeNumericList(label)),
		})
	}
	return res
}
