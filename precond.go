package anydiffusion

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec"
)

// EDMPrecond wraps a network with the input and output
// scaling from the EDM paper, turning it into a Denoiser.
//
// For a noise level s and data standard deviation d, the
// denoised output is
//
//	c_skip*x + c_out*Net([c_in*x, c_noise, labels, augLabels])
//
// where c_skip = d^2/(s^2+d^2), c_out = s*d/sqrt(s^2+d^2),
// c_in = 1/sqrt(s^2+d^2), and c_noise = log(s)/4.
//
// The network sees one row per sample, laid out as above,
// and must produce one sample-sized row per sample.
type EDMPrecond struct {
	Net       anynet.Layer
	SigmaData float64
}

// InputSize returns the size of each input row that the
// wrapped network receives.
func (e *EDMPrecond) InputSize(sampleSize, labelSize, augLabelSize int) int {
	return sampleSize + 1 + labelSize + augLabelSize
}

// Denoise applies the preconditioned network.
func (e *EDMPrecond) Denoise(noisy anydiff.Res, sigma, labels, augLabels anyvec.Vector,
	n int) anydiff.Res {
	if n == 0 {
		return noisy
	}
	c := sigma.Creator()
	total := noisy.Output().Len()
	sdSq := e.SigmaData * e.SigmaData

	varSum := sigma.Copy()
	varSum.Mul(sigma)
	varSum.AddScalar(c.MakeNumeric(sdSq))

	cSkip := varSum.Copy()
	anyvec.Pow(cSkip, c.MakeNumeric(-1))
	cSkip.Scale(c.MakeNumeric(sdSq))

	cIn := varSum.Copy()
	anyvec.Pow(cIn, c.MakeNumeric(-0.5))

	cOut := cIn.Copy()
	cOut.Mul(sigma)
	cOut.Scale(c.MakeNumeric(e.SigmaData))

	cNoise := sigma.Copy()
	anyvec.Log(cNoise)
	cNoise.Scale(c.MakeNumeric(0.25))

	return anydiff.Pool(noisy, func(x anydiff.Res) anydiff.Res {
		skip := anydiff.Mul(x, anydiff.NewConst(broadcast(cSkip, total)))
		scaledIn := anydiff.Mul(x, anydiff.NewConst(broadcast(cIn, total)))
		netIn := packRows(scaledIn, []anyvec.Vector{cNoise, labels, augLabels}, n)
		out := e.Net.Apply(netIn, n)
		if out.Output().Len() != total {
			panic("network output size mismatch")
		}
		return anydiff.Add(skip, anydiff.Mul(out, anydiff.NewConst(broadcast(cOut, total))))
	})
}

// packRows builds one row per sample by joining the
// sample's chunk of main with its chunk of each extra
// vector.
// Nil extra vectors are skipped.
func packRows(main anydiff.Res, extra []anyvec.Vector, n int) anydiff.Res {
	return anydiff.Pool(main, func(main anydiff.Res) anydiff.Res {
		mainSize := main.Output().Len() / n
		var parts []anydiff.Res
		for i := 0; i < n; i++ {
			parts = append(parts, anydiff.Slice(main, i*mainSize, (i+1)*mainSize))
			for _, v := range extra {
				if v == nil {
					continue
				}
				chunk := v.Len() / n
				parts = append(parts, anydiff.NewConst(v.Slice(i*chunk, (i+1)*chunk)))
			}
		}
		return anydiff.Concat(parts...)
	})
}
