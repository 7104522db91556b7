// Package anyviz renders diagnostic images of tensors
// produced while training diffusion models.
package anyviz

import (
	"image"
	"image/color"
	"math"

	"github.com/unixpickle/anyvec"
)

// Heatmap converts one channel of a channel-major (C, H, W)
// tensor into a grayscale image.
//
// Values are rescaled so that the channel's minimum maps to
// black and its maximum maps to white.
// A constant channel is rendered mid-gray, and a channel
// that the tensor does not have is rendered black.
//
// The anyvec.NumericList type must be []float32 or
// []float64.
func Heatmap(v anyvec.Vector, height, width, channel int) *image.Gray {
	res := image.NewGray(image.Rect(0, 0, width, height))
	planeSize := width * height
	rawData := vectorFloats(v)
	if planeSize == 0 || len(rawData) < planeSize*(channel+1) {
		return res
	}
	plane := rawData[planeSize*channel : planeSize*(channel+1)]

	min, max := math.Inf(1), math.Inf(-1)
	for _, x := range plane {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		min = math.Min(min, x)
		max = math.Max(max, x)
	}

	idx := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			res.SetGray(x, y, color.Gray{Y: grayLevel(plane[idx], min, max)})
			idx++
		}
	}
	return res
}

func grayLevel(x, min, max float64) uint8 {
	if math.IsNaN(x) {
		return 0
	} else if max <= min {
		return 0x80
	}
	frac := (x - min) / (max - min)
	if frac < 0 {
		frac = 0
	} else if frac > 1 {
		frac = 1
	}
	return uint8(frac*0xff + 0.5)
}

func vectorFloats(v anyvec.Vector) []float64 {
	if v == nil {
		return nil
	}
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
		return nil
	}
}
