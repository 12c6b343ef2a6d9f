// Package frame implements the preprocessing pipeline that turns raw
// environment frames into the stacked feature vectors consumed by the
// function approximator
package frame

import (
	"image"

	"golang.org/x/image/draw"
)

// Luminance weights for grayscale conversion, matching the ITU-R
// BT.709 coefficients
const (
	lumR = 0.2125
	lumG = 0.7154
	lumB = 0.0721
)

// Preprocess derives a single preprocessed frame from a raw
// observation and the observation preceding it. The two frames are
// combined by a pixelwise maximum to remove sprite flicker, converted
// to grayscale, and resized to width x height. Returned values lie in
// [0, 1], row-major.
func Preprocess(obs, lastObs image.Image, width, height int) []float64 {
	combined := maxFrame(obs, lastObs)
	resized := resize(combined, width, height)

	processed := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			gray := lumR*float64(r) + lumG*float64(g) + lumB*float64(b)
			processed[y*width+x] = gray / 0xffff
		}
	}
	return processed
}

// maxFrame returns the pixelwise maximum of two frames. If the frames
// have different bounds, obs is returned unchanged.
func maxFrame(obs, lastObs image.Image) image.Image {
	if lastObs == nil || obs.Bounds() != lastObs.Bounds() {
		return obs
	}

	bounds := obs.Bounds()
	combined := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r1, g1, b1, _ := obs.At(x, y).RGBA()
			r2, g2, b2, _ := lastObs.At(x, y).RGBA()

			i := combined.PixOffset(x, y)
			combined.Pix[i] = uint8(max32(r1, r2) >> 8)
			combined.Pix[i+1] = uint8(max32(g1, g2) >> 8)
			combined.Pix[i+2] = uint8(max32(b1, b2) >> 8)
			combined.Pix[i+3] = 0xff
		}
	}
	return combined
}

// resize scales a frame to width x height using bilinear
// interpolation
func resize(src image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
