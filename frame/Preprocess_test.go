package frame

import (
	"image"
	"image/color"
	"testing"
)

// fillUniform returns a width x height frame of a single shade
func fillUniform(width, height int, shade uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{shade, shade, shade, 255})
		}
	}
	return img
}

func TestPreprocessGeometry(t *testing.T) {
	obs := fillUniform(160, 210, 128)

	processed := Preprocess(obs, nil, 84, 84)
	if len(processed) != 84*84 {
		t.Fatalf("processed length = %v, expected %v", len(processed), 84*84)
	}
}

func TestPreprocessRange(t *testing.T) {
	white := fillUniform(16, 16, 255)
	black := fillUniform(16, 16, 0)

	for i, v := range Preprocess(white, nil, 8, 8) {
		if v < 0.99 || v > 1.0 {
			t.Fatalf("white pixel %v = %v, expected ~1", i, v)
		}
	}

	for i, v := range Preprocess(black, nil, 8, 8) {
		if v != 0.0 {
			t.Fatalf("black pixel %v = %v, expected 0", i, v)
		}
	}
}

func TestPreprocessTakesPixelwiseMax(t *testing.T) {
	bright := fillUniform(16, 16, 200)
	dark := fillUniform(16, 16, 50)

	fromPair := Preprocess(dark, bright, 8, 8)
	fromBright := Preprocess(bright, nil, 8, 8)

	for i := range fromPair {
		if fromPair[i] != fromBright[i] {
			t.Fatalf("pixel %v: max-combined frame = %v, expected the "+
				"brighter frame's %v", i, fromPair[i], fromBright[i])
		}
	}
}

func TestPreprocessMismatchedBoundsUsesCurrentFrame(t *testing.T) {
	obs := fillUniform(16, 16, 100)
	lastObs := fillUniform(8, 8, 255)

	fromPair := Preprocess(obs, lastObs, 8, 8)
	fromObs := Preprocess(obs, nil, 8, 8)

	for i := range fromPair {
		if fromPair[i] != fromObs[i] {
			t.Fatal("mismatched previous frame should be ignored")
		}
	}
}
