package hashing

import (
	"bytes"
	"fmt"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const phashSize = 32

// PHash computes the 64-bit perceptual hash of an image buffer as 16 lowercase
// hex characters. The image is resized to 32x32 with bilinear interpolation,
// reduced to luminance, transformed with a 2D DCT-II, and the top-left 8x8
// coefficient block is compared against the mean of its 63 AC coefficients.
// A coefficient strictly greater than the mean sets its bit; the DC
// coefficient participates in the bits but not in the mean.
func PHash(data []byte) (string, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	scaled := image.NewRGBA(image.Rect(0, 0, phashSize, phashSize))
	xdraw.BiLinear.Scale(scaled, scaled.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	lum := make([][]float64, phashSize)
	for y := 0; y < phashSize; y++ {
		lum[y] = make([]float64, phashSize)
		for x := 0; x < phashSize; x++ {
			r, g, b, _ := scaled.At(x, y).RGBA()
			r8 := float64(r >> 8)
			g8 := float64(g >> 8)
			b8 := float64(b >> 8)
			lum[y][x] = (299*r8 + 587*g8 + 114*b8) / 1000
		}
	}

	coeffs := dct2D(lum)

	var block [64]float64
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			block[r*8+c] = coeffs[r][c]
		}
	}

	var acSum float64
	for i := 1; i < 64; i++ {
		acSum += block[i]
	}
	acMean := acSum / 63

	var bits uint64
	for i := 0; i < 64; i++ {
		if block[i] > acMean {
			bits |= 1 << (63 - i)
		}
	}
	return fmt.Sprintf("%016x", bits), nil
}
