// Package imageproc turns uploaded image bytes into model input tensors.
package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"
)

const (
	// Channels is the number of colour channels in every tensor.
	Channels = 3

	// MaxPixels bounds the decoded source image.
	MaxPixels = 40_000_000
)

// Tensor is an NHWC float32 tensor with a batch dimension of one.
type Tensor struct {
	Shape [4]int64
	Data  []float32
}

// Height is the number of pixel rows.
func (t *Tensor) Height() int { return int(t.Shape[1]) }

// Width is the number of pixel columns.
func (t *Tensor) Width() int { return int(t.Shape[2]) }

// DecodeError reports bytes that could not be turned into a tensor.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode image: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// Normalize decodes data, converts it to RGB, resizes it to width×height
// and scales every channel to [0,1]. The result always has shape
// (1, height, width, 3) regardless of the source size or colour model.
func Normalize(data []byte, width, height int) (*Tensor, error) {
	if width <= 0 || height <= 0 {
		return nil, &DecodeError{Err: fmt.Errorf("invalid target size %dx%d", width, height)}
	}
	if len(data) == 0 {
		return nil, &DecodeError{Err: fmt.Errorf("empty image")}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, &DecodeError{Err: fmt.Errorf("image too large: %dx%d", cfg.Width, cfg.Height)}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, &DecodeError{Err: fmt.Errorf("image has no pixels")}
	}

	resized := resize.Resize(uint(width), uint(height), toRGB(img), resize.Bilinear)

	t := &Tensor{
		Shape: [4]int64{1, int64(height), int64(width), Channels},
		Data:  make([]float32, height*width*Channels),
	}

	bounds := resized.Bounds()
	i := 0
	for y := bounds.Min.Y; y < bounds.Min.Y+height; y++ {
		for x := bounds.Min.X; x < bounds.Min.X+width; x++ {
			c := color.NRGBAModel.Convert(resized.At(x, y)).(color.NRGBA)
			t.Data[i] = float32(c.R) / 255.0
			t.Data[i+1] = float32(c.G) / 255.0
			t.Data[i+2] = float32(c.B) / 255.0
			i += Channels
		}
	}

	return t, nil
}

// toRGB flattens img onto an opaque NRGBA canvas. Colour values are taken
// un-premultiplied, so translucent pixels keep their hue instead of darkening.
func toRGB(img image.Image) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			c.A = 0xff
			out.SetNRGBA(x-b.Min.X, y-b.Min.Y, c)
		}
	}
	return out
}
