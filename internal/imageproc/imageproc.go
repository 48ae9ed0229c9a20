// Package imageproc turns screenshots and raw capture buffers into the
// fixed [1,3,378,378] float tensor consumed by the vision encoder.
package imageproc

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/samcharles93/glimpse/internal/tensor"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Size is the square edge length the vision encoder was trained on.
const Size = 378

// Channels is the number of colour planes in the output tensor (R, G, B).
const Channels = 3

// ErrInvalidImage is returned when an encoded image cannot be decoded.
var ErrInvalidImage = errors.New("imageproc: invalid image")

// Preprocess resizes img to Size×Size with a triangle filter, drops any alpha
// channel and returns a [1,3,Size,Size] tensor in channel-major order with
// samples scaled into [0,1].
func Preprocess(img image.Image) (*tensor.Dense, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidImage)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: empty image %dx%d", tensor.ErrShape, b.Dx(), b.Dy())
	}

	dst := image.NewRGBA(image.Rect(0, 0, Size, Size))
	draw.BiLinear.Scale(dst, dst.Rect, opaque(img), b, draw.Src, nil)

	plane := Size * Size
	out := make([]float32, Channels*plane)
	for y := range Size {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+Size*4]
		for x := range Size {
			px := row[x*4 : x*4+4]
			i := y*Size + x
			out[i] = float32(px[0]) / 255
			out[plane+i] = float32(px[1]) / 255
			out[2*plane+i] = float32(px[2]) / 255
		}
	}
	return tensor.New([]int{1, Channels, Size, Size}, out)
}

// opaque returns an NRGBA copy of img whose colour samples are the
// unpremultiplied source values and whose alpha is forced to 255. Discarding
// alpha this way keeps the RGB planes intact instead of blending them with a
// background.
func opaque(img image.Image) *image.NRGBA {
	b := img.Bounds()
	var n *image.NRGBA
	if src, ok := img.(*image.NRGBA); ok {
		n = &image.NRGBA{Pix: append([]uint8(nil), src.Pix...), Stride: src.Stride, Rect: src.Rect}
	} else {
		n = image.NewNRGBA(b)
		draw.Draw(n, b, img, b.Min, draw.Src)
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := n.PixOffset(b.Min.X, y)
		for x := 0; x < b.Dx(); x++ {
			n.Pix[off+x*4+3] = 0xff
		}
	}
	return n
}

// FromRaw wraps a packed row-major pixel buffer produced by a screen capture.
// channels must be 3 (RGB) or 4 (RGBA); the buffer length must be exactly
// width*height*channels.
func FromRaw(width, height, channels int, buf []byte) (image.Image, error) {
	if channels != 3 && channels != 4 {
		return nil, fmt.Errorf("%w: unsupported channel count %d", tensor.ErrShape, channels)
	}
	n, err := tensor.NumElements([]int{height, width, channels})
	if err != nil {
		return nil, err
	}
	if len(buf) != n {
		return nil, fmt.Errorf("%w: buffer has %d bytes, want %dx%dx%d=%d", tensor.ErrShape, len(buf), width, height, channels, n)
	}
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	if channels == 4 {
		copy(img.Pix, buf)
		return img, nil
	}
	for i, j := 0, 0; i < len(buf); i, j = i+3, j+4 {
		img.Pix[j] = buf[i]
		img.Pix[j+1] = buf[i+1]
		img.Pix[j+2] = buf[i+2]
		img.Pix[j+3] = 0xff
	}
	return img, nil
}

// Decode reads any registered image format (png, jpeg, gif, bmp, tiff, webp).
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	return img, format, nil
}

// DecodeFile opens and decodes the image at path.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}
