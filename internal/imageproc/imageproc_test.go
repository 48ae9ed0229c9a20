package imageproc

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"slices"
	"testing"

	"github.com/samcharles93/glimpse/internal/tensor"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestPreprocessShapeAndRange(t *testing.T) {
	t.Parallel()
	for _, sz := range []image.Point{{1, 1}, {800, 600}, {378, 378}, {1920, 1080}, {17, 999}} {
		img := image.NewNRGBA(image.Rect(0, 0, sz.X, sz.Y))
		for i := range img.Pix {
			img.Pix[i] = uint8(i * 31)
		}
		out, err := Preprocess(img)
		if err != nil {
			t.Fatalf("%v: %v", sz, err)
		}
		if !out.HasShape(1, Channels, Size, Size) {
			t.Fatalf("%v: shape %v", sz, out.Shape())
		}
		lo, hi := out.MinMax()
		if lo < 0 || hi > 1 {
			t.Fatalf("%v: values outside [0,1]: min=%v max=%v", sz, lo, hi)
		}
	}
}

func TestPreprocessGrayScreenshot(t *testing.T) {
	t.Parallel()
	out, err := Preprocess(solid(800, 600, color.NRGBA{128, 128, 128, 255}))
	if err != nil {
		t.Fatal(err)
	}
	want := float32(128) / 255
	for i, v := range out.Data() {
		if math.Abs(float64(v-want)) > 1e-6 {
			t.Fatalf("index %d = %v, want %v", i, v, want)
		}
	}
}

func TestPreprocessChannelMajor(t *testing.T) {
	t.Parallel()
	out, err := Preprocess(solid(40, 30, color.NRGBA{255, 0, 51, 255}))
	if err != nil {
		t.Fatal(err)
	}
	plane := Size * Size
	data := out.Data()
	checks := []struct {
		name string
		want float32
		vals []float32
	}{
		{"R", 1, data[:plane]},
		{"G", 0, data[plane : 2*plane]},
		{"B", 0.2, data[2*plane:]},
	}
	for _, c := range checks {
		for i, v := range c.vals {
			if math.Abs(float64(v-c.want)) > 1e-6 {
				t.Fatalf("%s plane index %d = %v, want %v", c.name, i, v, c.want)
			}
		}
	}
}

func TestPreprocessDropsAlpha(t *testing.T) {
	t.Parallel()
	out, err := Preprocess(solid(10, 10, color.NRGBA{200, 100, 50, 0}))
	if err != nil {
		t.Fatal(err)
	}
	plane := Size * Size
	data := out.Data()
	if got, want := data[0], float32(200)/255; math.Abs(float64(got-want)) > 1e-6 {
		t.Fatalf("R = %v, want %v (alpha must not blend)", got, want)
	}
	if got, want := data[plane], float32(100)/255; math.Abs(float64(got-want)) > 1e-6 {
		t.Fatalf("G = %v, want %v", got, want)
	}
}

func TestPreprocessDeterministic(t *testing.T) {
	t.Parallel()
	img := image.NewNRGBA(image.Rect(0, 0, 123, 77))
	for i := range img.Pix {
		img.Pix[i] = uint8(i*7 + 3)
	}
	a, err := Preprocess(img)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Preprocess(img)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(a.Data(), b.Data()) {
		t.Fatal("preprocessing is not deterministic")
	}
}

func TestFromRaw(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		w, h, ch int
		n        int
		wantErr  bool
	}{
		{"rgba exact", 4, 3, 4, 48, false},
		{"rgb exact", 4, 3, 3, 36, false},
		{"short", 4, 3, 4, 47, true},
		{"long", 4, 3, 3, 37, true},
		{"two channels", 4, 3, 2, 24, true},
		{"zero width", 0, 3, 4, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromRaw(tt.w, tt.h, tt.ch, make([]byte, tt.n))
			if tt.wantErr {
				if !errors.Is(err, tensor.ErrShape) {
					t.Fatalf("expected ErrShape, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestFromRawRGBExpandsToOpaque(t *testing.T) {
	t.Parallel()
	img, err := FromRaw(2, 1, 3, []byte{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatal(err)
	}
	got := img.(*image.NRGBA).Pix
	want := []byte{1, 2, 3, 255, 4, 5, 6, 255}
	if !bytes.Equal(got, want) {
		t.Fatalf("pix = %v, want %v", got, want)
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(5, 4, color.NRGBA{1, 2, 3, 255})); err != nil {
		t.Fatal(err)
	}
	img, format, err := Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if format != "png" || img.Bounds().Dx() != 5 {
		t.Fatalf("format=%q bounds=%v", format, img.Bounds())
	}

	if _, _, err := Decode(bytes.NewReader([]byte("not an image"))); !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage, got %v", err)
	}
}
