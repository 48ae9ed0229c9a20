// Package model defines the capabilities a vision-language back-end provides
// to the inference engine, along with the artifacts, configuration and
// device selection used to construct one.
package model

import "github.com/samcharles93/glimpse/internal/tensor"

// VisionEncoder turns a preprocessed [1,3,H,W] image tensor into an
// embedding the text decoder can attend to.
type VisionEncoder interface {
	EncodeVision(img *tensor.Dense) (*tensor.Dense, error)
}

// TextDecoder produces next-token logits, shaped [1, seq, vocab], for every
// position of its input.
type TextDecoder interface {
	// DecodeWithImage runs the image-conditioned first step over bos
	// followed by prompt.
	DecodeWithImage(bos, prompt []int, embedding *tensor.Dense) (*tensor.Dense, error)
	// Decode runs a plain step over ids. It is only valid after
	// DecodeWithImage has primed the decoder for the current image.
	Decode(ids []int) (*tensor.Dense, error)
}

// Model is a loaded back-end. Implementations hold per-image state between
// DecodeWithImage and Decode and are not safe for concurrent use.
type Model interface {
	VisionEncoder
	TextDecoder
	Close() error
}
