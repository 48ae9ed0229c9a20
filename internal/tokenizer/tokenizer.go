// Package tokenizer implements the text tokenizer capability used by the
// prompt builder and the detokenizer: byte-level BPE as stored in a
// Hugging Face tokenizer.json.
package tokenizer

import "errors"

// Tokenizer is the capability consumed by the inference engine.
type Tokenizer interface {
	// Encode converts text to token ids. When addSpecial is set the
	// tokenizer's post-processing template (BOS/EOS) is applied.
	Encode(text string, addSpecial bool) ([]int, error)
	// Decode converts ids back to text. When skipSpecial is set, special
	// tokens contribute no text.
	Decode(ids []int, skipSpecial bool) (string, error)
	// TokenID looks up a vocabulary entry, including added tokens.
	TokenID(token string) (int, bool)
	VocabSize() int
}

var (
	// ErrUnsupported is returned for tokenizer.json files that use a model
	// or pre-tokenizer this package cannot reproduce.
	ErrUnsupported = errors.New("tokenizer: unsupported")
	// ErrUnknownToken is returned when encoding produces a piece with no
	// vocabulary entry and no unk token is configured.
	ErrUnknownToken = errors.New("tokenizer: unknown token")
	// ErrTokenRange is returned when decoding an id outside the vocabulary.
	ErrTokenRange = errors.New("tokenizer: token id out of range")
)
