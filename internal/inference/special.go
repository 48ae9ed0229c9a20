package inference

import (
	"fmt"

	"github.com/samcharles93/glimpse/internal/tokenizer"
)

// DefaultEOSToken is the vocabulary entry used for both BOS and EOS.
const DefaultEOSToken = "<|endoftext|>"

// DefaultFallbackEOSID is the GPT-2 id of <|endoftext|>. It only applies to
// GPT-2 family vocabularies that omit the entry; set the fallback to -1 to
// make a missing entry fatal instead.
const DefaultFallbackEOSID = 50256

// SpecialTokens are resolved once per engine and never change.
type SpecialTokens struct {
	BOS int
	EOS int
	// Fallback is set when the ids came from the configured fallback
	// instead of a vocabulary lookup.
	Fallback bool
}

// ResolveSpecialTokens looks token up in the vocabulary. When it is absent
// and fallback is non-negative, fallback is used for both ids.
func ResolveSpecialTokens(tok tokenizer.Tokenizer, token string, fallback int) (SpecialTokens, error) {
	if token == "" {
		token = DefaultEOSToken
	}
	if id, ok := tok.TokenID(token); ok {
		return SpecialTokens{BOS: id, EOS: id}, nil
	}
	if fallback < 0 {
		return SpecialTokens{}, fmt.Errorf("%w: special token %q not in vocabulary and fallback disabled", ErrInit, token)
	}
	return SpecialTokens{BOS: fallback, EOS: fallback, Fallback: true}, nil
}
