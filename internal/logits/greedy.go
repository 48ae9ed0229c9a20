// Package logits selects tokens from next-token score vectors.
package logits

import (
	"errors"
	"fmt"
	"math"

	"github.com/samcharles93/glimpse/internal/tensor"
)

// ErrEmpty is returned when there is nothing to select from.
var ErrEmpty = errors.New("logits: empty distribution")

// Argmax returns the index of the largest value. Ties resolve to the lowest
// index and NaN entries are never selected.
func Argmax(logits []float32) (int, error) {
	best := -1
	var bestVal float32
	for i, v := range logits {
		if math.IsNaN(float64(v)) {
			continue
		}
		if best < 0 || v > bestVal {
			best, bestVal = i, v
		}
	}
	if best < 0 {
		return 0, fmt.Errorf("%w: %d values, none finite", ErrEmpty, len(logits))
	}
	return best, nil
}

// Greedy picks the next token from per-position logits shaped [1, seq, vocab]
// using only the final position.
func Greedy(perPosition *tensor.Dense) (int, error) {
	if perPosition == nil {
		return 0, fmt.Errorf("%w: nil logits", tensor.ErrShape)
	}
	last, err := perPosition.Last()
	if err != nil {
		return 0, err
	}
	return Argmax(last)
}
