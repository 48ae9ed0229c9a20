package inference

import "github.com/samcharles93/glimpse/internal/tensor"

// StopReason records why generation ended.
type StopReason string

const (
	StopEOS       StopReason = "eos"
	StopMaxTokens StopReason = "max_tokens"
)

// phase is the generation state. Exactly one of priming, decoding or
// stopped is active; Generator.Run switches over it exhaustively.
type phase interface {
	isPhase()
}

// priming is the first step. It is the only phase that carries the image
// embedding, so it cannot be reused once left.
type priming struct {
	embedding *tensor.Dense
}

// decoding feeds only the running token ids.
type decoding struct{}

type stopped struct {
	reason StopReason
}

func (priming) isPhase()  {}
func (decoding) isPhase() {}
func (stopped) isPhase()  {}

// state lives for one Run call.
type state struct {
	tokens []int
	step   int
	phase  phase
}
