package inference

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/samcharles93/glimpse/internal/logits"
	"github.com/samcharles93/glimpse/internal/model"
	"github.com/samcharles93/glimpse/internal/tensor"
	"github.com/samcharles93/glimpse/internal/tokenizer"
)

// DefaultMaxNewTokens caps the number of generated tokens per call.
const DefaultMaxNewTokens = 100

// Stats describes one generation.
type Stats struct {
	PromptTokens    int           `json:"prompt_tokens"`
	TokensGenerated int           `json:"tokens_generated"`
	StopReason      StopReason    `json:"stop_reason"`
	Duration        time.Duration `json:"duration"`
	TPS             float64       `json:"tokens_per_second"`
}

// Generator runs greedy decoding against a primed text decoder.
type Generator struct {
	Decoder      model.TextDecoder
	Tokenizer    tokenizer.Tokenizer
	Special      SpecialTokens
	MaxNewTokens int
}

// Run decodes until the end-of-sequence id is selected or MaxNewTokens
// tokens have been accepted. Each accepted token's text is passed to stream
// before the next forward pass. The returned answer is the trimmed
// concatenation of every fragment. On error no answer is returned, though
// fragments already streamed stay delivered.
func (g *Generator) Run(prompt []int, embedding *tensor.Dense, stream StreamFunc) (string, Stats, error) {
	start := time.Now()
	limit := g.MaxNewTokens
	if limit <= 0 {
		limit = DefaultMaxNewTokens
	}
	stats := Stats{PromptTokens: len(prompt)}
	st := state{
		tokens: slices.Clone(prompt),
		phase:  priming{embedding: embedding},
	}

	var out strings.Builder
	for {
		var (
			perPos *tensor.Dense
			err    error
		)
		switch p := st.phase.(type) {
		case priming:
			perPos, err = safePrime(g.Decoder, []int{g.Special.BOS}, st.tokens, p.embedding)
			if err != nil {
				return "", stats, stageErr(StagePrime, st.step, ErrTensor, err)
			}
		case decoding:
			perPos, err = safeDecode(g.Decoder, st.tokens)
			if err != nil {
				return "", stats, stageErr(StageDecode, st.step, ErrTensor, err)
			}
		case stopped:
			stats.TokensGenerated = st.step
			stats.StopReason = p.reason
			stats.Duration = time.Since(start)
			if secs := stats.Duration.Seconds(); secs > 0 {
				stats.TPS = float64(st.step) / secs
			}
			return strings.TrimSpace(out.String()), stats, nil
		default:
			panic(fmt.Sprintf("inference: unknown phase %T", p))
		}

		next, err := logits.Greedy(perPos)
		if err != nil {
			return "", stats, stageErr(StageSelect, st.step, ErrTensor, err)
		}
		if next == g.Special.EOS {
			st.phase = stopped{reason: StopEOS}
			continue
		}
		frag, err := safeDetokenize(g.Tokenizer, next)
		if err != nil {
			return "", stats, stageErr(StageDetokenize, st.step, ErrTokenize, err)
		}
		out.WriteString(frag)
		st.tokens = append(st.tokens, next)
		st.step++
		if stream != nil {
			stream(frag)
		}
		if st.step >= limit {
			st.phase = stopped{reason: StopMaxTokens}
			continue
		}
		st.phase = decoding{}
	}
}

func safePrime(d model.TextDecoder, bos, prompt []int, emb *tensor.Dense) (out *tensor.Dense, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = recovered("DecodeWithImage", rec)
		}
	}()
	return d.DecodeWithImage(bos, prompt, emb)
}

func safeDecode(d model.TextDecoder, ids []int) (out *tensor.Dense, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = recovered("Decode", rec)
		}
	}()
	return d.Decode(ids)
}

func safeEncodeVision(v model.VisionEncoder, img *tensor.Dense) (out *tensor.Dense, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = recovered("EncodeVision", rec)
		}
	}()
	out, err = v.EncodeVision(img)
	if err == nil && out == nil {
		err = fmt.Errorf("vision encoder returned no embedding")
	}
	return out, err
}
