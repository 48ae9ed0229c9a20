package linear

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/samcharles93/glimpse/internal/model"
	"github.com/samcharles93/glimpse/internal/safetensors"
	"github.com/samcharles93/glimpse/internal/tokenizer"
)

// EndOfText is the single special token in a scaffolded vocabulary.
const EndOfText = "<|endoftext|>"

type ScaffoldOptions struct {
	Hidden    int
	ImageSize int
	PatchSize int
	Seed      uint64
}

// Scaffold writes a complete, randomly initialised model directory: a byte
// level tokenizer with an end-of-text token, config.json and weights. The
// output is deterministic for a given seed.
func Scaffold(dir string, opts ScaffoldOptions) (model.Artifacts, error) {
	if opts.Hidden <= 0 {
		opts.Hidden = 16
	}
	if opts.ImageSize <= 0 {
		opts.ImageSize = 378
	}
	if opts.PatchSize <= 0 {
		opts.PatchSize = 14
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return model.Artifacts{}, err
	}

	tokJSON, err := tokenizer.ByteLevelJSON(EndOfText)
	if err != nil {
		return model.Artifacts{}, err
	}
	eos := 256
	cfg := model.Config{
		ModelType:  Name,
		Backend:    Name,
		VocabSize:  257,
		HiddenSize: opts.Hidden,
		ImageSize:  opts.ImageSize,
		PatchSize:  opts.PatchSize,
		EOSTokenID: &eos,
		BOSTokenID: &eos,
	}
	if err := cfg.Validate(); err != nil {
		return model.Artifacts{}, err
	}
	cfgJSON, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return model.Artifacts{}, err
	}

	a := model.Artifacts{
		Dir:       dir,
		Config:    filepath.Join(dir, model.ConfigFile),
		Weights:   filepath.Join(dir, model.WeightsFile),
		Tokenizer: filepath.Join(dir, model.TokenizerFile),
	}
	if err := os.WriteFile(a.Tokenizer, tokJSON, 0o644); err != nil {
		return model.Artifacts{}, err
	}
	if err := os.WriteFile(a.Config, cfgJSON, 0o644); err != nil {
		return model.Artifacts{}, err
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	random := func(rows, cols int, scale float32) []float32 {
		out := make([]float32, rows*cols)
		for i := range out {
			out[i] = (rng.Float32()*2 - 1) * scale
		}
		return out
	}
	h, v, pp := cfg.HiddenSize, cfg.VocabSize, 3*cfg.PatchSize*cfg.PatchSize
	f, err := os.Create(a.Weights)
	if err != nil {
		return model.Artifacts{}, err
	}
	err = safetensors.WriteF32(f, []safetensors.Float32Tensor{
		{Name: PatchProj, Shape: []int{h, pp}, Data: random(h, pp, 1/float32(pp))},
		{Name: TokenEmb, Shape: []int{v, h}, Data: random(v, h, 1)},
		{Name: LMHead, Shape: []int{v, h}, Data: random(v, h, 1)},
	})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return model.Artifacts{}, fmt.Errorf("write weights: %w", err)
	}
	return a, nil
}
