// Package inference answers questions about images with a loaded
// vision-language model: preprocessing, prompt construction, vision
// encoding and greedy decoding with streamed output.
package inference

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/samcharles93/glimpse/internal/imageproc"
	"github.com/samcharles93/glimpse/internal/logger"
	"github.com/samcharles93/glimpse/internal/metrics"
	"github.com/samcharles93/glimpse/internal/model"
	"github.com/samcharles93/glimpse/internal/model/linear"
	"github.com/samcharles93/glimpse/internal/tokenizer"
)

// Config is everything an Engine is built from. Start from DefaultConfig;
// the zero value disables nothing but has a fallback id of 0.
type Config struct {
	ModelDir string
	// Artifacts overrides individual file paths inside ModelDir.
	Artifacts model.Artifacts
	Device    model.Device
	// Backend selects a registered back-end. Empty uses config.json's
	// "backend" field, then linear.
	Backend string

	EOSToken      string
	FallbackEOSID int
	MaxNewTokens  int

	// RejectConcurrent makes a second concurrent Ask fail with ErrBusy
	// instead of waiting for the first to finish.
	RejectConcurrent bool

	Logger  logger.Logger
	Metrics *metrics.Metrics
}

// DefaultConfig returns the standard settings.
func DefaultConfig() Config {
	return Config{
		Device:        model.DeviceAuto,
		EOSToken:      DefaultEOSToken,
		FallbackEOSID: DefaultFallbackEOSID,
		MaxNewTokens:  DefaultMaxNewTokens,
	}
}

// Info describes a loaded engine.
type Info struct {
	Artifacts model.Artifacts
	Model     model.Config
	Backend   string
	Device    model.Device
	Special   SpecialTokens
	VocabSize int
	LoadTime  time.Duration
}

// Result is a completed answer.
type Result struct {
	Answer string `json:"answer"`
	Stats  Stats  `json:"stats"`
}

// Engine owns a model and tokenizer and serializes access to them.
type Engine struct {
	model   model.Model
	tok     tokenizer.Tokenizer
	gen     Generator
	info    Info
	reject  bool
	log     logger.Logger
	metrics *metrics.Metrics

	sem    *semaphore.Weighted
	closed atomic.Bool
}

// Load builds an Engine from a model directory. Every failure wraps ErrInit
// and releases anything opened along the way.
func Load(ctx context.Context, cfg Config) (*Engine, error) {
	start := time.Now()
	log := cfg.Logger
	if log == nil {
		log = logger.FromContext(ctx)
		cfg.Logger = log
	}

	var m model.Model
	cleanup := func(err error) (*Engine, error) {
		if m != nil {
			_ = m.Close()
		}
		if errors.Is(err, ErrInit) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrInit, err)
	}

	arts, err := model.ResolveArtifacts(cfg.ModelDir, cfg.Artifacts)
	if err != nil {
		return cleanup(err)
	}
	tok, err := tokenizer.Load(arts.Tokenizer)
	if err != nil {
		return cleanup(err)
	}
	mcfg, err := model.LoadConfig(arts.Config)
	if err != nil {
		return cleanup(err)
	}
	if mcfg.ImageSize != imageproc.Size {
		return cleanup(fmt.Errorf("model image_size %d, preprocessing produces %d", mcfg.ImageSize, imageproc.Size))
	}
	special, err := ResolveSpecialTokens(tok, cfg.EOSToken, cfg.FallbackEOSID)
	if err != nil {
		return cleanup(err)
	}
	if special.Fallback {
		log.Warn("special token missing from vocabulary, using fallback id",
			"token", cmp.Or(cfg.EOSToken, DefaultEOSToken), "id", special.EOS)
	}
	if mcfg.EOSTokenID != nil && *mcfg.EOSTokenID != special.EOS {
		log.Warn("config eos_token_id disagrees with tokenizer", "config", *mcfg.EOSTokenID, "tokenizer", special.EOS)
	}
	if err := ctx.Err(); err != nil {
		return cleanup(err)
	}

	backend := cmp.Or(cfg.Backend, mcfg.Backend, linear.Name)
	dev, err := cmp.Or(cfg.Device, model.DeviceAuto).Resolve()
	if err != nil {
		return cleanup(err)
	}
	m, err = model.OpenBackend(backend, model.OpenOptions{
		Config:      mcfg,
		WeightsPath: arts.Weights,
		Device:      dev,
	})
	if err != nil {
		return cleanup(fmt.Errorf("backend %s: %w", backend, err))
	}

	e := newEngine(m, tok, special, cfg)
	e.info = Info{
		Artifacts: arts,
		Model:     *mcfg,
		Backend:   backend,
		Device:    dev,
		Special:   special,
		VocabSize: tok.VocabSize(),
		LoadTime:  time.Since(start),
	}
	log.Info("model loaded",
		"dir", arts.Dir,
		"weights", arts.Weights,
		"tokenizer", arts.Tokenizer,
		"backend", backend,
		"device", dev,
		"vocab", e.info.VocabSize,
		"eos", special.EOS,
		"duration", e.info.LoadTime,
	)
	return e, nil
}

// New wraps an already constructed model and tokenizer. Special ids are
// resolved from cfg as Load would.
func New(m model.Model, tok tokenizer.Tokenizer, cfg Config) (*Engine, error) {
	if m == nil || tok == nil {
		return nil, fmt.Errorf("%w: nil model or tokenizer", ErrInit)
	}
	special, err := ResolveSpecialTokens(tok, cfg.EOSToken, cfg.FallbackEOSID)
	if err != nil {
		return nil, err
	}
	e := newEngine(m, tok, special, cfg)
	e.info = Info{Special: special, VocabSize: tok.VocabSize()}
	return e, nil
}

func newEngine(m model.Model, tok tokenizer.Tokenizer, special SpecialTokens, cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	return &Engine{
		model: m,
		tok:   tok,
		gen: Generator{
			Decoder:      m,
			Tokenizer:    tok,
			Special:      special,
			MaxNewTokens: cmp.Or(cfg.MaxNewTokens, DefaultMaxNewTokens),
		},
		reject:  cfg.RejectConcurrent,
		log:     log,
		metrics: cfg.Metrics,
		sem:     semaphore.NewWeighted(1),
	}
}

// Info returns what the engine was loaded from.
func (e *Engine) Info() Info { return e.info }

// Tokenizer exposes the engine's tokenizer.
func (e *Engine) Tokenizer() tokenizer.Tokenizer { return e.tok }

// Ask answers question about img. stream, if non-nil, receives every
// accepted fragment before the next decode step. In queue mode ctx bounds
// only the wait for the engine; a generation that has started always runs
// to a stop condition.
func (e *Engine) Ask(ctx context.Context, img image.Image, question string, stream StreamFunc) (*Result, error) {
	if img == nil {
		return nil, &StageError{Stage: StagePreprocess, Err: fmt.Errorf("%w: %w", ErrInvalidInput, imageproc.ErrInvalidImage)}
	}
	if err := ValidateQuestion(question); err != nil {
		return nil, &StageError{Stage: StagePrompt, Err: fmt.Errorf("%w: %w", ErrInvalidInput, err)}
	}
	if err := e.acquire(ctx); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)

	e.metrics.GenerationStarted()
	start := time.Now()
	res, err := e.ask(img, question, stream)
	var tokens int
	var reason StopReason
	if res != nil {
		tokens, reason = res.Stats.TokensGenerated, res.Stats.StopReason
	}
	e.metrics.GenerationFinished(tokens, string(reason), time.Since(start), err)
	if err != nil {
		e.log.Error("generation failed", "error", err, "duration", time.Since(start))
		return nil, err
	}
	e.log.Info("generation complete",
		"tokens", res.Stats.TokensGenerated,
		"stop", res.Stats.StopReason,
		"duration", res.Stats.Duration,
		"tps", fmt.Sprintf("%.1f", res.Stats.TPS),
	)
	return res, nil
}

// AskRaw is Ask over an interleaved RGB or RGBA pixel buffer, as produced by
// a screen capture. A buffer whose length does not match the dimensions is
// rejected before the engine is touched.
func (e *Engine) AskRaw(ctx context.Context, width, height, channels int, buf []byte, question string, stream StreamFunc) (*Result, error) {
	img, err := imageproc.FromRaw(width, height, channels, buf)
	if err != nil {
		return nil, &StageError{Stage: StagePreprocess, Err: fmt.Errorf("%w: %w", ErrInvalidInput, err)}
	}
	return e.Ask(ctx, img, question, stream)
}

func (e *Engine) acquire(ctx context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if e.reject {
		if !e.sem.TryAcquire(1) {
			e.metrics.GenerationRejected()
			return ErrBusy
		}
	} else if err := e.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %w", ErrBusy, err)
	}
	if e.closed.Load() {
		e.sem.Release(1)
		return ErrClosed
	}
	return nil
}

func (e *Engine) ask(img image.Image, question string, stream StreamFunc) (*Result, error) {
	pixels, err := imageproc.Preprocess(img)
	if err != nil {
		return nil, &StageError{Stage: StagePreprocess, Err: fmt.Errorf("%w: %w", ErrInvalidInput, err)}
	}
	prompt, err := BuildPrompt(e.tok, question)
	if err != nil {
		return nil, &StageError{Stage: StagePrompt, Err: err}
	}
	e.log.Debug("prompt encoded", "tokens", len(prompt))

	embedding, err := safeEncodeVision(e.model, pixels)
	if err != nil {
		return nil, stageErr(StageEncode, 0, ErrTensor, err)
	}

	answer, stats, err := e.gen.Run(prompt, embedding, stream)
	if err != nil {
		return nil, err
	}
	return &Result{Answer: answer, Stats: stats}, nil
}

// Close waits for an in-flight generation and releases the model. Later
// calls to Ask return ErrClosed.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	if err := e.sem.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer e.sem.Release(1)
	return e.model.Close()
}
