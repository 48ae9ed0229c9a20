package inference

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by Engine.Ask matches exactly one of
// these with errors.Is.
var (
	// ErrInit marks failures constructing an engine. Nothing is retained.
	ErrInit = errors.New("inference: initialization failed")
	// ErrInvalidInput marks requests rejected before any compute.
	ErrInvalidInput = errors.New("inference: invalid input")
	// ErrTensor marks shape, dtype or device failures inside the model.
	ErrTensor = errors.New("inference: tensor error")
	// ErrTokenize marks tokenizer encode or decode failures.
	ErrTokenize = errors.New("inference: tokenization failed")
	// ErrBusy is returned in reject mode while another call holds the engine.
	ErrBusy = errors.New("inference: engine busy")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("inference: engine closed")
)

// Stage names the pipeline step an error came from.
type Stage string

const (
	StagePreprocess Stage = "preprocess"
	StagePrompt     Stage = "prompt"
	StageEncode     Stage = "encode"
	StagePrime      Stage = "prime"
	StageDecode     Stage = "decode"
	StageSelect     Stage = "select"
	StageDetokenize Stage = "detokenize"
)

// StageError records which stage failed. Err wraps both the category
// sentinel and the underlying cause.
type StageError struct {
	Stage Stage
	Step  int
	Err   error
}

func (e *StageError) Error() string {
	if e.Stage == StagePrime || e.Stage == StageDecode || e.Stage == StageSelect || e.Stage == StageDetokenize {
		return fmt.Sprintf("%s (step %d): %v", e.Stage, e.Step, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage Stage, step int, kind, cause error) error {
	return &StageError{Stage: stage, Step: step, Err: fmt.Errorf("%w: %w", kind, cause)}
}

// recovered converts a panic value from a capability into an error.
func recovered(op string, rec any) error {
	if err, ok := rec.(error); ok {
		return fmt.Errorf("panic in %s: %w", op, err)
	}
	return fmt.Errorf("panic in %s: %v", op, rec)
}
