package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Default artifact file names inside a model directory.
const (
	ConfigFile    = "config.json"
	WeightsFile   = "model.safetensors"
	TokenizerFile = "tokenizer.json"
)

// ErrMissingArtifact is returned when a required model file does not exist.
var ErrMissingArtifact = errors.New("model: missing artifact")

// Artifacts are the three files a model is constructed from.
type Artifacts struct {
	Dir       string
	Config    string
	Weights   string
	Tokenizer string
}

// ResolveArtifacts fills unset paths from dir and checks that every file
// exists and is a regular file.
func ResolveArtifacts(dir string, overrides Artifacts) (Artifacts, error) {
	a := overrides
	a.Dir = dir
	pick := func(cur *string, name string) {
		if *cur == "" && dir != "" {
			*cur = filepath.Join(dir, name)
		}
	}
	pick(&a.Config, ConfigFile)
	pick(&a.Weights, WeightsFile)
	pick(&a.Tokenizer, TokenizerFile)

	var errs []error
	for _, f := range []struct{ kind, path string }{
		{"config", a.Config},
		{"weights", a.Weights},
		{"tokenizer", a.Tokenizer},
	} {
		if f.path == "" {
			errs = append(errs, fmt.Errorf("%w: %s path not set", ErrMissingArtifact, f.kind))
			continue
		}
		st, err := os.Stat(f.path)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrMissingArtifact, f.kind, err))
		case !st.Mode().IsRegular():
			errs = append(errs, fmt.Errorf("%w: %s: %s is not a regular file", ErrMissingArtifact, f.kind, f.path))
		}
	}
	return a, errors.Join(errs...)
}
