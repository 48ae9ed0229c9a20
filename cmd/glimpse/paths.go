package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/samcharles93/glimpse/internal/model"
)

const envModelDir = "GLIMPSE_MODEL_DIR"

// resolveModelDir picks the model directory from the flag, then the
// environment. A directory without config.json is searched one level deep;
// exactly one model must be found there.
func resolveModelDir(flagValue string, stderr io.Writer) (string, error) {
	dir := strings.TrimSpace(flagValue)
	if dir == "" {
		dir = strings.TrimSpace(os.Getenv(envModelDir))
	}
	if dir == "" {
		return "", fmt.Errorf("--model is required unless %s is set", envModelDir)
	}
	dir = filepath.Clean(dir)
	st, err := os.Stat(dir)
	if err != nil {
		return "", err
	}
	if !st.IsDir() {
		return "", fmt.Errorf("model path is not a directory: %s", dir)
	}
	if isModelDir(dir) {
		return dir, nil
	}

	models, err := discoverModelDirs(dir)
	if err != nil {
		return "", err
	}
	switch len(models) {
	case 0:
		return "", fmt.Errorf("no model found in %s (expected %s)", dir, model.ConfigFile)
	case 1:
		_, _ = fmt.Fprintf(stderr, "using model %s\n", models[0])
		return models[0], nil
	default:
		names := make([]string, len(models))
		for i, m := range models {
			names[i] = filepath.Base(m)
		}
		return "", fmt.Errorf("multiple models found in %s (%s); set --model", dir, strings.Join(names, ", "))
	}
}

func isModelDir(dir string) bool {
	st, err := os.Stat(filepath.Join(dir, model.ConfigFile))
	return err == nil && st.Mode().IsRegular()
}

func discoverModelDirs(root string) ([]string, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("models directory is empty")
	}
	ents, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var models []string
	for _, e := range ents {
		if !e.IsDir() {
			continue
		}
		if p := filepath.Join(root, e.Name()); isModelDir(p) {
			models = append(models, p)
		}
	}
	slices.Sort(models)
	return models, nil
}
