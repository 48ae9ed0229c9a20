package model

import (
	"cmp"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
)

// Config is the subset of config.json the engine and back-ends need.
// Multimodal checkpoints nest text and vision parameters; those are folded
// into the top level when the top level leaves them unset.
type Config struct {
	ModelType     string   `json:"model_type"`
	Architectures []string `json:"architectures"`
	Backend       string   `json:"backend"`

	VocabSize  int `json:"vocab_size"`
	HiddenSize int `json:"hidden_size"`
	ImageSize  int `json:"image_size"`
	PatchSize  int `json:"patch_size"`

	BOSTokenID *int `json:"bos_token_id"`
	EOSTokenID *int `json:"eos_token_id"`
}

type nestedConfig struct {
	ModelType  string `json:"model_type"`
	VocabSize  int    `json:"vocab_size"`
	HiddenSize int    `json:"hidden_size"`
	NEmbd      int    `json:"n_embd"`
	ImageSize  int    `json:"image_size"`
	PatchSize  int    `json:"patch_size"`
	BOSTokenID *int   `json:"bos_token_id"`
	EOSTokenID *int   `json:"eos_token_id"`
}

// LoadConfig reads and parses config.json.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := ParseConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes config.json contents.
func ParseConfig(raw []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse model config: %w", err)
	}
	var nested struct {
		Text   *nestedConfig `json:"text_config"`
		Vision *nestedConfig `json:"vision_config"`
	}
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, fmt.Errorf("parse model config: %w", err)
	}
	if t := nested.Text; t != nil {
		if cfg.VocabSize == 0 {
			cfg.VocabSize = t.VocabSize
		}
		if cfg.HiddenSize == 0 {
			cfg.HiddenSize = cmp.Or(t.HiddenSize, t.NEmbd)
		}
		if cfg.BOSTokenID == nil {
			cfg.BOSTokenID = t.BOSTokenID
		}
		if cfg.EOSTokenID == nil {
			cfg.EOSTokenID = t.EOSTokenID
		}
	}
	if v := nested.Vision; v != nil {
		if cfg.ImageSize == 0 {
			cfg.ImageSize = v.ImageSize
		}
		if cfg.PatchSize == 0 {
			cfg.PatchSize = v.PatchSize
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields every back-end relies on.
func (c *Config) Validate() error {
	var missing []string
	if c.VocabSize <= 0 {
		missing = append(missing, "vocab_size")
	}
	if c.HiddenSize <= 0 {
		missing = append(missing, "hidden_size")
	}
	if c.ImageSize <= 0 {
		missing = append(missing, "image_size")
	}
	if c.PatchSize <= 0 {
		missing = append(missing, "patch_size")
	}
	if len(missing) > 0 {
		return fmt.Errorf("model config: missing or invalid %s", strings.Join(missing, ", "))
	}
	if c.ImageSize%c.PatchSize != 0 {
		return fmt.Errorf("model config: image_size %d is not a multiple of patch_size %d", c.ImageSize, c.PatchSize)
	}
	return nil
}

// Patches returns the number of image patches per side.
func (c *Config) Patches() int { return c.ImageSize / c.PatchSize }
