package inference

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/samcharles93/glimpse/internal/tokenizer"
)

// FormatPrompt wraps a question in the fixed question/answer template the
// model was tuned on.
func FormatPrompt(question string) string {
	return "\n\nQuestion: " + question + "\n\nAnswer:"
}

// ValidateQuestion rejects questions that cannot be sent to the model.
func ValidateQuestion(question string) error {
	switch {
	case strings.TrimSpace(question) == "":
		return errors.New("question is empty")
	case !utf8.ValidString(question):
		return errors.New("question is not valid UTF-8")
	case strings.ContainsRune(question, 0):
		return errors.New("question contains a NUL byte")
	}
	return nil
}

// BuildPrompt formats and tokenizes question with special tokens enabled.
func BuildPrompt(tok tokenizer.Tokenizer, question string) ([]int, error) {
	if err := ValidateQuestion(question); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	ids, err := safeEncode(tok, FormatPrompt(question))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenize, err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: prompt encoded to no tokens", ErrTokenize)
	}
	return ids, nil
}

func safeEncode(tok tokenizer.Tokenizer, text string) (ids []int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = recovered("Encode", rec)
		}
	}()
	return tok.Encode(text, true)
}

func safeDetokenize(tok tokenizer.Tokenizer, id int) (s string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = recovered("Decode", rec)
		}
	}()
	return tok.Decode([]int{id}, true)
}
