package api

import "github.com/samcharles93/glimpse/internal/inference"

// AnswerRequest is the JSON form of POST /v1/answers. Exactly one of Image
// (an encoded PNG, JPEG, GIF, BMP, TIFF or WebP file) or Pixels (raw
// interleaved RGB/RGBA with Width, Height and Channels) must be set; both
// are base64.
type AnswerRequest struct {
	Question string `json:"question"`
	Image    string `json:"image,omitempty"`
	Pixels   string `json:"pixels,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Channels int    `json:"channels,omitempty"`
	Stream   *bool  `json:"stream,omitempty"`
}

type Answer struct {
	ID        string           `json:"id"`
	Object    string           `json:"object"`
	CreatedAt int64            `json:"created_at"`
	Status    string           `json:"status"`
	Question  string           `json:"question"`
	Answer    string           `json:"answer"`
	Stats     *inference.Stats `json:"stats,omitempty"`
	Error     *ResponseError   `json:"error,omitempty"`
}

type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
}

type DeletedAnswer struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

type streamEvent struct {
	Type           string  `json:"type"`
	SequenceNumber int     `json:"sequence_number"`
	Answer         *Answer `json:"answer,omitempty"`
	Delta          string  `json:"delta,omitempty"`
}

const (
	statusInProgress = "in_progress"
	statusCompleted  = "completed"
	statusFailed     = "failed"
)
