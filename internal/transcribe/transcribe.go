// Package transcribe converts episode audio into plain-text transcripts.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ErrEmptyTranscript is returned when the service answers with no text.
var ErrEmptyTranscript = errors.New("empty transcript")

// Transcriber converts an audio stream to text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// Options configures the OpenAI speech-to-text client.
type Options struct {
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// OpenAI sends audio to the OpenAI transcription endpoint and asks for a
// plain-text response. Requests are not retried.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI builds a client authenticated with apiKey.
func NewOpenAI(apiKey string, opts Options) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		cfg.BaseURL = strings.TrimRight(base, "/")
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = openai.Whisper1
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Model returns the speech-to-text model identifier.
func (o *OpenAI) Model() string {
	return o.model
}

// Transcribe uploads audio under filename and returns the transcript text.
func (o *OpenAI) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: filename,
		Reader:   audio,
		Format:   openai.AudioResponseFormatText,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", filename, err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("transcribe %s: %w", filename, ErrEmptyTranscript)
	}
	return text, nil
}
