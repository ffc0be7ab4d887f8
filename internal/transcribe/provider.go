package transcribe

import (
	"context"
	"io"
)

// Provider is the interface for speech-to-text backends.
type Provider interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (*Response, error)
	Name() string  // "asr"
	Model() string // model identifier for DB/logs
}

// Response is the common transcription result from any provider.
type Response struct {
	Text       string
	Language   string
	Confidence *float32 // nil if provider doesn't report confidence
}
