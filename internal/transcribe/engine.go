// Package transcribe converts planned audio chunks into an ordered, filtered
// transcript. Engines are external speech-to-text services behind a uniform
// single-attempt contract; the scheduler runs them over all chunks with
// bounded parallelism and per-chunk retry-then-fallback.
package transcribe

import "context"

// Engine is the interface for speech-to-text backends. A call is a single
// attempt: it returns text or fails with a *ServiceError. Retries and
// fallback are the scheduler's job.
type Engine interface {
	Transcribe(ctx context.Context, chunkPath string) (string, error)
	Name() string // "openai", "google"
}

// ServiceError is a failed call to a transcription service.
type ServiceError struct {
	Engine string
	Err    error
}

func (e *ServiceError) Error() string {
	return e.Engine + " transcription: " + e.Err.Error()
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Status records how a chunk's transcription ended.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Result is the immutable per-chunk transcription outcome.
type Result struct {
	ChunkIndex int
	Text       string
	EngineUsed string // name of the engine that produced Text, "" when failed
	Status     Status
}
