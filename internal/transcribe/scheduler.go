package transcribe

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/simplex5/youtube-analyzer/internal/media"
)

// SchedulerOptions configures the chunk transcription scheduler.
type SchedulerOptions struct {
	// Engines is the ordered fallback chain. The first engine is primary and
	// gets PrimaryAttempts tries per chunk; every later engine gets one.
	Engines         []Engine
	PrimaryAttempts int
	Workers         int
	// OnResult, when set, is called once per chunk as its result is recorded.
	// Called from worker goroutines.
	OnResult func(Result)
	Log      zerolog.Logger
}

// Scheduler runs the engine chain over all chunks with a fixed-size worker
// pool and collects results into a dense, index-ordered slice.
type Scheduler struct {
	opts SchedulerOptions
	log  zerolog.Logger

	completed atomic.Int64
	failed    atomic.Int64
}

// NewScheduler creates a chunk transcription scheduler.
func NewScheduler(opts SchedulerOptions) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.PrimaryAttempts <= 0 {
		opts.PrimaryAttempts = 2
	}
	return &Scheduler{
		opts: opts,
		log:  opts.Log.With().Str("component", "scheduler").Logger(),
	}
}

// TranscribeAll transcribes every chunk and returns one Result per chunk,
// ordered by chunk index. Workers race over the chunk queue; each result slot
// is written exactly once by the worker that owns that chunk, so completion
// order never affects the returned order. A chunk whose whole engine chain
// fails is recorded as StatusFailed with empty text and never aborts its
// siblings.
func (s *Scheduler) TranscribeAll(ctx context.Context, chunks []media.Chunk) []Result {
	results := make([]Result, len(chunks))
	jobs := make(chan media.Chunk)

	var wg sync.WaitGroup
	for i := 0; i < s.opts.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			log := s.log.With().Int("worker", id).Logger()
			for chunk := range jobs {
				res := s.transcribeChunk(ctx, log, chunk)
				results[chunk.Index] = res
				if s.opts.OnResult != nil {
					s.opts.OnResult(res)
				}
			}
		}(i)
	}

	for _, chunk := range chunks {
		jobs <- chunk
	}
	close(jobs)
	wg.Wait()

	s.log.Info().
		Int64("completed", s.completed.Load()).
		Int64("failed", s.failed.Load()).
		Msg("transcription pass finished")
	return results
}

// Stats returns how many chunks succeeded and failed so far.
func (s *Scheduler) Stats() (completed, failed int64) {
	return s.completed.Load(), s.failed.Load()
}

func (s *Scheduler) transcribeChunk(ctx context.Context, log zerolog.Logger, chunk media.Chunk) Result {
	for ei, engine := range s.opts.Engines {
		attempts := 1
		if ei == 0 {
			attempts = s.opts.PrimaryAttempts
		}
		for attempt := 1; attempt <= attempts; attempt++ {
			text, err := engine.Transcribe(ctx, chunk.Path)
			if err == nil {
				s.completed.Add(1)
				log.Debug().
					Int("chunk", chunk.Index).
					Str("engine", engine.Name()).
					Int("chars", len(text)).
					Msg("chunk transcribed")
				return Result{
					ChunkIndex: chunk.Index,
					Text:       text,
					EngineUsed: engine.Name(),
					Status:     StatusOK,
				}
			}
			log.Warn().Err(err).
				Int("chunk", chunk.Index).
				Str("engine", engine.Name()).
				Int("attempt", attempt).
				Msg("chunk transcription attempt failed")
		}
	}

	s.failed.Add(1)
	log.Warn().Int("chunk", chunk.Index).Msg("all engines exhausted, recording failed chunk")
	return Result{
		ChunkIndex: chunk.Index,
		Status:     StatusFailed,
	}
}
