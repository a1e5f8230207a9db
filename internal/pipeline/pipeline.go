// Package pipeline wires the run together: workspace resolution, cached
// audio download, chunked transcription, reassembly, and versioned analysis.
// Each stage either completes or fails the run; completed artifacts stay on
// disk so the next run resumes from the last finished stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/simplex5/youtube-analyzer/internal/analyze"
	"github.com/simplex5/youtube-analyzer/internal/media"
	"github.com/simplex5/youtube-analyzer/internal/transcribe"
	"github.com/simplex5/youtube-analyzer/internal/workspace"
)

// ErrAllChunksFailed means no chunk produced any text. The transcript is not
// written in that case: caching an all-empty transcript would permanently
// satisfy the transcript-presence gate and block every future retry.
var ErrAllChunksFailed = errors.New("transcription failed for every chunk")

// StageError attributes a fatal run error to the stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// VideoSource fetches video metadata and materializes audio. It is an
// external collaborator; failures are fatal for the run.
type VideoSource interface {
	FetchTitle(ctx context.Context, url string) (string, error)
	DownloadBestAudio(ctx context.Context, url, destPath string) error
}

// Chunker splits the workspace's audio asset into chunk files.
type Chunker interface {
	Split(ws *workspace.Workspace, chunkCount int) ([]media.Chunk, error)
}

// Mirror uploads finished artifacts to remote storage. May be nil.
type Mirror interface {
	Save(ctx context.Context, key string, data []byte, contentType string) error
}

// Options configures one pipeline instance.
type Options struct {
	WorkspaceRoot   string
	ChunkCount      int
	Workers         int
	PrimaryAttempts int
	FilterPhrases   []string

	Source    VideoSource
	Chunker   Chunker
	Engines   []transcribe.Engine
	Versioner *analyze.Versioner
	Mirror    Mirror

	// ShowProgress renders a terminal progress bar over the chunk pass.
	ShowProgress bool

	Log zerolog.Logger
}

// Pipeline runs the download-transcribe-analyze flow for one video at a time.
type Pipeline struct {
	opts Options
	log  zerolog.Logger
}

// RunResult reports what a completed run produced and which stages were
// served from cache.
type RunResult struct {
	Workspace            *workspace.Workspace
	Transcript           string
	Response             *analyze.Response
	DownloadSkipped      bool
	TranscriptionSkipped bool
}

// New creates a pipeline.
func New(opts Options) *Pipeline {
	return &Pipeline{
		opts: opts,
		log:  opts.Log.With().Str("component", "pipeline").Logger(),
	}
}

// Run processes one video URL end to end and appends one analysis artifact.
func (p *Pipeline) Run(ctx context.Context, url, prompt string) (*RunResult, error) {
	title, err := p.opts.Source.FetchTitle(ctx, url)
	if err != nil {
		return nil, &StageError{Stage: "fetch-title", Err: err}
	}
	p.log.Info().Str("title", title).Msg("processing video")

	ws, err := workspace.Resolve(p.opts.WorkspaceRoot, title)
	if err != nil {
		return nil, &StageError{Stage: "workspace", Err: err}
	}
	result := &RunResult{Workspace: ws}

	if st := ws.Audio(); st.Present {
		p.log.Info().Str("path", st.Path).Msg("audio already downloaded, skipping")
		result.DownloadSkipped = true
	} else if err := p.opts.Source.DownloadBestAudio(ctx, url, ws.AudioPath()); err != nil {
		return nil, &StageError{Stage: "download", Err: err}
	}

	if st := ws.Transcript(); st.Present {
		p.log.Info().Str("path", st.Path).Msg("transcript already on disk, skipping transcription")
		data, err := os.ReadFile(st.Path)
		if err != nil {
			return nil, &StageError{Stage: "transcription", Err: err}
		}
		result.Transcript = string(data)
		result.TranscriptionSkipped = true
	} else {
		transcript, err := p.transcribe(ctx, ws)
		if err != nil {
			return nil, err
		}
		result.Transcript = transcript
		p.mirror(ctx, ws, ws.TranscriptPath(), []byte(transcript))
	}

	resp, err := p.opts.Versioner.Append(ctx, ws, prompt, result.Transcript)
	if err != nil {
		return nil, &StageError{Stage: "analysis", Err: err}
	}
	result.Response = resp
	p.mirror(ctx, ws, resp.Path, []byte(resp.Text))

	return result, nil
}

// transcribe runs the chunk plan and the concurrent transcription pass, then
// persists the reassembled transcript.
func (p *Pipeline) transcribe(ctx context.Context, ws *workspace.Workspace) (string, error) {
	chunks, err := p.opts.Chunker.Split(ws, p.opts.ChunkCount)
	if err != nil {
		return "", &StageError{Stage: "chunking", Err: err}
	}

	var onResult func(transcribe.Result)
	var bar *progressbar.ProgressBar
	if p.opts.ShowProgress {
		bar = progressbar.Default(int64(len(chunks)), "transcribing")
		onResult = func(transcribe.Result) { bar.Add(1) }
	}

	scheduler := transcribe.NewScheduler(transcribe.SchedulerOptions{
		Engines:         p.opts.Engines,
		PrimaryAttempts: p.opts.PrimaryAttempts,
		Workers:         p.opts.Workers,
		OnResult:        onResult,
		Log:             p.log,
	})
	results := scheduler.TranscribeAll(ctx, chunks)
	if bar != nil {
		bar.Finish()
	}

	// An interrupted pass records its unfinished chunks as failed. Writing
	// that partial transcript would satisfy the cache gate and block every
	// future retry, so the stage fails without persisting anything.
	if err := ctx.Err(); err != nil {
		return "", &StageError{Stage: "transcription", Err: err}
	}

	ok := 0
	for _, res := range results {
		if res.Status == transcribe.StatusOK {
			ok++
		}
	}
	if ok == 0 {
		return "", &StageError{Stage: "transcription", Err: ErrAllChunksFailed}
	}
	p.log.Info().Int("ok", ok).Int("failed", len(results)-ok).Msg("chunks transcribed")

	transcript := transcribe.Reassemble(results, p.opts.FilterPhrases)
	if err := transcribe.WriteTranscript(ws.TranscriptPath(), transcript); err != nil {
		return "", &StageError{Stage: "reassembly", Err: err}
	}
	return transcript, nil
}

// mirror uploads an artifact when a mirror is configured. Best-effort: a
// failed upload is logged, never fatal.
func (p *Pipeline) mirror(ctx context.Context, ws *workspace.Workspace, filePath string, data []byte) {
	if p.opts.Mirror == nil {
		return
	}
	key := path.Join(ws.Title, filepath.Base(filepath.Dir(filePath)), filepath.Base(filePath))
	if err := p.opts.Mirror.Save(ctx, key, data, "text/plain; charset=utf-8"); err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("artifact mirror upload failed")
	}
}

// Preflight verifies external tool availability before any run starts.
func Preflight() error {
	if !media.CheckYtDlp() {
		return fmt.Errorf("yt-dlp not found in PATH")
	}
	return nil
}
