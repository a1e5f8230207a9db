package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"

	"github.com/simplex5/youtube-analyzer/internal/analyze"
	"github.com/simplex5/youtube-analyzer/internal/media"
	"github.com/simplex5/youtube-analyzer/internal/transcribe"
)

// fakeSource plays the yt-dlp collaborator: it "downloads" by writing a
// small real WAV so the real chunker can split it.
type fakeSource struct {
	title       string
	frames      int
	sampleRate  int
	titleCalls  int
	downloads   int
	downloadErr error
}

func (f *fakeSource) FetchTitle(ctx context.Context, url string) (string, error) {
	f.titleCalls++
	return f.title, nil
}

func (f *fakeSource) DownloadBestAudio(ctx context.Context, url, destPath string) error {
	f.downloads++
	if f.downloadErr != nil {
		return f.downloadErr
	}
	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()
	enc := wav.NewEncoder(out, f.sampleRate, 16, 1, 1)
	if err := enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: f.sampleRate},
		Data:           make([]int, f.frames),
		SourceBitDepth: 16,
	}); err != nil {
		return err
	}
	return enc.Close()
}

// echoEngine transcribes each chunk to a string naming the chunk file.
type echoEngine struct {
	name string
	mu   sync.Mutex
	n    int
	fail bool
}

func (e *echoEngine) Name() string { return e.name }

func (e *echoEngine) Transcribe(ctx context.Context, chunkPath string) (string, error) {
	e.mu.Lock()
	e.n++
	e.mu.Unlock()
	if e.fail {
		return "", &transcribe.ServiceError{Engine: e.name, Err: errors.New("down")}
	}
	return "spoken " + filepath.Base(chunkPath), nil
}

func (e *echoEngine) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.n
}

type fakeLLM struct {
	err   error
	calls int
}

func (f *fakeLLM) Analyze(ctx context.Context, prompt, transcript string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "analysis of: " + prompt, nil
}

func newTestPipeline(t *testing.T, src *fakeSource, engines []transcribe.Engine, llm analyze.Client) *Pipeline {
	t.Helper()
	return New(Options{
		WorkspaceRoot:   t.TempDir(),
		ChunkCount:      3,
		Workers:         2,
		PrimaryAttempts: 2,
		FilterPhrases:   transcribe.DefaultFilterPhrases,
		Source:          src,
		Chunker:         media.NewChunker(zerolog.Nop()),
		Engines:         engines,
		Versioner:       analyze.NewVersioner(llm, zerolog.Nop()),
		Log:             zerolog.Nop(),
	})
}

func TestRun_EndToEnd(t *testing.T) {
	src := &fakeSource{title: "Talk", frames: 300, sampleRate: 100}
	primary := &echoEngine{name: "openai"}
	p := newTestPipeline(t, src, []transcribe.Engine{primary}, &fakeLLM{})

	res, err := p.Run(context.Background(), "https://example.com/v", "summarize")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := "[Chunk 1]\nspoken chunk_000.wav\n\n" +
		"[Chunk 2]\nspoken chunk_001.wav\n\n" +
		"[Chunk 3]\nspoken chunk_002.wav\n\n"
	if res.Transcript != want {
		t.Errorf("transcript = %q, want %q", res.Transcript, want)
	}

	onDisk, err := os.ReadFile(res.Workspace.TranscriptPath())
	if err != nil {
		t.Fatal(err)
	}
	if string(onDisk) != want {
		t.Errorf("persisted transcript = %q, want %q", onDisk, want)
	}

	if res.Response == nil || res.Response.SequenceNumber != 1 {
		t.Fatalf("response = %+v, want sequence 1", res.Response)
	}
	if filepath.Base(res.Response.Path) != "answer_1.txt" {
		t.Errorf("answer path = %q, want answer_1.txt", res.Response.Path)
	}
	if res.DownloadSkipped || res.TranscriptionSkipped {
		t.Errorf("first run skipped stages: %+v", res)
	}
}

func TestRun_IdempotentCaching(t *testing.T) {
	src := &fakeSource{title: "Cached Talk", frames: 300, sampleRate: 100}
	primary := &echoEngine{name: "openai"}
	llm := &fakeLLM{}
	p := newTestPipeline(t, src, []transcribe.Engine{primary}, llm)

	first, err := p.Run(context.Background(), "https://example.com/v", "q1")
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	callsAfterFirst := primary.calls()

	second, err := p.Run(context.Background(), "https://example.com/v", "q2")
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if src.downloads != 1 {
		t.Errorf("downloads = %d, want 1 (audio presence is the re-download gate)", src.downloads)
	}
	if !second.DownloadSkipped {
		t.Error("second run did not skip download")
	}
	if !second.TranscriptionSkipped {
		t.Error("second run did not skip transcription")
	}
	if n := primary.calls(); n != callsAfterFirst {
		t.Errorf("engine calls grew from %d to %d on cached run", callsAfterFirst, n)
	}
	if second.Transcript != first.Transcript {
		t.Error("cached transcript differs from original")
	}

	// Analysis always appends a fresh artifact
	if first.Response.SequenceNumber != 1 || second.Response.SequenceNumber != 2 {
		t.Errorf("sequences = %d, %d, want 1, 2",
			first.Response.SequenceNumber, second.Response.SequenceNumber)
	}
	if llm.calls != 2 {
		t.Errorf("analysis calls = %d, want 2", llm.calls)
	}
}

func TestRun_AllChunksFailedWritesNoTranscript(t *testing.T) {
	src := &fakeSource{title: "Silent", frames: 300, sampleRate: 100}
	primary := &echoEngine{name: "openai", fail: true}
	fallback := &echoEngine{name: "google", fail: true}
	llm := &fakeLLM{}
	p := newTestPipeline(t, src, []transcribe.Engine{primary, fallback}, llm)

	_, err := p.Run(context.Background(), "https://example.com/v", "q")
	if !errors.Is(err, ErrAllChunksFailed) {
		t.Fatalf("err = %v, want ErrAllChunksFailed", err)
	}
	var se *StageError
	if !errors.As(err, &se) || se.Stage != "transcription" {
		t.Errorf("err = %v, want transcription StageError", err)
	}
	if llm.calls != 0 {
		t.Errorf("analysis called %d times after total transcription failure, want 0", llm.calls)
	}

	// The transcript gate must stay open so a future run retries
	ws := filepath.Join(p.opts.WorkspaceRoot, "Silent")
	if _, err := os.Stat(filepath.Join(ws, "base_transcription", "transcription.txt")); err == nil {
		t.Error("transcript written despite all chunks failing")
	}
}

func TestRun_PartialChunkFailureStillCompletes(t *testing.T) {
	src := &fakeSource{title: "Patchy", frames: 300, sampleRate: 100}
	// Primary fails chunk_001 deterministically; no fallback configured
	primary := &selectiveEngine{name: "openai", failBase: "chunk_001.wav"}
	p := newTestPipeline(t, src, []transcribe.Engine{primary}, &fakeLLM{})

	res, err := p.Run(context.Background(), "https://example.com/v", "q")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := "[Chunk 1]\nspoken chunk_000.wav\n\n[Chunk 2]\n\n\n[Chunk 3]\nspoken chunk_002.wav\n\n"
	if res.Transcript != want {
		t.Errorf("transcript = %q, want %q", res.Transcript, want)
	}
}

type selectiveEngine struct {
	name     string
	failBase string
}

func (s *selectiveEngine) Name() string { return s.name }

func (s *selectiveEngine) Transcribe(ctx context.Context, chunkPath string) (string, error) {
	if filepath.Base(chunkPath) == s.failBase {
		return "", &transcribe.ServiceError{Engine: s.name, Err: errors.New("bad chunk")}
	}
	return "spoken " + filepath.Base(chunkPath), nil
}

func TestRun_AnalysisFailureLeavesUpstreamCached(t *testing.T) {
	src := &fakeSource{title: "Retry Me", frames: 300, sampleRate: 100}
	primary := &echoEngine{name: "openai"}
	broken := &fakeLLM{err: &analyze.ServiceError{Err: errors.New("overloaded")}}
	p := newTestPipeline(t, src, []transcribe.Engine{primary}, broken)

	_, err := p.Run(context.Background(), "https://example.com/v", "q")
	var se *StageError
	if !errors.As(err, &se) || se.Stage != "analysis" {
		t.Fatalf("err = %v, want analysis StageError", err)
	}

	// Swap in a working model: the retry run must skip download and
	// transcription and only redo analysis.
	working := &fakeLLM{}
	p.opts.Versioner = analyze.NewVersioner(working, zerolog.Nop())

	res, err := p.Run(context.Background(), "https://example.com/v", "q")
	if err != nil {
		t.Fatalf("retry Run: %v", err)
	}
	if !res.DownloadSkipped || !res.TranscriptionSkipped {
		t.Errorf("retry re-ran upstream stages: %+v", res)
	}
	if src.downloads != 1 {
		t.Errorf("downloads = %d, want 1", src.downloads)
	}
	if res.Response.SequenceNumber != 1 {
		t.Errorf("sequence = %d, want 1 (failed call wrote nothing)", res.Response.SequenceNumber)
	}
}

// cancelingEngine transcribes its first chunk, then cancels the run context;
// remaining chunks fail as an interrupted pass would leave them.
type cancelingEngine struct {
	cancel context.CancelFunc
	once   sync.Once
}

func (c *cancelingEngine) Name() string { return "openai" }

func (c *cancelingEngine) Transcribe(ctx context.Context, chunkPath string) (string, error) {
	first := false
	c.once.Do(func() { first = true })
	if first {
		c.cancel()
		return "only chunk that made it", nil
	}
	return "", &transcribe.ServiceError{Engine: "openai", Err: context.Canceled}
}

func TestRun_InterruptedTranscriptionIsNotCached(t *testing.T) {
	src := &fakeSource{title: "Interrupted", frames: 300, sampleRate: 100}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	llm := &fakeLLM{}
	p := newTestPipeline(t, src, []transcribe.Engine{&cancelingEngine{cancel: cancel}}, llm)

	_, err := p.Run(ctx, "https://example.com/v", "q")
	var se *StageError
	if !errors.As(err, &se) || se.Stage != "transcription" {
		t.Fatalf("err = %v, want transcription StageError", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want to wrap context.Canceled", err)
	}
	if llm.calls != 0 {
		t.Errorf("analysis called %d times after interrupted run, want 0", llm.calls)
	}

	ws := filepath.Join(p.opts.WorkspaceRoot, "Interrupted")
	if _, err := os.Stat(filepath.Join(ws, "base_transcription", "transcription.txt")); err == nil {
		t.Fatal("partial transcript cached after interrupted run")
	}

	// A later run with a healthy engine must redo the whole pass
	healthy := &echoEngine{name: "openai"}
	p.opts.Engines = []transcribe.Engine{healthy}
	res, err := p.Run(context.Background(), "https://example.com/v", "q")
	if err != nil {
		t.Fatalf("retry Run: %v", err)
	}
	if res.TranscriptionSkipped {
		t.Error("retry served transcription from cache")
	}
	if healthy.calls() == 0 {
		t.Error("retry never reached the engine")
	}
	want := "[Chunk 1]\nspoken chunk_000.wav\n\n" +
		"[Chunk 2]\nspoken chunk_001.wav\n\n" +
		"[Chunk 3]\nspoken chunk_002.wav\n\n"
	if res.Transcript != want {
		t.Errorf("retry transcript = %q, want %q", res.Transcript, want)
	}
}

type recordingMirror struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordingMirror) Save(ctx context.Context, key string, data []byte, contentType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	return nil
}

func TestRun_MirrorsArtifacts(t *testing.T) {
	src := &fakeSource{title: "Mirrored", frames: 300, sampleRate: 100}
	p := newTestPipeline(t, src, []transcribe.Engine{&echoEngine{name: "openai"}}, &fakeLLM{})
	mirror := &recordingMirror{}
	p.opts.Mirror = mirror

	if _, err := p.Run(context.Background(), "https://example.com/v", "q"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := map[string]bool{
		"Mirrored/base_transcription/transcription.txt": true,
		"Mirrored/responses/answer_1.txt":               true,
	}
	if len(mirror.keys) != len(want) {
		t.Fatalf("mirrored keys = %v, want %d uploads", mirror.keys, len(want))
	}
	for _, k := range mirror.keys {
		if !want[k] {
			t.Errorf("unexpected mirror key %q", k)
		}
	}
}

func TestStageError(t *testing.T) {
	inner := errors.New("disk full")
	err := &StageError{Stage: "reassembly", Err: inner}
	if err.Error() != "reassembly: disk full" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("errors.Is does not reach wrapped error")
	}
}

func TestRun_ChunkingErrorIsFatal(t *testing.T) {
	// 2 frames cannot be split into 3 chunks
	src := &fakeSource{title: "Too Short", frames: 2, sampleRate: 100}
	p := newTestPipeline(t, src, []transcribe.Engine{&echoEngine{name: "openai"}}, &fakeLLM{})

	_, err := p.Run(context.Background(), "https://example.com/v", "q")
	var se *StageError
	if !errors.As(err, &se) || se.Stage != "chunking" {
		t.Fatalf("err = %v, want chunking StageError", err)
	}
	var ce *media.ChunkingError
	if !errors.As(err, &ce) {
		t.Errorf("err chain %v does not contain *media.ChunkingError", err)
	}
}
