package media

import (
	"fmt"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"

	"github.com/simplex5/youtube-analyzer/internal/workspace"
)

// ChunkingError reports an unusable audio asset or chunk configuration.
// It is fatal for the run.
type ChunkingError struct {
	Reason string
	Err    error
}

func (e *ChunkingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chunking: %s: %v", e.Reason, e.Err)
	}
	return "chunking: " + e.Reason
}

func (e *ChunkingError) Unwrap() error { return e.Err }

// Chunk is one contiguous slice of the source audio, written to its own file.
type Chunk struct {
	Index int
	Path  string
	Start time.Duration
	End   time.Duration
}

// Chunker splits a WAV asset into a fixed number of contiguous chunks.
type Chunker struct {
	log zerolog.Logger
}

// NewChunker creates a chunk planner.
func NewChunker(log zerolog.Logger) *Chunker {
	return &Chunker{log: log.With().Str("component", "chunker").Logger()}
}

// planFrames partitions totalFrames into chunkCount contiguous [start, end)
// frame ranges. Every chunk gets totalFrames/chunkCount frames; the last
// chunk extends to totalFrames and absorbs the division remainder.
func planFrames(totalFrames, chunkCount int) [][2]int {
	per := totalFrames / chunkCount
	ranges := make([][2]int, chunkCount)
	for i := 0; i < chunkCount; i++ {
		start := i * per
		end := start + per
		if i == chunkCount-1 {
			end = totalFrames
		}
		ranges[i] = [2]int{start, end}
	}
	return ranges
}

func frameOffset(frame, sampleRate int) time.Duration {
	return time.Duration(frame) * time.Second / time.Duration(sampleRate)
}

// Split partitions the workspace's audio asset into chunkCount chunk files
// under the chunks directory. If the complete expected chunk set already
// exists the files are reused and nothing is rewritten. The returned slice is
// dense and ordered by index.
func (c *Chunker) Split(ws *workspace.Workspace, chunkCount int) ([]Chunk, error) {
	if chunkCount <= 0 {
		return nil, &ChunkingError{Reason: fmt.Sprintf("chunk count must be positive, got %d", chunkCount)}
	}

	f, err := os.Open(ws.AudioPath())
	if err != nil {
		return nil, &ChunkingError{Reason: "open audio asset", Err: err}
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, &ChunkingError{Reason: fmt.Sprintf("%s is not a valid WAV file", ws.AudioPath())}
	}

	if st := ws.Chunks(chunkCount); st.Present {
		c.log.Info().Int("chunks", chunkCount).Str("dir", st.Path).Msg("chunk set already on disk, reusing")
		return c.replan(dec, ws, chunkCount)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, &ChunkingError{Reason: "decode audio asset", Err: err}
	}

	channels := buf.Format.NumChannels
	rate := buf.Format.SampleRate
	totalFrames := len(buf.Data) / channels
	if totalFrames < chunkCount {
		return nil, &ChunkingError{Reason: fmt.Sprintf("audio has %d frames, fewer than %d chunks", totalFrames, chunkCount)}
	}

	c.log.Info().
		Int("chunks", chunkCount).
		Dur("duration", frameOffset(totalFrames, rate)).
		Msg("splitting audio")

	chunks := make([]Chunk, chunkCount)
	for i, r := range planFrames(totalFrames, chunkCount) {
		start, end := r[0], r[1]
		part := &audio.IntBuffer{
			Format:         buf.Format,
			Data:           buf.Data[start*channels : end*channels],
			SourceBitDepth: buf.SourceBitDepth,
		}
		path := ws.ChunkPath(i)
		if err := writeWav(path, part, int(dec.BitDepth)); err != nil {
			return nil, fmt.Errorf("write chunk %d: %w", i, err)
		}
		chunks[i] = Chunk{
			Index: i,
			Path:  path,
			Start: frameOffset(start, rate),
			End:   frameOffset(end, rate),
		}
	}
	return chunks, nil
}

// replan rebuilds chunk metadata for an existing chunk set from the asset's
// header alone, without re-reading samples or rewriting files.
func (c *Chunker) replan(dec *wav.Decoder, ws *workspace.Workspace, chunkCount int) ([]Chunk, error) {
	dur, err := dec.Duration()
	if err != nil {
		return nil, &ChunkingError{Reason: "determine audio duration", Err: err}
	}
	rate := int(dec.SampleRate)
	totalFrames := int(int64(dur) * int64(rate) / int64(time.Second))
	if totalFrames < chunkCount {
		return nil, &ChunkingError{Reason: fmt.Sprintf("audio has %d frames, fewer than %d chunks", totalFrames, chunkCount)}
	}

	chunks := make([]Chunk, chunkCount)
	for i, r := range planFrames(totalFrames, chunkCount) {
		chunks[i] = Chunk{
			Index: i,
			Path:  ws.ChunkPath(i),
			Start: frameOffset(r[0], rate),
			End:   frameOffset(r[1], rate),
		}
	}
	return chunks, nil
}

func writeWav(path string, buf *audio.IntBuffer, bitDepth int) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(out, buf.Format.SampleRate, bitDepth, buf.Format.NumChannels, 1)
	if err := enc.Write(buf); err != nil {
		enc.Close()
		out.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
