package analyze

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/simplex5/youtube-analyzer/internal/workspace"
)

var answerPattern = regexp.MustCompile(`^answer_(\d+)\.txt$`)

// Response is one persisted analysis artifact.
type Response struct {
	SequenceNumber int
	Prompt         string
	Text           string
	Path           string
}

// Versioner appends analysis artifacts with strictly increasing sequence
// numbers. Numbers are never reused: the scan takes max+1, so deleting
// earlier answers out of band leaves a gap instead of recycling a number.
type Versioner struct {
	client Client
	log    zerolog.Logger
}

// NewVersioner creates an analysis versioner around the given model client.
func NewVersioner(client Client, log zerolog.Logger) *Versioner {
	return &Versioner{
		client: client,
		log:    log.With().Str("component", "analyze").Logger(),
	}
}

// NextSequence scans responsesDir for answer_<N>.txt files and returns the
// highest N plus one, or 1 when none match.
func NextSequence(responsesDir string) (int, error) {
	entries, err := os.ReadDir(responsesDir)
	if err != nil {
		return 0, fmt.Errorf("scan responses dir: %w", err)
	}
	max := 0
	for _, entry := range entries {
		m := answerPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max + 1, nil
}

// Append runs one analysis call and writes the result as the next answer
// file. On a failed call nothing is written.
func (v *Versioner) Append(ctx context.Context, ws *workspace.Workspace, prompt, transcript string) (*Response, error) {
	seq, err := NextSequence(ws.ResponsesDir())
	if err != nil {
		return nil, err
	}

	v.log.Info().Int("sequence", seq).Msg("requesting analysis")
	text, err := v.client.Analyze(ctx, prompt, transcript)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(ws.ResponsesDir(), fmt.Sprintf("answer_%d.txt", seq))
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}

	v.log.Info().Int("sequence", seq).Str("path", path).Msg("analysis saved")
	return &Response{
		SequenceNumber: seq,
		Prompt:         prompt,
		Text:           text,
		Path:           path,
	}, nil
}
