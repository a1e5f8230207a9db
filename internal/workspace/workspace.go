// Package workspace maps a video title to the per-video directory tree that
// holds all cached and generated artifacts. Workspace resolution is
// deterministic: the same title always lands in the same directory, which is
// what makes the file-presence cache gates work across runs.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	audioDirName      = "base_youtube_audio"
	chunksDirName     = "extracted_audio"
	transcriptDirName = "base_transcription"
	responsesDirName  = "responses"

	audioFileName      = "audio.wav"
	transcriptFileName = "transcription.txt"

	maxTitleLen = 100
)

// Workspace is the resolved directory tree for one video identity.
type Workspace struct {
	Title string // sanitized title, also the directory name
	Root  string // <workspaceRoot>/<Title>
}

// CacheStatus reports whether a cached artifact exists and where it lives.
type CacheStatus struct {
	Present bool
	Path    string
}

// SanitizeTitle turns a video title into a safe directory name: path-illegal
// characters are removed, whitespace runs collapse to single spaces, and the
// result is capped at 100 runes.
func SanitizeTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			// dropped
		default:
			b.WriteRune(r)
		}
	}
	s := strings.Join(strings.Fields(b.String()), " ")
	runes := []rune(s)
	if len(runes) > maxTitleLen {
		s = strings.TrimSpace(string(runes[:maxTitleLen]))
	}
	// "." and ".." would resolve outside the workspace root
	if strings.Trim(s, ".") == "" {
		s = "untitled"
	}
	return s
}

// Resolve creates (idempotently) the workspace for the given title under
// root and returns it. Only directories are ever created; nothing is deleted.
func Resolve(root, title string) (*Workspace, error) {
	ws := &Workspace{
		Title: SanitizeTitle(title),
	}
	ws.Root = filepath.Join(root, ws.Title)

	for _, dir := range []string{
		ws.Root,
		ws.AudioDir(),
		ws.ChunksDir(),
		ws.TranscriptDir(),
		ws.ResponsesDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create workspace dir %s: %w", dir, err)
		}
	}
	return ws, nil
}

// AudioDir holds the single canonical downloaded audio asset.
func (ws *Workspace) AudioDir() string { return filepath.Join(ws.Root, audioDirName) }

// ChunksDir holds the planned chunk files.
func (ws *Workspace) ChunksDir() string { return filepath.Join(ws.Root, chunksDirName) }

// TranscriptDir holds the reassembled transcript.
func (ws *Workspace) TranscriptDir() string { return filepath.Join(ws.Root, transcriptDirName) }

// ResponsesDir holds the versioned analysis artifacts.
func (ws *Workspace) ResponsesDir() string { return filepath.Join(ws.Root, responsesDirName) }

// AudioPath is the canonical audio asset path.
func (ws *Workspace) AudioPath() string { return filepath.Join(ws.AudioDir(), audioFileName) }

// TranscriptPath is the reassembled transcript path.
func (ws *Workspace) TranscriptPath() string {
	return filepath.Join(ws.TranscriptDir(), transcriptFileName)
}

// ChunkPath returns the file path for the chunk with the given 0-based index.
// The fixed-width name keeps lexical order equal to index order.
func (ws *Workspace) ChunkPath(index int) string {
	return filepath.Join(ws.ChunksDir(), fmt.Sprintf("chunk_%03d.wav", index))
}

// Audio reports whether the canonical audio asset is already on disk.
// Its presence is the sole re-download gate.
func (ws *Workspace) Audio() CacheStatus { return statFile(ws.AudioPath()) }

// Transcript reports whether the reassembled transcript is already on disk.
// Its presence skips chunking and transcription entirely.
func (ws *Workspace) Transcript() CacheStatus { return statFile(ws.TranscriptPath()) }

// Chunks reports whether the complete expected chunk set exists. Every
// expected filename is checked; a partially chunked directory is never
// treated as complete.
func (ws *Workspace) Chunks(count int) CacheStatus {
	for i := 0; i < count; i++ {
		if st := statFile(ws.ChunkPath(i)); !st.Present {
			return CacheStatus{Present: false, Path: ws.ChunksDir()}
		}
	}
	return CacheStatus{Present: count > 0, Path: ws.ChunksDir()}
}

func statFile(path string) CacheStatus {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return CacheStatus{Present: false, Path: path}
	}
	return CacheStatus{Present: true, Path: path}
}
