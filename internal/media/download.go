// Package media covers the two audio-handling stages of the pipeline:
// materializing a video's audio track on disk via yt-dlp, and splitting the
// resulting WAV into a fixed number of contiguous chunks for transcription.
package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Downloader fetches video metadata and audio through yt-dlp.
type Downloader struct {
	runner commandRunner
	log    zerolog.Logger
}

// NewDownloader creates a yt-dlp backed downloader.
func NewDownloader(log zerolog.Logger) *Downloader {
	return &Downloader{
		runner: &execRunner{},
		log:    log.With().Str("component", "download").Logger(),
	}
}

// CheckYtDlp reports whether the yt-dlp binary is available on PATH.
func CheckYtDlp() bool {
	_, err := exec.LookPath("yt-dlp")
	return err == nil
}

// FetchTitle returns the video title for a URL without downloading anything.
func (d *Downloader) FetchTitle(ctx context.Context, url string) (string, error) {
	res, err := d.runner.Run(ctx, "yt-dlp", "--no-warnings", "--print", "title", "--skip-download", url)
	if err != nil {
		return "", fmt.Errorf("yt-dlp title fetch: %w (stderr: %s)", err, strings.TrimSpace(res.Stderr))
	}
	title := strings.TrimSpace(res.Stdout)
	if title == "" {
		return "", fmt.Errorf("yt-dlp returned empty title for %s", url)
	}
	return title, nil
}

// DownloadBestAudio downloads the best audio track for a URL and extracts it
// to a single WAV file at destPath.
func (d *Downloader) DownloadBestAudio(ctx context.Context, url, destPath string) error {
	// yt-dlp names the extracted file itself; hand it the destination with
	// the extension templated so the final file lands exactly at destPath.
	template := strings.TrimSuffix(destPath, ".wav") + ".%(ext)s"

	d.log.Info().Str("url", url).Msg("downloading audio")
	res, err := d.runner.Run(ctx, "yt-dlp",
		"-f", "bestaudio/best",
		"--extract-audio",
		"--audio-format", "wav",
		"--audio-quality", "192",
		"--no-playlist",
		"--no-warnings",
		"-o", template,
		url,
	)
	if err != nil {
		return fmt.Errorf("yt-dlp download: %w (stderr: %s)", err, strings.TrimSpace(res.Stderr))
	}

	if _, err := os.Stat(destPath); err != nil {
		return fmt.Errorf("downloaded audio not found at %s: %w", destPath, err)
	}
	d.log.Info().Str("path", destPath).Msg("audio downloaded")
	return nil
}
