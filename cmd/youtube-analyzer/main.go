package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/simplex5/youtube-analyzer/internal/analyze"
	"github.com/simplex5/youtube-analyzer/internal/config"
	"github.com/simplex5/youtube-analyzer/internal/media"
	"github.com/simplex5/youtube-analyzer/internal/pipeline"
	"github.com/simplex5/youtube-analyzer/internal/prompts"
	"github.com/simplex5/youtube-analyzer/internal/storage"
	"github.com/simplex5/youtube-analyzer/internal/transcribe"
)

var version = "dev"

func main() {
	var overrides config.Overrides
	var promptFlag string

	root := &cobra.Command{
		Use:     "youtube-analyzer [url]",
		Short:   "Download, transcribe, and analyze YouTube videos",
		Args:    cobra.MaximumNArgs(1),
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			url := ""
			if len(args) == 1 {
				url = args[0]
			}
			run(overrides, url, promptFlag)
			return nil
		},
	}

	flags := root.Flags()
	flags.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file (default .env)")
	flags.StringVar(&overrides.WorkspaceRoot, "workspace-root", "", "root directory for per-video workspaces")
	flags.IntVar(&overrides.ChunkCount, "chunks", 0, "number of audio chunks")
	flags.IntVar(&overrides.Workers, "workers", 0, "concurrent transcription workers")
	flags.StringVar(&overrides.LogLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	flags.StringVar(&promptFlag, "prompt", "", "analysis prompt (skips the interactive chooser)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(overrides config.Overrides, url, prompt string) {
	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("youtube-analyzer starting")

	if err := pipeline.Preflight(); err != nil {
		log.Fatal().Err(err).Msg("preflight check failed (is yt-dlp installed?)")
	}

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stdin := bufio.NewReader(os.Stdin)
	if url == "" {
		url = readLine(stdin, "Enter YouTube URL: ")
		if url == "" {
			log.Fatal().Msg("no URL provided")
		}
	}
	if prompt == "" {
		prompt = choosePrompt(stdin)
	}

	// Optional artifact mirror
	mirrorLog := log.With().Str("component", "s3").Logger()
	mirror, err := storage.NewMirror(cfg.S3, mirrorLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up s3 mirror")
	}

	engines := []transcribe.Engine{
		transcribe.NewOpenAIEngine(cfg.OpenAIAPIKey, cfg.TranscribeModel, cfg.STTTimeout),
		transcribe.NewGoogleEngine(cfg.GoogleSpeechKey, cfg.GoogleSpeechLang, cfg.STTTimeout),
	}

	analyst := analyze.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnalysisModel, cfg.AnalysisTokens)

	opts := pipeline.Options{
		WorkspaceRoot:   cfg.WorkspaceRoot,
		ChunkCount:      cfg.ChunkCount,
		Workers:         cfg.Workers,
		PrimaryAttempts: cfg.PrimaryAttempts,
		FilterPhrases:   filterPhrases(cfg),
		Source:          media.NewDownloader(log),
		Chunker:         media.NewChunker(log),
		Engines:         engines,
		Versioner:       analyze.NewVersioner(analyst, log),
		ShowProgress:    true,
		Log:             log,
	}
	if mirror != nil {
		opts.Mirror = mirror
	}

	result, err := pipeline.New(opts).Run(ctx, url, prompt)
	if err != nil {
		log.Fatal().Err(err).Msg("run failed")
	}

	fmt.Printf("\nAnalysis saved to %s\n\n%s\n", result.Response.Path, result.Response.Text)

	if askYesNo(stdin, "Show transcript preview?") {
		preview := result.Transcript
		if runes := []rune(preview); len(runes) > 500 {
			preview = string(runes[:500]) + "..."
		}
		fmt.Printf("\n%s\n", preview)
	}

	log.Info().Int("sequence", result.Response.SequenceNumber).Msg("youtube-analyzer finished")
}

// choosePrompt offers the built-in prompts and a free-form option.
func choosePrompt(stdin *bufio.Reader) string {
	fmt.Println("Choose an analysis prompt:")
	fmt.Println("  1) default (video summary)")
	fmt.Println("  2) argument-focused breakdown:")
	fmt.Printf("\n%s\n\n", indent(prompts.Custom(), "     "))
	fmt.Println("  3) enter your own")
	for {
		switch readLine(stdin, "Selection [1]: ") {
		case "", "1":
			return prompts.Default()
		case "2":
			return prompts.Custom()
		case "3":
			if p := readLine(stdin, "Prompt: "); p != "" {
				return p
			}
		}
		fmt.Println("Please enter 1, 2, or 3.")
	}
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}

func readLine(r *bufio.Reader, msg string) string {
	fmt.Print(msg)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return ""
	}
	return strings.TrimSpace(line)
}

func askYesNo(r *bufio.Reader, msg string) bool {
	answer := readLine(r, msg+" [y/N]: ")
	return strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes")
}

// filterPhrases merges the built-in boilerplate list with any extra
// comma-separated phrases from config.
func filterPhrases(cfg *config.Config) []string {
	phrases := append([]string(nil), transcribe.DefaultFilterPhrases...)
	for _, p := range strings.Split(cfg.FilterPhrases, ",") {
		if p = strings.TrimSpace(p); p != "" {
			phrases = append(phrases, p)
		}
	}
	return phrases
}
