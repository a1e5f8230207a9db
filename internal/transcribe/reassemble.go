package transcribe

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// DefaultFilterPhrases are boilerplate strings speech-to-text models
// hallucinate on silent or music-only chunks.
var DefaultFilterPhrases = []string{
	"© BF-WATCH TV 2021",
	"🙏🙏 Thank you for watching! 🙏🙏",
	"Thank you for watching!",
	"Thank you for watching.",
	"ご視聴ありがとうございました",
	"Thanks for watching!",
	"Thanks for watching",
	"Subscribe to our channel",
	"Like and subscribe",
}

var phraseRegexps sync.Map // phrase -> *regexp.Regexp

func phraseRegexp(phrase string) *regexp.Regexp {
	if re, ok := phraseRegexps.Load(phrase); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(phrase))
	phraseRegexps.Store(phrase, re)
	return re
}

// FilterBoilerplate removes every case-insensitive occurrence of each phrase
// from text. Phrase order is applied as given; matching is exact-phrase, not
// word-boundary aware. Matching runs over the original string, so runes
// whose case folding changes byte length never shift the removal offsets.
func FilterBoilerplate(text string, phrases []string) string {
	for _, phrase := range phrases {
		if phrase == "" {
			continue
		}
		text = phraseRegexp(phrase).ReplaceAllLiteralString(text, "")
	}
	return text
}

// Reassemble joins per-chunk results into the final labeled transcript.
// Results must be index-ordered (TranscribeAll's return already is). Every
// chunk emits its marker even when the filtered text is empty, so positional
// chunk identity stays auditable. Identical input always yields byte-identical
// output.
func Reassemble(results []Result, phrases []string) string {
	var b strings.Builder
	for _, res := range results {
		text := strings.TrimSpace(FilterBoilerplate(res.Text, phrases))
		fmt.Fprintf(&b, "[Chunk %d]\n%s\n\n", res.ChunkIndex+1, text)
	}
	return b.String()
}

// WriteTranscript persists the transcript atomically (temp file + rename) so
// a crashed run never leaves a partial transcript to satisfy the cache gate.
func WriteTranscript(path, transcript string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".transcript-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(transcript); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
