package transcribe

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-audio/wav"
)

const googleSpeechEndpoint = "http://www.google.com/speech-api/v2/recognize"

// GoogleEngine calls the Google Speech API v2 full-duplex recognizer. It is
// the fallback engine: an independent failure domain from OpenAI.
type GoogleEngine struct {
	apiKey   string
	language string
	endpoint string
	client   *http.Client
}

// googleResponse is one line of the API's line-delimited JSON response.
type googleResponse struct {
	Result []struct {
		Alternative []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternative"`
		Final bool `json:"final"`
	} `json:"result"`
}

// NewGoogleEngine creates the Google speech recognition fallback engine.
func NewGoogleEngine(apiKey, language string, timeout time.Duration) *GoogleEngine {
	return &GoogleEngine{
		apiKey:   apiKey,
		language: language,
		endpoint: googleSpeechEndpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Name returns the engine name.
func (g *GoogleEngine) Name() string { return "google" }

// Transcribe posts one chunk's PCM samples to the recognizer. Single attempt.
func (g *GoogleEngine) Transcribe(ctx context.Context, chunkPath string) (string, error) {
	pcm, sampleRate, err := readL16(chunkPath)
	if err != nil {
		return "", &ServiceError{Engine: g.Name(), Err: err}
	}

	q := url.Values{}
	q.Set("client", "chromium")
	q.Set("lang", g.language)
	q.Set("key", g.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.endpoint+"?"+q.Encode(), bytes.NewReader(pcm))
	if err != nil {
		return "", &ServiceError{Engine: g.Name(), Err: err}
	}
	req.Header.Set("Content-Type", fmt.Sprintf("audio/l16; rate=%d", sampleRate))

	resp, err := g.client.Do(req)
	if err != nil {
		return "", &ServiceError{Engine: g.Name(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ServiceError{Engine: g.Name(), Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &ServiceError{Engine: g.Name(),
			Err: fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))}
	}

	text, err := parseGoogleResponse(body)
	if err != nil {
		return "", &ServiceError{Engine: g.Name(), Err: err}
	}
	return text, nil
}

// parseGoogleResponse extracts the top transcript from the line-delimited
// JSON body. The recognizer emits an empty {"result":[]} line before the
// actual result line.
func parseGoogleResponse(body []byte) (string, error) {
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var gr googleResponse
		if err := json.Unmarshal([]byte(line), &gr); err != nil {
			return "", fmt.Errorf("decode response line: %w", err)
		}
		for _, r := range gr.Result {
			if len(r.Alternative) > 0 {
				return r.Alternative[0].Transcript, nil
			}
		}
	}
	return "", fmt.Errorf("recognizer returned no transcript")
}

// readL16 decodes a WAV file into raw little-endian 16-bit PCM, the format
// the v2 recognizer accepts as audio/l16.
func readL16(path string) ([]byte, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", path, err)
	}

	out := make([]byte, 0, len(buf.Data)*2)
	var scratch [2]byte
	for _, s := range buf.Data {
		binary.LittleEndian.PutUint16(scratch[:], uint16(int16(s)))
		out = append(out, scratch[0], scratch[1])
	}
	return out, buf.Format.SampleRate, nil
}
