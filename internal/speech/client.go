package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultAPIURL = "https://api.elevenlabs.io/v1"

// Config holds the configuration for the synthesis client.
//
// Environment Variables:
// - TTS_API_KEY: API key for the voice provider (optional; absence means
//   synthesis is unavailable and jobs complete with placeholder audio)
// - TTS_API_URL: API endpoint URL (default: https://api.elevenlabs.io/v1)
// - TTS_VOICE_ID: fixed voice ID; empty means pick by detected language
// - TTS_TIMEOUT: request timeout in seconds (default: 60)
type Config struct {
	APIKey  string `json:"api_key"`
	APIURL  string `json:"api_url"`
	VoiceID string `json:"voice_id"`
	Timeout int    `json:"timeout"`
}

// Client talks to an ElevenLabs-style text-to-speech API.
type Client struct {
	config     Config
	httpClient *http.Client
}

var _ Synthesizer = (*Client)(nil)

// NewClient returns (nil, ErrUnavailable) when no credential is configured,
// so the caller can apply the placeholder-audio policy instead of failing.
func NewClient(config Config) (*Client, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, ErrUnavailable
	}
	if config.APIURL == "" {
		config.APIURL = defaultAPIURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 60
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.Timeout) * time.Second,
		},
	}, nil
}

type synthesisRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// Synthesize converts text into MP3 bytes. The voice is the configured
// one, or chosen from the detected narrative language.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	voice := c.config.VoiceID
	if voice == "" {
		voice = VoiceForText(text)
	}

	payload, err := json.Marshal(synthesisRequest{
		Text:    text,
		ModelID: "eleven_multilingual_v2",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s", c.config.APIURL, voice)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("xi-api-key", c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if os.IsTimeout(err) {
			return nil, fmt.Errorf("request timed out: %w", err)
		}
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("synthesis request failed with status %d: %s", resp.StatusCode, string(body))
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("synthesis returned no audio")
	}
	return body, nil
}
