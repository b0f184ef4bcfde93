package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/scribelabs/scribe-core/internal/config"
)

// Client talks to a LibreTranslate-compatible translation endpoint. Used to
// enrich finalized segments off the recognition path; failures are reported
// to the caller and never affect transcription.
type Client struct {
	endpoint   string
	sourceLang string
	targetLang string
	httpClient *http.Client
}

type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
}

type translateResponse struct {
	TranslatedText string `json:"translatedText"`
}

func New(cfg config.TranslateConfig) *Client {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		sourceLang: cfg.SourceLang,
		targetLang: cfg.TargetLang,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) SourceLang() string { return c.sourceLang }
func (c *Client) TargetLang() string { return c.targetLang }

// Translate returns the translated text for one utterance.
func (c *Client) Translate(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(translateRequest{Q: text, Source: c.sourceLang, Target: c.targetLang})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("translate endpoint returned status %s", resp.Status)
	}

	var body translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode translate response: %w", err)
	}
	if body.TranslatedText == "" {
		return "", fmt.Errorf("translate endpoint returned no text")
	}
	return body.TranslatedText, nil
}
