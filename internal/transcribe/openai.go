package transcribe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	maxOpenAIFileSize    = 25 * 1024 * 1024 // 25MB limit
)

// OpenAIClient uses an OpenAI-compatible /audio/transcriptions endpoint.
// The same client serves the hosted API and local servers such as
// OpenVINO GenAI, which expose the endpoint without authentication.
type OpenAIClient struct {
	name       string
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAIClient creates a client registered under name. An empty baseURL
// means the hosted OpenAI API, which requires apiKey.
func NewOpenAIClient(name, baseURL, apiKey, model string) *OpenAIClient {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if model == "" {
		model = "whisper-1"
	}
	return &OpenAIClient{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

func (c *OpenAIClient) Name() string {
	return c.name
}

func (c *OpenAIClient) Transcribe(ctx context.Context, req Request) (string, error) {
	if c.apiKey == "" && c.baseURL == DefaultOpenAIBaseURL {
		return "", fmt.Errorf("OpenAI API key not configured")
	}

	info, err := os.Stat(req.AudioPath)
	if err != nil {
		return "", err
	}
	if info.Size() > maxOpenAIFileSize {
		return "", fmt.Errorf("fragment %s is %d bytes, over the %d byte upload limit", info.Name(), info.Size(), maxOpenAIFileSize)
	}

	model := c.model
	if req.Model != "" && c.baseURL != DefaultOpenAIBaseURL {
		model = req.Model
	}

	body, contentType, err := buildForm(req.AudioPath, map[string]string{
		"model":           model,
		"response_format": "json",
		"language":        languageField(req.Language),
	})
	if err != nil {
		return "", err
	}

	url := c.baseURL + "/audio/transcriptions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	slog.Debug("["+c.name+"] sending fragment", "url", url, "model", model)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%s request: %w", c.name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classify(fmt.Errorf("%s error (status %d): %s", c.name, resp.StatusCode, string(respBody)))
	}

	return parseText(respBody)
}
