package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// WhisperCppClient talks to the whisper.cpp HTTP server (whisper-server)
type WhisperCppClient struct {
	baseURL     string
	reloadModel string
	httpClient  *http.Client
}

// NewWhisperCppClient creates a client for the whisper.cpp server. When
// reloadModel is set, ResetCache asks the server to reload that model file.
func NewWhisperCppClient(baseURL, reloadModel string) *WhisperCppClient {
	return &WhisperCppClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		reloadModel: reloadModel,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

func (c *WhisperCppClient) Name() string {
	return "whisper.cpp"
}

// Transcribe sends one fragment to whisper-server and returns its text
func (c *WhisperCppClient) Transcribe(ctx context.Context, req Request) (string, error) {
	body, contentType, err := buildForm(req.AudioPath, map[string]string{
		"response_format": "json",
		"temperature":     "0.0",
		"language":        languageField(req.Language),
	})
	if err != nil {
		return "", err
	}

	url := c.baseURL + "/inference"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	slog.Debug("[whisper.cpp] sending fragment", "url", url, "audio", req.AudioPath)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("whisper server request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classify(fmt.Errorf("whisper server error (status %d): %s", resp.StatusCode, string(respBody)))
	}

	return parseText(respBody)
}

// ResetCache reloads the configured model, releasing whatever the server
// accumulated for the previous fragment. No-op without a reload model.
func (c *WhisperCppClient) ResetCache(ctx context.Context) error {
	if c.reloadModel == "" {
		return nil
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("model", c.reloadModel); err != nil {
		return err
	}
	writer.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/load", &buf)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("whisper server reload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("whisper server reload (status %d): %s", resp.StatusCode, string(b))
	}
	return nil
}
