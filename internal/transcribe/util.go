// Package transcribe provides speech-to-text engines for audio fragments.
//
// Supported engines:
//   - whisper.cpp: whisper-server over HTTP (default)
//   - openai: any OpenAI-compatible /audio/transcriptions endpoint
//   - whisper-cli: the local `whisper` command
package transcribe

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutOfMemory marks engine failures that look like device memory exhaustion.
var ErrOutOfMemory = errors.New("engine out of memory")

// textResponse is the JSON body returned by whisper servers for response_format=json
type textResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// buildForm writes the audio file and extra fields into a multipart body.
func buildForm(audioPath string, fields map[string]string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	audioFile, err := os.Open(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("open audio: %w", err)
	}
	defer audioFile.Close()

	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, audioFile); err != nil {
		return nil, "", fmt.Errorf("copy audio data: %w", err)
	}

	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := writer.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", k, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

// parseText extracts the transcript from a JSON or plain-text response body.
func parseText(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", nil
	}
	if trimmed[0] != '{' {
		return string(trimmed), nil
	}

	var resp textResponse
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != "" {
		return "", classify(errors.New(resp.Error))
	}
	return resp.Text, nil
}

// languageField returns the language to send, or "" for auto-detection.
func languageField(language string) string {
	if language == "" || language == "auto" {
		return ""
	}
	return language
}

// classify marks OOM-looking errors with ErrOutOfMemory.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isOOMError(err.Error()) {
		return fmt.Errorf("%w: %v", ErrOutOfMemory, err)
	}
	return err
}

// isOOMError checks if an error response indicates GPU out-of-memory
func isOOMError(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "out of memory") ||
		strings.Contains(lower, "oom") ||
		strings.Contains(lower, "memory") && strings.Contains(lower, "failed") ||
		strings.Contains(lower, "sycl") && strings.Contains(lower, "error")
}
