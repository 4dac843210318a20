package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// CLIEngine runs the local whisper command once per fragment.
type CLIEngine struct {
	Binary string
	Model  string
}

// NewCLIEngine returns an engine around binary (default "whisper").
func NewCLIEngine(binary, model string) *CLIEngine {
	if binary == "" {
		binary = "whisper"
	}
	if model == "" {
		model = "turbo"
	}
	return &CLIEngine{Binary: binary, Model: model}
}

func (e *CLIEngine) Name() string {
	return "whisper-cli"
}

func (e *CLIEngine) Transcribe(ctx context.Context, req Request) (string, error) {
	outDir, err := os.MkdirTemp(filepath.Dir(req.AudioPath), "whisper-out-*")
	if err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	model := e.Model
	if req.Model != "" {
		model = req.Model
	}

	args := []string{
		req.AudioPath,
		"--model", model,
		"--output_dir", outDir,
		"--output_format", "txt",
		"--verbose", "False",
	}
	if lang := languageField(req.Language); lang != "" {
		args = append(args, "--language", lang)
	}

	slog.Debug("[whisper-cli] running", "binary", e.Binary, "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, e.Binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", classify(fmt.Errorf("whisper cli: %s: %w", strings.TrimSpace(string(output)), err))
	}

	// whisper writes <audio base name>.txt
	base := filepath.Base(req.AudioPath)
	txtFile := filepath.Join(outDir, strings.TrimSuffix(base, filepath.Ext(base))+".txt")
	content, err := os.ReadFile(txtFile)
	if err != nil {
		return "", fmt.Errorf("read whisper output: %w", err)
	}

	return strings.TrimSpace(string(content)), nil
}
