package voice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/georgi/microclaw/pkg/logger"
)

const DefaultTimeout = 120 * time.Second

var (
	whisperBinaryNames = []string{"whisper-cpp", "whisper", "main"}

	// smallest first
	whisperModelFiles = []string{
		"ggml-base.en.bin",
		"ggml-base.bin",
		"ggml-small.en.bin",
		"ggml-small.bin",
		"ggml-medium.en.bin",
		"ggml-medium.bin",
		"ggml-large.bin",
	}
)

// DefaultBinaryNames returns the executable names searched on PATH.
func DefaultBinaryNames() []string {
	return append([]string(nil), whisperBinaryNames...)
}

// DefaultModelFiles returns model filenames in preference order.
func DefaultModelFiles() []string {
	return append([]string(nil), whisperModelFiles...)
}

// DefaultModelDirs returns the well-known model directories for a home dir.
func DefaultModelDirs(home string) []string {
	var dirs []string
	if home != "" {
		dirs = append(dirs,
			filepath.Join(home, ".local", "share", "whisper-cpp", "models"),
			filepath.Join(home, "whisper.cpp", "models"),
		)
	}
	return append(dirs,
		"/usr/local/share/whisper-cpp/models",
		"/usr/share/whisper-cpp/models",
	)
}

type Options struct {
	// BinaryPath and ModelPath take precedence over discovery when they exist.
	BinaryPath string
	ModelPath  string
	Converter  string
	Timeout    time.Duration

	BinaryNames []string
	ModelDirs   []string
	ModelFiles  []string
}

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// WhisperCpp transcribes audio by converting it to 16 kHz mono PCM with
// ffmpeg and running a local whisper.cpp binary.
type WhisperCpp struct {
	opts     Options
	lookPath func(string) (string, error)
	run      commandRunner
}

func NewWhisperCpp(opts Options) *WhisperCpp {
	if opts.Converter == "" {
		opts.Converter = "ffmpeg"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.BinaryNames == nil {
		opts.BinaryNames = DefaultBinaryNames()
	}
	if opts.ModelDirs == nil {
		home, _ := os.UserHomeDir()
		opts.ModelDirs = DefaultModelDirs(home)
	}
	if opts.ModelFiles == nil {
		opts.ModelFiles = DefaultModelFiles()
	}

	return &WhisperCpp{
		opts:     opts,
		lookPath: exec.LookPath,
		run:      runCommand,
	}
}

func (w *WhisperCpp) FindBinary() (string, bool) {
	if w.opts.BinaryPath != "" && fileExists(w.opts.BinaryPath) {
		return w.opts.BinaryPath, true
	}
	for _, name := range w.opts.BinaryNames {
		if path, err := w.lookPath(name); err == nil && path != "" {
			return path, true
		}
	}
	return "", false
}

func (w *WhisperCpp) FindModel() (string, bool) {
	if w.opts.ModelPath != "" && fileExists(w.opts.ModelPath) {
		return w.opts.ModelPath, true
	}
	for _, dir := range w.opts.ModelDirs {
		for _, name := range w.opts.ModelFiles {
			path := filepath.Join(dir, name)
			if fileExists(path) {
				return path, true
			}
		}
	}
	return "", false
}

func (w *WhisperCpp) findConverter() (string, bool) {
	path, err := w.lookPath(w.opts.Converter)
	return path, err == nil && path != ""
}

// IsAvailable reports whether binary, model and converter are all present.
func (w *WhisperCpp) IsAvailable() bool {
	_, hasBinary := w.FindBinary()
	_, hasModel := w.FindModel()
	_, hasConverter := w.findConverter()
	return hasBinary && hasModel && hasConverter
}

// Transcribe runs discovery, conversion and invocation in order. The source
// file is left alone; the intermediate wav is removed on every path.
func (w *WhisperCpp) Transcribe(ctx context.Context, audioPath string) Result {
	binary, ok := w.FindBinary()
	if !ok {
		return w.unavailable(Result{Reason: ReasonBinaryNotFound})
	}
	model, ok := w.FindModel()
	if !ok {
		return w.unavailable(Result{Reason: ReasonModelNotFound})
	}
	converter, ok := w.findConverter()
	if !ok {
		return w.unavailable(Result{Reason: ReasonConverterNotFound})
	}

	wav, err := os.CreateTemp("", "microclaw-*.wav")
	if err != nil {
		return w.unavailable(Result{Reason: ReasonConversionFailed, Err: err})
	}
	wavPath := wav.Name()
	defer os.Remove(wavPath)
	wav.Close()

	if _, err := w.run(ctx, converter,
		"-i", audioPath,
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		"-y", wavPath,
	); err != nil {
		return w.unavailable(Result{Reason: ReasonConversionFailed, Err: err})
	}

	runCtx, cancel := context.WithTimeout(ctx, w.opts.Timeout)
	defer cancel()

	out, err := w.run(runCtx, binary, "-m", model, "-f", wavPath, "--no-timestamps")
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %v: %w", w.opts.Timeout, err)
		}
		return w.unavailable(Result{Reason: ReasonInvocationFailed, Err: err})
	}

	text := strings.TrimSpace(string(out))
	if text == "" {
		return w.unavailable(Result{Reason: ReasonEmptyTranscript})
	}

	logger.InfoCF("voice", "Transcription completed", map[string]any{
		"chars": len(text),
		"model": filepath.Base(model),
	})
	return Result{Text: text}
}

func (w *WhisperCpp) unavailable(r Result) Result {
	logger.WarnCF("voice", "Transcription unavailable", map[string]any{
		"event":  "voice.whisper.unavailable",
		"reason": r.Message(),
	})
	return r
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = time.Second
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if stderr := strings.TrimSpace(string(exitErr.Stderr)); stderr != "" {
				return out, fmt.Errorf("%w: %s", err, lastLine(stderr))
			}
		}
		return out, err
	}
	return out, nil
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
