// Package transcript writes an opt-in JSONL record of conversations with
// size-based rotation.
package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	DefaultMaxBytes int64 = 1_000_000
	DefaultMaxFiles       = 3
)

type Options struct {
	Enabled  bool
	Path     string
	MaxBytes int64
	MaxFiles int
}

// Logger appends one JSON object per call. Rotation assumes a single
// writing process.
type Logger struct {
	opts Options
	mu   sync.Mutex
	now  func() time.Time
}

func New(opts Options) *Logger {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = DefaultMaxFiles
	}
	return &Logger{opts: opts, now: time.Now}
}

func (l *Logger) Enabled() bool {
	return l != nil && l.opts.Enabled && l.opts.Path != ""
}

// Log appends {timestamp, conversationKey, ...payload} as one line.
// It does nothing when the logger is disabled.
func (l *Logger) Log(conversationKey string, payload map[string]any) error {
	if !l.Enabled() {
		return nil
	}

	record := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		record[k] = v
	}
	record["timestamp"] = l.now().UTC().Format(time.RFC3339Nano)
	record["conversationKey"] = conversationKey

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode transcript record: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.opts.Path), 0o755); err != nil {
		return fmt.Errorf("create transcript dir: %w", err)
	}

	if info, err := os.Stat(l.opts.Path); err == nil {
		if info.Size() > 0 && info.Size()+int64(len(line)) > l.opts.MaxBytes {
			if err := l.rotate(); err != nil {
				return err
			}
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat transcript: %w", err)
	}

	f, err := os.OpenFile(l.opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

// rotate shifts path.(N-1) -> path.N ... path -> path.1, dropping path.N.
// Missing files are skipped.
func (l *Logger) rotate() error {
	path := l.opts.Path
	oldest := rotatedName(path, l.opts.MaxFiles)
	if err := os.Remove(oldest); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", oldest, err)
	}

	for i := l.opts.MaxFiles - 1; i >= 1; i-- {
		if err := renameIfExists(rotatedName(path, i), rotatedName(path, i+1)); err != nil {
			return err
		}
	}
	return renameIfExists(path, rotatedName(path, 1))
}

func rotatedName(path string, n int) string {
	return fmt.Sprintf("%s.%d", path, n)
}

func renameIfExists(from, to string) error {
	if err := os.Rename(from, to); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("rotate %s: %w", from, err)
	}
	return nil
}
