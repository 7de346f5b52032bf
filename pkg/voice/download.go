package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const audioTempDirName = "microclaw-audio"

var downloadClient = &http.Client{Timeout: 60 * time.Second}

// AudioTempDir is where downloaded audio lands before transcription.
func AudioTempDir() string {
	return filepath.Join(os.TempDir(), audioTempDirName)
}

// DownloadToTemp fetches rawURL into AudioTempDir under a random name with
// extension ext. The caller owns the returned file and must remove it.
func DownloadToTemp(ctx context.Context, rawURL, ext string) (string, error) {
	dir := AudioTempDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create audio temp dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to download audio: %w", stripURL(err))
	}

	resp, err := downloadClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download audio: %w", stripURL(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("failed to download audio: HTTP %d", resp.StatusCode)
	}

	path := filepath.Join(dir, uuid.NewString()+ext)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("create audio file: %w", err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to download audio: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to download audio: %w", err)
	}
	return path, nil
}

// stripURL drops the request URL from transport errors; file URLs can carry
// bot tokens.
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
