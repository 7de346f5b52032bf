package transcribe

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgi/microclaw/pkg/voice"
)

type stubTranscriber struct {
	result voice.Result
	got    string
}

func (s *stubTranscriber) Transcribe(_ context.Context, path string) voice.Result {
	s.got = path
	return s.result
}

func audioFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "note.ogg")
	require.NoError(t, os.WriteFile(path, []byte("OggS"), 0o644))
	return path
}

func TestNewTranscribeCommand(t *testing.T) {
	cmd := NewTranscribeCommand()

	require.NotNil(t, cmd)
	assert.Equal(t, "transcribe", cmd.Name())
	assert.NotNil(t, cmd.RunE)
	assert.NotNil(t, cmd.Flags().Lookup("debug"))
	assert.Error(t, cmd.Args(cmd, nil))
	assert.NoError(t, cmd.Args(cmd, []string{"a.ogg"}))
}

func TestTranscribePrintsText(t *testing.T) {
	path := audioFile(t)
	stub := &stubTranscriber{result: voice.Result{Text: "hello there"}}
	var out bytes.Buffer

	require.NoError(t, transcribe(context.Background(), &out, stub, path))
	assert.Equal(t, "hello there\n", out.String())
	assert.Equal(t, path, stub.got)
}

func TestTranscribeMissingDependency(t *testing.T) {
	stub := &stubTranscriber{result: voice.Result{Reason: voice.ReasonModelNotFound}}
	var out bytes.Buffer

	err := transcribe(context.Background(), &out, stub, audioFile(t))
	require.Error(t, err)
	assert.Equal(t, string(voice.ReasonModelNotFound), err.Error())
	assert.Contains(t, out.String(), "brew install whisper-cpp")
}

func TestTranscribeFailureWithoutInstallHint(t *testing.T) {
	stub := &stubTranscriber{result: voice.Result{Reason: voice.ReasonEmptyTranscript}}
	var out bytes.Buffer

	err := transcribe(context.Background(), &out, stub, audioFile(t))
	require.Error(t, err)
	assert.Empty(t, out.String())
}

func TestTranscribeMissingFile(t *testing.T) {
	stub := &stubTranscriber{}
	err := transcribe(context.Background(), &bytes.Buffer{}, stub, filepath.Join(t.TempDir(), "nope.ogg"))
	require.Error(t, err)
	assert.Empty(t, stub.got)
}
