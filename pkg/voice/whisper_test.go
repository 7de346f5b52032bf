package voice

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeFFmpeg = `#!/bin/sh
for arg; do out="$arg"; done
cp "$2" "$out"
`

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

// fakeToolchain puts ffmpeg and whisper-cpp scripts first on PATH and
// returns a pipeline wired to a temp model file. The whisper script records
// the wav path it was given in the returned marker file.
func fakeToolchain(t *testing.T, whisperBody string) (*WhisperCpp, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binaries are shell scripts")
	}

	bin := t.TempDir()
	writeScript(t, bin, "ffmpeg", fakeFFmpeg)
	writeScript(t, bin, "whisper-cpp", whisperBody)
	t.Setenv("PATH", bin+string(os.PathListSeparator)+"/usr/bin:/bin")

	marker := filepath.Join(t.TempDir(), "wav-path")
	t.Setenv("FAKE_WHISPER_MARKER", marker)

	model := filepath.Join(t.TempDir(), "ggml-base.en.bin")
	require.NoError(t, os.WriteFile(model, []byte("model"), 0o644))

	return NewWhisperCpp(Options{ModelPath: model, ModelDirs: []string{}}), marker
}

func sourceAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voice.oga")
	require.NoError(t, os.WriteFile(path, []byte("OggS"), 0o644))
	return path
}

func recordedWav(t *testing.T, marker string) string {
	t.Helper()
	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	return strings.TrimSpace(string(data))
}

func TestTranscribe_Success(t *testing.T) {
	w, marker := fakeToolchain(t, `#!/bin/sh
echo "$4" > "$FAKE_WHISPER_MARKER"
echo "  hello world  "
`)
	audio := sourceAudio(t)

	result := w.Transcribe(context.Background(), audio)
	require.True(t, result.OK(), result.Message())
	assert.Equal(t, "hello world", result.Text)

	wav := recordedWav(t, marker)
	assert.True(t, strings.HasSuffix(wav, ".wav"))
	assert.NoFileExists(t, wav, "intermediate wav must be removed")
	assert.FileExists(t, audio, "source audio is not owned by the pipeline")
}

func TestTranscribe_InvocationArgs(t *testing.T) {
	w, marker := fakeToolchain(t, `#!/bin/sh
echo "$@" > "$FAKE_WHISPER_MARKER"
echo ok
`)
	require.True(t, w.Transcribe(context.Background(), sourceAudio(t)).OK())

	args := strings.Fields(recordedWav(t, marker))
	require.Len(t, args, 5)
	assert.Equal(t, "-m", args[0])
	assert.Equal(t, w.opts.ModelPath, args[1])
	assert.Equal(t, "-f", args[2])
	assert.Equal(t, "--no-timestamps", args[4])
}

func TestTranscribe_EmptyTranscript(t *testing.T) {
	w, marker := fakeToolchain(t, `#!/bin/sh
echo "$4" > "$FAKE_WHISPER_MARKER"
echo "   "
`)
	result := w.Transcribe(context.Background(), sourceAudio(t))
	assert.Equal(t, ReasonEmptyTranscript, result.Reason)
	assert.Equal(t, "whisper-cpp produced empty transcription", result.Message())
	assert.NoFileExists(t, recordedWav(t, marker))
}

func TestTranscribe_InvocationFailure(t *testing.T) {
	w, marker := fakeToolchain(t, `#!/bin/sh
echo "$4" > "$FAKE_WHISPER_MARKER"
echo "failed to load model" 1>&2
exit 2
`)
	result := w.Transcribe(context.Background(), sourceAudio(t))
	assert.Equal(t, ReasonInvocationFailed, result.Reason)
	assert.True(t, strings.HasPrefix(result.Message(), "whisper-cpp transcription failed: "))
	assert.Contains(t, result.Message(), "failed to load model")
	assert.NoFileExists(t, recordedWav(t, marker))
}

func TestTranscribe_Timeout(t *testing.T) {
	w, marker := fakeToolchain(t, `#!/bin/sh
echo "$4" > "$FAKE_WHISPER_MARKER"
exec sleep 10
`)
	w.opts.Timeout = 200 * time.Millisecond

	start := time.Now()
	result := w.Transcribe(context.Background(), sourceAudio(t))
	assert.Equal(t, ReasonInvocationFailed, result.Reason)
	assert.Contains(t, result.Message(), "timed out")
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.NoFileExists(t, recordedWav(t, marker))
}

func TestTranscribe_ConversionFailure(t *testing.T) {
	w, _ := fakeToolchain(t, "#!/bin/sh\necho never\n")
	bin := filepath.SplitList(os.Getenv("PATH"))[0]
	writeScript(t, bin, "ffmpeg", "#!/bin/sh\nexit 1\n")

	before, _ := filepath.Glob(filepath.Join(os.TempDir(), "microclaw-*.wav"))
	result := w.Transcribe(context.Background(), sourceAudio(t))
	assert.Equal(t, ReasonConversionFailed, result.Reason)

	after, _ := filepath.Glob(filepath.Join(os.TempDir(), "microclaw-*.wav"))
	assert.ElementsMatch(t, before, after, "no intermediate file left behind")
}

type countingRunner struct {
	calls int
}

func (c *countingRunner) run(context.Context, string, ...string) ([]byte, error) {
	c.calls++
	return []byte("text"), nil
}

func stubLookPath(found ...string) func(string) (string, error) {
	return func(name string) (string, error) {
		for _, f := range found {
			if f == name {
				return "/opt/bin/" + name, nil
			}
		}
		return "", errors.New("not found")
	}
}

func TestTranscribe_BinaryMissingRunsNothing(t *testing.T) {
	w := NewWhisperCpp(Options{ModelDirs: []string{}})
	w.lookPath = stubLookPath("ffmpeg")
	runner := &countingRunner{}
	w.run = runner.run

	result := w.Transcribe(context.Background(), "/nonexistent.oga")
	assert.False(t, result.OK())
	assert.Equal(t, ReasonBinaryNotFound, result.Reason)
	assert.Equal(t, "whisper-cpp binary not found", result.Message())
	assert.True(t, result.MissingDependency())
	assert.Zero(t, runner.calls, "no conversion or invocation may be attempted")
}

func TestTranscribe_ModelMissing(t *testing.T) {
	w := NewWhisperCpp(Options{ModelDirs: []string{t.TempDir()}})
	w.lookPath = stubLookPath("whisper", "ffmpeg")
	runner := &countingRunner{}
	w.run = runner.run

	result := w.Transcribe(context.Background(), "/nonexistent.oga")
	assert.Equal(t, ReasonModelNotFound, result.Reason)
	assert.Zero(t, runner.calls)
}

func TestTranscribe_ConverterMissing(t *testing.T) {
	model := filepath.Join(t.TempDir(), "m.bin")
	require.NoError(t, os.WriteFile(model, nil, 0o644))
	w := NewWhisperCpp(Options{ModelPath: model})
	w.lookPath = stubLookPath("whisper-cpp")
	runner := &countingRunner{}
	w.run = runner.run

	result := w.Transcribe(context.Background(), "/nonexistent.oga")
	assert.Equal(t, ReasonConverterNotFound, result.Reason)
	assert.Equal(t, "ffmpeg is required for audio conversion but was not found", result.Message())
	assert.Zero(t, runner.calls)
	assert.False(t, w.IsAvailable())
}

func TestFindBinary_OverrideAndSearchOrder(t *testing.T) {
	override := filepath.Join(t.TempDir(), "my-whisper")
	require.NoError(t, os.WriteFile(override, nil, 0o755))

	w := NewWhisperCpp(Options{BinaryPath: override})
	w.lookPath = stubLookPath("whisper-cpp")
	got, ok := w.FindBinary()
	require.True(t, ok)
	assert.Equal(t, override, got)

	w = NewWhisperCpp(Options{BinaryPath: "/does/not/exist"})
	w.lookPath = stubLookPath("main", "whisper")
	got, ok = w.FindBinary()
	require.True(t, ok)
	assert.Equal(t, "/opt/bin/whisper", got, "names are tried in order")
}

func TestFindModel_SearchOrder(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(second, "ggml-base.en.bin"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(first, "ggml-small.bin"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(first, "ggml-large.bin"), nil, 0o644))

	w := NewWhisperCpp(Options{ModelDirs: []string{first, second}})
	got, ok := w.FindModel()
	require.True(t, ok)
	assert.Equal(t, filepath.Join(first, "ggml-small.bin"), got, "directories first, then preferred file")
}

func TestDefaultTablesAreCopies(t *testing.T) {
	names := DefaultBinaryNames()
	names[0] = "mutated"
	assert.Equal(t, []string{"whisper-cpp", "whisper", "main"}, DefaultBinaryNames())

	files := DefaultModelFiles()
	assert.Equal(t, "ggml-base.en.bin", files[0])
	assert.Equal(t, "ggml-large.bin", files[len(files)-1])

	dirs := DefaultModelDirs("/home/u")
	assert.Equal(t, []string{
		"/home/u/.local/share/whisper-cpp/models",
		"/home/u/whisper.cpp/models",
		"/usr/local/share/whisper-cpp/models",
		"/usr/share/whisper-cpp/models",
	}, dirs)
}
