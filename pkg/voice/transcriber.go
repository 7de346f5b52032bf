package voice

import (
	"context"
	"fmt"
)

// Transcriber turns a local audio file into text. Failures are reported in
// the Result, never as a panic or error return.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) Result
}

// Reason names why a transcription did not produce text.
type Reason string

const (
	ReasonBinaryNotFound    Reason = "whisper-cpp binary not found"
	ReasonModelNotFound     Reason = "whisper-cpp model not found"
	ReasonConverterNotFound Reason = "ffmpeg is required for audio conversion but was not found"
	ReasonConversionFailed  Reason = "audio conversion failed"
	ReasonEmptyTranscript   Reason = "whisper-cpp produced empty transcription"
	ReasonInvocationFailed  Reason = "whisper-cpp transcription failed"
)

// TranscriptionPrefix starts the inbound content of a transcribed voice note.
const TranscriptionPrefix = "[Voice message transcription]: "

type Result struct {
	Text   string
	Reason Reason
	Err    error
}

func (r Result) OK() bool {
	return r.Reason == ""
}

// MissingDependency reports whether the failure is fixed by installing something.
func (r Result) MissingDependency() bool {
	switch r.Reason {
	case ReasonBinaryNotFound, ReasonModelNotFound, ReasonConverterNotFound:
		return true
	}
	return false
}

// Message is the human-readable failure text, or "" on success.
func (r Result) Message() string {
	if r.OK() {
		return ""
	}
	if r.Err != nil {
		return fmt.Sprintf("%s: %v", r.Reason, r.Err)
	}
	return string(r.Reason)
}

// InboundContent renders a transcription outcome as message content.
// kind is "voice" or "audio"; caption is appended on success when present.
func InboundContent(kind string, durationSec int, r Result, caption string) string {
	if r.OK() {
		content := TranscriptionPrefix + r.Text
		if caption != "" {
			content += "\n" + caption
		}
		return content
	}

	content := DescribeFailure(kind, durationSec, r.Message())
	if r.MissingDependency() {
		content += "\n\n" + InstallInstructions
	}
	return content
}

// DescribeFailure is the placeholder content for a voice note that could not
// be turned into text.
func DescribeFailure(kind string, durationSec int, reason string) string {
	return fmt.Sprintf("[The user sent a %s message (%ds) that could not be transcribed: %s]", kind, durationSec, reason)
}

const InstallInstructions = `The user sent a voice/audio message, but whisper-cpp is not available for transcription.

To enable voice transcription, install whisper-cpp:

**macOS (Homebrew):**
` + "```" + `
brew install whisper-cpp
whisper-cpp-download-ggml-model base.en
` + "```" + `

**Build from source:**
` + "```" + `
git clone https://github.com/ggerganov/whisper.cpp.git
cd whisper.cpp
cmake -B build
cmake --build build --config Release
./models/download-ggml-model.sh base.en
` + "```" + `

ffmpeg must also be installed for audio conversion.

After installing, make sure the whisper-cpp binary is in your PATH and a model file (e.g. ggml-base.en.bin) is in one of:
- ~/.local/share/whisper-cpp/models/
- ~/whisper.cpp/models/
- /usr/local/share/whisper-cpp/models/
- /usr/share/whisper-cpp/models/

Or set the WHISPER_CPP_PATH and WHISPER_CPP_MODEL environment variables.`
