package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAudioFile(t *testing.T) {
	assert.True(t, IsAudioFile("voice.ogg", ""))
	assert.True(t, IsAudioFile("VOICE.OGA", ""))
	assert.True(t, IsAudioFile("clip.bin", "audio/mpeg"))
	assert.True(t, IsAudioFile("clip", "application/ogg"))
	assert.False(t, IsAudioFile("photo.jpg", "image/jpeg"))
	assert.False(t, IsAudioFile("", ""))
}

func TestAudioExtension(t *testing.T) {
	assert.Equal(t, ".oga", AudioExtension("voice/file_12.oga", ".ogg"))
	assert.Equal(t, ".mp3", AudioExtension("song.MP3", ".ogg"))
	assert.Equal(t, ".ogg", AudioExtension("noext", ".ogg"))
	assert.Equal(t, ".ogg", AudioExtension("weird.extension", ".ogg"))
}
