package utils

import (
	"path/filepath"
	"strings"
)

var (
	audioExtensions = []string{".mp3", ".wav", ".ogg", ".oga", ".opus", ".m4a", ".flac", ".aac", ".wma"}
	audioTypes      = []string{"audio/", "application/ogg", "application/x-ogg"}
)

// IsAudioFile checks if a file is an audio file based on its filename extension and content type.
func IsAudioFile(filename, contentType string) bool {
	lower := strings.ToLower(filename)
	for _, ext := range audioExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}

	ct := strings.ToLower(contentType)
	for _, audioType := range audioTypes {
		if strings.HasPrefix(ct, audioType) {
			return true
		}
	}

	return false
}

// AudioExtension returns the file extension to use for a downloaded audio
// file, falling back to def when the name carries none.
func AudioExtension(filename, def string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || len(ext) > 6 {
		return def
	}
	return ext
}
