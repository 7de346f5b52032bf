package utils

import (
	"unicode/utf16"
	"unicode/utf8"
)

// ChunkText splits content into ordered pieces of at most maxLen runes.
// Pieces are never trimmed, so joining them reproduces content exactly.
// A split prefers the last newline, then the last space, in the back half
// of the window; otherwise the window is cut at maxLen runes. Multi-byte
// characters are never divided.
func ChunkText(content string, maxLen int) []string {
	return ChunkTextFunc(content, maxLen, nil)
}

// ChunkTextFunc is ChunkText with maxLen measured by width. A nil width
// counts runes.
func ChunkTextFunc(content string, maxLen int, width func(rune) int) []string {
	if content == "" {
		return nil
	}
	if width == nil {
		width = func(rune) int { return 1 }
	}
	if maxLen <= 0 || measure(content, width) <= maxLen {
		return []string{content}
	}

	var chunks []string
	rest := content
	for len(rest) > 0 {
		end := windowEnd(rest, maxLen, width)
		if end == len(rest) {
			chunks = append(chunks, rest)
			break
		}
		cut := splitPoint(rest[:end])
		chunks = append(chunks, rest[:cut])
		rest = rest[cut:]
	}
	return chunks
}

// UTF16Width is the number of UTF-16 code units r takes, the unit Telegram
// and Discord count message length in.
func UTF16Width(r rune) int {
	if n := utf16.RuneLen(r); n > 0 {
		return n
	}
	return 1
}

func measure(s string, width func(rune) int) int {
	n := 0
	for _, r := range s {
		n += width(r)
	}
	return n
}

// windowEnd returns the byte offset just past the longest prefix of s whose
// width fits in maxLen. At least one rune is always taken.
func windowEnd(s string, maxLen int, width func(rune) int) int {
	end, n := 0, 0
	for end < len(s) {
		r, size := utf8.DecodeRuneInString(s[end:])
		w := width(r)
		if n+w > maxLen && end > 0 {
			break
		}
		end += size
		n += w
	}
	return end
}

func splitPoint(window string) int {
	half := len(window) / 2
	for i := len(window) - 1; i >= half; i-- {
		if window[i] == '\n' {
			return i + 1
		}
	}
	for i := len(window) - 1; i >= half; i-- {
		if window[i] == ' ' || window[i] == '\t' {
			return i + 1
		}
	}
	return len(window)
}
