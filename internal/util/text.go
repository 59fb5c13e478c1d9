package util

import (
	"strings"
	"unicode"
)

// FoldLogin is the comparison key for logins: trimmed and lower-cased.
func FoldLogin(login string) string {
	return strings.ToLower(strings.TrimSpace(login))
}

// HasHiddenRunes reports whether s carries control, zero-width or other
// format characters that render invisibly.
func HasHiddenRunes(s string) bool {
	for _, char := range s {
		if unicode.IsControl(char) || isInvisibleUnicode(char) {
			return true
		}
	}

	return false
}

func isInvisibleUnicode(r rune) bool {
	switch r {
	case
		'\u200B', // Zero-Width Space
		'\u200C', // Zero-Width Non-Joiner
		'\u200D', // Zero-Width Joiner
		'\u200E', // Left-to-Right Mark
		'\u200F', // Right-to-Left Mark
		'\u2060', // Word Joiner
		'\uFEFF', // Zero-Width No-Break Space / BOM
		'\uFFF9', // Interlinear Annotation Anchor
		'\uFFFA', // Interlinear Annotation Separator
		'\uFFFB': // Interlinear Annotation Terminator
		return true
	}

	// Format characters (Cf category)
	return unicode.Is(unicode.Cf, r)
}
