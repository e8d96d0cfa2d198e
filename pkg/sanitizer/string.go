package sanitizer

import (
	"strings"
	"unicode"
)

// TrimAndNormalize collapses every whitespace run to a single space.
func TrimAndNormalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	var result strings.Builder
	var lastWasSpace bool

	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				result.WriteRune(' ')
				lastWasSpace = true
			}
		} else {
			result.WriteRune(r)
			lastWasSpace = false
		}
	}

	return result.String()
}

// NormalizeNote cleans a vendor response note. Line breaks survive so a
// multi-line note reads the same in the notification.
func NormalizeNote(note string) string {
	lines := strings.Split(strings.ReplaceAll(note, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Map(func(r rune) rune {
			if unicode.IsControl(r) && r != '\t' {
				return -1
			}
			return r
		}, line)
		out = append(out, TrimAndNormalize(line))
	}

	for len(out) > 0 && out[0] == "" {
		out = out[1:]
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

// NormalizeNotePtr applies NormalizeNote and maps an empty result to nil.
func NormalizeNotePtr(note *string) *string {
	if note == nil {
		return nil
	}
	n := NormalizeNote(*note)
	if n == "" {
		return nil
	}
	return &n
}

func NormalizeIdentifier(id string) string {
	return strings.TrimSpace(id)
}
