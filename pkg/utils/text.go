package utils

// Truncate shortens s to at most maxRunes characters, appending "..." when
// anything was cut. Counts runes, so multi-byte text is never split
// mid-character. A maxRunes of 0 or less returns s unchanged.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}
