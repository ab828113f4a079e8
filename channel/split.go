package channel

import "strings"

// SplitMessage breaks text into chunks of at most maxLen bytes, preferring
// paragraph, then line, then word boundaries. Multi-byte runes are never cut.
func SplitMessage(text string, maxLen int) []string {
	if maxLen <= 0 || len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(text) > maxLen {
		cut := bestCut(text, maxLen)
		chunk := strings.TrimRight(text[:cut], " \n")
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		text = strings.TrimLeft(text[cut:], " \n")
	}
	if text = strings.TrimRight(text, " \n"); text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func bestCut(text string, maxLen int) int {
	window := text[:maxLen]
	for _, sep := range []string{"\n\n", "\n", " "} {
		if i := strings.LastIndex(window, sep); i > maxLen/2 {
			return i + len(sep)
		}
	}
	// Back off to a rune boundary.
	cut := maxLen
	for cut > 0 && !isRuneStart(text[cut]) {
		cut--
	}
	if cut == 0 {
		return maxLen
	}
	return cut
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
