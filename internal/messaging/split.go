package messaging

import "strings"

// WhatsApp delivery limits. Long replies are split on paragraph breaks
// first, then sentences, then words; the part count is bounded so a
// runaway reply cannot flood a chat.
const (
	// MaxPartLength is the target maximum characters per message part.
	MaxPartLength = 200
	// MaxParts bounds how many parts one reply may produce.
	MaxParts = 10
)

// SplitMessage splits a reply into WhatsApp-sized parts. Double newlines
// mark intended part boundaries; models sometimes emit the escape sequence
// literally, so that form counts too.
func SplitMessage(text string) []string {
	// Literal "\n\n" in model output means a paragraph break.
	text = strings.ReplaceAll(text, `\n\n`, "\n\n")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var parts []string
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if len([]rune(block)) <= MaxPartLength {
			parts = append(parts, block)
			continue
		}
		parts = append(parts, splitLongBlock(block)...)
	}

	if len(parts) > MaxParts {
		// Merge the overflow into the final part rather than dropping it.
		merged := strings.Join(parts[MaxParts-1:], "\n\n")
		parts = append(parts[:MaxParts-1], merged)
	}
	return parts
}

// splitLongBlock splits an over-long paragraph on sentence boundaries,
// falling back to word boundaries for single sentences that still exceed
// the limit.
func splitLongBlock(block string) []string {
	var parts []string
	current := ""
	for _, sentence := range splitSentences(block) {
		if len([]rune(sentence)) > MaxPartLength {
			if current != "" {
				parts = append(parts, current)
				current = ""
			}
			parts = append(parts, splitWords(sentence)...)
			continue
		}
		candidate := sentence
		if current != "" {
			candidate = current + " " + sentence
		}
		if len([]rune(candidate)) > MaxPartLength {
			parts = append(parts, current)
			current = sentence
			continue
		}
		current = candidate
	}
	if current != "" {
		parts = append(parts, current)
	}
	return parts
}

// splitSentences breaks text after sentence-ending punctuation.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	runes := []rune(text)
	for i, r := range runes {
		if r == '.' || r == '!' || r == '?' {
			// Consume the run of punctuation, then cut.
			if i+1 < len(runes) && (runes[i+1] == '.' || runes[i+1] == '!' || runes[i+1] == '?') {
				continue
			}
			s := strings.TrimSpace(string(runes[start : i+1]))
			if s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// splitWords accumulates words up to the part limit.
func splitWords(text string) []string {
	var parts []string
	current := ""
	for _, word := range strings.Fields(text) {
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		if len([]rune(candidate)) > MaxPartLength && current != "" {
			parts = append(parts, current)
			current = word
			continue
		}
		current = candidate
	}
	if current != "" {
		parts = append(parts, current)
	}
	return parts
}
