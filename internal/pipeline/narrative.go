package pipeline

import (
	"strings"
	"unicode/utf8"
)

const (
	maxDescriptionRunes = 200

	fallbackTitle       = "Audio brief"
	fallbackDescription = "A narrated summary of the submitted documents."
)

// DeriveTitle returns the first non-empty line of the narrative with any
// leading markdown heading or emphasis markers stripped.
func DeriveTitle(narrative string) string {
	for _, line := range strings.Split(narrative, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		trimmed = strings.TrimLeft(trimmed, "#*")
		trimmed = strings.TrimSpace(trimmed)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallbackTitle
}

// DeriveDescription returns the first paragraph after the title line,
// truncated to 200 runes with an ellipsis when longer.
func DeriveDescription(narrative string) string {
	lines := strings.Split(narrative, "\n")

	// Skip past the title line.
	i := 0
	for ; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != "" {
			i++
			break
		}
	}

	var paragraph []string
	for ; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			if len(paragraph) > 0 {
				break
			}
			continue
		}
		paragraph = append(paragraph, trimmed)
	}

	description := strings.Join(paragraph, " ")
	if description == "" {
		return fallbackDescription
	}
	return truncateRunes(description, maxDescriptionRunes)
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit])) + "…"
}
