package parser

import (
	"regexp"
	"strings"
)

const timeMarkerPattern = `\[\d{1,2}:\d{2}\s?(?:AM|PM)\]`

// SplitMessages cuts batched content into logical sub-messages at each
// repeated "[HH:MM AM/PM] <source-tag>" marker. Content without markers is
// returned as a single message.
func SplitMessages(content, sourceTag string) []string {
	pattern := timeMarkerPattern + `\s*`
	if sourceTag != "" {
		pattern += regexp.QuoteMeta(sourceTag)
	}
	markerRe := regexp.MustCompile(pattern)

	locs := markerRe.FindAllStringIndex(content, -1)
	if len(locs) == 0 {
		if trimmed := strings.TrimSpace(content); trimmed != "" {
			return []string{trimmed}
		}
		return nil
	}

	var messages []string
	for i, loc := range locs {
		end := len(content)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		if msg := strings.TrimSpace(content[loc[1]:end]); msg != "" {
			messages = append(messages, msg)
		}
	}
	return messages
}
