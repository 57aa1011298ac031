package parser

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	codeFenceRe  = regexp.MustCompile("```[a-zA-Z]*")
	formattingRe = regexp.MustCompile(`\*\*|__|~~|` + "`")
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
	dateLineRe   = regexp.MustCompile(`(?i)data:\s*(\d{2}/\d{2}/\d{4}\s*-\s*\d{2}:\d{2}:\d{2})`)
)

// Normalize turns a message into canonical text. When the content is empty
// and embeds exist, the text is synthesized from the embed parts in order:
// author header, title, description, then one "name: value" line per field.
func (p *Parser) Normalize(msg Message) string {
	if strings.TrimSpace(msg.Content) != "" || len(msg.Embeds) == 0 {
		return msg.Content
	}

	var b strings.Builder
	for _, embed := range msg.Embeds {
		if name := strings.TrimSpace(embed.Author.Name); name != "" {
			b.WriteString(name)
			b.WriteString("\n")
		}
		if title := strings.TrimSpace(embed.Title); title != "" {
			b.WriteString(title)
			b.WriteString("\n")
		}
		if desc := strings.TrimSpace(embed.Description); desc != "" {
			b.WriteString(desc)
			b.WriteString("\n")
		}
		for _, field := range embed.Fields {
			name := cleanFieldText(field.Name)
			value := cleanFieldText(field.Value)
			if name == "" && value == "" {
				continue
			}
			b.WriteString(name)
			b.WriteString(": ")
			b.WriteString(value)
			b.WriteString("\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// cleanFieldText strips code-fence markers, backticks and edge colons from an
// embed field name or value.
func cleanFieldText(s string) string {
	s = codeFenceRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "`", "")
	s = strings.Trim(strings.TrimSpace(s), ":")
	return strings.TrimSpace(s)
}

// stripFormatting removes chat markup and collapses runs of blank lines.
func stripFormatting(s string) string {
	s = codeFenceRe.ReplaceAllString(s, "")
	s = formattingRe.ReplaceAllString(s, "")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// truncateDisplay shortens text to at most max runes, preferring to cut at a
// newline boundary so the display text stays readable. Cutting on rune
// boundaries keeps accented text valid UTF-8.
func truncateDisplay(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}

	cut := []rune(s)[:max]
	for i := len(cut) - 1; i > max/2; i-- {
		if cut[i] == '\n' {
			return strings.TrimSpace(string(cut[:i]))
		}
	}
	return strings.TrimSpace(string(cut)) + "..."
}

// ExtractTimestamp reads an embedded "Data: DD/MM/YYYY - HH:MM:SS" marker.
func ExtractTimestamp(text string) (time.Time, bool) {
	m := dateLineRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}

	raw := strings.Join(strings.Fields(m[1]), " ")
	ts, err := time.Parse("02/01/2006 - 15:04:05", raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
