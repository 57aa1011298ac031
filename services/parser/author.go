package parser

import (
	"regexp"
	"strings"
)

const systemAuthor = "System"

var (
	authorFieldRe  = regexp.MustCompile(`(?i)^(autor|author)`)
	actionFieldRe  = regexp.MustCompile(`(?i)^(ação|acao|action)`)
	actionVerbRe   = regexp.MustCompile(`(?i)^(.+?)\s+(sold|deposited|withdrew|vendeu|depositou|sacou)\b`)
	authorLineRe   = regexp.MustCompile(`(?im)^(?:autor|author):\s*(.+)$`)
	leadingNameRe  = regexp.MustCompile(`(?m)^([A-ZÀ-Ý][\wÀ-ÿ]*(?:\s+[A-ZÀ-Ý][\wÀ-ÿ]*){0,2})\s+(?:sold|deposited|withdrew|vendeu|depositou|sacou)\b`)
	fixoAuthorRe   = regexp.MustCompile(`(?i)^(.*?)\s*\|\s*FIXO:\s*(\d+)`)
)

// ExtractAuthor resolves the worker behind a message. The chain is ordered by
// trust; it never returns an empty string.
func (p *Parser) ExtractAuthor(msg Message) string {
	// 1. author-style embed field holding "<Name> | FIXO: <id>"
	for _, embed := range msg.Embeds {
		for _, field := range embed.Fields {
			if !authorFieldRe.MatchString(cleanFieldText(field.Name)) {
				continue
			}
			if name := authorFromFixo(field.Value); name != "" {
				return name
			}
			if name := cleanFieldText(field.Value); name != "" {
				return name
			}
		}
	}

	// 2. action-style embed field starting with "<Name> sold/deposited/withdrew"
	for _, embed := range msg.Embeds {
		for _, field := range embed.Fields {
			if !actionFieldRe.MatchString(cleanFieldText(field.Name)) {
				continue
			}
			if m := actionVerbRe.FindStringSubmatch(cleanFieldText(field.Value)); m != nil {
				if name := strings.TrimSpace(m[1]); name != "" {
					return name
				}
			}
		}
	}

	text := p.Normalize(msg)

	// 3. explicit "Author: <name>" line
	if m := authorLineRe.FindStringSubmatch(text); m != nil {
		if name := authorFromFixo(m[1]); name != "" {
			return name
		}
		if name := cleanFieldText(m[1]); name != "" {
			return name
		}
	}

	// 4. the message's own author, unless it is a known bot account
	if author := strings.TrimSpace(msg.Author); author != "" && !p.isBot(author) {
		return author
	}

	// 5. leading name before an action verb in the text
	if m := leadingNameRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}

	return systemAuthor
}

// ExtractFixoID returns the stable worker id embedded in author text, if any.
func ExtractFixoID(value string) string {
	if m := fixoAuthorRe.FindStringSubmatch(value); m != nil {
		return m[2]
	}
	return ""
}

func authorFromFixo(value string) string {
	if m := fixoAuthorRe.FindStringSubmatch(cleanFieldText(value)); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func (p *Parser) isBot(author string) bool {
	for _, bot := range p.cfg.BotNames {
		if strings.EqualFold(author, bot) {
			return true
		}
	}
	return false
}
