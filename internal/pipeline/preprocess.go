package pipeline

import (
	"strings"
	"time"
	"unicode"

	"github.com/bracketlabs/bracket/internal/cache"
)

// SkipReason explains why preprocessing rejected the content. Empty
// means the content passed.
type SkipReason string

const (
	SkipTooShort      SkipReason = "too_short"
	SkipWrongLanguage SkipReason = "wrong_language"
	SkipBoilerplate   SkipReason = "boilerplate_only"
	SkipDuplicate     SkipReason = "duplicate_content"
)

const seenContentTTL = 24 * time.Hour

// preprocess normalizes and gates raw source content. It returns the
// cleaned (possibly truncated) text, or a skip reason when the content
// is unusable. Duplicate detection is session-scoped via the seen-cache.
func (p *Pipeline) preprocess(content string) (string, SkipReason) {
	text := strings.TrimSpace(content)
	if len(text) < p.cfg.MinContentLength {
		return "", SkipTooShort
	}
	if !looksEnglish(text) {
		return "", SkipWrongLanguage
	}
	if boilerplateRatio(text) > 0.5 {
		return "", SkipBoilerplate
	}

	key := cache.Key("content", normalizeForDedup(text))
	if _, seen := p.seen.Get(key); seen {
		return "", SkipDuplicate
	}
	p.seen.Set(key, []byte{1}, seenContentTTL)

	if p.cfg.MaxContentLength > 0 && len(text) > p.cfg.MaxContentLength {
		text = truncateAtBoundary(text, p.cfg.MaxContentLength)
	}
	return text, ""
}

// looksEnglish is a cheap heuristic: the bulk of the letters must be
// ASCII. Good enough to drop pages in other scripts without a language
// detection dependency.
func looksEnglish(text string) bool {
	var letters, ascii int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if r < 128 {
			ascii++
		}
	}
	if letters == 0 {
		return false
	}
	return float64(ascii)/float64(letters) >= 0.8
}

// boilerplateRatio estimates how much of the text is navigation-like
// fragments: very short lines with no sentence punctuation.
func boilerplateRatio(text string) float64 {
	lines := strings.Split(text, "\n")
	if len(lines) == 0 {
		return 0
	}
	fragments := 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) < 40 && !strings.ContainsAny(line, ".!?") {
			fragments++
		}
	}
	nonEmpty := 0
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			nonEmpty++
		}
	}
	if nonEmpty == 0 {
		return 1.0
	}
	return float64(fragments) / float64(nonEmpty)
}

// normalizeForDedup collapses whitespace and case so trivially reflowed
// copies of the same page hash identically.
func normalizeForDedup(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// truncateAtBoundary cuts at the last sentence end (or word boundary)
// before limit instead of mid-word.
func truncateAtBoundary(text string, limit int) string {
	cut := text[:limit]
	if idx := strings.LastIndexAny(cut, ".!?"); idx > limit/2 {
		return strings.TrimSpace(cut[:idx+1])
	}
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		return strings.TrimSpace(cut[:idx])
	}
	return cut
}
