// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gate inspects generated text for classes of unsupported claims.
//
// The gate is a fixed pattern library plus three pure functions: one that
// detects signals, one that decides whether a reply must be regenerated, and
// one that sanitizes fabricated link placeholders out of the text. It holds
// no state and makes no calls of its own.
package gate

import (
	"regexp"
	"strings"
)

// =============================================================================
// Pattern Library
// =============================================================================

// Package-level compiled regexes, one group per claim class. Indonesian is
// primary; a few English forms cover mixed-language replies.
var (
	hoursPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bjam\s+(buka|operasional|kerja|pelayanan|layanan)\b`),
		regexp.MustCompile(`(?i)\bbuka\s+(dari|mulai|pukul|jam)\b`),
		regexp.MustCompile(`(?i)\bpukul\s+\d{1,2}[.:]\d{2}\b`),
		regexp.MustCompile(`(?i)\d{1,2}[.:]\d{2}\s*(?:-|–|s\.?d\.?|sampai)\s*\d{1,2}[.:]\d{2}`),
		regexp.MustCompile(`(?i)\bsenin\s*(?:-|–|sampai|s\.?d\.?)\s*(?:jumat|sabtu)\b`),
		regexp.MustCompile(`(?i)\boffice\s+hours?\b`),
	}

	costPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bbiaya(nya)?\b`),
		regexp.MustCompile(`(?i)\btarif\b`),
		regexp.MustCompile(`(?i)\bretribusi\b`),
		regexp.MustCompile(`(?i)\bgratis\b`),
		regexp.MustCompile(`(?i)\bdikenakan\s+(biaya|tarif)\b`),
		regexp.MustCompile(`(?i)\bRp\.?\s*\d`),
	}

	phonePatterns = []*regexp.Regexp{
		// Indonesian mobile numbers: 08xx, +628xx, 628xx.
		regexp.MustCompile(`(?:\+62|62|0)8\d{2}[\s.-]?\d{3,4}[\s.-]?\d{3,5}`),
		// Landlines with area code.
		regexp.MustCompile(`\(?0\d{2,3}\)?[\s.-]?\d{6,8}`),
		regexp.MustCompile(`(?i)\b(?:nomor|no\.?)\s*(?:telepon|telp|hp|wa|whatsapp)\b`),
	}

	addressPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:jl|jln)\.?\s+\S`),
		regexp.MustCompile(`(?i)\bjalan\s+[A-Z]`),
		regexp.MustCompile(`(?i)\b(?:gg|gang)\.?\s+\S`),
		regexp.MustCompile(`(?i)\bRT\s*\.?\s*\d{1,3}\b`),
		regexp.MustCompile(`(?i)\bRW\s*\.?\s*\d{1,3}\b`),
		regexp.MustCompile(`(?i)\bNo\.?\s*\d{1,4}\b`),
	}

	// Fabricated placeholder links: templated brackets the model emits when
	// it wants a link it does not have. A real link must come from data,
	// never from a bracket template.
	fakeLinkPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\[\s*(?:link|tautan|url)\b[^\]\n]*\]`),
		regexp.MustCompile(`(?i)\[\s*(?:klik|kunjungi|download|unduh)\b[^\]\n]*\]`),
		regexp.MustCompile(`(?i)\[\s*(?:formulir|website|situs|halaman)\b[^\]\n]*\]`),
		regexp.MustCompile(`(?i)<\s*(?:link|url|tautan)\s*>`),
		regexp.MustCompile(`(?i)\bhttps?://(?:www\.)?(?:example|contoh)\.(?:com|id|org)\S*`),
	}
)

// =============================================================================
// Signals
// =============================================================================

// Signal is the set of unsupported-claim classes found in one text span.
// Pure function of the text; no identity, no lifecycle.
type Signal struct {
	MentionsHours   bool `json:"mentions_hours"`
	MentionsCost    bool `json:"mentions_cost"`
	MentionsPhone   bool `json:"mentions_phone"`
	MentionsAddress bool `json:"mentions_address"`
	HasFakeLink     bool `json:"has_fake_link"`
}

// Any reports whether any signal fired.
func (s Signal) Any() bool {
	return s.MentionsHours || s.MentionsCost || s.MentionsPhone ||
		s.MentionsAddress || s.HasFakeLink
}

// DetectSignals matches the text against the fixed pattern library.
func DetectSignals(text string) Signal {
	return Signal{
		MentionsHours:   matchAny(hoursPatterns, text),
		MentionsCost:    matchAny(costPatterns, text),
		MentionsPhone:   matchAny(phonePatterns, text),
		MentionsAddress: matchAny(addressPatterns, text),
		HasFakeLink:     matchAny(fakeLinkPatterns, text),
	}
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// =============================================================================
// Retry Decision
// =============================================================================

// Verdict is the gate's decision about one generated reply.
type Verdict struct {
	// ShouldRetry is true when the reply contains a disqualifying claim.
	ShouldRetry bool `json:"should_retry"`

	// Reasons names the offending claim classes (e.g. "fake_link", "hours").
	Reasons []string `json:"reasons,omitempty"`

	// LinkOnly is true when fake links are the only violation. The caller
	// sanitizes in place instead of regenerating: regeneration does not
	// guarantee the link disappears and the fix is cheap.
	LinkOnly bool `json:"link_only"`
}

// NeedsRetry decides whether a generated reply may stand.
//
// # Description
//
// Fabricated placeholder links are always disqualifying regardless of
// grounding. Specific hours/cost/phone/address claims are only disqualifying
// when hasKnowledge is false, i.e. the generator invented a concrete fact
// with nothing in context to support it.
func NeedsRetry(replyText string, hasKnowledge bool) Verdict {
	sig := DetectSignals(replyText)

	var reasons []string
	if sig.HasFakeLink {
		reasons = append(reasons, "fake_link")
	}
	if !hasKnowledge {
		if sig.MentionsHours {
			reasons = append(reasons, "hours")
		}
		if sig.MentionsCost {
			reasons = append(reasons, "cost")
		}
		if sig.MentionsPhone {
			reasons = append(reasons, "phone")
		}
		if sig.MentionsAddress {
			reasons = append(reasons, "address")
		}
	}

	if len(reasons) == 0 {
		return Verdict{}
	}
	return Verdict{
		ShouldRetry: true,
		Reasons:     reasons,
		LinkOnly:    len(reasons) == 1 && reasons[0] == "fake_link",
	}
}

// =============================================================================
// Sanitization
// =============================================================================

// sentenceEnd marks characters that terminate a sentence for span expansion.
const sentenceEnd = ".!?\n"

// Sanitize strips fake-link spans and the sentences containing them.
//
// # Description
//
// Every fake-link match is expanded to its enclosing sentence and the whole
// sentence is removed, so the reply never keeps a dangling "kunjungi" around
// a deleted bracket. The function is idempotent: once no pattern matches,
// the text passes through untouched.
func Sanitize(text string) string {
	out := text
	for {
		span, ok := firstFakeLinkSpan(out)
		if !ok {
			break
		}
		start := spanSentenceStart(out, span[0])
		end := spanSentenceEnd(out, span[1])
		out = out[:start] + out[end:]
	}
	out = collapseBlankRuns(out)
	return strings.TrimSpace(out)
}

func firstFakeLinkSpan(text string) ([2]int, bool) {
	best := [2]int{-1, -1}
	for _, p := range fakeLinkPatterns {
		loc := p.FindStringIndex(text)
		if loc == nil {
			continue
		}
		if best[0] == -1 || loc[0] < best[0] {
			best = [2]int{loc[0], loc[1]}
		}
	}
	return best, best[0] != -1
}

func spanSentenceStart(text string, from int) int {
	for i := from - 1; i >= 0; i-- {
		if strings.ContainsRune(sentenceEnd, rune(text[i])) {
			return i + 1
		}
	}
	return 0
}

func spanSentenceEnd(text string, from int) int {
	for i := from; i < len(text); i++ {
		if strings.ContainsRune(sentenceEnd, rune(text[i])) {
			return i + 1
		}
	}
	return len(text)
}

func collapseBlankRuns(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if strings.TrimSpace(trimmed) == "" {
			if blank {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, trimmed)
	}
	return strings.Join(out, "\n")
}
