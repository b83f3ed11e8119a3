// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package grounding

import (
	"regexp"
	"strings"

	"github.com/desadigital/wargabot/services/assistant/datatypes"
)

// =============================================================================
// Conflict Detection
// =============================================================================

// conflictSimilarityThreshold is the minimum token overlap for two chunks to
// count as covering the same topic. Below this they are just different facts,
// not a disagreement.
const conflictSimilarityThreshold = 0.35

// numberToken matches the concrete values sources disagree on: prices,
// opening hours, phone numbers, dates.
var numberToken = regexp.MustCompile(`\d[\d.,:]*`)

// stopwords excluded from similarity so function words don't inflate overlap.
var stopwords = map[string]bool{
	"yang": true, "dan": true, "di": true, "ke": true, "dari": true,
	"untuk": true, "pada": true, "dengan": true, "adalah": true,
	"ini": true, "itu": true, "atau": true, "juga": true, "akan": true,
	"the": true, "a": true, "an": true, "is": true, "to": true, "of": true,
}

// DetectConflicts finds pairs of chunks that cover the same topic but state
// different numbers.
//
// # Description
//
// Two chunks conflict when their content-word overlap clears the similarity
// threshold while their numeric tokens differ. A conflict is auto-resolved
// when exactly one side is authoritative: the authoritative chunk wins and
// the other is suppressed from the rendered context. Unresolved conflicts
// are surfaced for operator review; they never block a reply.
//
// # Inputs
//
//   - chunks: Ranked chunks from one retrieval pass.
//
// # Outputs
//
//   - []datatypes.KnowledgeConflict: Detected conflicts, possibly empty.
//     SourceA is always the winning or higher-ranked side.
func DetectConflicts(chunks []datatypes.RetrievedChunk) []datatypes.KnowledgeConflict {
	var conflicts []datatypes.KnowledgeConflict

	for i := 0; i < len(chunks); i++ {
		for j := i + 1; j < len(chunks); j++ {
			a, b := chunks[i], chunks[j]
			if a.Source == b.Source {
				continue
			}

			numsA := numberToken.FindAllString(a.Content, -1)
			numsB := numberToken.FindAllString(b.Content, -1)
			if len(numsA) == 0 || len(numsB) == 0 {
				continue
			}
			if sameNumberSet(numsA, numsB) {
				continue
			}

			sim := tokenSimilarity(a.Content, b.Content)
			if sim < conflictSimilarityThreshold {
				continue
			}

			conflict := datatypes.KnowledgeConflict{
				SourceA:    a.Source,
				SourceB:    b.Source,
				SnippetA:   snippet(a.Content),
				SnippetB:   snippet(b.Content),
				Similarity: sim,
			}

			// One authoritative side settles it. SourceA holds the winner.
			if a.Authoritative != b.Authoritative {
				conflict.AutoResolved = true
				if b.Authoritative {
					conflict.SourceA, conflict.SourceB = b.Source, a.Source
					conflict.SnippetA, conflict.SnippetB = conflict.SnippetB, conflict.SnippetA
				}
			}

			conflicts = append(conflicts, conflict)
		}
	}
	return conflicts
}

// tokenSimilarity is the Jaccard index over lowercased content words.
func tokenSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,:;!?()[]\"'")
		if len(tok) < 3 || stopwords[tok] || numberToken.MatchString(tok) {
			continue
		}
		set[tok] = true
	}
	return set
}

func sameNumberSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, n := range a {
		seen[n]++
	}
	for _, n := range b {
		seen[n]--
		if seen[n] < 0 {
			return false
		}
	}
	return true
}

const snippetLength = 120

func snippet(content string) string {
	content = strings.TrimSpace(content)
	if len(content) <= snippetLength {
		return content
	}
	return content[:snippetLength] + "..."
}
