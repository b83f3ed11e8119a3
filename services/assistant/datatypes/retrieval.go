// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// =============================================================================
// Retrieval Grounding Types
// =============================================================================

// SourceKind distinguishes curated knowledge entries from uploaded document
// chunks inside one merged result set.
type SourceKind string

const (
	SourceKnowledge SourceKind = "knowledge"
	SourceDocument  SourceKind = "document"
)

// ConfidenceTier summarizes how much trust the generator should place in the
// retrieved context.
type ConfidenceTier string

const (
	ConfidenceHigh   ConfidenceTier = "high"
	ConfidenceMedium ConfidenceTier = "medium"
	ConfidenceLow    ConfidenceTier = "low"
)

// RetrievedChunk is one ranked similarity hit.
type RetrievedChunk struct {
	Content       string     `json:"content"`
	Source        string     `json:"source"`
	Category      string     `json:"category,omitempty"`
	Score         float64    `json:"score"`
	Kind          SourceKind `json:"kind"`
	Authoritative bool       `json:"authoritative,omitempty"`
}

// KnowledgeConflict flags a pair of chunks that are topically close but
// disagree on a concrete fact (hours, price, phone number).
//
// Similarity describes topical closeness between the two chunks, not textual
// equality. Conflicts annotate the context; they never block a reply.
type KnowledgeConflict struct {
	SourceA      string  `json:"source_a"`
	SourceB      string  `json:"source_b"`
	SnippetA     string  `json:"snippet_a"`
	SnippetB     string  `json:"snippet_b"`
	Similarity   float64 `json:"similarity"`
	AutoResolved bool    `json:"auto_resolved"`
}

// RetrievalContext is the full output of one grounding pass.
//
// Invariant: TotalResults == 0 implies ContextString == "".
type RetrievalContext struct {
	Chunks        []RetrievedChunk    `json:"chunks"`
	ContextString string              `json:"context_string"`
	Confidence    ConfidenceTier      `json:"confidence"`
	Conflicts     []KnowledgeConflict `json:"conflicts,omitempty"`
	TotalResults  int                 `json:"total_results"`
	CategoryUsed  string              `json:"category_used,omitempty"`
}

// HasKnowledge reports whether any grounding material was found. The
// hallucination gate keys off this signal.
func (rc *RetrievalContext) HasKnowledge() bool {
	return rc != nil && rc.TotalResults > 0
}
