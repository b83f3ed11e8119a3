// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package grounding

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/desadigital/wargabot/services/assistant/datatypes"
)

func testRetriever() *Retriever {
	return NewRetriever(nil, nil, DefaultRetrieverConfig())
}

func chunkWithScore(score float64) []datatypes.RetrievedChunk {
	return []datatypes.RetrievedChunk{{
		Content: "Jam pelayanan kantor desa 08.00-15.00",
		Source:  "profil-desa",
		Score:   score,
		Kind:    datatypes.SourceKnowledge,
	}}
}

func TestAssemble_ConfidenceTiers(t *testing.T) {
	tests := []struct {
		name         string
		score        float64
		categoryUsed string
		want         datatypes.ConfidenceTier
	}{
		{"high score with matched category", 0.92, "pelayanan", datatypes.ConfidenceHigh},
		{"high score but category dropped on retry", 0.92, "", datatypes.ConfidenceMedium},
		{"adequate score with matched category", 0.75, "pelayanan", datatypes.ConfidenceMedium},
		{"adequate score without category", 0.75, "", datatypes.ConfidenceMedium},
		{"weak score", 0.62, "pelayanan", datatypes.ConfidenceLow},
	}
	r := testRetriever()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := r.assemble(chunkWithScore(tt.score), tt.categoryUsed)
			assert.Equal(t, tt.want, rc.Confidence)
		})
	}
}

func TestAssemble_EmptyResult(t *testing.T) {
	rc := testRetriever().assemble(nil, "apapun")
	assert.Equal(t, 0, rc.TotalResults)
	assert.Equal(t, "", rc.ContextString)
	assert.Equal(t, datatypes.ConfidenceLow, rc.Confidence)
}

func TestRenderContext_CapsLength(t *testing.T) {
	big := strings.Repeat("a", maxContextLength)
	chunks := []datatypes.RetrievedChunk{
		{Content: big, Source: "satu", Score: 0.9},
		{Content: "tidak ikut dirender", Source: "dua", Score: 0.8},
	}
	rendered := renderContext(chunks, nil)
	assert.Contains(t, rendered, "Sumber 1: satu")
	assert.NotContains(t, rendered, "dua", "the tail chunk past the cap is dropped")
}

func TestRenderContext_SuppressesAutoResolvedLoser(t *testing.T) {
	chunks := []datatypes.RetrievedChunk{
		{Content: "Buka pukul 08.00", Source: "profil", Score: 0.9, Authoritative: true},
		{Content: "Buka pukul 09.00", Source: "pengumuman-lama", Score: 0.85},
	}
	conflicts := []datatypes.KnowledgeConflict{{
		SourceA:      "profil",
		SourceB:      "pengumuman-lama",
		AutoResolved: true,
	}}
	rendered := renderContext(chunks, conflicts)
	assert.Contains(t, rendered, "profil")
	assert.NotContains(t, rendered, "pengumuman-lama")
}
