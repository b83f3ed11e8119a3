// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package grounding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desadigital/wargabot/services/assistant/datatypes"
)

func TestDetectConflicts_DisagreeingHours(t *testing.T) {
	chunks := []datatypes.RetrievedChunk{
		{
			Content: "Kantor kelurahan melayani warga setiap hari kerja mulai pukul 08.00 sampai 15.00.",
			Source:  "profil_desa_2025",
			Score:   0.9,
			Kind:    datatypes.SourceKnowledge,
		},
		{
			Content: "Kantor kelurahan melayani warga setiap hari kerja mulai pukul 09.00 sampai 14.00.",
			Source:  "brosur_lama",
			Score:   0.85,
			Kind:    datatypes.SourceKnowledge,
		},
	}

	conflicts := DetectConflicts(chunks)
	require.Len(t, conflicts, 1)
	assert.False(t, conflicts[0].AutoResolved)
	assert.GreaterOrEqual(t, conflicts[0].Similarity, conflictSimilarityThreshold)
}

func TestDetectConflicts_AuthoritativeWins(t *testing.T) {
	chunks := []datatypes.RetrievedChunk{
		{
			Content: "Biaya pembuatan surat keterangan usaha adalah Rp 10.000 per dokumen resmi.",
			Source:  "arsip_lama",
			Score:   0.9,
			Kind:    datatypes.SourceKnowledge,
		},
		{
			Content:       "Biaya pembuatan surat keterangan usaha adalah Rp 0 alias gratis per dokumen resmi.",
			Source:        "perdes_terbaru",
			Score:         0.88,
			Kind:          datatypes.SourceKnowledge,
			Authoritative: true,
		},
	}

	conflicts := DetectConflicts(chunks)
	require.Len(t, conflicts, 1)
	assert.True(t, conflicts[0].AutoResolved)
	assert.Equal(t, "perdes_terbaru", conflicts[0].SourceA, "authoritative side must win")
	assert.Equal(t, "arsip_lama", conflicts[0].SourceB)
}

func TestDetectConflicts_UnrelatedChunksNoConflict(t *testing.T) {
	chunks := []datatypes.RetrievedChunk{
		{Content: "Posyandu balita dilaksanakan tanggal 5 setiap bulan.", Source: "jadwal_posyandu"},
		{Content: "Pembayaran pajak bumi dan bangunan paling lambat 30 September.", Source: "pengumuman_pbb"},
	}
	assert.Empty(t, DetectConflicts(chunks))
}

func TestDetectConflicts_SameNumbersNoConflict(t *testing.T) {
	chunks := []datatypes.RetrievedChunk{
		{Content: "Kantor desa buka pukul 08.00 setiap hari kerja untuk pelayanan umum.", Source: "sumber_a"},
		{Content: "Pelayanan umum kantor desa dimulai pukul 08.00 pada hari kerja.", Source: "sumber_b"},
	}
	assert.Empty(t, DetectConflicts(chunks))
}

func TestRenderContext_SuppressesAutoResolvedLoserAuthoritative(t *testing.T) {
	chunks := []datatypes.RetrievedChunk{
		{Content: "Layanan gratis sesuai perdes.", Source: "perdes_terbaru", Authoritative: true},
		{Content: "Biaya Rp 10.000.", Source: "arsip_lama"},
	}
	conflicts := []datatypes.KnowledgeConflict{
		{SourceA: "perdes_terbaru", SourceB: "arsip_lama", AutoResolved: true},
	}

	out := renderContext(chunks, conflicts)
	assert.Contains(t, out, "perdes_terbaru")
	assert.NotContains(t, out, "arsip_lama")
}

func TestAssemble_EmptyResultInvariant(t *testing.T) {
	r := NewRetriever(nil, nil, RetrieverConfig{})
	rc := r.assemble(nil, "layanan")

	assert.Equal(t, 0, rc.TotalResults)
	assert.Empty(t, rc.ContextString)
	assert.Equal(t, datatypes.ConfidenceLow, rc.Confidence)
	assert.False(t, rc.HasKnowledge())
}

func TestAssemble_ConfidenceTiersTopScore(t *testing.T) {
	r := NewRetriever(nil, nil, RetrieverConfig{})

	tests := []struct {
		name     string
		topScore float64
		want     datatypes.ConfidenceTier
	}{
		{"high", 0.91, datatypes.ConfidenceHigh},
		{"medium", 0.75, datatypes.ConfidenceMedium},
		{"low", 0.65, datatypes.ConfidenceLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := r.assemble([]datatypes.RetrievedChunk{
				{Content: "isi", Source: "sumber", Score: tt.topScore},
			}, "")
			assert.Equal(t, tt.want, rc.Confidence)
		})
	}
}
