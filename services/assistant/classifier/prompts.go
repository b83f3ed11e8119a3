// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package classifier

import (
	"fmt"
	"strings"

	"github.com/desadigital/wargabot/services/assistant/datatypes"
)

// =============================================================================
// Prompt Construction
// =============================================================================

const intentVocabulary = `CREATE_COMPLAINT, CHECK_STATUS, CANCEL_REQUEST, SERVICE_INFO, CONTACT_INFO, GENERAL_INFO, GREETING, THANKS, EMERGENCY, UNKNOWN`

const outputShape = `Balas HANYA dengan JSON valid berbentuk:
{"intent": "<salah satu tag>", "confidence": <0.0-1.0>, "fields": {"name": "", "phone": "", "address": "", "tracking_code": "", "category": "", "emergency": false}, "clarification": "", "needs_context": false}`

// buildLightPrompt assembles the short prompt for the light pass. Only the
// last few turns are included and no retrieval context; the point is a
// cheap call with a small token ceiling.
func buildLightPrompt(req Request, historyTurns int) string {
	var sb strings.Builder

	sb.WriteString("Klasifikasikan pesan warga berikut ke salah satu intent: ")
	sb.WriteString(intentVocabulary)
	sb.WriteString(".\n")
	sb.WriteString("Jika pesan terlalu ambigu untuk diklasifikasi tanpa konteks tambahan, set needs_context ke true.\n\n")

	history := req.History
	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}
	writeHistory(&sb, history)

	fmt.Fprintf(&sb, "Pesan: %q\n\n", req.Message)
	sb.WriteString(outputShape)
	return sb.String()
}

// buildDeepPrompt assembles the full prompt for the deep pass: complete
// history, reference lists, and any retrieval context.
func buildDeepPrompt(req Request) string {
	var sb strings.Builder

	sb.WriteString("Anda adalah pengklasifikasi intent untuk layanan pemerintahan desa.\n")
	sb.WriteString("Klasifikasikan pesan warga ke salah satu intent: ")
	sb.WriteString(intentVocabulary)
	sb.WriteString(".\n")
	sb.WriteString("Ekstrak juga nama, nomor telepon, alamat, kode pelacakan, dan kategori bila disebutkan.\n")
	sb.WriteString("Set emergency ke true untuk situasi darurat (kebakaran, banjir, kecelakaan).\n")
	sb.WriteString("Isi clarification dengan satu pertanyaan singkat bila data penting kurang.\n\n")

	if len(req.Categories) > 0 {
		fmt.Fprintf(&sb, "Kategori pengaduan yang tersedia: %s\n", strings.Join(req.Categories, ", "))
	}
	if len(req.Services) > 0 {
		fmt.Fprintf(&sb, "Layanan yang tersedia: %s\n", strings.Join(req.Services, ", "))
	}
	if req.RetrievalContext != "" {
		sb.WriteString("\nKonteks pengetahuan desa:\n")
		sb.WriteString(req.RetrievalContext)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	writeHistory(&sb, req.History)

	fmt.Fprintf(&sb, "Pesan: %q\n\n", req.Message)
	sb.WriteString(outputShape)
	return sb.String()
}

func writeHistory(sb *strings.Builder, history []datatypes.Message) {
	if len(history) == 0 {
		return
	}
	sb.WriteString("Riwayat percakapan:\n")
	for _, turn := range history {
		role := "Warga"
		if turn.Role == "assistant" {
			role = "Asisten"
		}
		fmt.Fprintf(sb, "%s: %s\n", role, turn.Content)
	}
	sb.WriteString("\n")
}
