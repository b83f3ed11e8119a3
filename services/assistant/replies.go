// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package assistant

import (
	"fmt"
	"strings"

	"github.com/desadigital/wargabot/services/assistant/datatypes"
)

// =============================================================================
// Reply Templates
// =============================================================================

// Static Indonesian reply texts. Generated answers go through the
// hallucination gate; these templates are the paths that never touch a model.
const (
	replyGreeting = "Halo! Saya asisten layanan desa. Saya bisa membantu membuat pengaduan, " +
		"mengecek status laporan, atau memberikan informasi layanan. Ada yang bisa saya bantu?"

	replyThanks = "Sama-sama! Jangan ragu menghubungi kami lagi bila ada yang perlu dibantu."

	replyBudgetExceeded = "Mohon maaf, Anda telah mencapai batas penggunaan untuk sementara. " +
		"Silakan coba lagi dalam beberapa menit."

	replyFallback = "Mohon maaf, sistem sedang mengalami gangguan. Silakan coba beberapa saat " +
		"lagi atau datang langsung ke kantor desa."

	replyAskAddress = "Bisa tolong sebutkan alamat atau lokasi yang lebih jelas? " +
		"Contoh: Jl. Merdeka No. 5 RT 02, atau patokan terdekat."

	replyAskAddressAgain = "Maaf, saya masih belum menangkap lokasinya. Mohon tuliskan alamat " +
		"atau patokan yang lebih jelas, misalnya nama jalan dan nomor rumah."

	replyAskTrackingCode = "Bisa tolong sebutkan kode laporan Anda? Formatnya seperti " +
		"LAP-20260831-0042 dan tercantum di pesan konfirmasi pengaduan."

	replyFlowAbandoned = "Baik, permintaan sebelumnya saya batalkan. Ada lagi yang bisa saya bantu?"

	replyNoContactsFound = "Mohon maaf, saya belum menemukan kontak yang sesuai. Silakan " +
		"hubungi kantor desa untuk informasi lebih lanjut."
)

// complaintConfirmation renders the created-complaint reply, referencing the
// collected data so the user sees what was filed.
func complaintConfirmation(code string, draft datatypes.ComplaintDraft, attachmentCount int) string {
	var sb strings.Builder
	sb.WriteString("Pengaduan Anda sudah kami terima.\n")
	fmt.Fprintf(&sb, "Kode laporan: %s\n", code)
	if draft.Category != "" {
		fmt.Fprintf(&sb, "Kategori: %s\n", draft.Category)
	}
	if draft.Description != "" {
		fmt.Fprintf(&sb, "Laporan: %s\n", draft.Description)
	}
	if draft.Address != "" {
		fmt.Fprintf(&sb, "Lokasi: %s\n", draft.Address)
	}
	if attachmentCount > 0 {
		fmt.Fprintf(&sb, "Lampiran: %d berkas\n", attachmentCount)
	}
	sb.WriteString("Simpan kode laporan untuk mengecek status. Petugas akan menindaklanjuti secepatnya.")
	return sb.String()
}

func statusReply(code string) string {
	return fmt.Sprintf("Laporan %s terdaftar dan sedang diproses petugas. "+
		"Anda akan dihubungi bila ada perkembangan. "+
		"Ketik kode laporan kapan saja untuk mengecek kembali.", code)
}

func cancelConfirmQuestion(code string) string {
	return fmt.Sprintf("Anda yakin ingin membatalkan laporan %s? Balas \"ya\" untuk "+
		"membatalkan atau \"tidak\" untuk mempertahankan laporan.", code)
}

func cancelDoneReply(code string) string {
	return fmt.Sprintf("Laporan %s sudah dibatalkan. Ada lagi yang bisa saya bantu?", code)
}

func cancelKeptReply(code string) string {
	return fmt.Sprintf("Baik, laporan %s tetap diproses.", code)
}

func contactsReply(contacts []datatypes.ContactRecord) string {
	var sb strings.Builder
	sb.WriteString("Berikut kontak yang bisa dihubungi:\n")
	for _, c := range contacts {
		fmt.Fprintf(&sb, "- %s: %s", c.Name, c.Phone)
		if c.Notes != "" {
			fmt.Fprintf(&sb, " (%s)", c.Notes)
		}
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

func emergencyReply(contacts []datatypes.ContactRecord) string {
	var sb strings.Builder
	sb.WriteString("Untuk keadaan darurat, segera hubungi:\n")
	for _, c := range contacts {
		fmt.Fprintf(&sb, "- %s: %s\n", c.Name, c.Phone)
	}
	if len(contacts) == 0 {
		sb.WriteString("- Nomor darurat nasional: 112\n")
	}
	sb.WriteString("Tetap tenang dan utamakan keselamatan.")
	return sb.String()
}

// buildAnswerPrompt assembles the generation prompt for informational
// answers. The instructions pin the model to the supplied context; the gate
// catches what leaks through anyway.
func buildAnswerPrompt(profile *datatypes.TenantProfile, rc *datatypes.RetrievalContext, history []datatypes.Message, message string, strict bool) string {
	var sb strings.Builder

	sb.WriteString("Anda adalah asisten layanan pemerintahan desa yang ramah.\n")
	sb.WriteString("Jawab dalam Bahasa Indonesia yang singkat dan jelas.\n")
	sb.WriteString("Gunakan HANYA informasi dari konteks di bawah. Jangan mengarang jam buka, " +
		"biaya, nomor telepon, alamat, atau tautan.\n")
	if strict {
		sb.WriteString("Jawaban sebelumnya memuat klaim tanpa dasar. Jika konteks tidak memuat " +
			"jawabannya, katakan terus terang bahwa Anda tidak memiliki informasinya dan " +
			"sarankan menghubungi kantor desa.\n")
	}
	sb.WriteString("\n")

	if profile != nil {
		fmt.Fprintf(&sb, "Profil kantor:\nNama: %s\n", profile.Name)
		if profile.Address != "" {
			fmt.Fprintf(&sb, "Alamat: %s\n", profile.Address)
		}
		if profile.Phone != "" {
			fmt.Fprintf(&sb, "Telepon: %s\n", profile.Phone)
		}
		if profile.OfficeHours != "" {
			fmt.Fprintf(&sb, "Jam pelayanan: %s\n", profile.OfficeHours)
		}
		sb.WriteString("\n")
	}

	if rc != nil && rc.ContextString != "" {
		sb.WriteString("Konteks pengetahuan:\n")
		sb.WriteString(rc.ContextString)
		sb.WriteString("\n\n")
	} else {
		sb.WriteString("Konteks pengetahuan: (kosong)\n\n")
	}

	if len(history) > 0 {
		sb.WriteString("Riwayat percakapan:\n")
		for _, turn := range history {
			role := "Warga"
			if turn.Role == "assistant" {
				role = "Asisten"
			}
			fmt.Fprintf(&sb, "%s: %s\n", role, turn.Content)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Pertanyaan warga: %s\n", message)
	return sb.String()
}
