// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// ContactRecord is one entry from the tenant's contact directory.
type ContactRecord struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Notes    string `json:"notes,omitempty"`
}

// ServiceRecord is one administrative service the tenant offers
// (e.g. surat keterangan domisili).
type ServiceRecord struct {
	Code         string   `json:"code"`
	Name         string   `json:"name"`
	Requirements []string `json:"requirements,omitempty"`
	Fee          string   `json:"fee,omitempty"`
	Duration     string   `json:"duration,omitempty"`
}

// ComplaintCategory is one entry of the complaint taxonomy.
type ComplaintCategory struct {
	Code     string   `json:"code"`
	Name     string   `json:"name"`
	Keywords []string `json:"keywords,omitempty"`
}

// TenantProfile carries the authoritative facts about one village office.
// When a profile row surfaces in retrieval results it overrides conflicting
// knowledge chunks.
type TenantProfile struct {
	TenantId    string `json:"tenant_id"`
	Name        string `json:"name"`
	Address     string `json:"address"`
	Phone       string `json:"phone"`
	OfficeHours string `json:"office_hours"`
}
