// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeClassification_NestedFields(t *testing.T) {
	raw := `{
		"intent": "CREATE_COMPLAINT",
		"confidence": 0.9,
		"fields": {
			"name": "Budi Santoso",
			"phone": "081234567890",
			"address": "Jl. Merdeka No. 5",
			"tracking_code": "LAP-20260831-0042",
			"category": "jalan_rusak",
			"emergency": true
		}
	}`
	result, err := DecodeClassification([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, IntentCreateComplaint, result.Intent)
	assert.Equal(t, "Budi Santoso", result.Fields.Name)
	assert.Equal(t, "081234567890", result.Fields.Phone)
	assert.Equal(t, "Jl. Merdeka No. 5", result.Fields.Address)
	assert.Equal(t, "LAP-20260831-0042", result.Fields.TrackingCode)
	assert.Equal(t, "jalan_rusak", result.Fields.Category)
	assert.True(t, result.Fields.Emergency)
}

func TestDecodeClassification_FlatFieldsFallback(t *testing.T) {
	// Older prompt revisions emitted slots flat at the top level.
	raw := `{
		"intent": "CHECK_STATUS",
		"confidence": 0.8,
		"tracking_code": "LAP-20260815-0007",
		"address": "RT 02 RW 03"
	}`
	result, err := DecodeClassification([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "LAP-20260815-0007", result.Fields.TrackingCode)
	assert.Equal(t, "RT 02 RW 03", result.Fields.Address)
}

func TestDecodeClassification_NestedWinsOverFlat(t *testing.T) {
	raw := `{
		"intent": "CHECK_STATUS",
		"confidence": 0.8,
		"tracking_code": "LAP-00000000-0000",
		"fields": {"tracking_code": "LAP-20260831-0042"}
	}`
	result, err := DecodeClassification([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "LAP-20260831-0042", result.Fields.TrackingCode)
}

func TestDecodeClassification_LegacyAliases(t *testing.T) {
	raw := `{
		"intent": "CHECK_STATUS",
		"confidence": 0.7,
		"kode_laporan": "LAP-20260801-0003",
		"kategori": "sampah",
		"need_more_context": true
	}`
	result, err := DecodeClassification([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "LAP-20260801-0003", result.Fields.TrackingCode)
	assert.Equal(t, "sampah", result.Fields.Category)
	assert.True(t, result.NeedsContext)
}

func TestDecodeClassification_ConfidenceClamped(t *testing.T) {
	result, err := DecodeClassification([]byte(`{"intent": "GREETING", "confidence": 1.7}`))
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.Confidence)

	result, err = DecodeClassification([]byte(`{"intent": "GREETING", "confidence": -0.2}`))
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.Confidence)
}

func TestDecodeClassification_MissingMandatoryFields(t *testing.T) {
	_, err := DecodeClassification([]byte(`{"confidence": 0.9}`))
	assert.Error(t, err)

	_, err = DecodeClassification([]byte(`{"intent": "GREETING"}`))
	assert.Error(t, err)

	_, err = DecodeClassification([]byte(`not json`))
	assert.Error(t, err)
}
