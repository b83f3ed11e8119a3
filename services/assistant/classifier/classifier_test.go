// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package classifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desadigital/wargabot/services/assistant/datatypes"
	"github.com/desadigital/wargabot/services/assistant/llm"
)

// fakeGenerator returns canned responses keyed by the model list it is
// called with, and records every prompt.
type fakeGenerator struct {
	responses map[string]string // key: first model in the list
	errs      map[string]error
	prompts   []string
	calls     int
}

func (f *fakeGenerator) Generate(_ context.Context, models []string, prompt string, _ llm.GenerationParams) (*llm.Result, string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	key := models[0]
	if err, ok := f.errs[key]; ok {
		return nil, "", err
	}
	return &llm.Result{Text: f.responses[key]}, key, nil
}

func testConfig() Config {
	return Config{
		LightModels: []string{"light-model"},
		DeepModels:  []string{"deep-model"},
	}
}

func freshBudget() *Budget {
	return NewBudget(BudgetConfig{CallsPerWindow: 20, Window: 10 * time.Minute})
}

func TestClassify_GreetingStaysLight(t *testing.T) {
	gen := &fakeGenerator{responses: map[string]string{
		"light-model": `{"intent": "GREETING", "confidence": 0.95}`,
	}}
	c := New(gen, freshBudget(), testConfig())

	result, err := c.Classify(context.Background(), Request{
		UserId:   "user-1",
		TenantId: "desa-01",
		Message:  "halo",
	})
	require.NoError(t, err)
	assert.Equal(t, datatypes.IntentGreeting, result.Intent)
	assert.GreaterOrEqual(t, result.Confidence, 0.9)
	assert.False(t, result.DeepPass)
	assert.Equal(t, 1, gen.calls, "a confident greeting needs exactly one model call")
}

func TestClassify_DeepTriggerForcesDeep(t *testing.T) {
	gen := &fakeGenerator{responses: map[string]string{
		"deep-model": `{"intent": "SERVICE_INFO", "confidence": 0.85}`,
	}}
	c := New(gen, freshBudget(), testConfig())

	result, err := c.Classify(context.Background(), Request{
		UserId:  "user-1",
		Message: "berapa biaya membuat KTP?",
	})
	require.NoError(t, err)
	assert.Equal(t, datatypes.IntentServiceInfo, result.Intent)
	assert.True(t, result.DeepPass)
	assert.Equal(t, 1, gen.calls, "trigger words go straight to deep")
}

func TestClassify_LongMessageForcesDeep(t *testing.T) {
	gen := &fakeGenerator{responses: map[string]string{
		"deep-model": `{"intent": "CREATE_COMPLAINT", "confidence": 0.8}`,
	}}
	c := New(gen, freshBudget(), testConfig())

	long := "tolong pak di depan rumah saya ada pohon tumbang besar sekali menutupi seluruh badan jalan sejak semalam belum ada yang menangani"
	result, err := c.Classify(context.Background(), Request{UserId: "u", Message: long})
	require.NoError(t, err)
	assert.True(t, result.DeepPass)
}

func TestClassify_LowConfidenceEscalatesToDeep(t *testing.T) {
	gen := &fakeGenerator{responses: map[string]string{
		"light-model": `{"intent": "UNKNOWN", "confidence": 0.4}`,
		"deep-model":  `{"intent": "CHECK_STATUS", "confidence": 0.9, "fields": {"tracking_code": "LAP-20260831-0001"}}`,
	}}
	c := New(gen, freshBudget(), testConfig())

	result, err := c.Classify(context.Background(), Request{UserId: "u", Message: "sudah sampai mana"})
	require.NoError(t, err)
	assert.Equal(t, datatypes.IntentCheckStatus, result.Intent)
	assert.True(t, result.DeepPass)
	assert.Equal(t, "LAP-20260831-0001", result.Fields.TrackingCode)
	assert.Equal(t, 2, gen.calls)
}

func TestClassify_NeedsContextEscalates(t *testing.T) {
	gen := &fakeGenerator{responses: map[string]string{
		"light-model": `{"intent": "GENERAL_INFO", "confidence": 0.9, "needs_context": true}`,
		"deep-model":  `{"intent": "SERVICE_INFO", "confidence": 0.85}`,
	}}
	c := New(gen, freshBudget(), testConfig())

	result, err := c.Classify(context.Background(), Request{UserId: "u", Message: "itu yang kemarin"})
	require.NoError(t, err)
	assert.Equal(t, datatypes.IntentServiceInfo, result.Intent)
	assert.Equal(t, 2, gen.calls)
}

func TestClassify_DeepFailureFallsBackToLight(t *testing.T) {
	gen := &fakeGenerator{
		responses: map[string]string{
			"light-model": `{"intent": "GENERAL_INFO", "confidence": 0.5}`,
		},
		errs: map[string]error{
			"deep-model": errors.New("all credentials exhausted"),
		},
	}
	c := New(gen, freshBudget(), testConfig())

	result, err := c.Classify(context.Background(), Request{UserId: "u", Message: "info dong"})
	require.NoError(t, err)
	assert.Equal(t, datatypes.IntentGeneralInfo, result.Intent)
	assert.False(t, result.DeepPass)
}

func TestClassify_ParseFailureEscalates(t *testing.T) {
	gen := &fakeGenerator{responses: map[string]string{
		"light-model": `maaf, saya tidak bisa membantu`,
		"deep-model":  "```json\n{\"intent\": \"GREETING\", \"confidence\": 0.9}\n```",
	}}
	c := New(gen, freshBudget(), testConfig())

	result, err := c.Classify(context.Background(), Request{UserId: "u", Message: "hei"})
	require.NoError(t, err)
	assert.Equal(t, datatypes.IntentGreeting, result.Intent)
	assert.True(t, result.DeepPass)
}

func TestClassify_BudgetExceeded(t *testing.T) {
	gen := &fakeGenerator{responses: map[string]string{
		"light-model": `{"intent": "GREETING", "confidence": 0.95}`,
	}}
	budget := NewBudget(BudgetConfig{CallsPerWindow: 2, Window: time.Hour})
	c := New(gen, budget, testConfig())

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := c.Classify(ctx, Request{UserId: "greedy", Message: "halo"})
		require.NoError(t, err)
	}

	_, err := c.Classify(ctx, Request{UserId: "greedy", Message: "halo"})
	assert.ErrorIs(t, err, ErrBudgetExceeded)
	assert.Equal(t, 2, gen.calls, "no model call past the budget")

	// Other users are unaffected.
	_, err = c.Classify(ctx, Request{UserId: "other", Message: "halo"})
	assert.NoError(t, err)
}

func TestClassify_LegacyIntentNamesNormalized(t *testing.T) {
	gen := &fakeGenerator{responses: map[string]string{
		"light-model": `{"intent": "CONTACT_REQUEST", "confidence": 0.9}`,
	}}
	c := New(gen, freshBudget(), testConfig())

	result, err := c.Classify(context.Background(), Request{UserId: "u", Message: "nomor pak rt"})
	require.NoError(t, err)
	assert.Equal(t, datatypes.IntentContactInfo, result.Intent)
}

func TestNeedsDeepPass(t *testing.T) {
	tests := []struct {
		message string
		want    bool
	}{
		{"halo", false},
		{"terima kasih", false},
		{"bagaimana cara membuat KTP", true},
		{"berapa biayanya", true},
		{"syarat surat pindah apa saja", true},
		{"satu dua tiga empat lima enam tujuh delapan sembilan sepuluh sebelas dua belas tiga belas", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, needsDeepPass(tt.message), "message: %s", tt.message)
	}
}

func TestParseModelOutput_Repair(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"plain json", `{"intent": "GREETING", "confidence": 0.9}`, false},
		{"fenced json", "```json\n{\"intent\": \"GREETING\", \"confidence\": 0.9}\n```", false},
		{"fence without tag", "```\n{\"intent\": \"GREETING\", \"confidence\": 0.9}\n```", false},
		{"leading chatter", "Berikut hasilnya: {\"intent\": \"GREETING\", \"confidence\": 0.9} semoga membantu", false},
		{"no json", "maaf saya tidak mengerti", true},
		{"missing confidence", `{"intent": "GREETING"}`, true},
		{"missing intent", `{"confidence": 0.9}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseModelOutput(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBudget_Remaining(t *testing.T) {
	budget := NewBudget(BudgetConfig{CallsPerWindow: 3, Window: time.Hour})
	assert.Equal(t, 3, budget.Remaining("fresh"))

	require.NoError(t, budget.Spend("u"))
	assert.Equal(t, 2, budget.Remaining("u"))
}
