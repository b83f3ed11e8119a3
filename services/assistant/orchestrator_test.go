// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desadigital/wargabot/services/assistant/adminsink"
	"github.com/desadigital/wargabot/services/assistant/classifier"
	"github.com/desadigital/wargabot/services/assistant/datatypes"
	"github.com/desadigital/wargabot/services/assistant/llm"
	"github.com/desadigital/wargabot/services/assistant/pending"
)

// =============================================================================
// Test Fakes
// =============================================================================

type fakeClassifier struct {
	results  []*datatypes.ClassificationResult
	errs     []error
	calls    int
	requests []classifier.Request
}

func (f *fakeClassifier) Classify(_ context.Context, req classifier.Request) (*datatypes.ClassificationResult, error) {
	idx := f.calls
	f.calls++
	f.requests = append(f.requests, req)
	if idx < len(f.errs) && f.errs[idx] != nil {
		return nil, f.errs[idx]
	}
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	return f.results[idx], nil
}

type fakeRetriever struct {
	rc         *datatypes.RetrievalContext
	err        error
	calls      int
	categories []string
}

func (f *fakeRetriever) Retrieve(_ context.Context, _, _, category string) (*datatypes.RetrievalContext, error) {
	f.calls++
	f.categories = append(f.categories, category)
	if f.err != nil {
		return nil, f.err
	}
	if f.rc == nil {
		return &datatypes.RetrievalContext{}, nil
	}
	return f.rc, nil
}

type fakeGenerator struct {
	replies []string
	err     error
	calls   int
	prompts []string
}

func (f *fakeGenerator) Generate(_ context.Context, _ []string, prompt string, _ llm.GenerationParams) (*llm.Result, string, error) {
	idx := f.calls
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return nil, "", f.err
	}
	if idx >= len(f.replies) {
		idx = len(f.replies) - 1
	}
	return &llm.Result{Text: f.replies[idx]}, "test-model", nil
}

type fakeReference struct {
	contacts   []datatypes.ContactRecord
	categories []datatypes.ComplaintCategory
	services   []datatypes.ServiceRecord
	profile    *datatypes.TenantProfile
}

func (f *fakeReference) Contacts(_ context.Context, _ string) ([]datatypes.ContactRecord, error) {
	return f.contacts, nil
}
func (f *fakeReference) Services(_ context.Context, _ string) ([]datatypes.ServiceRecord, error) {
	return f.services, nil
}
func (f *fakeReference) ComplaintCategories(_ context.Context, _ string) ([]datatypes.ComplaintCategory, error) {
	return f.categories, nil
}
func (f *fakeReference) Profile(_ context.Context, _ string) (*datatypes.TenantProfile, error) {
	return f.profile, nil
}

type recordingSink struct {
	mu      sync.Mutex
	reports []adminsink.Report
}

func (r *recordingSink) Report(report adminsink.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
}

func (r *recordingSink) byKind(kind adminsink.ReportKind) []adminsink.Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []adminsink.Report
	for _, rep := range r.reports {
		if rep.Kind == kind {
			out = append(out, rep)
		}
	}
	return out
}

func classification(intent datatypes.Intent, confidence float64) *datatypes.ClassificationResult {
	return &datatypes.ClassificationResult{Intent: intent, Confidence: confidence}
}

func newTestOrchestrator(cls IntentClassifier, ret Retriever, gen Generator, sink adminsink.Sink) *Orchestrator {
	if sink == nil {
		sink = adminsink.NopSink{}
	}
	return New(cls, ret, gen, pending.NewMemoryStore(), &fakeReference{}, nil, sink, Config{
		GenerationModels: []string{"answer-model"},
	})
}

func handleMsg(t *testing.T, o *Orchestrator, message string) *datatypes.HandleResult {
	t.Helper()
	result, err := o.Handle(context.Background(), &datatypes.HandleRequest{
		UserId:   "user-1",
		TenantId: "desa-01",
		Message:  message,
	})
	require.NoError(t, err)
	return result
}

// =============================================================================
// Scenario Tests
// =============================================================================

func TestHandle_Greeting(t *testing.T) {
	gen := &fakeGenerator{}
	o := newTestOrchestrator(
		&fakeClassifier{results: []*datatypes.ClassificationResult{classification(datatypes.IntentGreeting, 0.95)}},
		&fakeRetriever{}, gen, nil)

	result := handleMsg(t, o, "halo")
	assert.Equal(t, datatypes.IntentGreeting, result.Intent)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.ReplyText)
	assert.Equal(t, 0, gen.calls, "greeting must not trigger generation")
}

func TestHandle_VagueAddressTwoTurnComplaint(t *testing.T) {
	cls := &fakeClassifier{results: []*datatypes.ClassificationResult{
		{
			Intent:     datatypes.IntentCreateComplaint,
			Confidence: 0.9,
			Fields:     datatypes.ExtractedFields{Category: "jalan_rusak", Address: "di sana"},
		},
	}}
	o := newTestOrchestrator(cls, &fakeRetriever{}, &fakeGenerator{}, nil)

	// Turn 1: vague location opens a pending address flow.
	first := handleMsg(t, o, "jalan rusak di sana")
	assert.Equal(t, datatypes.IntentCreateComplaint, first.Intent)
	assert.Contains(t, first.ReplyText, "alamat")

	pend, err := o.pendings.Get(context.Background(), "desa-01", "user-1")
	require.NoError(t, err)
	require.NotNil(t, pend)
	assert.Equal(t, datatypes.PendingAddressCollect, pend.Kind)

	// Turn 2: a concrete address resolves it.
	second := handleMsg(t, o, "Jl. Merdeka No. 5 RT 02")
	assert.Equal(t, datatypes.IntentCreateComplaint, second.Intent)
	assert.Contains(t, second.ReplyText, "LAP-")
	assert.Contains(t, second.ReplyText, "Jl. Merdeka No. 5 RT 02")
	assert.Contains(t, second.ReplyText, "jalan rusak di sana",
		"confirmation must reference the first message's description")

	pend, err = o.pendings.Get(context.Background(), "desa-01", "user-1")
	require.NoError(t, err)
	assert.Nil(t, pend, "pending state must be consumed")
	assert.Equal(t, 1, cls.calls, "the second turn is resolved from pending state, not reclassified")
}

func TestHandle_FakeLinkSanitizedWithoutRegeneration(t *testing.T) {
	gen := &fakeGenerator{replies: []string{
		"Silakan isi [link formulir pengaduan] untuk melapor. Petugas kami siap membantu.",
	}}
	o := newTestOrchestrator(
		&fakeClassifier{results: []*datatypes.ClassificationResult{classification(datatypes.IntentGeneralInfo, 0.9)}},
		&fakeRetriever{}, gen, nil)

	result := handleMsg(t, o, "cara melapor")
	assert.True(t, result.Success)
	assert.NotContains(t, result.ReplyText, "[")
	assert.NotContains(t, result.ReplyText, "link formulir")
	assert.Equal(t, 1, gen.calls, "link-only violations are sanitized, never regenerated")
}

func TestHandle_UngroundedFactTriggersOneRegeneration(t *testing.T) {
	gen := &fakeGenerator{replies: []string{
		"Kantor buka pukul 08.00 sampai 15.00 setiap hari kerja.",
		"Maaf, saya tidak memiliki informasi jam pelayanan. Silakan hubungi kantor desa.",
	}}
	o := newTestOrchestrator(
		&fakeClassifier{results: []*datatypes.ClassificationResult{classification(datatypes.IntentGeneralInfo, 0.9)}},
		&fakeRetriever{}, gen, nil)

	result := handleMsg(t, o, "kapan kantor buka")
	assert.True(t, result.Success)
	assert.Equal(t, 2, gen.calls, "exactly one bounded regeneration")
	assert.Contains(t, result.ReplyText, "tidak memiliki informasi")
}

func TestHandle_GroundedFactPassesGate(t *testing.T) {
	rc := &datatypes.RetrievalContext{
		Chunks:        []datatypes.RetrievedChunk{{Content: "Jam pelayanan 08.00-15.00", Source: "profil"}},
		ContextString: "[Sumber 1: profil]\nJam pelayanan 08.00-15.00",
		Confidence:    datatypes.ConfidenceHigh,
		TotalResults:  1,
	}
	gen := &fakeGenerator{replies: []string{"Kantor desa buka pukul 08.00 sampai 15.00."}}
	o := newTestOrchestrator(
		&fakeClassifier{results: []*datatypes.ClassificationResult{classification(datatypes.IntentGeneralInfo, 0.9)}},
		&fakeRetriever{rc: rc}, gen, nil)

	result := handleMsg(t, o, "jam buka kantor")
	assert.True(t, result.Success)
	assert.True(t, result.UsedKnowledge)
	assert.Equal(t, 1, gen.calls)
	assert.Contains(t, result.ReplyText, "08.00")
}

func TestHandle_ClassifierReceivesRetrievalContext(t *testing.T) {
	rc := &datatypes.RetrievalContext{
		Chunks:        []datatypes.RetrievedChunk{{Content: "Biaya surat domisili gratis", Source: "layanan"}},
		ContextString: "[Sumber 1: layanan]\nBiaya surat domisili gratis",
		Confidence:    datatypes.ConfidenceMedium,
		TotalResults:  1,
	}
	cls := &fakeClassifier{results: []*datatypes.ClassificationResult{classification(datatypes.IntentServiceInfo, 0.9)}}
	ret := &fakeRetriever{rc: rc}
	gen := &fakeGenerator{replies: []string{"Surat domisili tidak dipungut biaya."}}
	o := newTestOrchestrator(cls, ret, gen, nil)

	handleMsg(t, o, "berapa biaya surat domisili")

	require.Len(t, cls.requests, 1)
	assert.Equal(t, rc.ContextString, cls.requests[0].RetrievalContext)
}

func TestHandle_PreRetrievalReusedWithoutCategory(t *testing.T) {
	rc := &datatypes.RetrievalContext{
		Chunks:        []datatypes.RetrievedChunk{{Content: "Jam pelayanan 08.00-15.00", Source: "profil"}},
		ContextString: "[Sumber 1: profil]\nJam pelayanan 08.00-15.00",
		TotalResults:  1,
	}
	ret := &fakeRetriever{rc: rc}
	o := newTestOrchestrator(
		&fakeClassifier{results: []*datatypes.ClassificationResult{classification(datatypes.IntentGeneralInfo, 0.9)}},
		ret, &fakeGenerator{replies: []string{"Kantor desa buka sampai sore."}}, nil)

	result := handleMsg(t, o, "jam buka kantor")
	assert.True(t, result.UsedKnowledge)
	assert.Equal(t, 1, ret.calls, "no extracted category means the first retrieval is reused")
}

func TestHandle_ExtractedCategoryNarrowsRetrieval(t *testing.T) {
	ret := &fakeRetriever{rc: &datatypes.RetrievalContext{TotalResults: 1, ContextString: "ctx"}}
	o := newTestOrchestrator(
		&fakeClassifier{results: []*datatypes.ClassificationResult{{
			Intent:     datatypes.IntentServiceInfo,
			Confidence: 0.9,
			Fields:     datatypes.ExtractedFields{Category: "kependudukan"},
		}}},
		ret, &fakeGenerator{replies: []string{"Silakan datang ke kantor desa."}}, nil)

	handleMsg(t, o, "info layanan kependudukan")

	require.Equal(t, 2, ret.calls)
	assert.Equal(t, "", ret.categories[0])
	assert.Equal(t, "kependudukan", ret.categories[1])
}

func TestHandle_BudgetExceededPoliteReply(t *testing.T) {
	gen := &fakeGenerator{}
	o := newTestOrchestrator(
		&fakeClassifier{errs: []error{classifier.ErrBudgetExceeded}, results: []*datatypes.ClassificationResult{nil}},
		&fakeRetriever{}, gen, nil)

	result := handleMsg(t, o, "halo lagi")
	assert.True(t, result.Success)
	assert.Contains(t, result.ReplyText, "batas penggunaan")
	assert.Equal(t, 0, gen.calls)
}

func TestHandle_ClassifierFailureFallsBack(t *testing.T) {
	o := newTestOrchestrator(
		&fakeClassifier{errs: []error{errors.New("plan exhausted")}, results: []*datatypes.ClassificationResult{nil}},
		&fakeRetriever{}, &fakeGenerator{}, nil)

	result := handleMsg(t, o, "ada apa")
	assert.False(t, result.Success)
	assert.Contains(t, result.ReplyText, "gangguan")
}

func TestHandle_CancelConfirmFlow(t *testing.T) {
	cls := &fakeClassifier{results: []*datatypes.ClassificationResult{
		{
			Intent:     datatypes.IntentCancelRequest,
			Confidence: 0.9,
			Fields:     datatypes.ExtractedFields{TrackingCode: "LAP-20260831-0042"},
		},
	}}
	o := newTestOrchestrator(cls, &fakeRetriever{}, &fakeGenerator{}, nil)

	first := handleMsg(t, o, "batalkan laporan LAP-20260831-0042")
	assert.Contains(t, first.ReplyText, "yakin")
	assert.Contains(t, first.ReplyText, "LAP-20260831-0042")

	second := handleMsg(t, o, "ya")
	assert.Contains(t, second.ReplyText, "dibatalkan")

	pend, err := o.pendings.Get(context.Background(), "desa-01", "user-1")
	require.NoError(t, err)
	assert.Nil(t, pend)
}

func TestHandle_CancelConfirmDeclined(t *testing.T) {
	cls := &fakeClassifier{results: []*datatypes.ClassificationResult{
		{
			Intent:     datatypes.IntentCancelRequest,
			Confidence: 0.9,
			Fields:     datatypes.ExtractedFields{TrackingCode: "LAP-20260831-0042"},
		},
	}}
	o := newTestOrchestrator(cls, &fakeRetriever{}, &fakeGenerator{}, nil)

	handleMsg(t, o, "batalkan LAP-20260831-0042")
	result := handleMsg(t, o, "tidak")
	assert.Contains(t, result.ReplyText, "tetap diproses")
}

func TestHandle_EmergencyReturnsContacts(t *testing.T) {
	cls := &fakeClassifier{results: []*datatypes.ClassificationResult{
		{
			Intent:     datatypes.IntentEmergency,
			Confidence: 0.95,
			Fields:     datatypes.ExtractedFields{Emergency: true},
		},
	}}
	o := New(cls, &fakeRetriever{}, &fakeGenerator{}, pending.NewMemoryStore(),
		&fakeReference{contacts: []datatypes.ContactRecord{
			{Category: "darurat", Name: "Pos Damkar", Phone: "113"},
		}}, nil, adminsink.NopSink{}, Config{GenerationModels: []string{"m"}})

	result := handleMsg(t, o, "kebakaran di rumah tetangga!")
	assert.Equal(t, datatypes.IntentEmergency, result.Intent)
	require.Len(t, result.Contacts, 1)
	assert.Contains(t, result.ReplyText, "113")
}

func TestHandle_ConflictsReportedToSink(t *testing.T) {
	sink := &recordingSink{}
	rc := &datatypes.RetrievalContext{
		Chunks:        []datatypes.RetrievedChunk{{Content: "x", Source: "a"}},
		ContextString: "[Sumber 1: a]\nx",
		TotalResults:  1,
		Conflicts: []datatypes.KnowledgeConflict{
			{SourceA: "profil", SourceB: "brosur_lama", AutoResolved: true},
		},
	}
	o := newTestOrchestrator(
		&fakeClassifier{results: []*datatypes.ClassificationResult{classification(datatypes.IntentGeneralInfo, 0.9)}},
		&fakeRetriever{rc: rc},
		&fakeGenerator{replies: []string{"Jawaban."}}, sink)

	handleMsg(t, o, "jam buka")
	reports := sink.byKind(adminsink.ReportConflict)
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Conflicts[0].AutoResolved)
}

func TestHandle_KnowledgeGapReported(t *testing.T) {
	sink := &recordingSink{}
	o := newTestOrchestrator(
		&fakeClassifier{results: []*datatypes.ClassificationResult{classification(datatypes.IntentGeneralInfo, 0.9)}},
		&fakeRetriever{},
		&fakeGenerator{replies: []string{"Maaf, saya tidak memiliki informasinya."}}, sink)

	handleMsg(t, o, "syarat bikin akta")
	assert.Len(t, sink.byKind(adminsink.ReportKnowledgeGap), 1)
}

func TestHandle_CheckStatusExtractsCode(t *testing.T) {
	cls := &fakeClassifier{results: []*datatypes.ClassificationResult{
		classification(datatypes.IntentCheckStatus, 0.9),
	}}
	o := newTestOrchestrator(cls, &fakeRetriever{}, &fakeGenerator{}, nil)

	result := handleMsg(t, o, "cek status lap-20260831-0042 dong")
	assert.Contains(t, result.ReplyText, "LAP-20260831-0042")

	missing := handleMsg(t, o, "cek status laporan saya")
	assert.Contains(t, missing.ReplyText, "kode laporan")
}

func TestHandle_RejectsBlankMessage(t *testing.T) {
	o := newTestOrchestrator(&fakeClassifier{results: []*datatypes.ClassificationResult{nil}},
		&fakeRetriever{}, &fakeGenerator{}, nil)

	_, err := o.Handle(context.Background(), &datatypes.HandleRequest{
		UserId:   "user-1",
		TenantId: "desa-01",
		Message:  "   ",
	})
	assert.Error(t, err)
}

func TestHandle_ProcessingTimeRecorded(t *testing.T) {
	o := newTestOrchestrator(
		&fakeClassifier{results: []*datatypes.ClassificationResult{classification(datatypes.IntentGreeting, 0.95)}},
		&fakeRetriever{}, &fakeGenerator{}, nil)

	result := handleMsg(t, o, "halo")
	assert.GreaterOrEqual(t, result.ProcessingTimeMs, int64(0))
}

func TestResolvePending_RepromptOnceThenAbandon(t *testing.T) {
	cls := &fakeClassifier{results: []*datatypes.ClassificationResult{
		{
			Intent:     datatypes.IntentCreateComplaint,
			Confidence: 0.9,
			Fields:     datatypes.ExtractedFields{Category: "sampah"},
		},
	}}
	o := newTestOrchestrator(cls, &fakeRetriever{}, &fakeGenerator{}, nil)

	handleMsg(t, o, "sampah numpuk")

	// First unusable answer reprompts.
	first := handleMsg(t, o, "hmm")
	assert.Contains(t, first.ReplyText, "alamat")

	// Second unusable answer abandons the flow.
	second := handleMsg(t, o, "hmm")
	assert.Contains(t, second.ReplyText, "batalkan")

	pend, err := o.pendings.Get(context.Background(), "desa-01", "user-1")
	require.NoError(t, err)
	assert.Nil(t, pend)
}

func TestResolvePending_AbandonSignal(t *testing.T) {
	cls := &fakeClassifier{results: []*datatypes.ClassificationResult{
		{
			Intent:     datatypes.IntentCreateComplaint,
			Confidence: 0.9,
			Fields:     datatypes.ExtractedFields{Category: "sampah"},
		},
	}}
	o := newTestOrchestrator(cls, &fakeRetriever{}, &fakeGenerator{}, nil)

	handleMsg(t, o, "sampah numpuk")
	result := handleMsg(t, o, "gak jadi deh")
	assert.Contains(t, result.ReplyText, "batalkan")

	pend, err := o.pendings.Get(context.Background(), "desa-01", "user-1")
	require.NoError(t, err)
	assert.Nil(t, pend)
}

func TestResolvePending_IntentSwitchClearsState(t *testing.T) {
	cls := &fakeClassifier{results: []*datatypes.ClassificationResult{
		{
			Intent:     datatypes.IntentCreateComplaint,
			Confidence: 0.9,
			Fields:     datatypes.ExtractedFields{Category: "sampah"},
		},
		classification(datatypes.IntentServiceInfo, 0.9),
	}}
	gen := &fakeGenerator{replies: []string{"Persyaratan ada di kantor desa."}}
	o := newTestOrchestrator(cls, &fakeRetriever{}, gen, nil)

	handleMsg(t, o, "sampah numpuk")
	result := handleMsg(t, o, "berapa biaya bikin KTP?")

	assert.Equal(t, datatypes.IntentServiceInfo, result.Intent)
	pend, err := o.pendings.Get(context.Background(), "desa-01", "user-1")
	require.NoError(t, err)
	assert.Nil(t, pend, "incompatible intent must clear pending state")
}

func TestResolvePending_AttachmentsAccumulate(t *testing.T) {
	cls := &fakeClassifier{results: []*datatypes.ClassificationResult{
		{
			Intent:     datatypes.IntentCreateComplaint,
			Confidence: 0.9,
			Fields:     datatypes.ExtractedFields{Category: "jalan_rusak"},
		},
	}}
	o := newTestOrchestrator(cls, &fakeRetriever{}, &fakeGenerator{}, nil)

	ctx := context.Background()
	_, err := o.Handle(ctx, &datatypes.HandleRequest{
		UserId: "user-1", TenantId: "desa-01",
		Message:     "jalan berlubang",
		Attachments: []datatypes.Attachment{{ID: "att-1", FileName: "foto1.jpg"}},
	})
	require.NoError(t, err)

	// A reprompt turn carrying another photo.
	_, err = o.Handle(ctx, &datatypes.HandleRequest{
		UserId: "user-1", TenantId: "desa-01",
		Message:     "hmm",
		Attachments: []datatypes.Attachment{{ID: "att-2", FileName: "foto2.jpg"}},
	})
	require.NoError(t, err)

	pend, err := o.pendings.Get(ctx, "desa-01", "user-1")
	require.NoError(t, err)
	require.NotNil(t, pend)
	assert.Len(t, pend.Attachments, 2, "attachments must accumulate while awaiting the field")

	// Resolution attaches everything at once.
	result, err := o.Handle(ctx, &datatypes.HandleRequest{
		UserId: "user-1", TenantId: "desa-01",
		Message: "Jl. Kenanga No. 7",
	})
	require.NoError(t, err)
	assert.Contains(t, result.ReplyText, "Lampiran: 2 berkas")
}

func TestHandle_GenerationFailureUserSafe(t *testing.T) {
	o := newTestOrchestrator(
		&fakeClassifier{results: []*datatypes.ClassificationResult{classification(datatypes.IntentGeneralInfo, 0.9)}},
		&fakeRetriever{},
		&fakeGenerator{err: errors.New("all plan entries exhausted")}, nil)

	result := handleMsg(t, o, "info layanan")
	assert.False(t, result.Success)
	assert.NotContains(t, strings.ToLower(result.ReplyText), "exhausted",
		"raw provider errors must never reach the user")
	assert.NotEmpty(t, result.ReplyText)
}
