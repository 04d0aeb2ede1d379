package pipeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"clinsight/internal/audit"
	"clinsight/internal/guardrail"
	"clinsight/internal/index"
	"clinsight/internal/retrieval"
	"clinsight/models"
)

// mockProvider returns canned embeddings and summaries and counts calls so
// tests can prove the PHI gate short-circuits before any model traffic.
type mockProvider struct {
	mu             sync.Mutex
	embedCalls     int
	summarizeCalls int
	translateCalls int

	vectors      map[string][]float32
	result       models.SummaryResult
	summarizeErr error
	translateErr error
}

func (m *mockProvider) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedCalls++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := m.vectors[text]; ok {
			out[i] = v
		} else {
			out[i] = []float32{1, 0}
		}
	}
	return out, nil
}

func (m *mockProvider) Summarize(context.Context, string, []models.EvidenceHit) (models.SummaryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summarizeCalls++
	if m.summarizeErr != nil {
		return models.SummaryResult{}, m.summarizeErr
	}
	return m.result, nil
}

func (m *mockProvider) Translate(_ context.Context, text, lang string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.translateCalls++
	if m.translateErr != nil {
		return "", m.translateErr
	}
	return "[" + lang + "] " + text, nil
}

func (m *mockProvider) ModelVersion() string { return "mock/v1" }

// Corpus geometry: documents placed so a query along (1,0) scores exactly
// 0.81, 0.60 and 0.55 against them.
func testIndex(t *testing.T) *index.Index {
	t.Helper()
	embed := func(s float64) []float32 {
		return []float32{float32(s), float32(math.Sqrt(1 - s*s))}
	}
	docs := []models.EvidenceDocument{
		{ID: "d1", Title: "Metformin guidance", Ref: "g-1", Snippet: "dosing", Embedding: embed(0.81)},
		{ID: "d2", Title: "Glycemic targets", Ref: "g-2", Snippet: "targets", Embedding: embed(0.60)},
		{ID: "d3", Title: "Follow-up panels", Ref: "g-3", Snippet: "intervals", Embedding: embed(0.55)},
	}
	ix, err := index.New(docs, 2, 3)
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	return ix
}

func ptr(f float64) *float64 { return &f }

func newTestPipeline(t *testing.T, prov *mockProvider, store *audit.MemoryStore) (*Pipeline, *audit.Writer) {
	t.Helper()
	auditor := audit.NewWriter(store, []byte("test-key"), nil, nil)
	p := New(
		retrieval.NewEngine(testIndex(t), prov),
		prov,
		guardrail.NewEvaluator(0.6),
		guardrail.NewDetector(0.75, 0.30),
		auditor,
		Options{MaxNoteLength: 10000, Languages: []string{"hi", "ta"}},
		nil,
		nil,
	)
	return p, auditor
}

const cleanNote = "Patient with type 2 diabetes, elevated HbA1c. Current therapy reviewed; renal function stable."

func TestProcessNoteEndToEnd(t *testing.T) {
	prov := &mockProvider{
		result: models.SummaryResult{
			Summary: "T2DM with suboptimal control.",
			Actions: []models.ActionDraft{
				{Text: "Increase metformin to 1000mg twice daily", Category: models.CategoryMedication, Severity: models.SeverityHigh},
			},
			ModelScore: ptr(0.7),
		},
	}
	store := audit.NewMemoryStore()
	p, auditor := newTestPipeline(t, prov, store)

	resp, err := p.ProcessNote(context.Background(), models.NoteRequest{ClinicalNote: cleanNote, LanguagePreference: "ta"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if resp.RequestID == "" {
		t.Fatalf("request id not assigned")
	}
	if len(resp.Sources) != 3 {
		t.Fatalf("expected 3 sources, got %d", len(resp.Sources))
	}
	if resp.Sources[0].DocID != "d1" {
		t.Fatalf("expected d1 as best source, got %s", resp.Sources[0].DocID)
	}
	if len(resp.Actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(resp.Actions))
	}

	action := resp.Actions[0]
	want := 0.6*0.81 + 0.4*0.7 // 0.766
	if math.Abs(action.Confidence-want) > 1e-6 {
		t.Fatalf("action confidence = %v, want %v", action.Confidence, want)
	}
	if !action.ClinicianReviewRequired {
		t.Fatalf("medication action must require clinician review")
	}
	if action.ID == "" {
		t.Fatalf("action id not assigned")
	}
	if len(action.Evidence) != 3 {
		t.Fatalf("expected 3 evidence hits, got %d", len(action.Evidence))
	}
	if math.Abs(resp.Confidence-want) > 1e-6 {
		t.Fatalf("overall confidence = %v, want %v", resp.Confidence, want)
	}
	if resp.HallucinationAlert {
		t.Fatalf("well-grounded response must not alert")
	}

	for _, lang := range []string{"hi", "ta"} {
		if resp.PatientSummary[lang] == "" {
			t.Fatalf("missing %s patient summary", lang)
		}
	}
	if len(resp.PatientSummary) != 2 {
		t.Fatalf("preference overlapping configured languages must not duplicate: %v", resp.PatientSummary)
	}

	entries := store.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(entries))
	}
	if !auditor.Verify(entries[0]) {
		t.Fatalf("audit entry signature must verify")
	}
	if entries[0].RequestID != resp.RequestID {
		t.Fatalf("audit entry bound to wrong request")
	}
}

func TestProcessNotePHIShortCircuit(t *testing.T) {
	prov := &mockProvider{}
	store := audit.NewMemoryStore()
	p, _ := newTestPipeline(t, prov, store)

	_, err := p.ProcessNote(context.Background(), models.NoteRequest{ClinicalNote: "Dr. Mehta saw the patient, MRN: 556677"})
	var phiErr *PhiError
	if !errors.As(err, &phiErr) {
		t.Fatalf("expected PhiError, got %v", err)
	}
	if len(phiErr.Kinds) == 0 {
		t.Fatalf("expected detected kinds on error")
	}

	if prov.embedCalls != 0 || prov.summarizeCalls != 0 || prov.translateCalls != 0 {
		t.Fatalf("blocked note must never reach the provider: embed=%d summarize=%d translate=%d",
			prov.embedCalls, prov.summarizeCalls, prov.translateCalls)
	}

	entries := store.Entries()
	if len(entries) != 1 {
		t.Fatalf("rejections must still be audited, got %d entries", len(entries))
	}
}

func TestProcessNoteValidation(t *testing.T) {
	prov := &mockProvider{}
	p, _ := newTestPipeline(t, prov, audit.NewMemoryStore())

	var valErr *ValidationError
	if _, err := p.ProcessNote(context.Background(), models.NoteRequest{}); !errors.As(err, &valErr) {
		t.Fatalf("empty note: expected ValidationError, got %v", err)
	}

	long := make([]byte, 10001)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := p.ProcessNote(context.Background(), models.NoteRequest{ClinicalNote: string(long)}); !errors.As(err, &valErr) {
		t.Fatalf("oversized note: expected ValidationError, got %v", err)
	}

	req := models.NoteRequest{ClinicalNote: cleanNote, LanguagePreference: "klingon"}
	if _, err := p.ProcessNote(context.Background(), req); !errors.As(err, &valErr) {
		t.Fatalf("bad language code: expected ValidationError, got %v", err)
	}
}

func TestProcessNoteGenerationFailure(t *testing.T) {
	prov := &mockProvider{summarizeErr: errors.New("model overloaded")}
	p, _ := newTestPipeline(t, prov, audit.NewMemoryStore())

	_, err := p.ProcessNote(context.Background(), models.NoteRequest{ClinicalNote: cleanNote})
	var extErr *ExternalServiceError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected ExternalServiceError, got %v", err)
	}
	if extErr.Stage != "generation" {
		t.Fatalf("expected generation stage, got %s", extErr.Stage)
	}
}

func TestProcessNoteCoercesUnknownCategoryAndSeverity(t *testing.T) {
	prov := &mockProvider{
		result: models.SummaryResult{
			Summary: "summary",
			Actions: []models.ActionDraft{
				{Text: "Repeat labs", Category: "surgical", Severity: "extreme"},
			},
		},
	}
	p, _ := newTestPipeline(t, prov, audit.NewMemoryStore())

	resp, err := p.ProcessNote(context.Background(), models.NoteRequest{ClinicalNote: cleanNote})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if resp.Actions[0].Category != models.CategoryFollowup {
		t.Fatalf("unknown category should coerce to followup, got %s", resp.Actions[0].Category)
	}
	if resp.Actions[0].Severity != models.SeverityMedium {
		t.Fatalf("unknown severity should coerce to medium, got %s", resp.Actions[0].Severity)
	}
}

func TestProcessNoteHallucinationAlert(t *testing.T) {
	// One of two actions embeds far from every corpus document.
	poor := []float32{-0.5, 0.866}
	prov := &mockProvider{
		vectors: map[string][]float32{"Consider experimental therapy": poor},
		result: models.SummaryResult{
			Summary: "summary",
			Actions: []models.ActionDraft{
				{Text: "Continue current regimen", Category: models.CategoryLifestyle, Severity: models.SeverityLow},
				{Text: "Consider experimental therapy", Category: models.CategoryTreatment, Severity: models.SeverityHigh},
			},
			ModelScore: ptr(0.7),
		},
	}
	p, _ := newTestPipeline(t, prov, audit.NewMemoryStore())

	resp, err := p.ProcessNote(context.Background(), models.NoteRequest{ClinicalNote: cleanNote})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !resp.HallucinationAlert {
		t.Fatalf("half the actions poorly grounded must alert")
	}
	if resp.Actions[0].Text != "Continue current regimen" || resp.Actions[1].Text != "Consider experimental therapy" {
		t.Fatalf("action order must match generation order: %v, %v", resp.Actions[0].Text, resp.Actions[1].Text)
	}
}

func TestProcessNoteActionOrderStable(t *testing.T) {
	drafts := []models.ActionDraft{
		{Text: "Action one", Category: models.CategoryLifestyle},
		{Text: "Action two", Category: models.CategoryDiagnostic},
		{Text: "Action three", Category: models.CategoryFollowup},
		{Text: "Action four", Category: models.CategoryLifestyle},
	}
	prov := &mockProvider{result: models.SummaryResult{Summary: "s", Actions: drafts}}
	p, _ := newTestPipeline(t, prov, audit.NewMemoryStore())

	for i := 0; i < 10; i++ {
		resp, err := p.ProcessNote(context.Background(), models.NoteRequest{ClinicalNote: cleanNote})
		if err != nil {
			t.Fatalf("process %d: %v", i, err)
		}
		for j, draft := range drafts {
			if resp.Actions[j].Text != draft.Text {
				t.Fatalf("run %d: action %d is %q, want %q", i, j, resp.Actions[j].Text, draft.Text)
			}
		}
	}
}
