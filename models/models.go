package models

import "time"

// Action categories produced by the summarization backend. The set is closed;
// anything else coming back from the model is coerced to CategoryFollowup.
const (
	CategoryMedication = "medication"
	CategoryTreatment  = "treatment"
	CategoryDiagnostic = "diagnostic"
	CategoryLifestyle  = "lifestyle"
	CategoryFollowup   = "followup"
)

// Severity levels for action items.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// EvidenceHitsPerAction is the fixed size of every evidence set attached to an
// action or returned by retrieval.
const EvidenceHitsPerAction = 3

// ValidCategory reports whether c belongs to the closed category set.
func ValidCategory(c string) bool {
	switch c {
	case CategoryMedication, CategoryTreatment, CategoryDiagnostic, CategoryLifestyle, CategoryFollowup:
		return true
	}
	return false
}

// NoteRequest is the inbound clinical note. The raw text lives only for the
// duration of one request and is never persisted.
type NoteRequest struct {
	ClinicalNote       string `json:"clinical_note"`
	LanguagePreference string `json:"language_preference,omitempty"`
	RequestID          string `json:"request_id,omitempty"`
}

// EvidenceDocument is one corpus entry with its embedding. The corpus is built
// offline and loaded read-only at process start.
type EvidenceDocument struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Ref       string    `json:"ref"`
	Snippet   string    `json:"snippet"`
	Embedding []float32 `json:"embedding"`
}

// EvidenceHit is a scored reference to a corpus document for a specific query.
type EvidenceHit struct {
	DocID            string  `json:"doc_id"`
	Title            string  `json:"title"`
	Ref              string  `json:"ref"`
	Snippet          string  `json:"snippet"`
	CosineSimilarity float64 `json:"cosine_similarity"`
}

// ActionItem is a recommended action enriched with evidence, confidence and
// the clinician-review flag. It is not mutated after enrichment.
type ActionItem struct {
	ID                      string        `json:"id"`
	Text                    string        `json:"text"`
	Category                string        `json:"category"`
	Severity                string        `json:"severity"`
	Confidence              float64       `json:"confidence"`
	ClinicianReviewRequired bool          `json:"clinician_review_required"`
	Evidence                []EvidenceHit `json:"evidence"`
}

// MaxEvidenceSimilarity returns the best similarity across the attached hits,
// or 0 when no evidence is present.
func (a ActionItem) MaxEvidenceSimilarity() float64 {
	best := 0.0
	for _, hit := range a.Evidence {
		if hit.CosineSimilarity > best {
			best = hit.CosineSimilarity
		}
	}
	return best
}

// Review reasons recorded on a ConfidenceResult.
const (
	ReviewReasonLowConfidence    = "low_confidence"
	ReviewReasonHighRiskCategory = "high_risk_category"
)

// ConfidenceResult is the guardrail evaluator output for a single action.
type ConfidenceResult struct {
	Value          float64  `json:"value"`
	ReviewRequired bool     `json:"review_required"`
	Reasons        []string `json:"reasons,omitempty"`
}

// ActionDraft is a recommendation as the generation backend emits it, before
// evidence and confidence enrichment.
type ActionDraft struct {
	Text     string `json:"text"`
	Category string `json:"category"`
	Severity string `json:"severity"`
}

// SummaryResult is the generation backend output for one note. ModelScore is
// nil when the backend does not report one.
type SummaryResult struct {
	Summary    string
	Actions    []ActionDraft
	ModelScore *float64
}

// SummaryResponse is the caller-facing result of a successful pipeline run.
type SummaryResponse struct {
	RequestID          string            `json:"request_id"`
	Summary            string            `json:"summary"`
	PatientSummary     map[string]string `json:"patient_summary"`
	Actions            []ActionItem      `json:"actions"`
	Sources            []EvidenceHit     `json:"sources"`
	Confidence         float64           `json:"confidence"`
	HallucinationAlert bool              `json:"hallucination_alert"`
	ProcessingTimeMS   int64             `json:"processing_time_ms"`
}

// AuditEntry is the only durable record this service owns. It carries hashes
// of the note and response, never the texts themselves.
type AuditEntry struct {
	Timestamp          time.Time `json:"timestamp"`
	RequestID          string    `json:"request_id"`
	RequestHash        string    `json:"request_hash"`
	ResponseHash       string    `json:"response_hash"`
	ModelVersion       string    `json:"model_version"`
	LatencyMS          int64     `json:"latency_ms"`
	Signature          string    `json:"signature"`
	HallucinationAlert bool      `json:"hallucination_alert"`
}
