// Package pipeline sequences one clinical-note request through the safety
// gates: PHI scan, evidence retrieval, generation, guardrail scoring,
// hallucination aggregation, translation and audit recording. One request is
// one strictly sequential run; the only intra-request concurrency is
// per-action evidence retrieval, whose results are reassembled in action
// order so responses stay deterministic.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"clinsight/internal/audit"
	"clinsight/internal/guardrail"
	"clinsight/internal/phi"
	"clinsight/internal/retrieval"
	"clinsight/internal/runtime"
	"clinsight/models"
	"clinsight/provider"
)

// State names one step of the request lifecycle. Terminal states are final;
// the orchestrator never retries.
type State string

const (
	StateReceived    State = "RECEIVED"
	StateGateChecked State = "GATE_CHECKED"
	StateRetrieved   State = "RETRIEVED"
	StateGenerated   State = "GENERATED"
	StateScored      State = "SCORED"
	StateAggregated  State = "AGGREGATED"
	StateTranslated  State = "TRANSLATED"
	StateAudited     State = "AUDITED"
	StateDone        State = "DONE"
	StateRejected    State = "REJECTED"
	StateErrored     State = "ERRORED"
)

// Options carries the pipeline's configuration knobs.
type Options struct {
	MaxNoteLength int
	Languages     []string
}

// Pipeline wires the gate, retrieval engine, guardrails and audit writer
// around the injected generation backend.
type Pipeline struct {
	engine    *retrieval.Engine
	backend   provider.Provider
	evaluator *guardrail.Evaluator
	detector  *guardrail.Detector
	auditor   *audit.Writer
	opts      Options
	logger    *log.Logger
	metrics   *runtime.Metrics
}

func New(engine *retrieval.Engine, backend provider.Provider, evaluator *guardrail.Evaluator, detector *guardrail.Detector, auditor *audit.Writer, opts Options, logger *log.Logger, metrics *runtime.Metrics) *Pipeline {
	if logger == nil {
		logger = log.New(log.Writer(), "[PIPE] ", log.LstdFlags)
	}
	if opts.MaxNoteLength <= 0 {
		opts.MaxNoteLength = 10000
	}
	return &Pipeline{
		engine:    engine,
		backend:   backend,
		evaluator: evaluator,
		detector:  detector,
		auditor:   auditor,
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
	}
}

type run struct {
	id    string
	state State
	start time.Time
}

func (r *run) advance(next State) { r.state = next }

// ProcessNote runs the full lifecycle for one request. On success it returns
// the structured response; otherwise one of the typed errors in this package.
// The raw note is referenced only within this call and is never persisted.
func (p *Pipeline) ProcessNote(ctx context.Context, req models.NoteRequest) (*models.SummaryResponse, error) {
	r := &run{id: req.RequestID, state: StateReceived, start: time.Now()}
	if r.id == "" {
		r.id = uuid.NewString()
	}

	resp, err := p.process(ctx, r, req)
	latency := time.Since(r.start)
	if p.metrics != nil {
		p.metrics.RequestDuration.Observe(latency.Seconds())
		p.metrics.RequestsTotal.WithLabelValues(string(r.state)).Inc()
	}
	if err != nil {
		p.logger.Printf("request %s terminated in %s after %s: %v", r.id, r.state, latency, err)
		return nil, err
	}
	p.logger.Printf("request %s done in %s", r.id, latency)
	return resp, nil
}

func (p *Pipeline) process(ctx context.Context, r *run, req models.NoteRequest) (*models.SummaryResponse, error) {
	// Validation and the PHI gate run before anything can reach an external
	// model: blocked content must never be embedded or generated from.
	if err := p.validate(req); err != nil {
		r.advance(StateErrored)
		return nil, err
	}

	gateStart := time.Now()
	gate := phi.Scan(req.ClinicalNote)
	p.observeStage("phi_gate", gateStart)
	r.advance(StateGateChecked)
	if gate.Blocked {
		r.advance(StateRejected)
		if p.metrics != nil {
			p.metrics.PHIBlockedTotal.Inc()
		}
		// Rejections are audited too: the entry proves the note was refused
		// without retaining it.
		p.auditor.Record(ctx, r.id, req.ClinicalNote,
			map[string]interface{}{"rejected": true, "pattern_kinds": gate.Kinds},
			p.backend.ModelVersion(), time.Since(r.start).Milliseconds(), false)
		return nil, &PhiError{Kinds: gate.Kinds}
	}

	retrieveStart := time.Now()
	contextEvidence, err := p.engine.Search(ctx, req.ClinicalNote, models.EvidenceHitsPerAction)
	p.observeStage("retrieval", retrieveStart)
	if err != nil {
		r.advance(StateErrored)
		return nil, classifyRetrievalError(err)
	}
	r.advance(StateRetrieved)

	genStart := time.Now()
	gen, err := p.backend.Summarize(ctx, req.ClinicalNote, contextEvidence)
	p.observeStage("generation", genStart)
	if err != nil {
		r.advance(StateErrored)
		return nil, &ExternalServiceError{Stage: "generation", Err: err}
	}
	r.advance(StateGenerated)

	scoreStart := time.Now()
	actions, err := p.enrichActions(ctx, gen)
	p.observeStage("scoring", scoreStart)
	if err != nil {
		r.advance(StateErrored)
		return nil, err
	}
	r.advance(StateScored)

	alert := p.detector.Detect(actions)
	if alert && p.metrics != nil {
		p.metrics.HallucinationTotal.Inc()
	}
	r.advance(StateAggregated)

	translateStart := time.Now()
	patientSummary, err := p.translate(ctx, gen.Summary, req.LanguagePreference)
	p.observeStage("translation", translateStart)
	if err != nil {
		r.advance(StateErrored)
		return nil, err
	}
	r.advance(StateTranslated)

	resp := &models.SummaryResponse{
		RequestID:          r.id,
		Summary:            gen.Summary,
		PatientSummary:     patientSummary,
		Actions:            actions,
		Sources:            contextEvidence,
		Confidence:         overallConfidence(actions),
		HallucinationAlert: alert,
		ProcessingTimeMS:   time.Since(r.start).Milliseconds(),
	}

	p.auditor.Record(ctx, r.id, req.ClinicalNote, resp, p.backend.ModelVersion(), resp.ProcessingTimeMS, alert)
	r.advance(StateAudited)

	r.advance(StateDone)
	return resp, nil
}

func (p *Pipeline) validate(req models.NoteRequest) error {
	if req.ClinicalNote == "" {
		return &ValidationError{Reason: "clinical_note is required"}
	}
	if len(req.ClinicalNote) > p.opts.MaxNoteLength {
		return &ValidationError{Reason: fmt.Sprintf("clinical_note exceeds %d characters", p.opts.MaxNoteLength)}
	}
	if req.LanguagePreference != "" && !isLanguageCode(req.LanguagePreference) {
		return &ValidationError{Reason: fmt.Sprintf("language_preference %q is not an ISO 639-1 code", req.LanguagePreference)}
	}
	return nil
}

func isLanguageCode(s string) bool {
	if len(s) != 2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'a' || s[i] > 'z' {
			return false
		}
	}
	return true
}

// enrichActions retrieves evidence for every action concurrently, then scores
// them. Hits land in a slice indexed by action position, so the response
// order matches generation order no matter which retrieval finishes first.
func (p *Pipeline) enrichActions(ctx context.Context, gen models.SummaryResult) ([]models.ActionItem, error) {
	actions := make([]models.ActionItem, len(gen.Actions))
	evidence := make([][]models.EvidenceHit, len(gen.Actions))

	g, gctx := errgroup.WithContext(ctx)
	for i, draft := range gen.Actions {
		g.Go(func() error {
			hits, err := p.engine.Search(gctx, draft.Text, models.EvidenceHitsPerAction)
			if err != nil {
				return err
			}
			evidence[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, classifyRetrievalError(err)
	}

	for i, draft := range gen.Actions {
		category := draft.Category
		if !models.ValidCategory(category) {
			category = models.CategoryFollowup
		}
		severity := draft.Severity
		switch severity {
		case models.SeverityLow, models.SeverityMedium, models.SeverityHigh:
		default:
			severity = models.SeverityMedium
		}

		result := p.evaluator.Score(category, evidence[i], gen.ModelScore)
		actions[i] = models.ActionItem{
			ID:                      uuid.NewString(),
			Text:                    draft.Text,
			Category:                category,
			Severity:                severity,
			Confidence:              result.Value,
			ClinicianReviewRequired: result.ReviewRequired,
			Evidence:                evidence[i],
		}
	}
	return actions, nil
}

// translate produces patient summaries for every configured language plus the
// caller's preference.
func (p *Pipeline) translate(ctx context.Context, summary, preference string) (map[string]string, error) {
	langs := make([]string, 0, len(p.opts.Languages)+1)
	seen := map[string]bool{}
	for _, l := range p.opts.Languages {
		if l != "" && !seen[l] {
			langs = append(langs, l)
			seen[l] = true
		}
	}
	if preference != "" && !seen[preference] {
		langs = append(langs, preference)
	}

	out := make(map[string]string, len(langs))
	for _, lang := range langs {
		text, err := p.backend.Translate(ctx, summary, lang)
		if err != nil {
			return nil, &ExternalServiceError{Stage: "translation", Err: err}
		}
		out[lang] = text
	}
	return out, nil
}

// overallConfidence is the arithmetic mean of per-action confidences, 0.5
// when the response carries no actions.
func overallConfidence(actions []models.ActionItem) float64 {
	if len(actions) == 0 {
		return 0.5
	}
	var sum float64
	for _, a := range actions {
		sum += a.Confidence
	}
	return sum / float64(len(actions))
}

// classifyRetrievalError splits embedding-backend failures from index
// invariants: a short hit list means the corpus no longer honors its
// load-time contract.
func classifyRetrievalError(err error) error {
	if err == nil {
		return nil
	}
	var short *retrieval.ShortResultError
	if errors.As(err, &short) {
		return &InvariantError{Err: err}
	}
	return &ExternalServiceError{Stage: "embedding", Err: err}
}

func (p *Pipeline) observeStage(stage string, start time.Time) {
	if p.metrics != nil {
		p.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}
