// Package guardrail holds the deterministic safety rules applied to generated
// recommendations: per-action confidence with mandatory-review decisions, and
// the whole-response hallucination check. Everything here is pure domain
// logic — no I/O, no side effects — so the rules stay centralized and
// testable, independent of the generation backend.
package guardrail

import "clinsight/models"

const (
	// Confidence formula weights: retrieval grounding dominates model
	// self-assessment.
	retrievalWeight = 0.6
	modelWeight     = 0.4

	// DefaultModelScore substitutes for a missing or out-of-range backend
	// score.
	DefaultModelScore = 0.5

	// DefaultReviewThreshold is the confidence floor below which clinician
	// review is mandatory.
	DefaultReviewThreshold = 0.6
)

// Evaluator computes per-action confidence and the review decision.
type Evaluator struct {
	reviewThreshold float64
}

func NewEvaluator(reviewThreshold float64) *Evaluator {
	if reviewThreshold <= 0 || reviewThreshold > 1 {
		reviewThreshold = DefaultReviewThreshold
	}
	return &Evaluator{reviewThreshold: reviewThreshold}
}

// Score computes confidence = clamp(0.6*maxSimilarity + 0.4*modelScore, 0, 1)
// and applies the review rules. modelScore may be nil (backend reported
// nothing); a reported score outside [0,1] is treated the same way, since the
// backend is not trusted to keep formula inputs in range.
//
// Review rules, each sufficient on its own:
//   - confidence below the review threshold;
//   - category is medication or treatment, regardless of confidence.
func (e *Evaluator) Score(category string, hits []models.EvidenceHit, modelScore *float64) models.ConfidenceResult {
	score := DefaultModelScore
	if modelScore != nil && *modelScore >= 0 && *modelScore <= 1 {
		score = *modelScore
	}

	maxSim := 0.0
	for _, hit := range hits {
		if hit.CosineSimilarity > maxSim {
			maxSim = hit.CosineSimilarity
		}
	}

	confidence := retrievalWeight*maxSim + modelWeight*score
	// Upstream components round independently, so the combination can edge
	// past 1; out-of-range values must never propagate.
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	result := models.ConfidenceResult{Value: confidence}
	if confidence < e.reviewThreshold {
		result.ReviewRequired = true
		result.Reasons = append(result.Reasons, models.ReviewReasonLowConfidence)
	}
	if highRiskCategory(category) {
		result.ReviewRequired = true
		result.Reasons = append(result.Reasons, models.ReviewReasonHighRiskCategory)
	}
	return result
}

func highRiskCategory(category string) bool {
	return category == models.CategoryMedication || category == models.CategoryTreatment
}
