package guardrail

import "clinsight/models"

const (
	// DefaultGroundingThreshold: an action whose best evidence similarity is
	// strictly below this is poorly grounded.
	DefaultGroundingThreshold = 0.75

	// DefaultHallucinationRatio: alert when the poorly-grounded share of
	// actions strictly exceeds this.
	DefaultHallucinationRatio = 0.30
)

// Detector aggregates per-action grounding quality into one alert flag.
type Detector struct {
	groundingThreshold float64
	alertRatio         float64
}

func NewDetector(groundingThreshold, alertRatio float64) *Detector {
	if groundingThreshold <= 0 || groundingThreshold > 1 {
		groundingThreshold = DefaultGroundingThreshold
	}
	if alertRatio <= 0 || alertRatio >= 1 {
		alertRatio = DefaultHallucinationRatio
	}
	return &Detector{groundingThreshold: groundingThreshold, alertRatio: alertRatio}
}

// Detect reports whether the response as a whole should carry a hallucination
// alert. It only consumes similarities already attached to each action; it
// never recomputes them. An empty action list is vacuously fine. The ratio
// comparison is strict: exactly the threshold does not alert.
func (d *Detector) Detect(actions []models.ActionItem) bool {
	if len(actions) == 0 {
		return false
	}
	poorlyGrounded := 0
	for _, action := range actions {
		if action.MaxEvidenceSimilarity() < d.groundingThreshold {
			poorlyGrounded++
		}
	}
	ratio := float64(poorlyGrounded) / float64(len(actions))
	return ratio > d.alertRatio
}
