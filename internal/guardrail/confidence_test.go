package guardrail

import (
	"math"
	"math/rand"
	"testing"

	"clinsight/models"
)

func hitsWithSims(sims ...float64) []models.EvidenceHit {
	hits := make([]models.EvidenceHit, len(sims))
	for i, s := range sims {
		hits[i] = models.EvidenceHit{DocID: "d", CosineSimilarity: s}
	}
	return hits
}

func ptr(f float64) *float64 { return &f }

func TestScoreFormula(t *testing.T) {
	e := NewEvaluator(0.6)
	res := e.Score(models.CategoryDiagnostic, hitsWithSims(0.81, 0.60, 0.55), ptr(0.7))
	want := 0.6*0.81 + 0.4*0.7 // 0.766
	if math.Abs(res.Value-want) > 1e-9 {
		t.Fatalf("confidence = %v, want %v", res.Value, want)
	}
	if res.ReviewRequired {
		t.Fatalf("diagnostic action at %.3f should not need review", res.Value)
	}
}

func TestScoreDefaultsModelScore(t *testing.T) {
	e := NewEvaluator(0.6)
	want := 0.6*0.8 + 0.4*0.5

	res := e.Score(models.CategoryLifestyle, hitsWithSims(0.8), nil)
	if math.Abs(res.Value-want) > 1e-9 {
		t.Fatalf("nil score: confidence = %v, want %v", res.Value, want)
	}
	for _, bad := range []float64{-0.1, 1.5, 42} {
		res := e.Score(models.CategoryLifestyle, hitsWithSims(0.8), ptr(bad))
		if math.Abs(res.Value-want) > 1e-9 {
			t.Fatalf("out-of-range score %v: confidence = %v, want %v", bad, res.Value, want)
		}
	}
}

func TestScoreLowConfidenceRequiresReview(t *testing.T) {
	e := NewEvaluator(0.6)
	res := e.Score(models.CategoryLifestyle, hitsWithSims(0.3), ptr(0.4))
	if !res.ReviewRequired {
		t.Fatalf("confidence %v below threshold must require review", res.Value)
	}
	if len(res.Reasons) != 1 || res.Reasons[0] != models.ReviewReasonLowConfidence {
		t.Fatalf("unexpected reasons: %v", res.Reasons)
	}
}

func TestScoreHighRiskCategoryAlwaysReviewed(t *testing.T) {
	e := NewEvaluator(0.6)
	for _, cat := range []string{models.CategoryMedication, models.CategoryTreatment} {
		res := e.Score(cat, hitsWithSims(1.0), ptr(1.0))
		if res.Value != 1.0 {
			t.Fatalf("%s: confidence = %v, want 1.0", cat, res.Value)
		}
		if !res.ReviewRequired {
			t.Fatalf("%s at confidence 1.0 must still require review", cat)
		}
		if len(res.Reasons) != 1 || res.Reasons[0] != models.ReviewReasonHighRiskCategory {
			t.Fatalf("%s: unexpected reasons: %v", cat, res.Reasons)
		}
	}
}

func TestScoreBothReasons(t *testing.T) {
	e := NewEvaluator(0.6)
	res := e.Score(models.CategoryMedication, hitsWithSims(0.2), ptr(0.2))
	if !res.ReviewRequired {
		t.Fatalf("expected review required")
	}
	if len(res.Reasons) != 2 {
		t.Fatalf("expected both reasons, got %v", res.Reasons)
	}
	if res.Reasons[0] != models.ReviewReasonLowConfidence || res.Reasons[1] != models.ReviewReasonHighRiskCategory {
		t.Fatalf("unexpected reason order: %v", res.Reasons)
	}
}

func TestScoreNoEvidence(t *testing.T) {
	e := NewEvaluator(0.6)
	res := e.Score(models.CategoryFollowup, nil, ptr(1.0))
	if math.Abs(res.Value-0.4) > 1e-9 {
		t.Fatalf("no evidence: confidence = %v, want 0.4", res.Value)
	}
	if !res.ReviewRequired {
		t.Fatalf("confidence 0.4 must require review")
	}
}

func TestScoreRandomizedFormula(t *testing.T) {
	e := NewEvaluator(0.6)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		s1, s2, s3 := rng.Float64(), rng.Float64(), rng.Float64()
		sims := hitsWithSims(s1, s2, s3)

		// Effective model score: the reported value when in [0,1], 0.5 when
		// nil or out of range.
		var score *float64
		effective := 0.5
		switch i % 3 {
		case 1:
			v := rng.Float64()
			score, effective = &v, v
		case 2:
			v := rng.Float64()*4 - 2
			score = &v
			if v >= 0 && v <= 1 {
				effective = v
			}
		}

		want := 0.6*math.Max(s1, math.Max(s2, s3)) + 0.4*effective
		if want > 1 {
			want = 1
		}
		if want < 0 {
			want = 0
		}

		res := e.Score(models.CategoryDiagnostic, sims, score)
		if math.Abs(res.Value-want) > 1e-12 {
			t.Fatalf("iteration %d: confidence = %v, want %v (sims %v %v %v, score %v)", i, res.Value, want, s1, s2, s3, score)
		}
		if res.Value < 0 || res.Value > 1 {
			t.Fatalf("iteration %d: confidence %v out of [0,1]", i, res.Value)
		}
		if (res.Value < 0.6) != res.ReviewRequired {
			t.Fatalf("iteration %d: review flag %v inconsistent with confidence %v", i, res.ReviewRequired, res.Value)
		}
	}
	// Endpoints.
	if res := e.Score(models.CategoryDiagnostic, hitsWithSims(0), ptr(0)); res.Value != 0 {
		t.Fatalf("all-zero inputs: confidence = %v, want 0", res.Value)
	}
	if res := e.Score(models.CategoryDiagnostic, hitsWithSims(1), ptr(1)); res.Value != 1 {
		t.Fatalf("all-one inputs: confidence = %v, want 1", res.Value)
	}
}

func TestNewEvaluatorRejectsBadThreshold(t *testing.T) {
	for _, bad := range []float64{-1, 0, 1.5} {
		e := NewEvaluator(bad)
		res := e.Score(models.CategoryDiagnostic, hitsWithSims(0.5), ptr(0.5))
		if (res.Value < DefaultReviewThreshold) != res.ReviewRequired {
			t.Fatalf("threshold %v: default not applied", bad)
		}
	}
}
