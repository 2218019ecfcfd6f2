package model

import "testing"

func TestComputeWeightedScore(t *testing.T) {
	weights := DefaultWeights()

	result := ScoreResult{
		GoalRelevance:    50,
		Actionability:    80,
		Specificity:      60,
		Substantiveness:  40,
		Constructiveness: 20,
	}

	// base = (80+60+40+20)/4 = 50, weighted = round(50 * 50/100) = 25
	if got := ComputeWeightedScore(result, weights); got != 25 {
		t.Errorf("weighted score = %d, want 25", got)
	}
}

func TestComputeWeightedScoreRelevanceGates(t *testing.T) {
	weights := DefaultWeights()

	// A detailed but off-topic reply must land near zero
	result := ScoreResult{
		GoalRelevance:    10,
		Actionability:    100,
		Specificity:      100,
		Substantiveness:  100,
		Constructiveness: 100,
	}
	if got := ComputeWeightedScore(result, weights); got != 10 {
		t.Errorf("off-topic score = %d, want 10", got)
	}

	result.GoalRelevance = 0
	if got := ComputeWeightedScore(result, weights); got != 0 {
		t.Errorf("zero-relevance score = %d, want 0", got)
	}
}

func TestComputeWeightedScoreUnevenWeights(t *testing.T) {
	weights := EvalWeights{Actionability: 60, Specificity: 20, Substantiveness: 10, Constructiveness: 10}

	result := ScoreResult{
		GoalRelevance:    100,
		Actionability:    100,
		Specificity:      50,
		Substantiveness:  0,
		Constructiveness: 0,
	}
	// base = (100*60 + 50*20) / 100 = 70
	if got := ComputeWeightedScore(result, weights); got != 70 {
		t.Errorf("weighted score = %d, want 70", got)
	}
}

func TestComputeWeightedScoreZeroWeightSum(t *testing.T) {
	result := ScoreResult{GoalRelevance: 100, Actionability: 100}
	if got := ComputeWeightedScore(result, EvalWeights{}); got != 0 {
		t.Errorf("score with zero weight sum = %d, want 0", got)
	}
}

func TestClampScores(t *testing.T) {
	r := ScoreResult{
		GoalRelevance:    150,
		Actionability:    -5,
		Specificity:      100,
		Substantiveness:  0,
		Constructiveness: 101,
	}
	r.ClampScores()

	if r.GoalRelevance != 100 || r.Constructiveness != 100 {
		t.Errorf("scores above 100 not clamped: %+v", r)
	}
	if r.Actionability != 0 {
		t.Errorf("negative score not clamped: %d", r.Actionability)
	}
	if r.Specificity != 100 || r.Substantiveness != 0 {
		t.Errorf("in-range scores changed: %+v", r)
	}
}
