package model

import "math"

// ScoreRequest is the input contract for the external scoring service
type ScoreRequest struct {
	PostText     string `json:"postText"`
	Goal         string `json:"goal"`
	AudienceHint string `json:"audienceHint,omitempty"`
	ReplyText    string `json:"replyText"`
	Author       Author `json:"author"`
}

// ScoreResult is the output contract of the external scoring service
type ScoreResult struct {
	GoalRelevance    int      `json:"goalRelevance"`
	Actionability    int      `json:"actionability"`
	Specificity      int      `json:"specificity"`
	Substantiveness  int      `json:"substantiveness"`
	Constructiveness int      `json:"constructiveness"`
	Tags             []string `json:"tags,omitempty"`
	Summary          string   `json:"summary,omitempty"`
	Include          bool     `json:"include"`
}

// ClampScores forces all five scores into the 0-100 range
func (r *ScoreResult) ClampScores() {
	r.GoalRelevance = clampScore(r.GoalRelevance)
	r.Actionability = clampScore(r.Actionability)
	r.Specificity = clampScore(r.Specificity)
	r.Substantiveness = clampScore(r.Substantiveness)
	r.Constructiveness = clampScore(r.Constructiveness)
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}

// ComputeWeightedScore combines the four dimension scores into a 0-100
// composite. Relevance acts as a multiplier gate, not an additive term, so
// an off-topic but detailed reply still lands near zero:
//
//	base = sum(dimension * weight) / sum(weights)
//	weighted = round(base * relevance / 100)
func ComputeWeightedScore(r ScoreResult, w EvalWeights) int {
	sum := w.Sum()
	if sum <= 0 {
		return 0
	}
	base := float64(r.Actionability*w.Actionability+
		r.Specificity*w.Specificity+
		r.Substantiveness*w.Substantiveness+
		r.Constructiveness*w.Constructiveness) / float64(sum)
	return int(math.Round(base * float64(r.GoalRelevance) / 100.0))
}

// QualifiedReply is one included reply as handed to the synthesis service
type QualifiedReply struct {
	Handle        string   `json:"handle"`
	Text          string   `json:"text"`
	WeightedScore int      `json:"weightedScore"`
	Tags          []string `json:"tags,omitempty"`
	Summary       string   `json:"summary,omitempty"`
}

// SynthesisRequest is the input contract for the synthesis service
type SynthesisRequest struct {
	PostText     string           `json:"postText"`
	Goal         string           `json:"goal"`
	AudienceHint string           `json:"audienceHint,omitempty"`
	Replies      []QualifiedReply `json:"replies"` // ordered by weighted score desc
}
