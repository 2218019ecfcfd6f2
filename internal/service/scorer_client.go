package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"replypulse/internal/config"
	"replypulse/internal/model"
)

// scoringTags is the fixed vocabulary the scoring contract draws from
var scoringTags = []string{
	"suggestion", "question", "criticism", "praise", "experience",
	"data_point", "counterpoint", "off_topic",
}

// ScorerClient calls the Gemini API for reply scoring and report synthesis.
// When no API key is configured it falls back to deterministic mock output
// so the pipeline can run end to end in development.
type ScorerClient struct {
	config *config.AIConfig
	client *http.Client
}

// NewScorerClient creates a new scorer client
func NewScorerClient() *ScorerClient {
	cfg := config.DefaultAIConfig()
	return &ScorerClient{
		config: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
		},
	}
}

// IsEnabled returns true if the AI API is configured
func (s *ScorerClient) IsEnabled() bool {
	return s.config.IsEnabled()
}

// ScoreReply scores one reply against the report's goal. Unlike a cache
// read this can genuinely fail: errors propagate so the reply stays pending
// and the surrounding retry policy gets another shot at it.
func (s *ScorerClient) ScoreReply(ctx context.Context, req model.ScoreRequest) (*model.ScoreResult, error) {
	if !s.config.IsEnabled() {
		return s.mockScore(req), nil
	}

	prompt := s.buildScoringPrompt(req)
	response, err := s.callGemini(ctx, s.config.Models.Scoring, prompt)
	if err != nil {
		return nil, fmt.Errorf("scoring call failed: %w", err)
	}

	var result model.ScoreResult
	if err := json.Unmarshal([]byte(response), &result); err != nil {
		return nil, fmt.Errorf("failed to parse scoring response: %w", err)
	}

	result.ClampScores()
	result.Summary = truncateSummary(result.Summary, 200)
	return &result, nil
}

// truncateSummary caps a summary at max bytes without splitting a rune
func truncateSummary(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// SynthesizeReport produces the final report from qualified replies
func (s *ScorerClient) SynthesizeReport(ctx context.Context, req model.SynthesisRequest) (*model.Summary, error) {
	if !s.config.IsEnabled() {
		return s.mockSummary(req), nil
	}

	prompt := s.buildSynthesisPrompt(req)
	response, err := s.callGemini(ctx, s.config.Models.Synthesis, prompt)
	if err != nil {
		return nil, fmt.Errorf("synthesis call failed: %w", err)
	}

	var summary model.Summary
	if err := json.Unmarshal([]byte(response), &summary); err != nil {
		return nil, fmt.Errorf("failed to parse synthesis response: %w", err)
	}
	if summary.ExecutiveSummary == "" {
		return nil, fmt.Errorf("synthesis response missing executive summary")
	}

	summary.ReplyCount = len(req.Replies)
	summary.GeneratedAt = time.Now()
	return &summary, nil
}

// callGemini makes a request to the Gemini API
func (s *ScorerClient) callGemini(ctx context.Context, modelName, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]string{
					{"text": prompt},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"responseMimeType": "application/json",
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s?key=%s", s.config.ModelEndpoint(modelName), s.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("gemini status %d", resp.StatusCode)
	}

	var geminiResp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}

	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return "", err
	}

	if len(geminiResp.Candidates) > 0 && len(geminiResp.Candidates[0].Content.Parts) > 0 {
		return geminiResp.Candidates[0].Content.Parts[0].Text, nil
	}

	return "", fmt.Errorf("empty response from Gemini")
}

// Prompt builders
func (s *ScorerClient) buildScoringPrompt(req model.ScoreRequest) string {
	return fmt.Sprintf(`You are scoring a social-media reply against a stated goal. Return ONLY valid JSON matching this schema:
{
  "goalRelevance": 0 to 100,
  "actionability": 0 to 100,
  "specificity": 0 to 100,
  "substantiveness": 0 to 100,
  "constructiveness": 0 to 100,
  "tags": ["pick from: %s"],
  "summary": "one sentence, max 200 chars",
  "include": true or false
}

Original post: %s
Goal: %s
Target audience: %s

Reply by @%s (%d followers, verified=%t):
%s

Score each dimension 0-100. goalRelevance measures how directly the reply
serves the stated goal; an off-topic reply scores near zero regardless of
quality. Set include=true only when the reply materially helps the goal.`,
		strings.Join(scoringTags, ", "),
		req.PostText, req.Goal, req.AudienceHint,
		req.Author.Handle, req.Author.FollowerCount, req.Author.Verified,
		req.ReplyText)
}

func (s *ScorerClient) buildSynthesisPrompt(req model.SynthesisRequest) string {
	var sb strings.Builder
	for i, r := range req.Replies {
		sb.WriteString(fmt.Sprintf("\n%d. @%s (score %d, tags: %s): %s",
			i+1, r.Handle, r.WeightedScore, strings.Join(r.Tags, ","), r.Text))
	}

	return fmt.Sprintf(`Synthesize a report from scored replies to a social-media post. Return ONLY valid JSON:
{
  "executiveSummary": "3-5 sentence summary of what the replies say about the goal",
  "themes": [{"name": "theme", "meaning": "explanation", "replyCount": 0, "evidence": ["snippet"]}],
  "topInsights": ["insight 1", "insight 2"],
  "actionItems": ["action 1"],
  "sentiment": {"positive": 0, "neutral": 0, "negative": 0},
  "minorityInsights": ["notable view held by few"],
  "dissentingTakes": ["take that disagrees with the majority"],
  "qualityCaveat": "one sentence on data limitations, or empty"
}

Original post: %s
Goal: %s
Target audience: %s

Qualified replies, best first:%s

executiveSummary is required. Omit any other section you cannot support
with the replies above.`,
		req.PostText, req.Goal, req.AudienceHint, sb.String())
}

// Mock implementations
func (s *ScorerClient) mockScore(req model.ScoreRequest) *model.ScoreResult {
	words := len(strings.Fields(req.ReplyText))
	quality := words * 4
	if quality > 100 {
		quality = 100
	}

	// Crude relevance proxy: shared words with the goal
	relevance := 20
	goalWords := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(req.Goal)) {
		goalWords[w] = true
	}
	for _, w := range strings.Fields(strings.ToLower(req.ReplyText)) {
		if goalWords[w] {
			relevance += 20
		}
	}
	if relevance > 100 {
		relevance = 100
	}

	return &model.ScoreResult{
		GoalRelevance:    relevance,
		Actionability:    quality,
		Specificity:      quality,
		Substantiveness:  quality,
		Constructiveness: quality,
		Tags:             []string{"experience"},
		Summary:          "Mock score based on reply length and goal word overlap.",
		Include:          relevance >= 40 && quality >= 40,
	}
}

func (s *ScorerClient) mockSummary(req model.SynthesisRequest) *model.Summary {
	return &model.Summary{
		ExecutiveSummary: fmt.Sprintf("Mock synthesis over %d qualified replies - enable Gemini for real insights.", len(req.Replies)),
		QualityCaveat:    "Generated without an AI backend.",
		ReplyCount:       len(req.Replies),
		GeneratedAt:      time.Now(),
	}
}
