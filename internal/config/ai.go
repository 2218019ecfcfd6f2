package config

import "os"

// GeminiModels defines which Gemini models to use for different tasks
type GeminiModels struct {
	// Scoring is for per-reply evaluation (needs to be fast and cheap)
	Scoring string `json:"scoring"`

	// Synthesis is for the final report (deep analysis, near-serial budget)
	Synthesis string `json:"synthesis"`
}

// AIConfig holds all AI-related configuration
type AIConfig struct {
	APIKey    string       `json:"-"` // Never serialize
	BaseURL   string       `json:"baseUrl"`
	Models    GeminiModels `json:"models"`
	TimeoutMS int          `json:"timeoutMs"`
}

// DefaultAIConfig returns the default AI configuration
func DefaultAIConfig() *AIConfig {
	return &AIConfig{
		APIKey:  os.Getenv("GEMINI_API_KEY"),
		BaseURL: "https://generativelanguage.googleapis.com/v1beta/models",
		Models: GeminiModels{
			// Fast model for the per-reply scoring fan-out
			Scoring: getEnvOrDefault("GEMINI_MODEL_SCORING", "gemini-2.5-flash-preview-05-20"),

			// Quality model for the one-shot synthesis call
			Synthesis: getEnvOrDefault("GEMINI_MODEL_SYNTHESIS", "gemini-2.0-flash"),
		},
		TimeoutMS: 20000, // 20 second default timeout
	}
}

// IsEnabled returns true if the AI API is configured
func (c *AIConfig) IsEnabled() bool {
	return c.APIKey != ""
}

// ModelEndpoint returns the full endpoint for a given model
func (c *AIConfig) ModelEndpoint(model string) string {
	return c.BaseURL + "/" + model + ":generateContent"
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
