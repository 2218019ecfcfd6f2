package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

// Publisher posts a short wrap-up reply to the original conversation once a
// summary is ready. Entirely optional: failures never touch report state.
type Publisher interface {
	Enabled() bool
	PublishSummary(ctx context.Context, conversationID, text string) error
}

// PublisherClient is the HTTP implementation of Publisher. The bearer token
// is assumed valid and comes from the environment.
type PublisherClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewPublisherClient creates a new publisher client
func NewPublisherClient() *PublisherClient {
	token := os.Getenv("PUBLISH_BEARER_TOKEN")
	if token == "" {
		log.Println("Publisher disabled: PUBLISH_BEARER_TOKEN not set")
	}
	baseURL := os.Getenv("PUBLISH_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.twitter.com/2"
	}

	return &PublisherClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Enabled returns true when a bearer token is configured
func (c *PublisherClient) Enabled() bool {
	return c.token != ""
}

// PublishSummary posts a reply to the monitored conversation
func (c *PublisherClient) PublishSummary(ctx context.Context, conversationID, text string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"text": text,
		"reply": map[string]string{
			"in_reply_to_tweet_id": conversationID,
		},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tweets", bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("publish request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("publish API error %d", resp.StatusCode)
	}

	log.Printf("[Publisher] posted summary reply to conversation %s", conversationID)
	return nil
}
