package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"replypulse/internal/model"

	"golang.org/x/time/rate"
)

// ErrConversationRejected means the provider permanently refused the
// conversation reference (deleted post, protected author). Not retryable;
// the report transitions to failed.
var ErrConversationRejected = errors.New("conversation rejected by provider")

// ProviderPost is the root post of a monitored conversation
type ProviderPost struct {
	ID           string    `json:"id"`
	Text         string    `json:"text"`
	AuthorHandle string    `json:"authorHandle"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ProviderItem is one raw item from a reply page. Items with a non-reply
// type are provider-injected placeholders and must be discarded.
type ProviderItem struct {
	ID        string       `json:"id"`
	Type      string       `json:"type"` // "reply" for real content
	Text      string       `json:"text"`
	CreatedAt time.Time    `json:"created_at"`
	Author    model.Author `json:"author"`
}

// ReplyQuery is one page request against the provider
type ReplyQuery struct {
	ConversationID string
	PageSize       int
	Since          *time.Time // forward phase: items newer than this
	Until          *time.Time // backwards phase: items older than this
	VerifiedOnly   bool
	MinFollowers   int
}

// ScrapeProvider is the narrow contract of the external scraping service
type ScrapeProvider interface {
	GetPost(ctx context.Context, conversationID string) (*ProviderPost, error)
	ListReplies(ctx context.Context, q ReplyQuery) ([]ProviderItem, error)
}

// ProviderClient is the HTTP implementation of ScrapeProvider
type ProviderClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

// NewProviderClient creates a new scraping provider client
func NewProviderClient() *ProviderClient {
	token := os.Getenv("SCRAPER_API_TOKEN")
	if token == "" {
		log.Println("Warning: SCRAPER_API_TOKEN not set")
	}
	baseURL := os.Getenv("SCRAPER_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.scraperdog.dev/v1"
	}

	return &ProviderClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 2),
		maxRetries: 5,
	}
}

// doRequest performs a GET with retry and 429 backoff
func (c *ProviderClient) doRequest(ctx context.Context, path string) ([]byte, error) {
	reqURL := c.baseURL + path
	log.Printf("[Provider] GET %s", path)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			log.Printf("[Provider] ERROR: request failed (attempt %d): %v", attempt+1, err)
			lastErr = err
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		// Rate limited: back off and retry
		if resp.StatusCode == http.StatusTooManyRequests {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			log.Printf("[Provider] RATE LIMITED: retry %d/%d in %v", attempt+1, c.maxRetries, backoff)
			time.Sleep(backoff)
			lastErr = fmt.Errorf("rate limited")
			continue
		}

		// 400/403/404 mean the conversation itself is gone or off limits
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: status %d", ErrConversationRejected, resp.StatusCode)
		}

		if resp.StatusCode >= 400 {
			log.Printf("[Provider] ERROR: API returned %d: %s", resp.StatusCode, string(respBody))
			lastErr = fmt.Errorf("provider error %d", resp.StatusCode)
			continue
		}

		return respBody, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// GetPost fetches the root post of a conversation
func (c *ProviderClient) GetPost(ctx context.Context, conversationID string) (*ProviderPost, error) {
	respBody, err := c.doRequest(ctx, "/posts/"+url.PathEscape(conversationID))
	if err != nil {
		return nil, err
	}

	var raw struct {
		Data struct {
			ID        string    `json:"id"`
			Text      string    `json:"text"`
			CreatedAt time.Time `json:"created_at"`
			Author    struct {
				Handle string `json:"handle"`
			} `json:"author"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse post response: %w", err)
	}

	return &ProviderPost{
		ID:           raw.Data.ID,
		Text:         raw.Data.Text,
		AuthorHandle: raw.Data.Author.Handle,
		CreatedAt:    raw.Data.CreatedAt,
	}, nil
}

// ListReplies fetches one page of replies for a conversation
func (c *ProviderClient) ListReplies(ctx context.Context, q ReplyQuery) ([]ProviderItem, error) {
	params := url.Values{}
	params.Set("page_size", strconv.Itoa(q.PageSize))
	if q.Since != nil {
		params.Set("since", q.Since.Format(time.RFC3339))
	}
	if q.Until != nil {
		params.Set("until", q.Until.Format(time.RFC3339))
	}
	if q.VerifiedOnly {
		params.Set("verified_only", "true")
	}
	if q.MinFollowers > 0 {
		params.Set("min_followers", strconv.Itoa(q.MinFollowers))
	}

	path := fmt.Sprintf("/posts/%s/replies?%s", url.PathEscape(q.ConversationID), params.Encode())
	respBody, err := c.doRequest(ctx, path)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Data []ProviderItem `json:"data"`
	}
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse replies response: %w", err)
	}

	log.Printf("[Provider] %s returned %d items", q.ConversationID, len(raw.Data))
	return raw.Data, nil
}

// IsConfigured returns true if the API token is set
func (c *ProviderClient) IsConfigured() bool {
	return c.token != ""
}
