package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func newTestProviderClient(srv *httptest.Server) *ProviderClient {
	return &ProviderClient{
		baseURL:    srv.URL,
		token:      "test-token",
		httpClient: srv.Client(),
		limiter:    rate.NewLimiter(rate.Inf, 1),
		maxRetries: 3,
	}
}

func TestProviderListRepliesQueryParams(t *testing.T) {
	var gotPath, gotAuth string
	var gotQuery map[string][]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query()
		fmt.Fprint(w, `{"data":[{"id":"r1","type":"reply","text":"hello","author":{"handle":"alice","followerCount":10}}]}`)
	}))
	defer srv.Close()

	client := newTestProviderClient(srv)
	until := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	items, err := client.ListReplies(context.Background(), ReplyQuery{
		ConversationID: "conv_1",
		PageSize:       50,
		Until:          &until,
		VerifiedOnly:   true,
		MinFollowers:   100,
	})
	if err != nil {
		t.Fatalf("list replies: %v", err)
	}

	if gotPath != "/posts/conv_1/replies" {
		t.Errorf("path = %s", gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("authorization = %q", gotAuth)
	}
	for param, want := range map[string]string{
		"page_size":     "50",
		"until":         until.Format(time.RFC3339),
		"verified_only": "true",
		"min_followers": "100",
	} {
		if len(gotQuery[param]) != 1 || gotQuery[param][0] != want {
			t.Errorf("query %s = %v, want %s", param, gotQuery[param], want)
		}
	}
	if len(gotQuery["since"]) != 0 {
		t.Errorf("since sent for a backwards query: %v", gotQuery["since"])
	}

	if len(items) != 1 || items[0].ID != "r1" || items[0].Author.Handle != "alice" {
		t.Errorf("items = %+v", items)
	}
}

func TestProviderRetriesOnRateLimit(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer srv.Close()

	client := newTestProviderClient(srv)
	_, err := client.ListReplies(context.Background(), ReplyQuery{ConversationID: "conv_1", PageSize: 10})
	if err != nil {
		t.Fatalf("list replies: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestProviderRejectedConversation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestProviderClient(srv)
	_, err := client.GetPost(context.Background(), "conv_gone")
	if !errors.Is(err, ErrConversationRejected) {
		t.Errorf("error = %v, want ErrConversationRejected", err)
	}
}

func TestProviderGetPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"id":"conv_1","text":"launch day","author":{"handle":"founder"}}}`)
	}))
	defer srv.Close()

	client := newTestProviderClient(srv)
	post, err := client.GetPost(context.Background(), "conv_1")
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if post.ID != "conv_1" || post.Text != "launch day" || post.AuthorHandle != "founder" {
		t.Errorf("post = %+v", post)
	}
}
