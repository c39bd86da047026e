// Package recommend is the HTTP client for the recommendation backend.
// Requests are strictly best effort: the overlay must stay usable when the
// backend is slow, down, or returns garbage, so every failure maps to a
// sentinel the caller can branch on, and a stale in-flight recommendation
// loses to the newest request instead of clobbering it.
package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgnsrekt/pm_agent/internal/profile"
)

const defaultTimeout = 5 * time.Second

// maxBodyBytes caps response reads; the backend never legitimately returns
// more than a few KB.
const maxBodyBytes = 1 << 20

var (
	// ErrUnavailable covers network failures, timeouts, and non-200s.
	ErrUnavailable = errors.New("recommend: backend unavailable")

	// ErrMalformed means the backend answered 200 with an unparseable body.
	// Distinct from ErrUnavailable so it can be surfaced as a backend bug
	// rather than an outage.
	ErrMalformed = errors.New("recommend: malformed response")

	// ErrSuperseded means a newer recommendation request started while
	// this one was in flight. The result must be discarded.
	ErrSuperseded = errors.New("recommend: superseded by newer request")
)

// Primary is the market the user is acting on.
type Primary struct {
	URL         string  `json:"url"`
	Side        string  `json:"side,omitempty"`
	Amount      float64 `json:"amount,omitempty"`
	TriggerType string  `json:"trigger_type,omitempty"`
}

// Request is the recommendation request body: the primary market plus the
// locally derived interest profile.
type Request struct {
	Primary Primary         `json:"primary"`
	Profile profile.Summary `json:"local_profile"`
}

// Recommendation is one backend-suggested market. The payload is opaque to
// the agent; it flows straight through to presentation.
type Recommendation struct {
	ID       string  `json:"id,omitempty"`
	Title    string  `json:"title"`
	URL      string  `json:"url"`
	Category string  `json:"category,omitempty"`
	Score    float64 `json:"score,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

// Response splits recommendations into markets that reinforce the user's
// position and markets that offset it.
type Response struct {
	Amplify []Recommendation `json:"amplify"`
	Hedge   []Recommendation `json:"hedge"`
}

// Market is one market summary from the list endpoints.
type Market struct {
	ID            string  `json:"id,omitempty"`
	Question      string  `json:"question"`
	URL           string  `json:"url,omitempty"`
	TrendingScore float64 `json:"trending_score,omitempty"`
	Similarity    float64 `json:"cosine_similarity,omitempty"`
	MatchType     string  `json:"match_type,omitempty"`
}

// NewsArticle is one headline relevant to a market question.
type NewsArticle struct {
	Title string `json:"title"`
	Image string `json:"image,omitempty"`
	Name  string `json:"name"`
}

// News is the backend's headline listing for a market question.
type News struct {
	Question string        `json:"question"`
	Count    int           `json:"count"`
	Articles []NewsArticle `json:"articles"`
}

// Client talks to one backend instance. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	gen     atomic.Uint64

	mu     sync.Mutex
	latest *Response
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Recommend posts the primary market and profile and returns the backend's
// amplify/hedge sets. Only the newest in-flight request wins: if another
// Recommend starts before this one's response lands, the result is dropped
// with ErrSuperseded.
func (c *Client) Recommend(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Primary.URL) == "" {
		return Response{}, fmt.Errorf("%w: empty primary url", ErrMalformed)
	}
	myGen := c.gen.Add(1)

	var resp Response
	if err := c.postJSON(ctx, "/v1/recommendations", req, &resp); err != nil {
		return Response{}, err
	}
	if c.gen.Load() != myGen {
		slog.Debug("recommend result superseded", "url", req.Primary.URL)
		return Response{}, ErrSuperseded
	}
	c.mu.Lock()
	c.latest = &resp
	c.mu.Unlock()
	return resp, nil
}

// Latest returns the most recent winning recommendation, if any.
func (c *Client) Latest() (Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		return Response{}, false
	}
	return *c.latest, true
}

// Similar returns fuzzy-matched markets for an event title.
func (c *Client) Similar(ctx context.Context, title string, useCosine bool, minSimilarity float64) ([]Market, error) {
	var out struct {
		SimilarMarkets []Market `json:"similar_markets"`
	}
	q := url.Values{
		"event_title":    {title},
		"use_cosine":     {strconv.FormatBool(useCosine)},
		"min_similarity": {strconv.FormatFloat(minSimilarity, 'f', -1, 64)},
	}
	if err := c.getJSON(ctx, "/similar?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out.SimilarMarkets, nil
}

// Related returns exact-relationship related markets, looked up by market id
// or event title.
func (c *Client) Related(ctx context.Context, marketID, title string, limit int) ([]Market, error) {
	var out struct {
		RelatedMarkets []Market `json:"related_markets"`
	}
	q := url.Values{}
	if marketID != "" {
		q.Set("market_id", marketID)
	}
	if title != "" {
		q.Set("event_title", title)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if err := c.getJSON(ctx, "/related?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out.RelatedMarkets, nil
}

// Trending returns the backend's current trending markets, optionally
// filtered by category.
func (c *Client) Trending(ctx context.Context, category string, limit int) ([]Market, error) {
	q := url.Values{}
	if category != "" && category != "all" {
		q.Set("category", category)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/markets/trending"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out []Market
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Tags returns the backend's locked topic tags.
func (c *Client) Tags(ctx context.Context) ([]string, error) {
	var out struct {
		Tags []string `json:"tags"`
	}
	if err := c.getJSON(ctx, "/v1/tags", &out); err != nil {
		return nil, err
	}
	return out.Tags, nil
}

// News returns recent headlines for a market question.
func (c *Client) News(ctx context.Context, question string) (News, error) {
	var out News
	q := url.Values{"question": {question}}
	if err := c.getJSON(ctx, "/news?"+q.Encode(), &out); err != nil {
		return News{}, err
	}
	return out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("recommend: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("recommend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("recommend: build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		slog.Warn("recommend backend request failed", "path", req.URL.Path, "error", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		slog.Warn("recommend backend non-200", "path", req.URL.Path, "status", resp.StatusCode)
		return fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
