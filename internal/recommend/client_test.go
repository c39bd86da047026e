package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/pm_agent/internal/profile"
)

func btcRequest() Request {
	tr := profile.NewTracker()
	tr.Record("Will BTC close above 100k?", "https://polymarket.com/event/btc", "YES")
	return Request{
		Primary: Primary{
			URL:         "https://polymarket.com/event/btc",
			Side:        "YES",
			Amount:      25,
			TriggerType: "ticket_open",
		},
		Profile: tr.Summary(),
	}
}

func TestRecommendRoundTrip(t *testing.T) {
	var gotBody map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/recommendations" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(Response{
			Amplify: []Recommendation{{ID: "m1", Title: "Will ETH close above 5k?", URL: "https://polymarket.com/event/eth", Category: "Finance", Score: 0.8, Reason: "same momentum"}},
			Hedge:   []Recommendation{{ID: "m2", Title: "Will BTC drop below 80k?", URL: "https://polymarket.com/event/btc-80k", Score: 0.6}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	resp, err := c.Recommend(context.Background(), btcRequest())
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(resp.Amplify) != 1 || len(resp.Hedge) != 1 {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Amplify[0].Title != "Will ETH close above 5k?" {
		t.Errorf("amplify = %+v", resp.Amplify)
	}

	var primary Primary
	if raw, ok := gotBody["primary"]; !ok {
		t.Fatalf("request body missing primary: %v", gotBody)
	} else if err := json.Unmarshal(raw, &primary); err != nil {
		t.Fatal(err)
	}
	if primary.URL != "https://polymarket.com/event/btc" || primary.Side != "YES" || primary.TriggerType != "ticket_open" {
		t.Errorf("primary = %+v", primary)
	}

	var prof profile.Summary
	if raw, ok := gotBody["local_profile"]; !ok {
		t.Fatalf("request body missing local_profile: %v", gotBody)
	} else if err := json.Unmarshal(raw, &prof); err != nil {
		t.Fatal(err)
	}
	if len(prof.RecentInteractions) != 1 || prof.TopicCounts["crypto"] != 1 {
		t.Errorf("local_profile = %+v", prof)
	}
}

func TestRecommendRejectsEmptyURL(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", 0)
	if _, err := c.Recommend(context.Background(), Request{Primary: Primary{URL: "  "}}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestRecommendBackendDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := NewClient(srv.URL, 0)
	if _, err := c.Recommend(context.Background(), btcRequest()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestRecommendNon200IsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	if _, err := c.Recommend(context.Background(), btcRequest()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestRecommendUnparseableBodyIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>bad gateway page</html>"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	if _, err := c.Recommend(context.Background(), btcRequest()); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestRecommendAcceptsEmptySets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"amplify":[],"hedge":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	resp, err := c.Recommend(context.Background(), btcRequest())
	if err != nil {
		t.Fatalf("empty sets rejected: %v", err)
	}
	if len(resp.Amplify) != 0 || len(resp.Hedge) != 0 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestRecommendTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server's background read can observe the
		// client disconnect and cancel the request context; otherwise
		// srv.Close deadlocks waiting on this handler.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 50*time.Millisecond)
	start := time.Now()
	_, err := c.Recommend(context.Background(), btcRequest())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if time.Since(start) > time.Second {
		t.Error("timeout did not abort the request promptly")
	}
}

func TestRecommendLastRequestedWins(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		json.NewDecoder(r.Body).Decode(&req)
		if req.Primary.TriggerType == "slow" {
			<-release // hold the first request until the second finishes
		}
		json.NewEncoder(w).Encode(Response{
			Amplify: []Recommendation{{Title: "for " + req.Primary.TriggerType, URL: "https://x/event/a"}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)

	var wg sync.WaitGroup
	var slowErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, slowErr = c.Recommend(context.Background(), Request{Primary: Primary{URL: "https://x/event/first", TriggerType: "slow"}})
	}()

	// Let the slow request claim its generation before the fast one starts.
	time.Sleep(50 * time.Millisecond)

	resp, err := c.Recommend(context.Background(), Request{Primary: Primary{URL: "https://x/event/second", TriggerType: "fast"}})
	if err != nil {
		t.Fatalf("fast request: %v", err)
	}
	if len(resp.Amplify) != 1 || resp.Amplify[0].Title != "for fast" {
		t.Errorf("fast amplify = %+v", resp.Amplify)
	}

	once.Do(func() { close(release) })
	wg.Wait()
	if !errors.Is(slowErr, ErrSuperseded) {
		t.Fatalf("slow request err = %v, want ErrSuperseded", slowErr)
	}
}

func TestSimilarQueryAndShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/similar" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("event_title") != "Will BTC close above 100k?" {
			t.Errorf("event_title = %q", q.Get("event_title"))
		}
		if q.Get("use_cosine") != "true" || q.Get("min_similarity") != "0.5" {
			t.Errorf("query = %v", q)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"count":           1,
			"strategy_used":   "cosine",
			"similar_markets": []Market{{Question: "Will BTC hit 120k?", Similarity: 0.91, MatchType: "cosine"}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	markets, err := c.Similar(context.Background(), "Will BTC close above 100k?", true, 0.5)
	if err != nil || len(markets) != 1 {
		t.Fatalf("Similar: %v %v", markets, err)
	}
	if markets[0].Question != "Will BTC hit 120k?" || markets[0].Similarity != 0.91 {
		t.Errorf("market = %+v", markets[0])
	}
}

func TestRelatedTrendingTagsNews(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/related":
			if q.Get("market_id") != "m1" || q.Get("limit") != "10" {
				t.Errorf("related query = %v", q)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"count":           1,
				"related_markets": []Market{{ID: "m2", Question: "Will BTC hit 120k?"}},
			})
		case "/markets/trending":
			if q.Get("category") != "Finance" || q.Get("limit") != "20" {
				t.Errorf("trending query = %v", q)
			}
			json.NewEncoder(w).Encode([]Market{{Question: "Will the Fed cut in March?", TrendingScore: 0.73}})
		case "/v1/tags":
			if len(q) != 0 {
				t.Errorf("tags query = %v, want none", q)
			}
			json.NewEncoder(w).Encode(map[string]any{"tags": []string{"crypto", "btc"}})
		case "/news":
			if q.Get("question") != "Will BTC close above 100k?" {
				t.Errorf("news query = %v", q)
			}
			json.NewEncoder(w).Encode(News{
				Question: "Will BTC close above 100k?",
				Count:    1,
				Articles: []NewsArticle{{Title: "BTC rallies past 95k", Name: "Reuters"}},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	ctx := context.Background()

	related, err := c.Related(ctx, "m1", "", 10)
	if err != nil || len(related) != 1 || related[0].ID != "m2" {
		t.Fatalf("Related: %v %v", related, err)
	}
	trending, err := c.Trending(ctx, "Finance", 20)
	if err != nil || len(trending) != 1 || trending[0].TrendingScore != 0.73 {
		t.Fatalf("Trending: %v %v", trending, err)
	}
	tags, err := c.Tags(ctx)
	if err != nil || len(tags) != 2 {
		t.Fatalf("Tags: %v %v", tags, err)
	}
	news, err := c.News(ctx, "Will BTC close above 100k?")
	if err != nil || news.Count != 1 || len(news.Articles) != 1 || news.Articles[0].Name != "Reuters" {
		t.Fatalf("News: %+v %v", news, err)
	}
}
