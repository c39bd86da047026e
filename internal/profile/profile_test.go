package profile

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func TestSummaryCountsTopicsAndEntities(t *testing.T) {
	tr := NewTracker()
	tr.Record("Will Bitcoin close above 100k?", "https://polymarket.com/event/btc", "YES")
	tr.Record("Will Ethereum flip Bitcoin by 2030?", "https://polymarket.com/event/eth", "")
	tr.Record("Will the Fed cut rates in March?", "https://polymarket.com/event/fed", "NO")

	s := tr.Summary()
	if len(s.RecentInteractions) != 3 {
		t.Fatalf("recent interactions = %d, want 3", len(s.RecentInteractions))
	}
	if s.TopicCounts["crypto"] != 2 {
		t.Errorf("crypto count = %d, want 2", s.TopicCounts["crypto"])
	}
	if s.EntityCounts["bitcoin"] != 2 {
		t.Errorf("bitcoin count = %d, want 2", s.EntityCounts["bitcoin"])
	}
	first := s.RecentInteractions[0]
	if first.URL != "https://polymarket.com/event/btc" || first.Side != "YES" || first.Timestamp == 0 {
		t.Errorf("interaction = %+v", first)
	}
}

func TestRecordWindowEviction(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < interactionLimit; i++ {
		tr.Record(fmt.Sprintf("Will Bitcoin hit %dk?", i), "https://x/event/btc", "")
	}
	// Push the window full of a different topic.
	for i := 0; i < interactionLimit; i++ {
		tr.Record("Will the election go to a recount?", "https://x/event/recount", "")
	}
	s := tr.Summary()
	if len(s.RecentInteractions) != interactionLimit {
		t.Fatalf("recent interactions = %d, want %d", len(s.RecentInteractions), interactionLimit)
	}
	if s.TopicCounts["politics"] != interactionLimit {
		t.Errorf("politics count = %d, want %d", s.TopicCounts["politics"], interactionLimit)
	}
	if s.TopicCounts["crypto"] != 0 {
		t.Errorf("evicted topic still counted: %v", s.TopicCounts)
	}
}

func TestRecordIgnoresEmptyTitles(t *testing.T) {
	tr := NewTracker()
	tr.Record("   ", "https://x/event/a", "")
	tr.Record("", "", "")
	if s := tr.Summary(); len(s.RecentInteractions) != 0 {
		t.Errorf("recent interactions = %d, want 0", len(s.RecentInteractions))
	}
}

func TestSummaryMarshalsEmptyContainers(t *testing.T) {
	raw, err := json.Marshal(NewTracker().Summary())
	if err != nil {
		t.Fatal(err)
	}
	body := string(raw)
	for _, want := range []string{`"recent_interactions":[]`, `"topic_counts":{}`, `"entity_counts":{}`} {
		if !strings.Contains(body, want) {
			t.Errorf("profile JSON missing %q: %s", want, body)
		}
	}
}
