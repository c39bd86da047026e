// Package profile builds a local interest profile from market interactions.
// Everything stays in process; only the derived profile leaves the machine,
// attached to recommendation requests.
package profile

import (
	"strings"
	"sync"
	"time"
)

// interactionLimit bounds the rolling window the profile derives from.
const interactionLimit = 50

var topicKeywords = map[string][]string{
	"crypto":        {"bitcoin", "btc", "ethereum", "eth", "solana", "crypto", "token", "defi"},
	"politics":      {"election", "president", "senate", "congress", "primary", "nominee", "impeach"},
	"economy":       {"fed", "rate cut", "inflation", "gdp", "recession", "jobs report", "cpi"},
	"sports":        {"super bowl", "nba", "nfl", "world cup", "champions league", "playoff", "finals"},
	"tech":          {"ai", "openai", "iphone", "chip", "launch", "ipo", "startup"},
	"entertainment": {"oscar", "box office", "grammy", "album", "season", "movie"},
	"geopolitics":   {"ceasefire", "treaty", "sanctions", "invasion", "nato", "summit"},
}

var entityKeywords = []string{
	"bitcoin", "ethereum", "solana", "trump", "biden", "harris", "putin",
	"openai", "tesla", "spacex", "apple", "nvidia", "taylor swift",
	"chiefs", "lakers", "real madrid", "fed", "scotus",
}

// Interaction is one recorded market touch as it appears on the wire.
type Interaction struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Timestamp int64  `json:"timestamp"`
	Side      string `json:"side,omitempty"`
}

// Summary is the derived local profile shipped with recommendation
// requests: the recent interaction window plus keyword hit counts over it.
type Summary struct {
	RecentInteractions []Interaction  `json:"recent_interactions"`
	TopicCounts        map[string]int `json:"topic_counts"`
	EntityCounts       map[string]int `json:"entity_counts"`
}

type record struct {
	title string
	url   string
	side  string
	at    time.Time
}

// Tracker accumulates interactions and derives the profile on demand.
// Safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	recent []record
	now    func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// Record adds an interaction, evicting the oldest past the window.
func (t *Tracker) Record(title, url, side string) {
	title = strings.TrimSpace(title)
	if title == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recent = append(t.recent, record{title: title, url: url, side: side, at: t.now()})
	if len(t.recent) > interactionLimit {
		t.recent = t.recent[len(t.recent)-interactionLimit:]
	}
}

// Summary counts topic and entity keyword hits over the window. The
// containers are always non-nil so the profile marshals as [] and {} rather
// than null.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	recent := make([]record, len(t.recent))
	copy(recent, t.recent)
	t.mu.Unlock()

	s := Summary{
		RecentInteractions: make([]Interaction, 0, len(recent)),
		TopicCounts:        make(map[string]int),
		EntityCounts:       make(map[string]int),
	}
	for _, r := range recent {
		s.RecentInteractions = append(s.RecentInteractions, Interaction{
			Title:     r.title,
			URL:       r.url,
			Timestamp: r.at.UnixMilli(),
			Side:      r.side,
		})
		title := strings.ToLower(r.title)
		for topic, words := range topicKeywords {
			for _, w := range words {
				if strings.Contains(title, w) {
					s.TopicCounts[topic]++
					break
				}
			}
		}
		for _, e := range entityKeywords {
			if strings.Contains(title, e) {
				s.EntityCounts[e]++
			}
		}
	}
	return s
}
