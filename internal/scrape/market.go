// Package scrape holds the market extraction heuristics shared by the page
// driver and the lifecycle controller. Everything here is best effort: the
// host page's markup is unversioned and selectors miss without warning, so
// every function degrades to a lower-fidelity signal instead of failing.
package scrape

import (
	"regexp"
	"strconv"
	"strings"
)

// Side is the detected trade direction. Absence (empty string) means the
// heuristics were ambiguous; a side is never guessed.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// CurrentMarket is the market currently viewed on a page. Side and Amount are
// heuristic and may be stale or wrong.
type CurrentMarket struct {
	Title  string  `json:"title"`
	URL    string  `json:"url"`
	Side   Side    `json:"side,omitempty"`
	Amount float64 `json:"amount,omitempty"`
}

const (
	// Titles shorter than this are assumed to be navigation chrome, longer
	// ones concatenated card text.
	minTitleLen = 10
	maxTitleLen = 200

	pageTitleSuffix = " | Polymarket"
)

var marketPathPattern = regexp.MustCompile(`/(?:event|market)/([^/?#]+)`)

// IsMarketURL reports whether the URL path contains a market or event
// segment. Used as the cheap half of the market-page gate; the expensive half
// is a title-element check on the page itself.
func IsMarketURL(url string) bool {
	return marketPathPattern.MatchString(url)
}

// MarketIDFromURL extracts the market slug from an event/market URL, or ""
// when the URL has no market segment.
func MarketIDFromURL(url string) string {
	m := marketPathPattern.FindStringSubmatch(url)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// PlausibleTitle reports whether a scraped text fragment looks like a market
// question rather than an empty match or a garbage-long concatenation.
func PlausibleTitle(text string) bool {
	n := len(strings.TrimSpace(text))
	return n > minTitleLen && n < maxTitleLen
}

// NormalizeTitle trims a raw title candidate and strips the host page's
// title suffix. Returns "" when nothing usable remains.
func NormalizeTitle(raw string) string {
	t := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), pageTitleSuffix))
	return t
}

// DetectSide scans container text for a trade direction. First match wins;
// ambiguous input yields the empty Side.
func DetectSide(text string) Side {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "yes") || strings.Contains(lower, "buy") {
		return SideYes
	}
	if strings.Contains(lower, "no") || strings.Contains(lower, "sell") {
		return SideNo
	}
	return ""
}

// ParseAmount parses a stake amount from input-field text, tolerating a
// leading dollar sign and thousands separators. Zero, negative, and
// unparseable values all report false; a stake of zero is never meaningful.
func ParseAmount(text string) (float64, bool) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
