package scrape

import "testing"

func TestIsMarketURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://polymarket.com/event/will-btc-close-above-100k", true},
		{"https://polymarket.com/market/fed-rate-cut-march", true},
		{"https://polymarket.com/event/x?tid=123#comments", true},
		{"https://polymarket.com/", false},
		{"https://polymarket.com/leaderboard", false},
		{"https://polymarket.com/event/", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsMarketURL(tt.url); got != tt.want {
			t.Errorf("IsMarketURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestMarketIDFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://polymarket.com/event/will-btc-close-above-100k", "will-btc-close-above-100k"},
		{"https://polymarket.com/market/fed-rate-cut-march?tid=9", "fed-rate-cut-march"},
		{"https://polymarket.com/event/slug/extra", "slug"},
		{"https://polymarket.com/leaderboard", ""},
	}
	for _, tt := range tests {
		if got := MarketIDFromURL(tt.url); got != tt.want {
			t.Errorf("MarketIDFromURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestPlausibleTitle(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  bool
	}{
		{"normal question", "Will BTC close above 100k in 2026?", true},
		{"too short", "BTC?", false},
		{"boundary short", "exactly10!", false},
		{"just over short boundary", "eleven chars", true},
		{"too long", longTitle(250), false},
		{"whitespace padded", "   Will the Fed cut rates in March?   ", true},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlausibleTitle(tt.title); got != tt.want {
				t.Errorf("PlausibleTitle(%q) = %v, want %v", tt.title, got, tt.want)
			}
		})
	}
}

func longTitle(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Will BTC close above 100k? | Polymarket", "Will BTC close above 100k?"},
		{"Will BTC close above 100k?", "Will BTC close above 100k?"},
		{"  padded  | Polymarket", "padded"},
		{"Fed rate cut in March | Polymarket", "Fed rate cut in March"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeTitle(tt.in); got != tt.want {
			t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDetectSide(t *testing.T) {
	tests := []struct {
		label string
		want  Side
	}{
		{"Yes", SideYes},
		{"Buy Yes", SideYes},
		{"BUY", SideYes},
		{"No", SideNo},
		{"Sell", SideNo},
		{"sell no", SideNo},
		{"Limit", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := DetectSide(tt.label); got != tt.want {
			t.Errorf("DetectSide(%q) = %q, want %q", tt.label, got, tt.want)
		}
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"25", 25, true},
		{"$25.50", 25.5, true},
		{"1,250", 1250, true},
		{"$1,250.75", 1250.75, true},
		{" 10 ", 10, true},
		{"", 0, false},
		{"abc", 0, false},
		{"-5", 0, false},
		{"0", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseAmount(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParseAmount(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
