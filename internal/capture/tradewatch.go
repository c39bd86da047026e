// Package capture journals the market-data traffic the host page already
// receives. The overlay renders recommendations from the backend; this
// package exists for offline analysis, keeping a local JSONL record of the
// price and book responses flowing into watched tabs.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/pm_agent/internal/scrape"
)

// apiHints mark responses worth journaling: the market-data endpoints the
// host page polls.
var apiHints = []string{
	"clob.polymarket.com",
	"gamma-api.polymarket.com",
	"/prices",
	"/books",
	"/markets",
}

const maxJournaledBody = 64 * 1024

// MarketDataRecord is one journaled API response. Truncated bodies carry
// the original size and full-body hash so the record stays attributable.
type MarketDataRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	MarketID     string    `json:"market_id,omitempty"`
	TabURL       string    `json:"tab_url"`
	URL          string    `json:"url"`
	Status       int       `json:"status"`
	Body         string    `json:"body,omitempty"`
	Truncated    bool      `json:"truncated,omitempty"`
	OriginalSize int       `json:"original_size,omitempty"`
	SHA256       string    `json:"sha256,omitempty"`
}

// TradeWatch attaches to market tabs over a second, passive CDP connection
// and journals their market-data responses. Fully independent of the page
// driver: losing it never affects the overlay.
type TradeWatch struct {
	cdpURL    string
	tabFilter string
	journal   *Journal

	allocCtx    context.Context
	allocCancel context.CancelFunc

	mu   sync.Mutex
	tabs map[target.ID]*watchedTab
	done chan struct{}
}

type watchedTab struct {
	url    string
	ctx    context.Context
	cancel context.CancelFunc
}

func NewTradeWatch(cdpURL, tabFilter string, journal *Journal) *TradeWatch {
	return &TradeWatch{
		cdpURL:    cdpURL,
		tabFilter: strings.ToLower(tabFilter),
		journal:   journal,
		tabs:      make(map[target.ID]*watchedTab),
		done:      make(chan struct{}),
	}
}

// Start connects and attaches to every matching tab, then rescans
// periodically for tabs opened later.
func (w *TradeWatch) Start(ctx context.Context) error {
	w.allocCtx, w.allocCancel = chromedp.NewRemoteAllocator(context.Background(), w.cdpURL)

	tempCtx, tempCancel := chromedp.NewContext(w.allocCtx)
	defer tempCancel()
	if err := chromedp.Run(tempCtx); err != nil {
		return fmt.Errorf("tradewatch connect: %w", err)
	}

	w.scan(tempCtx)

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-w.done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				scanCtx, scanCancel := chromedp.NewContext(w.allocCtx)
				w.scan(scanCtx)
				scanCancel()
			}
		}
	}()
	return nil
}

func (w *TradeWatch) scan(ctx context.Context) {
	targets, err := chromedp.Targets(ctx)
	if err != nil {
		slog.Warn("tradewatch target scan failed", "error", err)
		return
	}
	for _, t := range targets {
		if t.Type != "page" || !w.matches(t.URL) {
			continue
		}
		w.mu.Lock()
		_, attached := w.tabs[t.TargetID]
		w.mu.Unlock()
		if attached {
			continue
		}
		if err := w.attach(t.TargetID, t.URL); err != nil {
			slog.Warn("tradewatch attach failed", "target_id", t.TargetID, "error", err)
		}
	}
}

func (w *TradeWatch) attach(targetID target.ID, url string) error {
	tabCtx, tabCancel := chromedp.NewContext(w.allocCtx, chromedp.WithTargetID(targetID))
	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		tabCancel()
		return fmt.Errorf("enable network domain: %w", err)
	}

	tab := &watchedTab{url: url, ctx: tabCtx, cancel: tabCancel}
	w.mu.Lock()
	w.tabs[targetID] = tab
	w.mu.Unlock()

	chromedp.ListenTarget(tabCtx, w.eventHandler(targetID, tab))
	slog.Info("tradewatch attached", "target_id", targetID, "url", truncateURL(url))
	return nil
}

func (w *TradeWatch) eventHandler(targetID target.ID, tab *watchedTab) func(ev any) {
	type pendingResp struct {
		url    string
		status int
	}
	var mu sync.Mutex
	pending := make(map[network.RequestID]pendingResp)

	return func(ev any) {
		switch e := ev.(type) {
		case *page.EventNavigatedWithinDocument:
			w.mu.Lock()
			tab.url = e.URL
			w.mu.Unlock()
		case *network.EventResponseReceived:
			if !w.isMarketData(e.Response.URL) {
				return
			}
			mu.Lock()
			pending[e.RequestID] = pendingResp{url: e.Response.URL, status: int(e.Response.Status)}
			mu.Unlock()
		case *network.EventLoadingFinished:
			mu.Lock()
			p, ok := pending[e.RequestID]
			delete(pending, e.RequestID)
			mu.Unlock()
			if !ok {
				return
			}
			go w.journalResponse(tab, e.RequestID, p.url, p.status)
		case *network.EventLoadingFailed:
			mu.Lock()
			delete(pending, e.RequestID)
			mu.Unlock()
		case *target.EventTargetDestroyed:
			w.detach(targetID)
		}
	}
}

func (w *TradeWatch) journalResponse(tab *watchedTab, requestID network.RequestID, url string, status int) {
	bodyCtx, bodyCancel := context.WithTimeout(tab.ctx, 10*time.Second)
	defer bodyCancel()

	var body []byte
	err := chromedp.Run(bodyCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		body, err = network.GetResponseBody(requestID).Do(ctx)
		return err
	}))
	if err != nil {
		slog.Debug("tradewatch body fetch failed", "request_id", requestID, "error", err)
	}

	record := MarketDataRecord{
		Timestamp: time.Now().UTC(),
		MarketID:  scrape.MarketIDFromURL(tab.url),
		TabURL:    tab.url,
		URL:       url,
		Status:    status,
	}
	if len(body) > 0 && utf8.Valid(body) {
		kept, truncated, originalSize, bodyHash := truncateBytes(body, maxJournaledBody)
		record.Body = string(kept)
		if truncated {
			record.Truncated = true
			record.OriginalSize = originalSize
			record.SHA256 = bodyHash
		}
	}
	if err := w.journal.Write(record); err != nil {
		slog.Debug("tradewatch journal write dropped", "error", err)
	}
}

func (w *TradeWatch) detach(targetID target.ID) {
	w.mu.Lock()
	tab, ok := w.tabs[targetID]
	if ok {
		delete(w.tabs, targetID)
	}
	w.mu.Unlock()
	if ok {
		tab.cancel()
		slog.Info("tradewatch detached", "target_id", targetID)
	}
}

// TabCount reports attached tabs, for the status endpoint.
func (w *TradeWatch) TabCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.tabs)
}

func (w *TradeWatch) Close() error {
	close(w.done)

	w.mu.Lock()
	for id, tab := range w.tabs {
		tab.cancel()
		delete(w.tabs, id)
	}
	w.mu.Unlock()

	if w.allocCancel != nil {
		w.allocCancel()
	}
	slog.Info("tradewatch closed")
	return nil
}

func (w *TradeWatch) matches(url string) bool {
	if w.tabFilter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(url), w.tabFilter)
}

func (w *TradeWatch) isMarketData(url string) bool {
	lower := strings.ToLower(url)
	for _, hint := range apiHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
