// Package lifecycle orchestrates the overlay across market tabs: it mounts
// the panel when a market page appears, survives SPA navigations, feeds
// interactions through the detector, and renders recommendation results
// back into the panel.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/pm_agent/internal/detect"
	"github.com/dgnsrekt/pm_agent/internal/metrics"
	"github.com/dgnsrekt/pm_agent/internal/overlay"
	"github.com/dgnsrekt/pm_agent/internal/pagecontrol"
	"github.com/dgnsrekt/pm_agent/internal/profile"
	"github.com/dgnsrekt/pm_agent/internal/recommend"
	"github.com/dgnsrekt/pm_agent/internal/scrape"
	"github.com/dgnsrekt/pm_agent/internal/syncstore"
)

// Pages is the page-driver surface the controller needs. Satisfied by
// *pagecontrol.Client; faked in tests.
type Pages interface {
	SetBridgeHandler(fn func(pagecontrol.PageEvent))
	ListPages(ctx context.Context) ([]pagecontrol.PageInfo, error)
	Viewport(ctx context.Context, marketID string) (pagecontrol.Viewport, error)
	ProbeMarketPage(ctx context.Context, marketID string) (bool, error)
	ScrapeMarket(ctx context.Context, marketID string) (scrape.CurrentMarket, error)
	EnsureMount(ctx context.Context, marketID string) (pagecontrol.MountStatus, error)
	InstallBridge(ctx context.Context, marketID string) error
	RenderPanel(ctx context.Context, marketID string, frame pagecontrol.PanelFrame) error
	SetTradeObserver(ctx context.Context, marketID string, on bool) error
}

// Recommender is the backend surface the controller needs.
type Recommender interface {
	Recommend(ctx context.Context, req recommend.Request) (recommend.Response, error)
}

type pageState struct {
	mounted bool
	market  scrape.CurrentMarket
}

// Controller is the agent's main loop. One instance drives all tabs.
type Controller struct {
	pages    Pages
	store    *overlay.Store
	records  *syncstore.Records
	tracker  *profile.Tracker
	rec      Recommender
	met      *metrics.Metrics
	detector *detect.Detector

	pollInterval time.Duration

	gestureMu sync.Mutex
	gesture   *overlay.Gesture

	mu        sync.Mutex
	observing bool
	known     map[string]*pageState
	lines     []string
	status    string
	stopped   bool

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewController(pages Pages, store *overlay.Store, records *syncstore.Records, rec Recommender, met *metrics.Metrics, pollInterval time.Duration) *Controller {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	c := &Controller{
		pages:        pages,
		store:        store,
		records:      records,
		tracker:      profile.NewTracker(),
		rec:          rec,
		met:          met,
		pollInterval: pollInterval,
		gesture:      overlay.NewGesture(),
		known:        make(map[string]*pageState),
		status:       "waiting for market pages",
	}
	c.detector = detect.NewDetector(c.onTrigger)
	return c
}

// Start wires the bridge handler and runs the page-sync loop until the
// context ends or Stop is called.
func (c *Controller) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pages.SetBridgeHandler(func(ev pagecontrol.PageEvent) { c.handleBridgeEvent(ctx, ev) })

	// Re-render whenever overlay state changes, whatever mutated it. The
	// trade observer follows the open flag: diagnostics only run while the
	// panel is visible.
	c.store.Subscribe(func(st overlay.State) {
		c.renderAll(ctx)
		c.syncTradeObservers(ctx, st.Open)
	})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.pollInterval)
		defer ticker.Stop()
		for {
			c.syncPages(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop halts the loop and the detector, then waits for in-flight work.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	c.detector.Close()
	c.wg.Wait()
}

// syncPages reconciles known tabs against what the browser reports: mounts
// the overlay on new market pages and forgets closed ones.
func (c *Controller) syncPages(ctx context.Context) {
	pages, err := c.pages.ListPages(ctx)
	if err != nil {
		slog.Warn("lifecycle page sync failed", "error", err)
		return
	}

	seen := make(map[string]bool, len(pages))
	for _, p := range pages {
		seen[p.MarketID] = true
		c.ensurePage(ctx, p.MarketID)
	}

	c.mu.Lock()
	for id := range c.known {
		if !seen[id] {
			delete(c.known, id)
		}
	}
	mounted := 0
	for _, st := range c.known {
		if st.mounted {
			mounted++
		}
	}
	c.mu.Unlock()
	c.met.PagesMounted.Set(float64(mounted))
}

// ensurePage mounts and wires a single market page. Idempotent: a page that
// is already live only gets a cheap state check.
func (c *Controller) ensurePage(ctx context.Context, marketID string) {
	c.mu.Lock()
	st, ok := c.known[marketID]
	if !ok {
		st = &pageState{}
		c.known[marketID] = st
	}
	alreadyMounted := st.mounted
	c.mu.Unlock()

	isMarket, err := c.pages.ProbeMarketPage(ctx, marketID)
	if err != nil || !isMarket {
		return
	}

	status, err := c.pages.EnsureMount(ctx, marketID)
	if err != nil {
		slog.Warn("lifecycle mount failed", "market_id", marketID, "error", err)
		return
	}

	if status.Created || !alreadyMounted {
		vp, err := c.pages.Viewport(ctx, marketID)
		if err == nil {
			if initErr := c.store.Init(ctx, overlay.Viewport{Width: vp.Width, Height: vp.Height}); initErr != nil {
				slog.Warn("lifecycle store init failed", "error", initErr)
			}
		}
		if err := c.pages.InstallBridge(ctx, marketID); err != nil {
			slog.Warn("lifecycle bridge install failed", "market_id", marketID, "error", err)
		}
		c.recordVisit(ctx, marketID)
		c.mu.Lock()
		st.mounted = true
		observing := c.observing
		c.mu.Unlock()
		if observing {
			if err := c.pages.SetTradeObserver(ctx, marketID, true); err != nil {
				slog.Debug("lifecycle trade observer start failed", "market_id", marketID, "error", err)
			}
		}
		c.renderPage(ctx, marketID)
		slog.Info("lifecycle page mounted", "market_id", marketID, "created", status.Created)
	}
}

// recordVisit scrapes the page and appends it to the market history.
func (c *Controller) recordVisit(ctx context.Context, marketID string) {
	market, err := c.pages.ScrapeMarket(ctx, marketID)
	if err != nil {
		slog.Debug("lifecycle scrape failed", "market_id", marketID, "error", err)
		return
	}
	c.mu.Lock()
	if st := c.known[marketID]; st != nil {
		st.market = market
	}
	c.mu.Unlock()

	if market.URL == "" {
		return
	}
	err = c.records.AddHistory(ctx, syncstore.MarketHistoryItem{Title: market.Title, URL: market.URL})
	if err != nil {
		c.met.PersistFailuresTotal.Inc()
		if !errors.Is(err, syncstore.ErrUnavailable) && !errors.Is(err, syncstore.ErrQuotaExceeded) {
			slog.Warn("lifecycle history write failed", "error", err)
		}
	}
}

func (c *Controller) handleBridgeEvent(ctx context.Context, ev pagecontrol.PageEvent) {
	c.met.BridgeEventsTotal.WithLabelValues(ev.Event.Kind).Inc()

	switch ev.Event.Kind {
	case pagecontrol.EventNavigated:
		c.handleNavigation(ctx, ev.MarketID, ev.Event.URL)
	case pagecontrol.EventToggle:
		c.store.Toggle()
	case pagecontrol.EventGesture:
		c.handleGesture(ev.Event)
	case pagecontrol.EventHover:
		amount, _ := scrape.ParseAmount(ev.Event.Amount)
		c.detector.Hover(ev.Event.Title, ev.Event.URL, string(scrape.DetectSide(ev.Event.Side)), amount)
	case pagecontrol.EventTicketOpen:
		amount, _ := scrape.ParseAmount(ev.Event.Amount)
		c.detector.TicketOpen(ev.Event.Title, ev.Event.URL, string(scrape.DetectSide(ev.Event.Side)), amount)
	case pagecontrol.EventTrade:
		slog.Debug("lifecycle trade fragment", "market_id", ev.MarketID, "len", len(ev.Event.Text))
	}
}

// handleGesture feeds raw pointer phases from the panel into the drag/resize
// machine. The page emits viewport coordinates; the machine turns them into
// partial changes and the store clamps them. Store calls happen outside
// gestureMu because Apply notifies subscribers synchronously.
func (c *Controller) handleGesture(ev pagecontrol.BridgeEvent) {
	px, py := int(ev.X), int(ev.Y)

	var (
		change overlay.Change
		move   bool
		revert *overlay.State
	)
	c.gestureMu.Lock()
	switch ev.Phase {
	case "down":
		c.gesture.Down(ev.Mode, px, py, c.store.State())
	case "move":
		change, move = c.gesture.Move(px, py)
	case "up":
		c.gesture.Up()
	case "cancel":
		if c.gesture.Active() {
			start := c.gesture.Start()
			revert = &start
			c.gesture.Cancel()
		}
	}
	c.gestureMu.Unlock()

	if move {
		c.store.Apply(change)
	}
	if revert != nil {
		c.store.SetPosition(revert.X, revert.Y)
		c.store.SetSize(revert.Width, revert.Height)
	}
}

// handleNavigation re-establishes the overlay after an SPA route change.
// Off-market routes keep the mount but hide the panel implicitly: nothing
// re-renders until the user returns to a market.
func (c *Controller) handleNavigation(ctx context.Context, marketID, url string) {
	c.detector.HoverEnd()
	slog.Debug("lifecycle navigation", "market_id", marketID, "url", url)

	isMarket, err := c.pages.ProbeMarketPage(ctx, marketID)
	if err != nil || !isMarket {
		return
	}
	if _, err := c.pages.EnsureMount(ctx, marketID); err != nil {
		slog.Warn("lifecycle remount after navigation failed", "market_id", marketID, "error", err)
		return
	}
	c.recordVisit(ctx, marketID)
	c.renderPage(ctx, marketID)
}

// onTrigger is the detector sink: record the interaction locally and chase
// a recommendation in the background.
func (c *Controller) onTrigger(trig detect.Trigger) {
	c.met.TriggersTotal.WithLabelValues(trig.Kind).Inc()
	c.tracker.Record(trig.Title, trig.URL, trig.Side)

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		c.fetchRecommendation(trig)
	}()
}

func (c *Controller) fetchRecommendation(trig detect.Trigger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	started := time.Now()
	resp, err := c.rec.Recommend(ctx, recommend.Request{
		Primary: recommend.Primary{
			URL:         trig.URL,
			Side:        trig.Side,
			Amount:      trig.Amount,
			TriggerType: trig.Kind,
		},
		Profile: c.tracker.Summary(),
	})
	c.met.RecommendDuration.Observe(time.Since(started).Seconds())

	switch {
	case errors.Is(err, recommend.ErrSuperseded):
		c.met.RecommendationsTotal.WithLabelValues("superseded").Inc()
		return
	case errors.Is(err, recommend.ErrUnavailable):
		c.met.RecommendationsTotal.WithLabelValues("unavailable").Inc()
		c.setPanelContent(nil, "assistant offline")
	case err != nil:
		c.met.RecommendationsTotal.WithLabelValues("malformed").Inc()
		c.setPanelContent(nil, "assistant returned an unusable answer")
	default:
		c.met.RecommendationsTotal.WithLabelValues("ok").Inc()
		c.setPanelContent(recommendationLines(resp), "updated "+time.Now().Format("15:04:05"))
	}
	c.renderAll(ctx)
}

// recommendationLines flattens the amplify/hedge sets into panel rows.
func recommendationLines(resp recommend.Response) []string {
	lines := make([]string, 0, len(resp.Amplify)+len(resp.Hedge)+2)
	appendSet := func(header string, recs []recommend.Recommendation) {
		if len(recs) == 0 {
			return
		}
		lines = append(lines, header)
		for _, r := range recs {
			line := "  " + r.Title
			if r.Reason != "" {
				line = fmt.Sprintf("  %s: %s", r.Title, r.Reason)
			}
			lines = append(lines, line)
		}
	}
	appendSet("Amplify", resp.Amplify)
	appendSet("Hedge", resp.Hedge)
	if len(lines) == 0 {
		lines = append(lines, "no recommendations for this market")
	}
	return lines
}

func (c *Controller) setPanelContent(lines []string, status string) {
	c.mu.Lock()
	if lines != nil {
		c.lines = lines
	}
	c.status = status
	c.mu.Unlock()
}

// syncTradeObservers starts or stops the trade-fragment observer on every
// mounted page when the panel's open flag flips.
func (c *Controller) syncTradeObservers(ctx context.Context, open bool) {
	c.mu.Lock()
	if c.observing == open {
		c.mu.Unlock()
		return
	}
	c.observing = open
	ids := make([]string, 0, len(c.known))
	for id, st := range c.known {
		if st.mounted {
			ids = append(ids, id)
		}
	}
	c.mu.Unlock()

	for _, id := range ids {
		if err := c.pages.SetTradeObserver(ctx, id, open); err != nil {
			slog.Debug("lifecycle trade observer toggle failed", "market_id", id, "on", open, "error", err)
		}
	}
}

// renderAll pushes the current frame to every mounted page.
func (c *Controller) renderAll(ctx context.Context) {
	c.mu.Lock()
	ids := make([]string, 0, len(c.known))
	for id, st := range c.known {
		if st.mounted {
			ids = append(ids, id)
		}
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.renderPage(ctx, id)
	}
}

func (c *Controller) renderPage(ctx context.Context, marketID string) {
	frame := c.buildFrame(marketID)
	c.met.RendersTotal.Inc()
	if err := c.pages.RenderPanel(ctx, marketID, frame); err != nil {
		c.met.RenderErrorsTotal.Inc()
		slog.Warn("lifecycle render failed", "market_id", marketID, "error", err)
		c.mu.Lock()
		if st := c.known[marketID]; st != nil {
			st.mounted = false
		}
		c.mu.Unlock()
	}
}

func (c *Controller) buildFrame(marketID string) pagecontrol.PanelFrame {
	st := c.store.State()

	c.mu.Lock()
	var market scrape.CurrentMarket
	if ps := c.known[marketID]; ps != nil {
		market = ps.market
	}
	lines := make([]string, len(c.lines))
	copy(lines, c.lines)
	status := c.status
	c.mu.Unlock()

	title := "Assistant"
	if market.Title != "" {
		title = market.Title
	}
	if market.Side != "" {
		status = strings.TrimSpace(fmt.Sprintf("%s %s", market.Side, status))
	}

	return pagecontrol.PanelFrame{
		Open:      st.Open,
		Minimized: st.Minimized,
		Layout:    string(st.Layout),
		X:         st.X,
		Y:         st.Y,
		Width:     st.Width,
		Height:    st.Height,
		Title:     title,
		Status:    status,
		Lines:     lines,
	}
}
