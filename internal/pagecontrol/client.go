package pagecontrol

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/dgnsrekt/pm_agent/internal/scrape"
)

// BridgeBinding is the window-level function name the injected scripts call
// to deliver events back to the agent.
const BridgeBinding = "__pmAgentBridge"

// transientHints are substrings in error causes that indicate a transient
// failure worth retrying (e.g. broken connection, closed session).
var transientHints = []string{
	"context canceled",
	"target closed",
	"session closed",
	"websocket",
	"connection reset",
	"broken pipe",
	"eof",
	"connection refused",
	"connection closed",
}

type tabSession struct {
	info      PageInfo
	mu        sync.Mutex
	sessionID string // CDP session ID from Target.attachToTarget
}

// Client drives prediction-market tabs over CDP. It is the single capability
// object through which the agent touches the page: evaluation, overlay
// mutation, and bridge event delivery all pass through here so tests can
// substitute a fake.
type Client struct {
	cdpURL      string
	tabFilter   string
	evalTimeout time.Duration

	mu             sync.Mutex
	cdp            *rawCDP
	tabs           map[target.ID]*tabSession
	marketToTarget map[string]target.ID

	pageLocksMu sync.Mutex
	pageLocks   map[string]*sync.Mutex

	bridgeMu      sync.Mutex
	bridgeHandler func(PageEvent)
	unregister    func()
}

type evalEnvelope struct {
	OK           bool            `json:"ok"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

func NewClient(cdpURL, tabFilter string, evalTimeout time.Duration) *Client {
	return &Client{
		cdpURL:         cdpURL,
		tabFilter:      strings.ToLower(strings.TrimSpace(tabFilter)),
		evalTimeout:    evalTimeout,
		tabs:           make(map[target.ID]*tabSession),
		marketToTarget: make(map[string]target.ID),
		pageLocks:      make(map[string]*sync.Mutex),
	}
}

// SetBridgeHandler registers the consumer for page bridge events. Must be
// called before Connect; later events for unknown sessions are dropped.
func (c *Client) SetBridgeHandler(fn func(PageEvent)) {
	c.bridgeMu.Lock()
	c.bridgeHandler = fn
	c.bridgeMu.Unlock()
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.cdpURL == "" {
		return newError(CodeCDPUnavailable, "missing CDP URL", nil)
	}

	slog.Info("pagecontrol connect start", "cdp_url", c.cdpURL)
	c.cleanupLocked()

	c.cdp = newRawCDP(c.cdpURL)
	if err := c.cdp.connect(ctx); err != nil {
		c.cdp = nil
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}

	c.unregister = c.cdp.registerEventHandler("Runtime.bindingCalled", c.handleBindingCalled)

	if err := c.syncTabsLocked(ctx); err != nil {
		slog.Error("pagecontrol initial tab sync failed", "error", err)
		c.cleanupLocked()
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}

	slog.Info("pagecontrol connect ok", "cdp_url", c.cdpURL, "tabs", len(c.tabs))
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
	return nil
}

func (c *Client) cleanupLocked() {
	if c.unregister != nil {
		c.unregister()
		c.unregister = nil
	}
	// Detach from any active sessions without closing targets.
	if c.cdp != nil {
		for _, session := range c.tabs {
			if session == nil {
				continue
			}
			session.mu.Lock()
			if session.sessionID != "" {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				_ = c.cdp.detachFromTarget(ctx, session.sessionID)
				cancel()
				session.sessionID = ""
			}
			session.mu.Unlock()
		}
		c.cdp.close()
		c.cdp = nil
	}
	c.tabs = make(map[target.ID]*tabSession)
	c.marketToTarget = make(map[string]target.ID)
}

// ListPages returns the market tabs currently known, sorted by market ID.
func (c *Client) ListPages(ctx context.Context) ([]PageInfo, error) {
	if err := c.refreshTabs(ctx); err != nil {
		slog.Warn("pagecontrol list pages failed", "error", err)
		return nil, err
	}

	c.mu.Lock()
	pages := make([]PageInfo, 0, len(c.tabs))
	for _, s := range c.tabs {
		if s != nil {
			pages = append(pages, s.info)
		}
	}
	c.mu.Unlock()

	sort.Slice(pages, func(i, j int) bool {
		return pages[i].MarketID < pages[j].MarketID
	})
	slog.Debug("pagecontrol list pages", "count", len(pages))
	return pages, nil
}

// PageURL returns the last-synced URL of a market tab.
func (c *Client) PageURL(ctx context.Context, marketID string) (string, error) {
	_, info, err := c.resolvePageSession(ctx, marketID)
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

// Viewport reads the inner window dimensions of a market tab.
func (c *Client) Viewport(ctx context.Context, marketID string) (Viewport, error) {
	var out Viewport
	if err := c.evalOnPage(ctx, marketID, jsViewport(), &out); err != nil {
		return Viewport{}, err
	}
	return out, nil
}

// ScrapeMarket extracts the currently viewed market from the page DOM. All
// selector misses degrade to the page title or to absent side/amount; the Go
// side applies plausibility normalization on the raw JS result.
func (c *Client) ScrapeMarket(ctx context.Context, marketID string) (scrape.CurrentMarket, error) {
	var raw struct {
		Title     string `json:"title"`
		PageTitle string `json:"page_title"`
		URL       string `json:"url"`
		Side      string `json:"side,omitempty"`
		Amount    string `json:"amount,omitempty"`
	}
	if err := c.evalOnPage(ctx, marketID, jsScrapeMarket(), &raw); err != nil {
		return scrape.CurrentMarket{}, err
	}

	market := scrape.CurrentMarket{URL: raw.URL}

	if scrape.PlausibleTitle(raw.Title) {
		market.Title = strings.TrimSpace(raw.Title)
	} else {
		market.Title = scrape.NormalizeTitle(raw.PageTitle)
	}
	if market.Title == "" {
		market.Title = "Market"
	}

	market.Side = scrape.Side(raw.Side)
	if amount, ok := scrape.ParseAmount(raw.Amount); ok {
		market.Amount = amount
	}
	return market, nil
}

// ProbeMarketPage reports whether the tab currently shows a market: its URL
// carries a market segment, or a plausible title element exists.
func (c *Client) ProbeMarketPage(ctx context.Context, marketID string) (bool, error) {
	url, err := c.PageURL(ctx, marketID)
	if err != nil {
		return false, err
	}
	if scrape.IsMarketURL(url) {
		return true, nil
	}
	var out struct {
		HasTitle bool `json:"has_title"`
	}
	if err := c.evalOnPage(ctx, marketID, jsProbeTitle(), &out); err != nil {
		return false, err
	}
	return out.HasTitle, nil
}

// EnsureMount creates the overlay mount on the page if it does not already
// exist. Safe to call on every render; the mount survives SPA navigations
// and is never recreated while the page lives.
func (c *Client) EnsureMount(ctx context.Context, marketID string) (MountStatus, error) {
	var out MountStatus
	if err := c.evalOnPage(ctx, marketID, jsEnsureMount(), &out); err != nil {
		return MountStatus{}, err
	}
	return out, nil
}

// RenderPanel pushes a frame of overlay state into the mounted panel.
func (c *Client) RenderPanel(ctx context.Context, marketID string, frame PanelFrame) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.evalOnPage(ctx, marketID, jsRenderPanel(frame), &out); err != nil {
		return err
	}
	if out.Status == "" {
		return newError(CodeEvalFailure, "empty render status", nil)
	}
	return nil
}

// InstallBridge enables the runtime domain, exposes the bridge binding, and
// injects the interaction detector and SPA navigation hooks. Idempotent per
// page load: the injected scripts guard on a window flag.
func (c *Client) InstallBridge(ctx context.Context, marketID string) error {
	session, info, err := c.resolvePageSession(ctx, marketID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	cdp := c.cdp
	c.mu.Unlock()
	if cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	sessionID, err := c.ensureSession(ctx, cdp, session, info.TargetID)
	if err != nil {
		return err
	}

	if err := cdp.enableRuntimeDomain(ctx, sessionID); err != nil {
		return newError(CodeCDPUnavailable, "enable runtime domain failed", err)
	}
	if err := cdp.addBinding(ctx, sessionID, BridgeBinding); err != nil {
		return newError(CodeCDPUnavailable, "add bridge binding failed", err)
	}

	var out struct {
		Installed bool `json:"installed"`
	}
	if err := c.evalOnPage(ctx, marketID, jsInstallBridge(), &out); err != nil {
		return err
	}
	slog.Info("pagecontrol bridge installed", "market_id", marketID, "fresh", out.Installed)
	return nil
}

// SetTradeObserver starts or stops the advisory trade-fragment observer on a
// page. Observations are reported through the bridge and surface only as
// diagnostics.
func (c *Client) SetTradeObserver(ctx context.Context, marketID string, on bool) error {
	var out struct {
		Observing bool `json:"observing"`
	}
	return c.evalOnPage(ctx, marketID, jsSetTradeObserver(on), &out)
}

// OpenBackgroundTab opens the URL in a new tab without focusing it. Scheme
// validation is the caller's responsibility.
func (c *Client) OpenBackgroundTab(ctx context.Context, url string) (string, error) {
	c.mu.Lock()
	cdp := c.cdp
	c.mu.Unlock()
	if cdp == nil {
		return "", newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}
	id, err := cdp.createTarget(ctx, url, true)
	if err != nil {
		return "", newError(CodeCDPUnavailable, "create target failed", err)
	}
	return id, nil
}

func (c *Client) handleBindingCalled(sessionID string, params json.RawMessage) {
	var ev struct {
		Name    string `json:"name"`
		Payload string `json:"payload"`
	}
	if err := json.Unmarshal(params, &ev); err != nil || ev.Name != BridgeBinding {
		return
	}

	marketID := c.marketForSession(sessionID)
	if marketID == "" {
		slog.Debug("pagecontrol bridge event for unknown session", "session_id", sessionID)
		return
	}

	event, err := decodeBridgePayload(ev.Payload)
	if err != nil {
		slog.Warn("pagecontrol bridge payload rejected", "market_id", marketID, "error", err)
		return
	}

	c.bridgeMu.Lock()
	handler := c.bridgeHandler
	c.bridgeMu.Unlock()
	if handler != nil {
		handler(PageEvent{MarketID: marketID, Event: event})
	}
}

func (c *Client) marketForSession(sessionID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, session := range c.tabs {
		if session == nil {
			continue
		}
		session.mu.Lock()
		match := session.sessionID == sessionID
		info := session.info
		session.mu.Unlock()
		if match {
			return info.MarketID
		}
	}
	return ""
}

func (c *Client) evalOnPage(ctx context.Context, marketID, js string, out any) error {
	marketID = strings.TrimSpace(marketID)
	if marketID == "" {
		return newError(CodePageNotFound, "market id is required", nil)
	}

	lock := c.pageLock(marketID)
	lock.Lock()
	defer lock.Unlock()

	// First attempt.
	slog.Debug("pagecontrol eval on page", "market_id", marketID)
	session, info, err := c.resolvePageSession(ctx, marketID)
	if err != nil {
		slog.Warn("pagecontrol page resolve failed", "market_id", marketID, "error", err)
	} else {
		err = c.evalOnSession(ctx, session, info.TargetID, js, out)
	}
	if err == nil {
		return nil
	}
	if !c.shouldRetry(err) {
		return err
	}

	// Retry after recovery.
	slog.Warn("pagecontrol eval retry after transient failure", "market_id", marketID, "error", err)
	if c.asCode(err, CodeCDPUnavailable) {
		if recErr := c.reconnect(ctx); recErr != nil {
			slog.Error("pagecontrol reconnect failed during retry", "market_id", marketID, "error", recErr)
			return recErr
		}
	} else {
		if syncErr := c.refreshTabs(ctx); syncErr != nil {
			slog.Warn("pagecontrol tab refresh failed during retry", "market_id", marketID, "error", syncErr)
		}
	}

	session, info, err = c.resolvePageSession(ctx, marketID)
	if err != nil {
		slog.Warn("pagecontrol page resolve failed (retry)", "market_id", marketID, "error", err)
		return err
	}
	return c.evalOnSession(ctx, session, info.TargetID, js, out)
}

func (c *Client) evalOnSession(ctx context.Context, session *tabSession, targetID, js string, out any) error {
	c.mu.Lock()
	cdp := c.cdp
	c.mu.Unlock()
	if cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	sessionID, err := c.ensureSession(ctx, cdp, session, targetID)
	if err != nil {
		return err
	}

	evalCtx, evalCancel := context.WithTimeout(ctx, c.evalTimeout)
	defer evalCancel()

	raw, err := cdp.evaluate(evalCtx, sessionID, js)
	if err != nil {
		slog.Warn("pagecontrol eval failed", "target_id", targetID, "error", err)
		// Reset session so a fresh attach happens on retry.
		session.mu.Lock()
		session.sessionID = ""
		session.mu.Unlock()

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(evalCtx.Err(), context.DeadlineExceeded) {
			return newError(CodeEvalTimeout, "evaluation timed out", err)
		}
		return newError(CodeEvalFailure, "evaluation failed", err)
	}

	var env evalEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation envelope", err)
	}
	if !env.OK {
		code := env.ErrorCode
		if code == "" {
			code = CodeEvalFailure
		}
		return newError(code, env.ErrorMessage, nil)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation data", err)
	}
	return nil
}

// ensureSession returns a CDP session ID for the target, attaching if needed.
func (c *Client) ensureSession(ctx context.Context, cdp *rawCDP, session *tabSession, targetID string) (string, error) {
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.sessionID != "" {
		return session.sessionID, nil
	}

	sid, err := cdp.attachToTarget(ctx, targetID)
	if err != nil {
		return "", newError(CodeCDPUnavailable, "attach to target failed", err)
	}
	session.sessionID = sid
	slog.Debug("pagecontrol session attached", "target_id", targetID, "session_id", sid)
	return sid, nil
}

func (c *Client) resolvePageSession(ctx context.Context, marketID string) (*tabSession, PageInfo, error) {
	session, info, found := c.lookupPageSession(marketID)
	if found {
		return session, info, nil
	}

	if err := c.refreshTabs(ctx); err != nil {
		return nil, PageInfo{}, err
	}

	session, info, found = c.lookupPageSession(marketID)
	if found {
		return session, info, nil
	}

	return nil, PageInfo{}, newError(CodePageNotFound, "market page not found: "+marketID, nil)
}

func (c *Client) lookupPageSession(marketID string) (*tabSession, PageInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	targetID, ok := c.marketToTarget[marketID]
	if !ok {
		return nil, PageInfo{}, false
	}
	session := c.tabs[targetID]
	if session == nil {
		return nil, PageInfo{}, false
	}
	return session, session.info, true
}

func (c *Client) refreshTabs(ctx context.Context) error {
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	err := c.syncTabsLocked(ctx)
	c.mu.Unlock()
	if err == nil {
		return nil
	}

	return newError(CodeCDPUnavailable, "failed to list targets", err)
}

func (c *Client) reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) syncTabsLocked(ctx context.Context) error {
	if c.cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	targets, err := c.cdp.listTargets(ctx)
	if err != nil {
		return err
	}

	expected := make(map[target.ID]PageInfo)
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		if c.tabFilter != "" && !strings.Contains(strings.ToLower(t.URL), c.tabFilter) {
			continue
		}
		marketID := scrape.MarketIDFromURL(t.URL)
		if marketID == "" {
			continue
		}
		expected[t.TargetID] = PageInfo{
			MarketID: marketID,
			TargetID: string(t.TargetID),
			URL:      t.URL,
			Title:    t.Title,
		}
	}

	for targetID := range c.tabs {
		if _, ok := expected[targetID]; ok {
			continue
		}
		delete(c.tabs, targetID)
	}

	for targetID, info := range expected {
		session := c.tabs[targetID]
		if session != nil {
			session.info = info
			continue
		}
		c.tabs[targetID] = &tabSession{info: info}
	}

	c.marketToTarget = make(map[string]target.ID, len(c.tabs))
	for targetID, session := range c.tabs {
		if session == nil {
			continue
		}
		c.marketToTarget[session.info.MarketID] = targetID
	}

	// Prune page locks for markets no longer present.
	c.pageLocksMu.Lock()
	for id := range c.pageLocks {
		if _, ok := c.marketToTarget[id]; !ok {
			delete(c.pageLocks, id)
		}
	}
	c.pageLocksMu.Unlock()

	slog.Debug("pagecontrol tab sync", "targets", len(targets), "markets", len(c.marketToTarget))
	return nil
}

func (c *Client) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	connected := c.cdp != nil
	c.mu.Unlock()
	if connected {
		return nil
	}
	return c.reconnect(ctx)
}

func (c *Client) pageLock(marketID string) *sync.Mutex {
	c.pageLocksMu.Lock()
	defer c.pageLocksMu.Unlock()
	m, ok := c.pageLocks[marketID]
	if !ok {
		m = &sync.Mutex{}
		c.pageLocks[marketID] = m
	}
	return m
}

func (c *Client) shouldRetry(err error) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}

	switch coded.Code {
	case CodeCDPUnavailable:
		return true
	case CodePageNotFound:
		return false
	case CodeEvalFailure:
		if coded.Cause == nil {
			return false
		}
		cause := strings.ToLower(coded.Cause.Error())
		for _, hint := range transientHints {
			if strings.Contains(cause, hint) {
				return true
			}
		}
	}
	return false
}

func (c *Client) asCode(err error, code string) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}
	return coded.Code == code
}

func jsString(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func jsJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func buildIIFE(body string) string {
	return `(function(){
try {
` + body + `
} catch (err) {
return JSON.stringify({ok:false,error_code:"` + CodeEvalFailure + `",error_message:String(err && err.message || err)});
}
})()`
}

func wrapJSEval(body string) string { return buildIIFE(body) }
