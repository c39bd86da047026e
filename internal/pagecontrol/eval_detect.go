package pagecontrol

// The injected listeners are deliberately thin: they emit raw candidate
// events with a light per-element dedupe and leave debounce and rate
// limiting to the agent side, where the policy is testable.

const jsDetectHooks = `
var CARD_SELECTORS = ["[data-testid='market-card']", "[class*='market-card']", "a[href*='/event/']", "a[href*='/market/']"];
function _emit(ev) {
  if (typeof window.` + BridgeBinding + ` !== "function") return;
  ev.ts_ms = Date.now();
  try { window.` + BridgeBinding + `(JSON.stringify(ev)); } catch(_) {}
}
function _cardFor(el) {
  var node = el;
  for (var depth = 0; node && depth < 5; depth++) {
    for (var i = 0; i < CARD_SELECTORS.length; i++) {
      if (node.matches && node.matches(CARD_SELECTORS[i])) return node;
    }
    node = node.parentElement;
  }
  return null;
}
function _cardTitle(card) {
  var text = (card.textContent || "").trim();
  return text.length > 200 ? text.slice(0, 200) : text;
}
function _cardURL(card) {
  if (card.href) return card.href;
  var link = card.querySelector("a[href*='/event/'], a[href*='/market/']");
  return link ? link.href : location.href;
}
var _lastCard = null;
document.addEventListener("mouseover", function(e) {
  var card = _cardFor(e.target);
  if (!card || card === _lastCard) return;
  _lastCard = card;
  _emit({kind:"hover", title:_cardTitle(card), url:_cardURL(card)});
}, true);
document.addEventListener("mouseout", function(e) {
  if (_cardFor(e.target) === _lastCard && !_cardFor(e.relatedTarget)) _lastCard = null;
}, true);
var _ticketVisible = false;
function _checkTicket() {
  var root = _tradeRoot();
  var visible = !!(root && root.offsetParent !== null);
  if (visible && !_ticketVisible) {
    _emit({kind:"ticket_open", title:_firstText(document, TITLE_SELECTORS), url:location.href,
           side:_activeSide(root), amount:_amountText(root)});
  }
  _ticketVisible = visible;
}
new MutationObserver(_checkTicket).observe(document.body, {childList:true, subtree:true, attributes:true, attributeFilter:["class","style"]});
`

const jsTradeObserverHooks = `
window.__pmAgentTradeObs = window.__pmAgentTradeObs || null;
window.__pmAgentTradeStart = function() {
  if (window.__pmAgentTradeObs) return;
  var lastEmit = 0;
  var obs = new MutationObserver(function() {
    var now = Date.now();
    if (now - lastEmit < 1000) return;
    var root = _tradeRoot();
    if (!root) return;
    lastEmit = now;
    var text = (root.textContent || "").trim();
    _emit({kind:"trade_fragment", text:text.length > 500 ? text.slice(0, 500) : text, url:location.href});
  });
  obs.observe(document.body, {childList:true, subtree:true, characterData:true});
  window.__pmAgentTradeObs = obs;
};
window.__pmAgentTradeStop = function() {
  if (!window.__pmAgentTradeObs) return;
  window.__pmAgentTradeObs.disconnect();
  window.__pmAgentTradeObs = null;
};
`

func jsInstallBridge() string {
	return wrapJSEval(jsScrapeHelpers + `
if (window.__pmAgentBridgeInstalled) return JSON.stringify({ok:true,data:{installed:false}});
window.__pmAgentBridgeInstalled = true;
` + jsDetectHooks + jsNavHooks + jsTradeObserverHooks + `
return JSON.stringify({ok:true,data:{installed:true}});
`)
}

func jsSetTradeObserver(on bool) string {
	call := "window.__pmAgentTradeStop"
	if on {
		call = "window.__pmAgentTradeStart"
	}
	return wrapJSEval(`
if (typeof ` + call + ` !== "function") return JSON.stringify({ok:false,error_code:"` + CodeEvalFailure + `",error_message:"bridge not installed"});
` + call + `();
return JSON.stringify({ok:true,data:{observing:` + jsJSON(on) + `}});
`)
}
