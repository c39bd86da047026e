package pagecontrol

// Selector order matters: the most specific market title carriers first,
// generic headings last. Side and amount come from the trade ticket when one
// is open; misses degrade to empty strings and the Go side normalizes.

const jsScrapeHelpers = `
var TITLE_SELECTORS = ["[data-testid='event-title']", ".event-title", "h1", "h2"];
var TRADE_SELECTORS = ["[data-testid='trade-widget']", "[class*='trade-module']", "[class*='order-panel']", "aside"];
function _firstText(root, selectors) {
  for (var i = 0; i < selectors.length; i++) {
    var el = root.querySelector(selectors[i]);
    if (!el) continue;
    var text = (el.textContent || "").trim();
    if (text.length > 10 && text.length < 200) return text;
  }
  return "";
}
function _tradeRoot() {
  for (var i = 0; i < TRADE_SELECTORS.length; i++) {
    var el = document.querySelector(TRADE_SELECTORS[i]);
    if (el) return el;
  }
  return null;
}
function _activeSide(root) {
  if (!root) return "";
  var buttons = root.querySelectorAll("button");
  for (var i = 0; i < buttons.length; i++) {
    var b = buttons[i];
    var cls = (b.className || "") + " " + (b.getAttribute("aria-pressed") || "");
    var active = cls.indexOf("active") >= 0 || cls.indexOf("selected") >= 0 || cls.indexOf("true") >= 0;
    if (!active) continue;
    var label = (b.textContent || "").trim().toLowerCase();
    if (label.indexOf("yes") >= 0 || label.indexOf("buy") >= 0) return "yes";
    if (label.indexOf("no") >= 0 || label.indexOf("sell") >= 0) return "no";
  }
  return "";
}
function _amountText(root) {
  if (!root) return "";
  var input = root.querySelector("input[type='number'], input[inputmode='decimal'], input[placeholder*='$']");
  if (!input) return "";
  return String(input.value || "");
}
`

func jsScrapeMarket() string {
	return wrapJSEval(jsScrapeHelpers + `
var title = _firstText(document, TITLE_SELECTORS);
var trade = _tradeRoot();
return JSON.stringify({ok:true,data:{
  title: title,
  page_title: document.title || "",
  url: location.href,
  side: _activeSide(trade),
  amount: _amountText(trade)
}});
`)
}

func jsProbeTitle() string {
	return wrapJSEval(jsScrapeHelpers + `
return JSON.stringify({ok:true,data:{has_title:_firstText(document, TITLE_SELECTORS) !== ""}});
`)
}

func jsViewport() string {
	return wrapJSEval(`
return JSON.stringify({ok:true,data:{width:window.innerWidth,height:window.innerHeight}});
`)
}
