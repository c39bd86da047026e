package pagecontrol

// SPA navigation hooks: pushState and replaceState are patched and popstate
// observed. A short settle delay lets the router paint before the URL is
// reported, matching how client-side route changes actually land in the DOM.

const jsNavHooks = `
var _navTimer = null;
function _navChanged() {
  if (_navTimer) clearTimeout(_navTimer);
  _navTimer = setTimeout(function() {
    _navTimer = null;
    _emit({kind:"navigated", url:location.href, title:document.title || ""});
  }, 100);
}
var _origPush = history.pushState;
history.pushState = function() {
  var out = _origPush.apply(this, arguments);
  _navChanged();
  return out;
};
var _origReplace = history.replaceState;
history.replaceState = function() {
  var out = _origReplace.apply(this, arguments);
  _navChanged();
  return out;
};
window.addEventListener("popstate", _navChanged);
`
