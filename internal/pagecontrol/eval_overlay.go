package pagecontrol

// PanelFrame is one rendered state of the overlay panel. The page-side
// renderer is dumb: it applies exactly what the frame says and holds no
// state of its own beyond the mount reference.
type PanelFrame struct {
	Open      bool     `json:"open"`
	Minimized bool     `json:"minimized"`
	Layout    string   `json:"layout_mode"`
	X         int      `json:"x"`
	Y         int      `json:"y"`
	Width     int      `json:"width"`
	Height    int      `json:"height"`
	Title     string   `json:"title,omitempty"`
	Status    string   `json:"status,omitempty"`
	Lines     []string `json:"lines,omitempty"`
}

// The mount lives in an open shadow root under a fixed host element. The
// host ignores pointer events so the page stays interactive; only the panel
// and the floating button receive them. A window-level stash keeps the
// shadow reference across evaluations.

const jsMountHelper = `
function _mount() {
  var stash = window.__pmAgentMount;
  if (stash && stash.host && stash.host.isConnected) return stash;
  var host = document.getElementById("pm-overlay-root");
  if (host && !window.__pmAgentMount) {
    // Host exists but the stash was lost (page script context reset).
    host.remove();
    host = null;
  }
  if (!host) return null;
  return window.__pmAgentMount;
}
`

func jsEnsureMount() string {
	return wrapJSEval(jsMountHelper + `
var existing = _mount();
if (existing) return JSON.stringify({ok:true,data:{mounted:true,created:false}});
if (!document.body) return JSON.stringify({ok:false,error_code:"` + CodeEvalFailure + `",error_message:"document.body unavailable"});
var host = document.createElement("div");
host.id = "pm-overlay-root";
host.style.cssText = "position:fixed;inset:0;z-index:2147483647;pointer-events:none;";
var shadow = host.attachShadow({mode:"open"});
var style = document.createElement("style");
style.textContent = [
  ".panel{position:fixed;pointer-events:auto;background:#111827;color:#e5e7eb;",
  "border:1px solid #374151;border-radius:8px;box-shadow:0 8px 24px rgba(0,0,0,.45);",
  "font:13px/1.45 system-ui,sans-serif;display:flex;flex-direction:column;overflow:hidden}",
  ".head{padding:8px 12px;background:#1f2937;font-weight:600;cursor:move;user-select:none}",
  ".body{padding:10px 12px;overflow-y:auto;flex:1}",
  ".body div{margin-bottom:4px;white-space:pre-wrap}",
  ".status{padding:4px 12px;color:#9ca3af;font-size:11px;border-top:1px solid #374151}",
  ".grip{position:absolute;right:0;bottom:0;width:14px;height:14px;cursor:nwse-resize}",
  ".fab{position:fixed;right:16px;bottom:16px;width:44px;height:44px;border-radius:50%;",
  "pointer-events:auto;background:#2563eb;color:#fff;border:none;cursor:pointer;",
  "font:600 16px system-ui,sans-serif;box-shadow:0 4px 12px rgba(0,0,0,.4)}"
].join("");
shadow.appendChild(style);
var panel = document.createElement("div");
panel.className = "panel";
panel.style.display = "none";
var head = document.createElement("div"); head.className = "head";
var body = document.createElement("div"); body.className = "body";
var status = document.createElement("div"); status.className = "status";
var grip = document.createElement("div"); grip.className = "grip";
panel.appendChild(head); panel.appendChild(body); panel.appendChild(status); panel.appendChild(grip);
shadow.appendChild(panel);
function _gesture(phase, mode, ev) {
  if (typeof window.` + BridgeBinding + ` !== "function") return;
  window.` + BridgeBinding + `(JSON.stringify({kind:"gesture",phase:phase,mode:mode,x:ev.clientX,y:ev.clientY,ts_ms:Date.now()}));
}
var gestureMode = null;
function _armGesture(mode) {
  return function(ev) {
    ev.preventDefault();
    gestureMode = mode;
    _gesture("down", mode, ev);
  };
}
head.addEventListener("pointerdown", _armGesture("drag"));
grip.addEventListener("pointerdown", _armGesture("resize"));
window.addEventListener("pointermove", function(ev) {
  if (gestureMode) _gesture("move", gestureMode, ev);
});
window.addEventListener("pointerup", function(ev) {
  if (!gestureMode) return;
  _gesture("up", gestureMode, ev);
  gestureMode = null;
});
window.addEventListener("pointercancel", function(ev) {
  if (!gestureMode) return;
  _gesture("cancel", gestureMode, ev);
  gestureMode = null;
});
var fab = document.createElement("button");
fab.className = "fab";
fab.textContent = "PM";
fab.addEventListener("click", function() {
  if (typeof window.` + BridgeBinding + ` === "function") {
    window.` + BridgeBinding + `(JSON.stringify({kind:"toggle",ts_ms:Date.now()}));
  }
});
shadow.appendChild(fab);
document.body.appendChild(host);
window.__pmAgentMount = {host:host,shadow:shadow,panel:panel,head:head,body:body,status:status,grip:grip,fab:fab};
return JSON.stringify({ok:true,data:{mounted:true,created:true}});
`)
}

func jsRenderPanel(frame PanelFrame) string {
	return wrapJSEval(jsMountHelper + `
var stash = _mount();
if (!stash) return JSON.stringify({ok:false,error_code:"` + CodeEvalFailure + `",error_message:"overlay not mounted"});
var frame = ` + jsJSON(frame) + `;
var panel = stash.panel;
if (!frame.open) {
  panel.style.display = "none";
  stash.fab.style.display = "";
  document.body.style.marginRight = "0";
  return JSON.stringify({ok:true,data:{status:"hidden"}});
}
stash.fab.style.display = "none";
panel.style.display = "flex";
var docked = frame.layout_mode !== "floating";
if (docked) {
  // Docked: a right-edge column; the page reflows to make room for it.
  var columnWidth = frame.minimized ? 60 : frame.width;
  panel.style.left = "";
  panel.style.right = "0";
  panel.style.top = "0";
  panel.style.width = columnWidth + "px";
  panel.style.height = "100%";
  panel.style.borderRadius = "0";
  document.body.style.marginRight = columnWidth + "px";
} else {
  panel.style.right = "";
  panel.style.left = frame.x + "px";
  panel.style.top = frame.y + "px";
  panel.style.width = frame.width + "px";
  panel.style.height = (frame.minimized ? 36 : frame.height) + "px";
  panel.style.borderRadius = "8px";
  document.body.style.marginRight = "0";
}
stash.grip.style.display = (docked || frame.minimized) ? "none" : "";
stash.head.style.cursor = docked ? "default" : "move";
stash.head.textContent = frame.title || "Assistant";
stash.body.style.display = frame.minimized ? "none" : "";
stash.status.style.display = frame.minimized ? "none" : "";
stash.body.textContent = "";
var lines = frame.lines || [];
for (var i = 0; i < lines.length; i++) {
  var row = document.createElement("div");
  row.textContent = lines[i];
  stash.body.appendChild(row);
}
stash.status.textContent = frame.status || "";
return JSON.stringify({ok:true,data:{status:frame.minimized ? "minimized" : "shown"}});
`)
}
