// Package dashboard serves a live viewer for one debug session.
//
// The dashboard is mounted on /dashboard and /api/ on its own port,
// separate from the editor-facing DAP transport. It provides:
//
//   - Web UI:     GET /dashboard          — single-page HTML viewer
//   - WebSocket:  GET /dashboard/ws       — live DAP event feed
//   - REST API:   GET /api/status         — session state / active thread
//                 GET /api/threads        — thread list
//                 GET /api/stacktrace     — stack trace for a thread
//                 GET /api/trace          — recent protocol trace entries
//
// Dashboard implements dap.EventSink: the orchestrator's events flow
// through it on their way to the editor, and the dashboard fans each one
// out to connected viewers as a side effect (spec.md §4.K, ambient).
package dashboard

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dbgbridge/dbgbridge/internal/dap"
	"github.com/dbgbridge/dbgbridge/internal/session"
	"github.com/dbgbridge/dbgbridge/internal/trace"
)

// Options holds the dependencies injected into the dashboard. Session is
// attached separately via SetSession once it's available (see SetSession).
type Options struct {
	Trace   *trace.Log    // nil disables the /api/trace endpoint
	Forward dap.EventSink // the real editor-facing sink; may be nil
}

// Dashboard serves the web UI and REST API, and forwards every DAP event
// it sees to the real editor sink after broadcasting it to viewers.
// Implements http.Handler for the dashboard UI routes and dap.EventSink
// for the orchestrator's event stream.
type Dashboard struct {
	sess    *session.Session
	trace   *trace.Log
	forward dap.EventSink
	wsHub   *wsHub
}

// New creates a new Dashboard with the given dependencies and starts its
// WebSocket broadcast hub.
func New(opts Options) *Dashboard {
	d := &Dashboard{
		trace:   opts.Trace,
		forward: opts.Forward,
		wsHub:   newWSHub(),
	}
	go d.wsHub.run()
	return d
}

// SetSession attaches the session backing /api/status, /api/threads, and
// /api/stacktrace. The session is not available until after it connects
// and completes its init handshake (internal/session.Open), which is
// after the dashboard must already be installed as the event sink — so
// this is set once, shortly after construction, rather than passed in
// Options.
func (d *Dashboard) SetSession(sess *session.Session) {
	d.sess = sess
}

// Send implements dap.EventSink: broadcast to viewers, then forward to
// the real editor sink (if any). Broadcasting never blocks or fails the
// forward — a dashboard with no viewers must not affect the session.
func (d *Dashboard) Send(event string, body any) {
	d.broadcastEvent(event, body)
	if d.forward != nil {
		d.forward.Send(event, body)
	}
}

// dashboardEvent is the envelope broadcast to websocket viewers.
type dashboardEvent struct {
	Event string `json:"event"`
	Body  any    `json:"body"`
}

func (d *Dashboard) broadcastEvent(event string, body any) {
	data, err := json.Marshal(dashboardEvent{Event: event, Body: body})
	if err != nil {
		slog.Error("failed to marshal broadcast event", "event", event, "error", err)
		return
	}
	d.wsHub.broadcast(data)
}

// ServeHTTP handles requests to /dashboard and /dashboard/.
func (d *Dashboard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(dashboardHTML))
}

// WebSocketHandler returns an http.Handler for the /dashboard/ws endpoint.
func (d *Dashboard) WebSocketHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.handleWebSocket(w, r)
	})
}

// APIHandler returns an http.Handler for the /api/ REST endpoints.
func (d *Dashboard) APIHandler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", d.handleAPIStatus)
	mux.HandleFunc("/api/threads", d.handleAPIThreads)
	mux.HandleFunc("/api/stacktrace", d.handleAPIStackTrace)
	mux.HandleFunc("/api/trace", d.handleAPITrace)

	return mux
}

// --- REST API handlers ---

// handleAPIStatus returns the orchestrator's lifecycle state.
// GET /api/status
func (d *Dashboard) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	if d.sess == nil {
		http.Error(w, "no active session", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state": d.sess.State(),
	})
}

// handleAPIThreads returns the thread list.
// GET /api/threads
func (d *Dashboard) handleAPIThreads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	if d.sess == nil {
		http.Error(w, "no active session", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, d.sess.Threads())
}

// handleAPIStackTrace returns the stack trace for a paused thread.
// GET /api/stacktrace?threadId=3
func (d *Dashboard) handleAPIStackTrace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	if d.sess == nil {
		http.Error(w, "no active session", http.StatusServiceUnavailable)
		return
	}
	threadID, err := strconv.Atoi(r.URL.Query().Get("threadId"))
	if err != nil {
		http.Error(w, "threadId must be an integer", http.StatusBadRequest)
		return
	}
	st, err := d.sess.StackTrace(r.Context(), threadID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleAPITrace returns recent protocol trace entries.
// GET /api/trace?limit=50&actor=server1.thread3&direction=engine_event
func (d *Dashboard) handleAPITrace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	if d.trace == nil {
		http.Error(w, "trace log not enabled", http.StatusServiceUnavailable)
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	entries, err := d.trace.Query(trace.QueryParams{
		Direction: trace.Direction(r.URL.Query().Get("direction")),
		Actor:     r.URL.Query().Get("actor"),
		Since:     r.URL.Query().Get("since"),
		Limit:     limit,
	})
	if err != nil {
		slog.Error("trace query failed", "error", err)
		http.Error(w, "trace query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

// dashboardHTML is the embedded HTML for the session viewer. Minimal
// single-page UI: thread list, stack trace on selection, and a live
// event feed over the websocket. No build step, no framework.
const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>dbgbridge session viewer</title>
<style>
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
         background: #0f1117; color: #e1e4e8; padding: 24px; }
  h1 { font-size: 24px; margin-bottom: 8px; }
  .subtitle { color: #8b949e; margin-bottom: 24px; }
  .grid { display: grid; grid-template-columns: 1fr 1fr; gap: 16px; margin-bottom: 24px; }
  .card { background: #161b22; border: 1px solid #30363d; border-radius: 8px; padding: 16px; }
  .card h2 { font-size: 14px; color: #8b949e; text-transform: uppercase; margin-bottom: 12px; }
  table { width: 100%; border-collapse: collapse; font-size: 13px; }
  th { text-align: left; color: #8b949e; padding: 6px 8px; border-bottom: 1px solid #30363d; }
  td { padding: 6px 8px; border-bottom: 1px solid #21262d; }
  .state-running { color: #3fb950; }
  .state-paused { color: #d29922; }
  .state-exited { color: #f85149; }
  #live-feed { max-height: 300px; overflow-y: auto; font-family: monospace; font-size: 12px; }
  .feed-entry { padding: 4px 0; border-bottom: 1px solid #21262d; }
</style>
</head>
<body>
<h1>dbgbridge session viewer</h1>
<p class="subtitle" id="status-line">connecting...</p>

<div class="grid">
  <div class="card">
    <h2>Threads</h2>
    <table>
      <thead><tr><th>ID</th><th>Name</th><th>Type</th><th>State</th></tr></thead>
      <tbody id="threads-tbody"><tr><td colspan="4">Loading...</td></tr></tbody>
    </table>
  </div>
  <div class="card">
    <h2>Stack Trace</h2>
    <table>
      <thead><tr><th>Frame</th><th>Location</th></tr></thead>
      <tbody id="stack-tbody"><tr><td colspan="2">Select a paused thread</td></tr></tbody>
    </table>
  </div>
</div>

<div class="card">
  <h2>Live Event Feed</h2>
  <div id="live-feed"><div class="feed-entry">Connecting...</div></div>
</div>

<script>
function esc(s) {
  if (s == null) return '';
  return String(s).replace(/&/g,'&amp;').replace(/</g,'&lt;').replace(/>/g,'&gt;').replace(/"/g,'&quot;').replace(/'/g,'&#39;');
}

async function refresh() {
  try {
    const [statusRes, threadsRes] = await Promise.all([fetch('/api/status'), fetch('/api/threads')]);
    const status = await statusRes.json();
    const threads = await threadsRes.json();
    document.getElementById('status-line').textContent = 'state: ' + (status.state || 'unknown');
    renderThreads(threads.threads || []);
  } catch(e) { console.error('refresh failed:', e); }
}

function renderThreads(threads) {
  const tbody = document.getElementById('threads-tbody');
  if (!threads.length) { tbody.innerHTML = '<tr><td colspan="4">No threads yet</td></tr>'; return; }
  tbody.innerHTML = threads.map(t =>
    '<tr onclick="loadStack(' + t.id + ')" style="cursor:pointer">' +
    '<td>' + t.id + '</td><td>' + esc(t.name) + '</td></tr>'
  ).join('');
}

async function loadStack(threadId) {
  try {
    const res = await fetch('/api/stacktrace?threadId=' + threadId);
    const data = await res.json();
    const tbody = document.getElementById('stack-tbody');
    const frames = data.stackFrames || [];
    if (!frames.length) { tbody.innerHTML = '<tr><td colspan="2">No frames (thread running)</td></tr>'; return; }
    tbody.innerHTML = frames.map(f =>
      '<tr><td>' + esc(f.name) + '</td><td>' + esc(f.source ? f.source.path : '') + ':' + f.line + '</td></tr>'
    ).join('');
  } catch(e) { console.error('stacktrace fetch failed:', e); }
}

function connectWS() {
  const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
  const ws = new WebSocket(proto + '//' + location.host + '/dashboard/ws');
  ws.onmessage = function(e) {
    try {
      const msg = JSON.parse(e.data);
      const feed = document.getElementById('live-feed');
      const div = document.createElement('div');
      div.className = 'feed-entry';
      div.textContent = msg.event + ' ' + JSON.stringify(msg.body);
      feed.insertBefore(div, feed.firstChild);
      while (feed.children.length > 100) feed.removeChild(feed.lastChild);
      refresh();
    } catch(err) { console.error('ws parse error:', err); }
  };
  ws.onclose = function() { setTimeout(connectWS, 3000); };
  ws.onerror = function() { ws.close(); };
}

refresh();
setInterval(refresh, 5000);
connectWS();
</script>
</body>
</html>`
