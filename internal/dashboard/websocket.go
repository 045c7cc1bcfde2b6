package dashboard

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// backlogSize bounds how many of the most recently broadcast DAP events a
// wsHub replays to a viewer that connects mid-session. A debugger's event
// feed is bursty around a pause (stopped, then a string of output events
// as the program's earlier console calls drain) — without a backlog, a
// dashboard opened right after a pause shows nothing until the next event
// fires, even though the session is already sitting there stopped.
const backlogSize = 20

// wsHub manages the set of active WebSocket connections for one debug
// session's dashboard and broadcasts DAP events to all of them, replaying
// a short backlog to each newly registered client so a late-joining
// viewer isn't left staring at an empty feed mid-pause.
//
// Architecture: a single hub goroutine handles registration,
// unregistration, and broadcasting. This avoids needing locks on the
// connections map — all mutations happen in the hub goroutine via
// channels.
type wsHub struct {
	// connections is the set of active WebSocket clients.
	connections map[*wsConn]bool

	// recent holds the last backlogSize broadcast payloads, oldest first,
	// replayed to each client as soon as it registers.
	recent [][]byte

	// broadcast channel — messages sent here are forwarded to all clients.
	broadcastCh chan []byte

	// register/unregister channels for adding/removing clients.
	registerCh   chan *wsConn
	unregisterCh chan *wsConn
}

// wsConn wraps a single WebSocket connection subscribed to one session's
// dashboard feed.
type wsConn struct {
	conn *websocket.Conn
	send chan []byte
	mu   sync.Mutex // protects concurrent writes
}

// upgrader handles HTTP → WebSocket protocol upgrade.
// CheckOrigin allows all origins since the dashboard is typically reached
// over a loopback or trusted dev-tunnel address, not a public origin that
// needs CSRF-style checking.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newWSHub creates a new WebSocket hub for a single session's dashboard.
func newWSHub() *wsHub {
	return &wsHub{
		connections:  make(map[*wsConn]bool),
		broadcastCh:  make(chan []byte, 256),
		registerCh:   make(chan *wsConn),
		unregisterCh: make(chan *wsConn),
	}
}

// run is the hub's event loop; runs for the lifetime of the dashboard in
// a background goroutine, outliving any single session (a session
// restart reuses the same hub, so reconnecting viewers keep working).
func (h *wsHub) run() {
	for {
		select {
		case conn := <-h.registerCh:
			h.connections[conn] = true
			for _, msg := range h.recent {
				select {
				case conn.send <- msg:
				default:
					// backlog replay must never block registration; a full
					// send buffer here means the client will just miss the
					// tail of the backlog and pick up from the next live event.
				}
			}
			slog.Debug("dashboard viewer connected", "total", len(h.connections))

		case conn := <-h.unregisterCh:
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				close(conn.send)
				slog.Debug("dashboard viewer disconnected", "total", len(h.connections))
			}

		case msg := <-h.broadcastCh:
			h.recent = append(h.recent, msg)
			if len(h.recent) > backlogSize {
				h.recent = h.recent[len(h.recent)-backlogSize:]
			}
			for conn := range h.connections {
				select {
				case conn.send <- msg:
				default:
					// Client's send buffer is full — drop the connection.
					// This prevents a slow viewer from blocking live DAP
					// event delivery to every other connected client.
					delete(h.connections, conn)
					close(conn.send)
				}
			}
		}
	}
}

// broadcast fans a marshaled dashboardEvent out to every connected
// viewer, non-blocking: if the hub's own channel is saturated the event
// is dropped rather than stalling Dashboard.Send, since the dashboard
// feed is explicitly best-effort (spec.md §4.K is ambient, not part of
// the DAP contract the editor depends on).
func (h *wsHub) broadcast(msg []byte) {
	select {
	case h.broadcastCh <- msg:
	default:
	}
}

// handleWebSocket upgrades an HTTP connection to WebSocket and registers
// the client with the hub for receiving broadcast DAP events plus the
// current backlog.
func (d *Dashboard) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("dashboard websocket upgrade failed", "error", err)
		return
	}

	client := &wsConn{
		conn: conn,
		send: make(chan []byte, 64),
	}

	d.wsHub.registerCh <- client

	go client.writePump()
	go client.readPump(d.wsHub)
}

// writePump sends messages from the send channel to the WebSocket
// connection. Runs in a goroutine per client.
func (c *wsConn) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		c.mu.Lock()
		err := c.conn.WriteMessage(websocket.TextMessage, msg)
		c.mu.Unlock()
		if err != nil {
			return
		}
	}
}

// readPump reads messages from the WebSocket (to detect disconnection).
// The dashboard feed is one-directional (server to viewer); any message a
// client sends is discarded, only its presence or absence matters.
func (c *wsConn) readPump(hub *wsHub) {
	defer func() {
		hub.unregisterCh <- c
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
