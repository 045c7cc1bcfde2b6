// Package rdp implements the connection, actor registry, and actor-proxy
// base machinery for the browser engine's remote debugging protocol
// (spec.md §4.B, §4.C): one dispatcher goroutine owns all actor state and
// is the single point of packet routing, matching spec.md §5's
// single-threaded cooperative scheduling model.
package rdp

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/dbgbridge/dbgbridge/internal/transport"
)

type cacheLookupResult struct {
	value any
	ok    bool
}

type cmd interface{ isCmd() }

type cmdSend struct {
	actor    *ActorProxyBase
	payload  []byte
	resultCh chan Response
}

type cmdGetOrCreate struct {
	name     string
	factory  func(*ActorProxyBase) any
	resultCh chan any
}

type cmdCacheLookup struct {
	actor    *ActorProxyBase
	key      string
	resultCh chan cacheLookupResult
}

type cmdCacheStore struct {
	actor *ActorProxyBase
	key   string
	value any
}

func (cmdSend) isCmd()        {}
func (cmdGetOrCreate) isCmd() {}
func (cmdCacheLookup) isCmd() {}
func (cmdCacheStore) isCmd()  {}

// PacketObserver is notified of every packet crossing the connection, in
// both directions, from the dispatcher goroutine. Used to feed
// internal/trace's protocol log (spec.md §4.J) without internal/rdp
// depending on internal/trace.
type PacketObserver func(inbound bool, actor, kind string, body []byte)

// Connection owns the name→proxy registry and the single dispatcher
// goroutine that serializes every mutation to it (spec.md §4.B, §5).
type Connection struct {
	framer  *transport.Framer
	packets <-chan transport.Packet

	cmdCh  chan cmd
	doneCh chan struct{}

	actors  map[string]*actorEntry
	log     *slog.Logger
	observe PacketObserver
}

// actorEntry pairs an actor's shared proxy machinery with the concrete
// typed value (Root, Thread, Source, ...) returned to callers, so a
// second GetOrCreate for the same name returns the identical typed proxy
// rather than rewrapping the base — spec.md §3's "at most one live proxy
// per actor name per connection" invariant.
type actorEntry struct {
	base  *ActorProxyBase
	value any
}

// Open starts the dispatcher goroutine reading from framer. The caller
// must arrange for framer's underlying stream to be closed on Disconnect.
// observe may be nil; when set, it is called from the dispatcher
// goroutine for every outbound request and inbound response/event.
func Open(framer *transport.Framer, log *slog.Logger, observe PacketObserver) *Connection {
	if log == nil {
		log = slog.Default()
	}
	c := &Connection{
		framer:  framer,
		packets: transport.Pump(framer),
		cmdCh:   make(chan cmd, 64),
		doneCh:  make(chan struct{}),
		actors:  make(map[string]*actorEntry),
		log:     log,
		observe: observe,
	}
	go c.loop()
	return c
}

// Done is closed once the connection has been torn down, either by an
// explicit Disconnect or because the transport hit end-of-stream.
func (c *Connection) Done() <-chan struct{} { return c.doneCh }

// GetOrCreate returns the existing proxy registered under name, or builds
// one with factory and registers it. Idempotent — spec.md §4.B.
func GetOrCreate[T any](c *Connection, name string, factory func(*ActorProxyBase) T) (T, error) {
	resultCh := make(chan any, 1)
	select {
	case c.cmdCh <- cmdGetOrCreate{
		name: name,
		factory: func(base *ActorProxyBase) any {
			return factory(base)
		},
		resultCh: resultCh,
	}:
	case <-c.doneCh:
		var zero T
		return zero, ErrDisconnected
	}

	select {
	case v := <-resultCh:
		return v.(T), nil
	case <-c.doneCh:
		var zero T
		return zero, ErrDisconnected
	}
}

// send is called by ActorProxyBase.sendRequest; see actor.go.
func (c *Connection) send(ctx context.Context, a *ActorProxyBase, payload []byte) (Response, error) {
	resultCh := make(chan Response, 1)
	select {
	case c.cmdCh <- cmdSend{actor: a, payload: payload, resultCh: resultCh}:
	case <-c.doneCh:
		return Response{}, ErrDisconnected
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}

	select {
	case resp := <-resultCh:
		return resp, nil
	case <-c.doneCh:
		return Response{}, ErrDisconnected
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

func (c *Connection) cacheLookup(a *ActorProxyBase, key string) (any, bool, error) {
	resultCh := make(chan cacheLookupResult, 1)
	select {
	case c.cmdCh <- cmdCacheLookup{actor: a, key: key, resultCh: resultCh}:
	case <-c.doneCh:
		return nil, false, ErrDisconnected
	}
	select {
	case r := <-resultCh:
		return r.value, r.ok, nil
	case <-c.doneCh:
		return nil, false, ErrDisconnected
	}
}

func (c *Connection) cacheStore(a *ActorProxyBase, key string, value any) {
	select {
	case c.cmdCh <- cmdCacheStore{actor: a, key: key, value: value}:
	case <-c.doneCh:
	}
}

// Disconnect closes the transport and rejects all pending requests with
// ErrDisconnected (spec.md §4.B).
func (c *Connection) Disconnect() {
	select {
	case <-c.doneCh:
		return // already torn down
	default:
	}
	c.framer.Close()
	c.teardown()
}

func (c *Connection) teardown() {
	select {
	case <-c.doneCh:
	default:
		close(c.doneCh)
	}
}

func (c *Connection) loop() {
	for {
		select {
		case pkt, ok := <-c.packets:
			if !ok {
				c.teardown()
				return
			}
			if pkt.Err != nil {
				c.log.Debug("transport closed", "error", pkt.Err)
				c.teardown()
				return
			}
			c.dispatchInbound(pkt.Body)

		case command := <-c.cmdCh:
			c.handleCmd(command)

		case <-c.doneCh:
			return
		}
	}
}

func (c *Connection) handleCmd(command cmd) {
	switch cm := command.(type) {
	case cmdGetOrCreate:
		if existing, ok := c.actors[cm.name]; ok {
			cm.resultCh <- existing.value
			return
		}
		base := newActorProxyBase(cm.name, c)
		value := cm.factory(base)
		c.actors[cm.name] = &actorEntry{base: base, value: value}
		cm.resultCh <- value

	case cmdSend:
		if err := c.writeRequest(cm.actor, cm.payload); err != nil {
			cm.resultCh <- Response{ErrKind: ErrUnknown, ErrMsg: err.Error()}
			return
		}
		cm.actor.pending = append(cm.actor.pending, cm.resultCh)

	case cmdCacheLookup:
		entry, ok := cm.actor.cache[cm.key]
		if !ok {
			cm.resultCh <- cacheLookupResult{}
			return
		}
		cm.resultCh <- cacheLookupResult{value: entry.value, ok: true}

	case cmdCacheStore:
		cm.actor.cache[cm.key] = cacheEntry{value: cm.value}
	}
}

func (c *Connection) writeRequest(a *ActorProxyBase, payload []byte) error {
	if c.observe != nil {
		c.observe(false, a.name, requestKind(payload), payload)
	}
	return c.framer.WritePacket(payload)
}

// requestKind extracts the "type" field from an outbound request payload
// for tracing purposes, best-effort.
func requestKind(payload []byte) string {
	var env struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(payload, &env)
	return env.Type
}

func (c *Connection) dispatchInbound(body []byte) {
	var env struct {
		From string `json:"from"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		c.log.Warn("dropping malformed packet", "error", err)
		return
	}
	if env.From == "" {
		c.log.Warn("dropping packet with no from actor")
		return
	}

	if c.observe != nil {
		c.observe(true, env.From, env.Type, body)
	}

	entry, ok := c.actors[env.From]
	if !ok {
		c.log.Warn("dropping packet for unknown actor", "actor", env.From, "type", env.Type)
		return
	}
	actor := entry.base

	if env.Type != "" {
		if handler, ok := actor.eventTypes[env.Type]; ok {
			handler(body)
			return
		}
	}

	if len(actor.pending) == 0 {
		c.log.Warn("dropping unexpected response", "actor", env.From)
		return
	}
	waiter := actor.pending[0]
	actor.pending = actor.pending[1:]

	var errEnv struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &errEnv)

	resp := Response{Raw: body}
	if errEnv.Error != "" {
		resp.ErrKind = classifyKind(errEnv.Error)
		resp.ErrMsg = errEnv.Message
	}
	waiter <- resp
	close(waiter)
}
