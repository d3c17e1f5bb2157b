// Package broadcast fans presence changes out to the websocket clients
// of the ops dashboard. A single goroutine owns all client state and is
// driven through a command channel, so no locks are needed.
package broadcast

import (
	"encoding/json"
	"log/slog"

	"github.com/Easy-Rad/wally/internal/domain"
	"github.com/Easy-Rad/wally/internal/metrics"
)

const commandBufferSize = 256

type hubCmd interface{ hubCmd() }

type cmdRegister struct {
	conn Conn
}

func (cmdRegister) hubCmd() {}

type cmdUnregister struct {
	conn Conn
}

func (cmdUnregister) hubCmd() {}

type cmdBroadcast struct {
	data []byte
}

func (cmdBroadcast) hubCmd() {}

type cmdStop struct{}

func (cmdStop) hubCmd() {}

// Hub implements domain.PresencePublisher.
type Hub struct {
	cmdCh   chan hubCmd
	clients map[Conn]*clientWriter
}

func NewHub() *Hub {
	h := &Hub{
		cmdCh:   make(chan hubCmd, commandBufferSize),
		clients: make(map[Conn]*clientWriter),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case cmdRegister:
			h.clients[c.conn] = newClientWriter(c.conn)
			metrics.WebSocketClients.Set(float64(len(h.clients)))
			slog.Debug("Presence feed client registered", "clients", len(h.clients))
		case cmdUnregister:
			h.removeClient(c.conn)
		case cmdBroadcast:
			for conn, cw := range h.clients {
				if !cw.enqueue(c.data) {
					// Slow client: its buffer is full, drop it rather
					// than stall the feed.
					metrics.WebSocketSlowClientsEvicted.Inc()
					h.removeClient(conn)
				}
			}
		case cmdStop:
			for conn := range h.clients {
				h.removeClient(conn)
			}
			return
		}
	}
}

func (h *Hub) removeClient(conn Conn) {
	cw, ok := h.clients[conn]
	if !ok {
		return
	}
	delete(h.clients, conn)
	cw.stop()
	metrics.WebSocketClients.Set(float64(len(h.clients)))
}

// Register adds a websocket connection to the feed.
func (h *Hub) Register(conn Conn) {
	h.cmdCh <- cmdRegister{conn: conn}
}

// Unregister drops a connection (normally driven by its read loop ending).
func (h *Hub) Unregister(conn Conn) {
	h.cmdCh <- cmdUnregister{conn: conn}
}

// PublishPresence sends a presence change to every connected client.
func (h *Hub) PublishPresence(change domain.PresenceChange) {
	data, err := json.Marshal(change)
	if err != nil {
		slog.Error("Failed to encode presence change", "error", err)
		return
	}
	h.cmdCh <- cmdBroadcast{data: data}
}

// Stop disconnects all clients and shuts the hub down.
func (h *Hub) Stop() {
	h.cmdCh <- cmdStop{}
}
