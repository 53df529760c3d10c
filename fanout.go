/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"sync"

	"github.com/rs/zerolog"
)

const sendBuffer = 32

// Event is the envelope for every frame exchanged with a client.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
	Ack  *int   `json:"ack,omitempty"`
}

// Client is one live connection as seen by the fan-out layer. The
// transport drains send; the fan-out layer owns closing it.
type Client struct {
	id   string
	send chan Event
}

func newClient(id string) *Client {
	return &Client{
		id:   id,
		send: make(chan Event, sendBuffer),
	}
}

// Fanout pushes events to the connections subscribed to a room.
// Delivery is at-most-once and never blocks the caller: a client whose
// buffer is full is evicted.
type Fanout struct {
	mu      sync.Mutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client
	log     zerolog.Logger
}

func newFanout(log zerolog.Logger) *Fanout {
	return &Fanout{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
		log:     log,
	}
}

func (f *Fanout) Register(c *Client) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.clients[c.id] = c
}

// Unregister drops the connection from every room and closes its send
// channel. Safe to call more than once.
func (f *Fanout) Unregister(connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.dropLocked(connID)
}

func (f *Fanout) dropLocked(connID string) {
	c, ok := f.clients[connID]
	if !ok {
		return
	}

	delete(f.clients, connID)

	for code, subs := range f.rooms {
		delete(subs, connID)
		if len(subs) == 0 {
			delete(f.rooms, code)
		}
	}

	close(c.send)
}

func (f *Fanout) Subscribe(connID, code string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.clients[connID]
	if !ok {
		return false
	}

	subs, ok := f.rooms[code]
	if !ok {
		subs = make(map[string]*Client)
		f.rooms[code] = subs
	}
	subs[connID] = c

	return true
}

func (f *Fanout) Unsubscribe(connID, code string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	subs, ok := f.rooms[code]
	if !ok {
		return
	}

	delete(subs, connID)
	if len(subs) == 0 {
		delete(f.rooms, code)
	}
}

// CloseRoom removes all subscriptions to code and returns the ids that
// were subscribed.
func (f *Fanout) CloseRoom(code string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	subs := f.rooms[code]
	delete(f.rooms, code)

	ids := make([]string, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}

	return ids
}

func (f *Fanout) Broadcast(code string, ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for id, c := range f.rooms[code] {
		f.deliverLocked(id, c, ev)
	}
}

func (f *Fanout) Send(connID string, ev Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.clients[connID]
	if !ok {
		return false
	}

	return f.deliverLocked(connID, c, ev)
}

func (f *Fanout) deliverLocked(id string, c *Client, ev Event) bool {
	select {
	case c.send <- ev:
		return true
	default:
		f.log.Warn().Str("conn", id).Str("event", ev.Name).Msg("evicting slow client")
		f.dropLocked(id)

		return false
	}
}

func (f *Fanout) Subscribers(code string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.rooms[code])
}
