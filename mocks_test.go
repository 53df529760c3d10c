/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const eventWait = 2 * time.Second

// --- Generator ---

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

// --- Archiver ---

type recordingArchiver struct {
	mu      sync.Mutex
	records []RoundRecord
	err     error
}

func (a *recordingArchiver) RecordRound(_ context.Context, rec RoundRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.records = append(a.records, rec)
	return a.err
}

func (a *recordingArchiver) recorded() []RoundRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]RoundRecord(nil), a.records...)
}

// --- Tickers ---

// manualTickers hands every countdown an unbuffered channel the test
// drives by hand.
type manualTickers struct {
	mu    sync.Mutex
	chans []chan time.Time
}

func (mt *manualTickers) create(time.Duration) (<-chan time.Time, func()) {
	ch := make(chan time.Time)

	mt.mu.Lock()
	mt.chans = append(mt.chans, ch)
	mt.mu.Unlock()

	return ch, func() {}
}

func (mt *manualTickers) count() int {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	return len(mt.chans)
}

// fire delivers one tick to the n-th countdown started (0-based) and
// reports whether anything received it.
func (mt *manualTickers) fire(n int) bool {
	mt.mu.Lock()
	if n >= len(mt.chans) {
		mt.mu.Unlock()
		return false
	}
	ch := mt.chans[n]
	mt.mu.Unlock()

	select {
	case ch <- time.Now():
		return true
	case <-time.After(eventWait / 4):
		return false
	}
}

// fireLatest ticks the most recently started countdown.
func (mt *manualTickers) fireLatest() bool {
	return mt.fire(mt.count() - 1)
}

// --- Harness ---

type harness struct {
	mgr     *Manager
	hub     *Fanout
	gen     *MockGenerator
	archive *recordingArchiver
	tickers *manualTickers
	now     time.Time
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()

	h := &harness{
		gen:     &MockGenerator{},
		archive: &recordingArchiver{},
		tickers: &manualTickers{},
		now:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	if opts.Prompts == nil {
		opts.Prompts = []string{"Sunflower"}
	}
	if opts.NewCode == nil {
		opts.NewCode = sequentialCodes("ABCDE", "FGHIJ", "KLMNO", "PQRST")
	}
	if opts.ClueTime == 0 {
		opts.ClueTime = 3 * time.Second
	}
	if opts.GuessTime == 0 {
		opts.GuessTime = 4 * time.Second
	}
	opts.Tickers = h.tickers.create
	opts.Now = func() time.Time { return h.now }

	h.hub = newFanout(zerolog.New(io.Discard))
	h.mgr = NewManager(opts, h.hub, h.gen, h.archive, zerolog.New(io.Discard))

	t.Cleanup(h.mgr.Close)

	return h
}

// connect registers a fake connection with the fan-out layer.
func (h *harness) connect(id string) *Client {
	c := newClient(id)
	h.hub.Register(c)

	return c
}

// room creates a room hosted by "p1" on conn "c1" and drains the
// creation broadcast.
func (h *harness) room(t *testing.T) (string, *Client) {
	t.Helper()

	c := h.connect("c1")
	snap, err := h.mgr.CreateRoom("c1", Player{ID: "p1", Name: "Alice"})
	require.NoError(t, err)
	drain(c)

	return snap.GameCode, c
}

// join adds a player on its own connection and drains every client.
func (h *harness) join(t *testing.T, code, connID, playerID, name string, clients ...*Client) *Client {
	t.Helper()

	c := h.connect(connID)
	_, err := h.mgr.JoinRoom(connID, code, Player{ID: playerID, Name: name})
	require.NoError(t, err)

	drain(append(clients, c)...)

	return c
}

func sequentialCodes(codes ...string) func() string {
	var mu sync.Mutex
	i := 0

	return func() string {
		mu.Lock()
		defer mu.Unlock()

		code := codes[i%len(codes)]
		i++

		return code
	}
}

// next waits for the next event on c.
func next(t *testing.T, c *Client) Event {
	t.Helper()

	select {
	case ev, ok := <-c.send:
		require.True(t, ok, "client channel closed")
		return ev
	case <-time.After(eventWait):
		require.FailNow(t, "timed out waiting for event")
		return Event{}
	}
}

// nextNamed skips events until one called name arrives.
func nextNamed(t *testing.T, c *Client, name string) Event {
	t.Helper()

	deadline := time.After(eventWait)
	for {
		select {
		case ev, ok := <-c.send:
			require.True(t, ok, "client channel closed")
			if ev.Name == name {
				return ev
			}
		case <-deadline:
			require.FailNowf(t, "timed out", "waiting for %q", name)
			return Event{}
		}
	}
}

func drain(clients ...*Client) {
	for _, c := range clients {
		drainOne(c)
	}
}

func drainOne(c *Client) {
	for {
		select {
		case _, ok := <-c.send:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func snapshotOf(t *testing.T, ev Event) Snapshot {
	t.Helper()

	snap, ok := ev.Data.(Snapshot)
	require.Truef(t, ok, "event %q carries %T, not a snapshot", ev.Name, ev.Data)

	return snap
}
