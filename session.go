/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	evCreateGame       = "create-game"
	evJoinGame         = "join-game"
	evGetGameState     = "get-game-state"
	evCheckGame        = "check-game"
	evBeginRound       = "begin-round"
	evSubmitClue       = "submit-clue"
	evSubmitGuess      = "submit-guess"
	evLeaveGame        = "leave-game"
	evGameCreated      = "game-created"
	evGameState        = "game-state"
	evGameStateUpdated = "game-state-updated"
	evGameError        = "game-error"
	evGameClosed       = "game-closed"
	evChatMessage      = "chat-message"
	evRoundPrompt      = "round-prompt"
	evAck              = "ack"
)

const maxCodeAttempts = 1000

// Options tunes a Manager. Zero values fall back to defaults.
type Options struct {
	ClueTime        time.Duration
	SoloClueTime    time.Duration
	GuessTime       time.Duration
	GenerateTimeout time.Duration
	IdleTimeout     time.Duration
	MaxPlayers      int
	Prompts         []string
	NewCode         func() string
	Tickers         TickerFunc
	Now             func() time.Time
}

func (o Options) withDefaults() Options {
	if o.ClueTime <= 0 {
		o.ClueTime = 30 * time.Second
	}
	if o.SoloClueTime <= 0 {
		o.SoloClueTime = 10 * time.Second
	}
	if o.GuessTime <= 0 {
		o.GuessTime = 60 * time.Second
	}
	if o.GenerateTimeout <= 0 {
		o.GenerateTimeout = 30 * time.Second
	}
	if len(o.Prompts) == 0 {
		o.Prompts = defaultPrompts
	}
	if o.NewCode == nil {
		o.NewCode = newGameCode
	}
	if o.Tickers == nil {
		o.Tickers = realTicker
	}
	if o.Now == nil {
		o.Now = time.Now
	}

	return o
}

type roundPrompt struct {
	GameCode string `json:"gameCode"`
	Round    int    `json:"round"`
	Prompt   string `json:"prompt"`
}

type gameClosed struct {
	GameCode string `json:"gameCode"`
	Message  string `json:"message"`
}

// Manager is the single writer of room state. It validates every
// request fully before mutating, and pushes the result through the
// fan-out layer.
type Manager struct {
	opts    Options
	rooms   *Registry
	players *Directory
	hub     *Fanout
	gen     Generator
	archive Archiver
	log     zerolog.Logger

	wg sync.WaitGroup
}

func NewManager(opts Options, hub *Fanout, gen Generator, archive Archiver, log zerolog.Logger) *Manager {
	return &Manager{
		opts:    opts.withDefaults(),
		rooms:   newRegistry(),
		players: newDirectory(),
		hub:     hub,
		gen:     gen,
		archive: archive,
		log:     log,
	}
}

// Lookup reports which room and player a connection belongs to.
func (m *Manager) Lookup(connID string) (Membership, bool) {
	return m.players.Lookup(connID)
}

// CreateRoom opens a room under a fresh code with p as host.
func (m *Manager) CreateRoom(connID string, p Player) (Snapshot, error) {
	if err := p.normalize(); err != nil {
		return Snapshot{}, err
	}

	if _, ok := m.players.Lookup(connID); ok {
		return Snapshot{}, ErrAlreadyInRoom
	}

	p.Score = 0
	p.ConnID = connID

	var room *Room
	for attempt := 0; room == nil; attempt++ {
		if attempt == maxCodeAttempts {
			return Snapshot{}, fmt.Errorf("allocate game code: %w", ErrDuplicateCode)
		}

		r, err := m.rooms.Create(m.opts.NewCode(), p, m.opts.Now())
		if err != nil {
			continue
		}
		room = r
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	m.players.Associate(connID, room.code, p.ID)
	m.hub.Subscribe(connID, room.code)

	snap := room.snapshotLocked()
	m.hub.Broadcast(room.code, Event{Name: evGameStateUpdated, Data: snap})

	m.log.Info().Str("room", room.code).Str("player", p.Name).Msg("GAMES: Created game")

	return snap, nil
}

// JoinRoom adds p to an existing room. Duplicate display names are
// rejected within the room. A duplicate id is rejected unless the name
// matches too, in which case the new connection takes over the seat.
func (m *Manager) JoinRoom(connID, code string, p Player) (Snapshot, error) {
	code = normalizeCode(code)

	if err := p.normalize(); err != nil {
		return Snapshot{}, err
	}

	if _, ok := m.players.Lookup(connID); ok {
		return Snapshot{}, ErrAlreadyInRoom
	}

	room, ok := m.rooms.Get(code)
	if !ok {
		return Snapshot{}, ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if i := room.playerIndexLocked(p.ID); i >= 0 && !room.deleted {
		if !strings.EqualFold(room.players[i].Name, p.Name) {
			return Snapshot{}, ErrDuplicatePlayer
		}

		return m.rejoinLocked(room, &room.players[i], connID), nil
	}

	switch {
	case room.deleted:
		return Snapshot{}, ErrRoomNotFound
	case room.nameTakenLocked(p.Name):
		return Snapshot{}, ErrNameTaken
	case m.opts.MaxPlayers > 0 && len(room.players) >= m.opts.MaxPlayers:
		return Snapshot{}, ErrRoomFull
	}

	p.Score = 0
	p.ConnID = connID
	room.players = append(room.players, p)
	room.lastActive = m.opts.Now()

	m.players.Associate(connID, code, p.ID)
	m.hub.Subscribe(connID, code)

	snap := room.snapshotLocked()
	m.hub.Broadcast(code, Event{Name: evGameStateUpdated, Data: snap})

	m.log.Info().Str("room", code).Str("player", p.Name).Int("players", len(room.players)).Msg("GAMES: Player joined")

	return snap, nil
}

// rejoinLocked moves an existing player onto connID. The old connection
// is released so its eventual disconnect does not remove the player.
func (m *Manager) rejoinLocked(room *Room, p *Player, connID string) Snapshot {
	if old := p.ConnID; old != "" {
		m.players.Dissociate(old)
		m.hub.Unsubscribe(old, room.code)
	}

	p.ConnID = connID
	room.lastActive = m.opts.Now()

	m.players.Associate(connID, room.code, p.ID)
	m.hub.Subscribe(connID, room.code)

	if room.clueGiverLocked(p.ID) {
		m.hub.Send(connID, Event{Name: evRoundPrompt, Data: roundPrompt{GameCode: room.code, Round: room.round, Prompt: room.prompt}})
	}

	snap := room.snapshotLocked()
	m.hub.Broadcast(room.code, Event{Name: evGameStateUpdated, Data: snap})

	m.log.Info().Str("room", room.code).Str("player", p.Name).Msg("GAMES: Player reconnected")

	return snap
}

// RoomState returns the current snapshot and subscribes connID to
// future broadcasts for the room.
func (m *Manager) RoomState(connID, code string) (Snapshot, error) {
	code = normalizeCode(code)

	room, ok := m.rooms.Get(code)
	if !ok {
		return Snapshot{}, ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.deleted {
		return Snapshot{}, ErrRoomNotFound
	}

	m.hub.Subscribe(connID, code)

	if mem, ok := m.players.Lookup(connID); ok && mem.Code == code && room.clueGiverLocked(mem.PlayerID) {
		m.hub.Send(connID, Event{Name: evRoundPrompt, Data: roundPrompt{GameCode: code, Round: room.round, Prompt: room.prompt}})
	}

	return room.snapshotLocked(), nil
}

// GameID returns the instance id of the live room behind code.
func (m *Manager) GameID(code string) (string, bool) {
	room, ok := m.rooms.Get(normalizeCode(code))
	if !ok {
		return "", false
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	return room.id, !room.deleted
}

func (m *Manager) CheckRoom(code string) bool {
	room, ok := m.rooms.Get(normalizeCode(code))
	if !ok {
		return false
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	return !room.deleted
}

// RemoveByConnection drops whoever was playing behind connID. It never
// fails; there is nobody to report to.
func (m *Manager) RemoveByConnection(connID string) {
	mem, ok := m.players.Dissociate(connID)
	if !ok {
		return
	}

	m.hub.Unsubscribe(connID, mem.Code)

	room, ok := m.rooms.Get(mem.Code)
	if !ok {
		m.log.Warn().Str("room", mem.Code).Str("conn", connID).Msg("GAMES: Disconnect for unknown game")

		return
	}

	room.mu.Lock()

	if room.deleted {
		room.mu.Unlock()

		return
	}

	wasClueGiver := room.clueGiverLocked(mem.PlayerID)

	removed, wasHost := room.removePlayerLocked(mem.PlayerID)
	if !removed {
		room.mu.Unlock()
		m.log.Warn().Str("room", mem.Code).Str("player", mem.PlayerID).Msg("GAMES: Disconnected player was not in game")

		return
	}

	room.lastActive = m.opts.Now()
	delete(room.solvers, mem.PlayerID)

	if len(room.players) == 0 {
		room.deleted = true
		room.stopTimersLocked()
		room.mu.Unlock()

		m.rooms.Delete(mem.Code, room)
		m.closeRoom(mem.Code, "Everyone has left this game.")
		m.log.Info().Str("room", mem.Code).Msg("GAMES: Removed empty game")

		return
	}

	if wasClueGiver && room.phase == PhasePrompting {
		m.finishRoundLocked(room, outcomeHostLeft)
	}

	m.hub.Broadcast(mem.Code, Event{Name: evGameStateUpdated, Data: room.snapshotLocked()})
	room.mu.Unlock()

	m.log.Info().Str("room", mem.Code).Str("player", mem.PlayerID).Bool("host", wasHost).Msg("GAMES: Player left")
}

// Rooms lists every active room. Diagnostic use only.
func (m *Manager) Rooms() []Snapshot {
	rooms := m.rooms.List()

	snaps := make([]Snapshot, 0, len(rooms))
	for _, room := range rooms {
		room.mu.Lock()
		if !room.deleted {
			snaps = append(snaps, room.snapshotLocked())
		}
		room.mu.Unlock()
	}

	return snaps
}

// Reap closes rooms with no player activity since IdleTimeout before now.
// A round in play is bounded by its countdown, so it is never reaped.
func (m *Manager) Reap(now time.Time) int {
	if m.opts.IdleTimeout <= 0 {
		return 0
	}

	cutoff := now.Add(-m.opts.IdleTimeout)
	reaped := 0

	for _, room := range m.rooms.List() {
		room.mu.Lock()
		if room.deleted || room.activeRoundLocked() || !room.lastActive.Before(cutoff) {
			room.mu.Unlock()

			continue
		}
		room.deleted = true
		room.stopTimersLocked()
		room.mu.Unlock()

		m.rooms.Delete(room.code, room)
		m.closeRoom(room.code, "This game was closed after a period of inactivity.")
		reaped++

		m.log.Info().Str("room", room.code).Msg("GAMES: Reaped idle game")
	}

	return reaped
}

func (m *Manager) closeRoom(code, reason string) {
	m.hub.Broadcast(code, Event{Name: evGameClosed, Data: gameClosed{GameCode: code, Message: reason}})
	m.hub.CloseRoom(code)
	m.players.DissociateRoom(code)
}

// reaperLoop runs Reap every half idle timeout until ctx ends.
func (m *Manager) reaperLoop(ctx context.Context) {
	if m.opts.IdleTimeout <= 0 {
		return
	}

	ticker := time.NewTicker(m.opts.IdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Reap(m.opts.Now())
		}
	}
}

// Close stops every room and waits for pending archive writes.
func (m *Manager) Close() {
	for _, room := range m.rooms.List() {
		room.mu.Lock()
		room.deleted = true
		room.stopTimersLocked()
		room.mu.Unlock()

		m.rooms.Delete(room.code, room)
		m.closeRoom(room.code, "The server is shutting down.")
	}

	m.wg.Wait()
}
