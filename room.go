/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

type Phase string

const (
	PhaseWaiting   Phase = "waiting"
	PhasePrompting Phase = "prompting"
	PhaseGuessing  Phase = "guessing"
	PhaseFinished  Phase = "finished"
)

const maxNameLength = 32

// Player is a participant in a room. ConnID changes across reconnects
// and is never sent to clients.
type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Score  int    `json:"score"`
	ConnID string `json:"-"`
}

// normalize trims the display name and checks both identifiers are usable.
func (p *Player) normalize() error {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)

	n := utf8.RuneCountInString(p.Name)
	if p.ID == "" || n == 0 || n > maxNameLength {
		return ErrInvalidPlayer
	}

	return nil
}

// Message is one entry of a room's chat/guess log.
type Message struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	IsCorrect bool   `json:"isCorrect"`
	Timestamp int64  `json:"timestamp"`
}

// Snapshot is the serialized room state pushed to clients.
type Snapshot struct {
	GameCode  string    `json:"gameCode"`
	Host      string    `json:"host"`
	Players   []Player  `json:"players"`
	Status    Phase     `json:"status"`
	Round     int       `json:"round"`
	Solo      bool      `json:"solo,omitempty"`
	TimeLeft  int       `json:"timeLeft"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	Clue      string    `json:"clue,omitempty"`
	Prompt    string    `json:"prompt,omitempty"`
	Winner    string    `json:"winner,omitempty"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
}

// Room holds the mutable state of one game. Every field below mu is
// guarded by it. id tells apart games that reuse the same code.
type Room struct {
	id        string
	code      string
	createdAt time.Time

	mu         sync.Mutex
	deleted    bool
	host       string
	players    []Player
	phase      Phase
	round      int
	clueGiver  string
	solo       bool
	prompt     string
	clue       string
	imageURL   string
	timeLeft   int
	messages   []Message
	winner     string
	solvers    map[string]bool
	roundStart time.Time
	lastActive time.Time

	countdown *countdown
	genRound  int
	genCancel context.CancelFunc
}

func newRoom(code string, host Player, now time.Time) *Room {
	return &Room{
		id:         uuid.NewString(),
		code:       code,
		createdAt:  now,
		host:       host.ID,
		players:    []Player{host},
		phase:      PhaseWaiting,
		messages:   []Message{},
		solvers:    make(map[string]bool),
		lastActive: now,
	}
}

func (r *Room) Code() string {
	return r.code
}

func (r *Room) playerIndexLocked(id string) int {
	for i, p := range r.players {
		if p.ID == id {
			return i
		}
	}

	return -1
}

func (r *Room) playerLocked(id string) *Player {
	if i := r.playerIndexLocked(id); i >= 0 {
		return &r.players[i]
	}

	return nil
}

func (r *Room) nameTakenLocked(name string) bool {
	for _, p := range r.players {
		if strings.EqualFold(p.Name, name) {
			return true
		}
	}

	return false
}

// removePlayerLocked drops the player and hands the host role to the
// first remaining player if needed. It reports whether the player was
// present and whether they were host.
func (r *Room) removePlayerLocked(id string) (removed, wasHost bool) {
	i := r.playerIndexLocked(id)
	if i < 0 {
		return false, false
	}

	r.players = append(r.players[:i], r.players[i+1:]...)

	wasHost = r.host == id
	if wasHost {
		r.host = ""
		if len(r.players) > 0 {
			r.host = r.players[0].ID
		}
	}

	return true, wasHost
}

func (r *Room) stopCountdownLocked() {
	if r.countdown != nil {
		r.countdown.stop()
		r.countdown = nil
	}
}

// stopTimersLocked cancels the countdown and any in-flight image
// generation for the room.
func (r *Room) stopTimersLocked() {
	r.stopCountdownLocked()

	if r.genCancel != nil {
		r.genCancel()
		r.genCancel = nil
	}
	r.genRound = 0
}

func (r *Room) snapshotLocked() Snapshot {
	players := make([]Player, len(r.players))
	copy(players, r.players)

	messages := make([]Message, len(r.messages))
	copy(messages, r.messages)

	s := Snapshot{
		GameCode:  r.code,
		Host:      r.host,
		Players:   players,
		Status:    r.phase,
		Round:     r.round,
		Solo:      r.solo,
		TimeLeft:  r.timeLeft,
		ImageURL:  r.imageURL,
		Winner:    r.winner,
		Messages:  messages,
		CreatedAt: r.createdAt,
	}

	if r.phase == PhaseFinished {
		s.Prompt = r.prompt
		s.Clue = r.clue
	}

	return s
}

func (r *Room) snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.snapshotLocked()
}

// clueGiverLocked reports whether id gave the clue for the round in play.
func (r *Room) clueGiverLocked(id string) bool {
	return r.activeRoundLocked() && r.clueGiver == id
}

func (r *Room) activeRoundLocked() bool {
	return r.phase == PhasePrompting || r.phase == PhaseGuessing
}

func matchesPrompt(text, prompt string) bool {
	prompt = strings.TrimSpace(prompt)

	return prompt != "" && strings.EqualFold(strings.TrimSpace(text), prompt)
}

func leaksPrompt(text, prompt string) bool {
	prompt = strings.TrimSpace(prompt)

	return prompt != "" && strings.Contains(strings.ToLower(text), strings.ToLower(prompt))
}
