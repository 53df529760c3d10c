/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	codeLength   = 5
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// newGameCode picks codeLength letters uniformly at random. Uniqueness is
// the caller's job; see Registry.Create.
func newGameCode() string {
	var b strings.Builder
	b.Grow(codeLength)

	for range codeLength {
		b.WriteByte(codeAlphabet[rand.IntN(len(codeAlphabet))])
	}

	return b.String()
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func validCode(code string) bool {
	if len(code) != codeLength {
		return false
	}

	for i := range len(code) {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}

	return true
}

// Registry maps game codes to rooms for a single process.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func newRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
	}
}

// Create inserts a new room for code with host as its only player. The
// check and the insert happen under one lock.
func (reg *Registry) Create(code string, host Player, now time.Time) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.rooms[code]; exists {
		return nil, ErrDuplicateCode
	}

	room := newRoom(code, host, now)
	reg.rooms[code] = room

	return room, nil
}

func (reg *Registry) Get(code string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	room, ok := reg.rooms[code]

	return room, ok
}

// Delete removes code only while it still points at room, so a stale
// caller cannot remove a newer room that reused the code.
func (reg *Registry) Delete(code string, room *Room) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if current, ok := reg.rooms[code]; ok && current == room {
		delete(reg.rooms, code)

		return true
	}

	return false
}

// List returns every room ordered by code. Diagnostic use only.
func (reg *Registry) List() []*Room {
	reg.mu.RLock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	reg.mu.RUnlock()

	slices.SortFunc(rooms, func(a, b *Room) int {
		return strings.Compare(a.code, b.code)
	})

	return rooms
}

func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	return len(reg.rooms)
}
