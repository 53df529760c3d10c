/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"slices"
	"sync"
)

// Membership is what the directory knows about a connection.
type Membership struct {
	Code     string
	PlayerID string
}

// Directory resolves which player, in which room, sits behind a
// connection, so a dropped connection can be cleaned up without the
// client saying anything.
type Directory struct {
	mu    sync.RWMutex
	conns map[string]Membership
}

func newDirectory() *Directory {
	return &Directory{
		conns: make(map[string]Membership),
	}
}

func (d *Directory) Associate(connID, code, playerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.conns[connID] = Membership{Code: code, PlayerID: playerID}
}

func (d *Directory) Lookup(connID string) (Membership, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	m, ok := d.conns[connID]

	return m, ok
}

// Dissociate removes and returns the entry for connID.
func (d *Directory) Dissociate(connID string) (Membership, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.conns[connID]
	if ok {
		delete(d.conns, connID)
	}

	return m, ok
}

// DissociateRoom removes every connection bound to code and returns their ids.
func (d *Directory) DissociateRoom(code string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var ids []string
	for connID, m := range d.conns {
		if m.Code == code {
			ids = append(ids, connID)
			delete(d.conns, connID)
		}
	}
	slices.Sort(ids)

	return ids
}

// Connections lists the connections currently bound to playerID in code.
func (d *Directory) Connections(code, playerID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var ids []string
	for connID, m := range d.conns {
		if m.Code == code && m.PlayerID == playerID {
			ids = append(ids, connID)
		}
	}
	slices.Sort(ids)

	return ids
}
