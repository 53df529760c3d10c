/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectory_AssociateLookupDissociate(t *testing.T) {
	d := newDirectory()

	_, ok := d.Lookup("c1")
	assert.False(t, ok)

	d.Associate("c1", "ABCDE", "p1")

	m, ok := d.Lookup("c1")
	require.True(t, ok)
	assert.Equal(t, Membership{Code: "ABCDE", PlayerID: "p1"}, m)

	m, ok = d.Dissociate("c1")
	require.True(t, ok)
	assert.Equal(t, "p1", m.PlayerID)

	_, ok = d.Dissociate("c1")
	assert.False(t, ok, "second dissociate is a no-op")
}

func TestDirectory_RoomQueries(t *testing.T) {
	d := newDirectory()
	d.Associate("c3", "ABCDE", "p1")
	d.Associate("c1", "ABCDE", "p1")
	d.Associate("c2", "ABCDE", "p2")
	d.Associate("c4", "FGHIJ", "p1")

	assert.Equal(t, []string{"c1", "c3"}, d.Connections("ABCDE", "p1"))
	assert.Empty(t, d.Connections("KLMNO", "p1"))

	assert.Equal(t, []string{"c1", "c2", "c3"}, d.DissociateRoom("ABCDE"))

	_, ok := d.Lookup("c2")
	assert.False(t, ok)

	_, ok = d.Lookup("c4")
	assert.True(t, ok, "other rooms are untouched")
}
