/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFanout() *Fanout {
	return newFanout(zerolog.New(io.Discard))
}

func TestFanout_BroadcastReachesSubscribersOnly(t *testing.T) {
	f := newTestFanout()

	a, b, other := newClient("a"), newClient("b"), newClient("other")
	for _, c := range []*Client{a, b, other} {
		f.Register(c)
	}

	require.True(t, f.Subscribe("a", "ABCDE"))
	require.True(t, f.Subscribe("b", "ABCDE"))
	require.True(t, f.Subscribe("other", "FGHIJ"))
	assert.False(t, f.Subscribe("ghost", "ABCDE"), "unknown connections cannot subscribe")

	f.Broadcast("ABCDE", Event{Name: "ping"})

	assert.Equal(t, "ping", (<-a.send).Name)
	assert.Equal(t, "ping", (<-b.send).Name)
	assert.Empty(t, other.send)
	assert.Equal(t, 2, f.Subscribers("ABCDE"))
}

func TestFanout_SendAndUnsubscribe(t *testing.T) {
	f := newTestFanout()

	c := newClient("c")
	f.Register(c)
	f.Subscribe("c", "ABCDE")
	f.Unsubscribe("c", "ABCDE")

	f.Broadcast("ABCDE", Event{Name: "ignored"})
	assert.Empty(t, c.send)
	assert.Zero(t, f.Subscribers("ABCDE"))

	assert.True(t, f.Send("c", Event{Name: "direct"}))
	assert.Equal(t, "direct", (<-c.send).Name)
	assert.False(t, f.Send("ghost", Event{Name: "direct"}))
}

func TestFanout_UnregisterClosesOnce(t *testing.T) {
	f := newTestFanout()

	c := newClient("c")
	f.Register(c)
	f.Subscribe("c", "ABCDE")

	f.Unregister("c")
	f.Unregister("c")

	_, ok := <-c.send
	assert.False(t, ok, "send channel is closed")
	assert.Zero(t, f.Subscribers("ABCDE"))
}

func TestFanout_SlowClientEvicted(t *testing.T) {
	f := newTestFanout()

	slow, fast := newClient("slow"), newClient("fast")
	f.Register(slow)
	f.Register(fast)
	f.Subscribe("slow", "ABCDE")
	f.Subscribe("fast", "ABCDE")

	for range sendBuffer {
		f.Broadcast("ABCDE", Event{Name: "tick"})
		<-fast.send
	}

	f.Broadcast("ABCDE", Event{Name: "overflow"})

	assert.Equal(t, 1, f.Subscribers("ABCDE"), "slow client dropped, fast one kept")
	assert.Equal(t, "overflow", (<-fast.send).Name)

	for range sendBuffer {
		<-slow.send
	}
	_, ok := <-slow.send
	assert.False(t, ok, "evicted client's channel is closed")
}

func TestFanout_CloseRoom(t *testing.T) {
	f := newTestFanout()

	for _, id := range []string{"a", "b"} {
		f.Register(newClient(id))
		f.Subscribe(id, "ABCDE")
	}

	assert.ElementsMatch(t, []string{"a", "b"}, f.CloseRoom("ABCDE"))
	assert.Zero(t, f.Subscribers("ABCDE"))
	assert.Empty(t, f.CloseRoom("ABCDE"))
}
