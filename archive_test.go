/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestArchive(t *testing.T) *RoundArchive {
	t.Helper()

	archive, err := openArchive(filepath.Join(t.TempDir(), "nested", "rounds.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = archive.Close() })

	return archive
}

func TestArchive_RoundTrip(t *testing.T) {
	archive := openTestArchive(t)
	ctx := context.Background()

	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		require.NoError(t, archive.RecordRound(ctx, RoundRecord{
			ID:         fmt.Sprintf("r%d", i),
			GameID:     "g1",
			Code:       "ABCDE",
			Round:      i,
			Prompt:     "Sunflower",
			Clue:       "a tall yellow flower",
			ImageURL:   "https://img.example/1.png",
			WinnerID:   "p2",
			WinnerName: "Bob",
			Outcome:    outcomeSolved,
			StartedAt:  start.Add(time.Duration(i) * time.Minute),
			EndedAt:    start.Add(time.Duration(i)*time.Minute + 30*time.Second),
		}))
	}

	require.NoError(t, archive.RecordRound(ctx, RoundRecord{
		ID: "earlier", GameID: "g0", Code: "ABCDE", Round: 1, Prompt: "Piano", Outcome: outcomeTimeout,
		StartedAt: start.Add(-time.Hour), EndedAt: start.Add(-time.Hour),
	}))

	require.NoError(t, archive.RecordRound(ctx, RoundRecord{
		ID: "other", GameID: "g2", Code: "FGHIJ", Round: 1, Prompt: "Mars", Outcome: outcomeTimeout,
		StartedAt: start, EndedAt: start,
	}))

	rounds, err := archive.Rounds(ctx, "ABCDE", "", 2)
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.Equal(t, "g1", rounds[0].GameID, "latest game under the code")

	assert.Equal(t, 3, rounds[0].Round, "newest first")
	assert.Equal(t, 2, rounds[1].Round)
	assert.Equal(t, "Bob", rounds[0].WinnerName)
	assert.True(t, rounds[0].EndedAt.Equal(start.Add(3*time.Minute+30*time.Second)))

	rounds, err = archive.Rounds(ctx, "ABCDE", "g0", 0)
	require.NoError(t, err)
	require.Len(t, rounds, 1, "earlier game under a reused code stays separate")
	assert.Equal(t, "Piano", rounds[0].Prompt)

	rounds, err = archive.Rounds(ctx, "ABCDE", "g9", 0)
	require.NoError(t, err)
	assert.Empty(t, rounds)

	rounds, err = archive.Rounds(ctx, "QQQQQ", "", 0)
	require.NoError(t, err)
	assert.Empty(t, rounds)
}

func TestArchive_DuplicateIDRejected(t *testing.T) {
	archive := openTestArchive(t)
	ctx := context.Background()

	rec := RoundRecord{ID: "r1", Code: "ABCDE", Round: 1, Prompt: "Mars", Outcome: outcomeTimeout, StartedAt: time.Now(), EndedAt: time.Now()}

	require.NoError(t, archive.RecordRound(ctx, rec))
	assert.Error(t, archive.RecordRound(ctx, rec))
}

func TestOpenArchive_EmptyPath(t *testing.T) {
	_, err := openArchive("")
	assert.Error(t, err)
}

func TestArchive_ManagerRecordsFinishedRounds(t *testing.T) {
	archive := openTestArchive(t)

	h := newHarness(t, Options{})
	h.mgr.archive = archive

	code, _, _ := h.guessing(t)

	gameID, ok := h.mgr.GameID(code)
	require.True(t, ok)

	_, err := h.mgr.SubmitGuess(code, "p2", "Sunflower")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		rounds, err := archive.Rounds(context.Background(), code, gameID, 10)
		return err == nil && len(rounds) == 1 && rounds[0].Prompt == "Sunflower" && rounds[0].GameID == gameID
	}, eventWait, 10*time.Millisecond)
}
