/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	imageStylePrefix = "cartoon "

	baseGuessPoints = 100
	hostBonusPoints = 50

	outcomeSolved   = "solved"
	outcomeTimeout  = "timeout"
	outcomeNoImage  = "no-image"
	outcomeHostLeft = "host-left"
	outcomeSolo     = "solo"

	archiveTimeout = 5 * time.Second
)

// GuessResult reports how a submitted guess was handled.
type GuessResult struct {
	IsCorrect bool `json:"isCorrect"`
	Ignored   bool `json:"ignored,omitempty"`
}

// lockActor fetches the room and checks playerID belongs to it. On
// success the room is returned locked.
func (m *Manager) lockActor(code, playerID string) (*Room, error) {
	room, ok := m.rooms.Get(normalizeCode(code))
	if !ok {
		return nil, ErrRoomNotFound
	}

	room.mu.Lock()

	if room.deleted {
		room.mu.Unlock()

		return nil, ErrRoomNotFound
	}

	if room.playerIndexLocked(playerID) < 0 {
		room.mu.Unlock()

		return nil, ErrNotInRoom
	}

	return room, nil
}

// BeginRound starts a new round, from the lobby or after a finished one.
func (m *Manager) BeginRound(code, playerID string) (Snapshot, error) {
	return m.beginRound(code, playerID, false)
}

// BeginSoloRound starts a practice round: a shorter clue timer, and the
// round finishes as soon as the image is ready.
func (m *Manager) BeginSoloRound(code, playerID string) (Snapshot, error) {
	return m.beginRound(code, playerID, true)
}

func (m *Manager) beginRound(code, playerID string, solo bool) (Snapshot, error) {
	room, err := m.lockActor(code, playerID)
	if err != nil {
		return Snapshot{}, err
	}
	defer room.mu.Unlock()

	if room.host != playerID {
		return Snapshot{}, ErrNotHost
	}

	if room.phase != PhaseWaiting && room.phase != PhaseFinished {
		return Snapshot{}, ErrInvalidPhase
	}

	now := m.opts.Now()

	room.stopTimersLocked()
	room.round++
	room.clueGiver = playerID
	room.solo = solo
	room.prompt = pickPrompt(m.opts.Prompts)
	room.clue = ""
	room.imageURL = ""
	room.winner = ""
	room.messages = []Message{}
	room.solvers = make(map[string]bool)
	room.timeLeft = seconds(m.opts.ClueTime)
	if solo {
		room.timeLeft = seconds(m.opts.SoloClueTime)
	}
	room.phase = PhasePrompting
	room.roundStart = now
	room.lastActive = now

	m.startCountdownLocked(room)

	snap := room.snapshotLocked()
	m.hub.Broadcast(room.code, Event{Name: evGameStateUpdated, Data: snap})

	secret := Event{Name: evRoundPrompt, Data: roundPrompt{GameCode: room.code, Round: room.round, Prompt: room.prompt}}
	for _, connID := range m.players.Connections(room.code, room.clueGiver) {
		m.hub.Send(connID, secret)
	}

	m.log.Info().Str("room", room.code).Int("round", room.round).Bool("solo", solo).Msg("GAMES: Round started")

	return snap, nil
}

// SubmitClue turns the clue giver's clue into an image. The generator runs
// without the room lock held and under its own timeout; the result only
// lands if the same round is still waiting for it.
func (m *Manager) SubmitClue(ctx context.Context, code, playerID, clue string) (string, error) {
	clue = strings.TrimSpace(clue)

	room, err := m.lockActor(code, playerID)
	if err != nil {
		return "", err
	}

	switch {
	case room.phase != PhasePrompting:
		room.mu.Unlock()

		return "", ErrInvalidPhase
	case room.clueGiver != playerID:
		room.mu.Unlock()

		return "", ErrNotHost
	case clue == "":
		room.mu.Unlock()

		return "", fmt.Errorf("%w: clue is empty", ErrInvalidClue)
	case leaksPrompt(clue, room.prompt):
		room.mu.Unlock()

		return "", fmt.Errorf("%w: clue contains the prompt", ErrInvalidClue)
	case room.genRound == room.round:
		room.mu.Unlock()

		return "", ErrGenerationInProgress
	}

	round := room.round
	genCtx, cancel := context.WithTimeout(ctx, m.opts.GenerateTimeout)
	defer cancel()

	room.genRound = round
	room.genCancel = cancel
	room.lastActive = m.opts.Now()
	room.mu.Unlock()

	ref, genErr := m.gen.Generate(genCtx, imageStylePrefix+clue)

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.genRound == round {
		room.genRound = 0
		room.genCancel = nil
	}

	switch {
	case room.deleted:
		return "", ErrRoomNotFound
	case room.round != round || room.phase != PhasePrompting:
		return "", ErrRoundOver
	case genErr != nil:
		if !errors.Is(genErr, ErrGenerationFailed) {
			genErr = fmt.Errorf("%w: %w", ErrGenerationFailed, genErr)
		}
		m.log.Warn().Err(genErr).Str("room", room.code).Int("round", round).Msg("GAMES: Image generation failed")

		return "", genErr
	}

	room.stopCountdownLocked()
	room.clue = clue
	room.imageURL = ref

	if room.solo {
		m.finishRoundLocked(room, outcomeSolo)
		m.hub.Broadcast(room.code, Event{Name: evGameStateUpdated, Data: room.snapshotLocked()})

		m.log.Info().Str("room", room.code).Int("round", round).Msg("GAMES: Solo image ready")

		return ref, nil
	}

	room.phase = PhaseGuessing
	room.timeLeft = seconds(m.opts.GuessTime)

	m.startCountdownLocked(room)
	m.hub.Broadcast(room.code, Event{Name: evGameStateUpdated, Data: room.snapshotLocked()})

	m.log.Info().Str("room", room.code).Int("round", round).Msg("GAMES: Image ready, guessing started")

	return ref, nil
}

// SubmitGuess appends text to the room log and, while guessing, checks
// it against the prompt. The first correct guess ends the round. The
// rules for the clue giver follow whoever began the round, not the
// current host.
func (m *Manager) SubmitGuess(code, playerID, text string) (GuessResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return GuessResult{}, ErrEmptyMessage
	}

	room, err := m.lockActor(code, playerID)
	if err != nil {
		return GuessResult{}, err
	}
	defer room.mu.Unlock()

	isClueGiver := room.clueGiverLocked(playerID)

	if isClueGiver && leaksPrompt(text, room.prompt) {
		return GuessResult{}, fmt.Errorf("%w: message contains the prompt", ErrInvalidClue)
	}

	if room.solvers[playerID] && matchesPrompt(text, room.prompt) {
		return GuessResult{IsCorrect: true, Ignored: true}, nil
	}

	correct := room.phase == PhaseGuessing && !isClueGiver && matchesPrompt(text, room.prompt)

	player := room.playerLocked(playerID)
	now := m.opts.Now()

	msg := Message{
		ID:        uuid.NewString(),
		Sender:    player.Name,
		Content:   text,
		IsCorrect: correct,
		Timestamp: now.UnixMilli(),
	}
	room.messages = append(room.messages, msg)
	room.lastActive = now

	m.hub.Broadcast(room.code, Event{Name: evChatMessage, Data: msg})

	if correct {
		room.solvers[playerID] = true
		player.Score += guessPoints(room.timeLeft, seconds(m.opts.GuessTime))
		if giver := room.playerLocked(room.clueGiver); giver != nil {
			giver.Score += hostBonusPoints
		}
		room.winner = playerID

		m.finishRoundLocked(room, outcomeSolved)
		m.hub.Broadcast(room.code, Event{Name: evGameStateUpdated, Data: room.snapshotLocked()})

		m.log.Info().Str("room", room.code).Str("player", player.Name).Int("round", room.round).Msg("GAMES: Prompt guessed")
	}

	return GuessResult{IsCorrect: correct}, nil
}

// guessPoints rewards speed: the full base for a guess at the buzzer,
// up to double for an instant one.
func guessPoints(timeLeft, total int) int {
	if total <= 0 {
		return baseGuessPoints
	}

	timeLeft = max(0, min(timeLeft, total))

	return baseGuessPoints + baseGuessPoints*timeLeft/total
}

func (m *Manager) startCountdownLocked(room *Room) {
	room.stopCountdownLocked()
	room.countdown = startCountdown(m.opts.Tickers, time.Second, func(ctx context.Context) bool {
		return m.tick(ctx, room)
	})
}

// tick is one countdown step. A cancelled countdown never touches the
// room, even if it was already waiting on the lock when cancelled.
func (m *Manager) tick(ctx context.Context, room *Room) bool {
	room.mu.Lock()
	defer room.mu.Unlock()

	if ctx.Err() != nil || room.deleted || !room.activeRoundLocked() {
		return false
	}

	room.timeLeft--

	if room.timeLeft > 0 {
		m.hub.Broadcast(room.code, Event{Name: evGameStateUpdated, Data: room.snapshotLocked()})

		return true
	}

	room.timeLeft = 0

	outcome := outcomeTimeout
	if room.phase == PhasePrompting {
		outcome = outcomeNoImage
	}

	m.finishRoundLocked(room, outcome)
	m.hub.Broadcast(room.code, Event{Name: evGameStateUpdated, Data: room.snapshotLocked()})

	m.log.Info().Str("room", room.code).Int("round", room.round).Str("outcome", outcome).Msg("GAMES: Round timed out")

	return false
}

func (m *Manager) finishRoundLocked(room *Room, outcome string) {
	room.stopTimersLocked()
	room.phase = PhaseFinished

	rec := RoundRecord{
		ID:        uuid.NewString(),
		GameID:    room.id,
		Code:      room.code,
		Round:     room.round,
		Prompt:    room.prompt,
		Clue:      room.clue,
		ImageURL:  room.imageURL,
		Outcome:   outcome,
		StartedAt: room.roundStart,
		EndedAt:   m.opts.Now(),
	}
	if winner := room.playerLocked(room.winner); winner != nil {
		rec.WinnerID = winner.ID
		rec.WinnerName = winner.Name
	}

	m.archiveRound(rec)
}

// archiveRound writes rec in the background; failures are logged only.
func (m *Manager) archiveRound(rec RoundRecord) {
	if m.archive == nil {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()

		if err := m.archive.RecordRound(ctx, rec); err != nil {
			m.log.Warn().Err(err).Str("room", rec.Code).Int("round", rec.Round).Msg("GAMES: Could not archive round")
		}
	}()
}
