/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	playerCookieName = "cluegen_id"

	writeWait        = 10 * time.Second
	defaultPongWait  = time.Minute
	maxFrameSize     = 8 << 10
	messageRateBurst = 5
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	id := uuid.NewString()

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// inbound is a frame received from a client.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Ack   *int            `json:"ack,omitempty"`
}

type playerPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type gameRequest struct {
	GameCode string         `json:"gameCode"`
	Player   *playerPayload `json:"player,omitempty"`
	Clue     string         `json:"clue,omitempty"`
	Text     string         `json:"text,omitempty"`
	Content  string         `json:"content,omitempty"`
	Solo     bool           `json:"solo,omitempty"`
}

type gameError struct {
	GameCode string `json:"gameCode,omitempty"`
	Event    string `json:"event"`
	Message  string `json:"message"`
}

type checkResult struct {
	Exists bool `json:"exists"`
}

// socket is the server side of one websocket connection.
type socket struct {
	conn     *websocket.Conn
	client   *Client
	playerID string
	pongWait time.Duration
	limiter  *rate.Limiter

	mgr *Manager
	hub *Fanout
	log zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func serveWS(cfg *Config, mgr *Manager, hub *Fanout, logger zerolog.Logger) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		playerID := getOrSetPlayerID(w, r)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn().Err(err).Str("remote", realIP(r)).Msg("SERVE: Websocket upgrade failed")

			return
		}

		pongWait := cfg.playerTimeout
		if pongWait <= 0 {
			pongWait = defaultPongWait
		}

		limit := rate.Inf
		if cfg.messageRate > 0 {
			limit = rate.Limit(cfg.messageRate)
		}

		client := newClient(uuid.NewString())
		ctx, cancel := context.WithCancel(context.Background())

		s := &socket{
			conn:     conn,
			client:   client,
			playerID: playerID,
			pongWait: pongWait,
			limiter:  rate.NewLimiter(limit, messageRateBurst),
			mgr:      mgr,
			hub:      hub,
			log:      logger.With().Str("conn", client.id).Logger(),
			ctx:      ctx,
			cancel:   cancel,
		}

		hub.Register(client)

		s.log.Info().Str("remote", realIP(r)).Msg("SERVE: Websocket connected")

		go s.writePump()
		s.readPump()
	}
}

func (s *socket) readPump() {
	defer func() {
		s.cancel()
		s.mgr.RemoveByConnection(s.client.id)
		s.hub.Unregister(s.client.id)
		_ = s.conn.Close()

		s.log.Info().Msg("SERVE: Websocket disconnected")
	}()

	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Msg("SERVE: Websocket read failed")
			}

			return
		}

		_ = s.conn.SetReadDeadline(time.Now().Add(s.pongWait))

		var in inbound
		if err := json.Unmarshal(data, &in); err != nil {
			s.fail(inbound{}, "", fmt.Errorf("%w: %w", ErrBadRequest, err))

			continue
		}

		if !s.limiter.Allow() {
			s.fail(in, "", ErrRateLimited)

			continue
		}

		s.dispatch(in)
	}
}

// writePump drains the client's send channel onto the socket and keeps
// the connection alive with pings. The fan-out layer closing send ends it.
func (s *socket) writePump() {
	ticker := time.NewTicker(s.pongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-s.client.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

				return
			}

			if err := s.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *socket) dispatch(in inbound) {
	var req gameRequest
	if len(in.Data) > 0 && string(in.Data) != "null" {
		if err := json.Unmarshal(in.Data, &req); err != nil {
			s.fail(in, "", fmt.Errorf("%w: %w", ErrBadRequest, err))

			return
		}
	}

	switch in.Event {
	case evCreateGame:
		snap, err := s.mgr.CreateRoom(s.client.id, s.player(req.Player))
		if err != nil {
			s.fail(in, req.GameCode, err)

			return
		}

		s.reply(Event{Name: evGameCreated, Data: snap, Ack: in.Ack})
	case evJoinGame:
		if _, err := s.mgr.JoinRoom(s.client.id, req.GameCode, s.player(req.Player)); err != nil {
			s.fail(in, req.GameCode, err)
		}
	case evGetGameState:
		snap, err := s.mgr.RoomState(s.client.id, req.GameCode)
		if err != nil {
			s.fail(in, req.GameCode, err)

			return
		}

		s.reply(Event{Name: evGameState, Data: snap, Ack: in.Ack})
	case evCheckGame:
		s.reply(Event{Name: evAck, Data: checkResult{Exists: s.mgr.CheckRoom(req.GameCode)}, Ack: in.Ack})
	case evBeginRound:
		mem, err := s.membership(req.GameCode)
		if err == nil {
			if req.Solo {
				_, err = s.mgr.BeginSoloRound(mem.Code, mem.PlayerID)
			} else {
				_, err = s.mgr.BeginRound(mem.Code, mem.PlayerID)
			}
		}
		if err != nil {
			s.fail(in, req.GameCode, err)
		}
	case evSubmitClue:
		mem, err := s.membership(req.GameCode)
		if err != nil {
			s.fail(in, req.GameCode, err)

			return
		}

		// Generation can take a while; keep reading so pongs are seen.
		go func() {
			if _, err := s.mgr.SubmitClue(s.ctx, mem.Code, mem.PlayerID, req.Clue); err != nil {
				s.fail(in, mem.Code, err)
			}
		}()
	case evSubmitGuess, evChatMessage:
		text := req.Text
		if text == "" {
			text = req.Content
		}

		mem, err := s.membership(req.GameCode)
		if err == nil {
			_, err = s.mgr.SubmitGuess(mem.Code, mem.PlayerID, text)
		}
		if err != nil {
			s.fail(in, req.GameCode, err)
		}
	case evLeaveGame:
		s.mgr.RemoveByConnection(s.client.id)
	default:
		s.log.Debug().Str("event", in.Event).Msg("SERVE: Ignoring unknown event")
	}
}

// player builds the joining player, falling back to the cookie id.
func (s *socket) player(p *playerPayload) Player {
	if p == nil {
		return Player{ID: s.playerID}
	}

	id := p.ID
	if id == "" {
		id = s.playerID
	}

	return Player{ID: id, Name: p.Name}
}

// membership resolves the caller's room from the directory. A code in
// the request must agree with it.
func (s *socket) membership(code string) (Membership, error) {
	mem, ok := s.mgr.Lookup(s.client.id)
	if !ok {
		return Membership{}, ErrNotInRoom
	}

	if code != "" && normalizeCode(code) != mem.Code {
		return Membership{}, ErrNotInRoom
	}

	return mem, nil
}

func (s *socket) reply(ev Event) {
	s.hub.Send(s.client.id, ev)
}

// fail reports err to the caller, releasing any ack it is waiting on.
func (s *socket) fail(in inbound, code string, err error) {
	s.log.Info().Err(err).Str("event", in.Event).Msg("SERVE: Request rejected")

	s.hub.Send(s.client.id, Event{
		Name: evGameError,
		Data: gameError{GameCode: normalizeCode(code), Event: in.Event, Message: userMessage(err)},
		Ack:  in.Ack,
	})
}
