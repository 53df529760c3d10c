// Cluegen
//
// The host of a round is shown a secret prompt and writes a clue for it
// without using the prompt itself. The clue is turned into a cartoon image,
// and everyone else races to guess the prompt from the picture alone.
//
// Features:
// - Five letter game codes, allocated server side with a collision check
// - Websocket event protocol at /ws (create, join, state, check, rounds, chat)
// - Server authoritative rooms: clients never write game state
// - Clue and guess countdowns pushed to every player once a second
// - Speed weighted scoring for the guesser, a flat bonus for the host
// - Players identified by cookie unless the client supplies an id
// - Host role passes to the next player when the host leaves
// - Games auto-reaped after configurable idle timeout
// - Optional SQLite archive of finished rounds, browsable per game
// - QR code per game, backed by go-qrcode

package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
)

const qrSize = 320

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	return json.NewEncoder(w).Encode(v)
}

// serveCheck answers whether a game exists: 200 when it does, 404 when not.
func serveCheck(cfg *Config, mgr *Manager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		securityHeaders(cfg, w)
		w.Header().Set("Cache-Control", "no-store")

		exists := mgr.CheckRoom(ps.ByName("code"))

		status := http.StatusOK
		if !exists {
			status = http.StatusNotFound
		}

		if err := writeJSON(w, status, checkResult{Exists: exists}); err != nil {
			errs <- err
		}
	}
}

// serveQR renders a PNG QR code of the join URL for a game.
func serveQR(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := normalizeCode(ps.ByName("code"))
		if !validCode(code) {
			http.Error(w, "invalid game code", http.StatusBadRequest)

			return
		}

		scheme := cfg.scheme()
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + cfg.prefix + "/game/" + code

		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)

		if _, err := w.Write(png); err != nil {
			errs <- err
		}
	}
}

// serveHistory lists archived rounds for a game, newest first. A live
// game answers with its own rounds; otherwise the last game played under
// the code.
func serveHistory(cfg *Config, mgr *Manager, archive *RoundArchive, logger zerolog.Logger, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		securityHeaders(cfg, w)

		if archive == nil {
			http.Error(w, "round archive is disabled", http.StatusNotFound)

			return
		}

		code := normalizeCode(ps.ByName("code"))
		if !validCode(code) {
			http.Error(w, "invalid game code", http.StatusBadRequest)

			return
		}

		limit := defaultHistoryLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				http.Error(w, "invalid limit", http.StatusBadRequest)

				return
			}
			limit = min(n, defaultHistoryLimit)
		}

		gameID, _ := mgr.GameID(code)

		rounds, err := archive.Rounds(r.Context(), code, gameID, limit)
		if err != nil {
			logger.Error().Err(err).Str("room", code).Msg("SERVE: Could not read round history")
			http.Error(w, "could not read round history", http.StatusInternalServerError)

			return
		}

		if err := writeJSON(w, http.StatusOK, rounds); err != nil {
			errs <- err
		}
	}
}

// redirectGame sends /game/abcde style links to the canonical code.
func redirectGame(cfg *Config, client httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		raw := ps.ByName("code")
		if code := normalizeCode(raw); code != raw && validCode(code) {
			http.Redirect(w, r, cfg.prefix+"/game/"+code, http.StatusTemporaryRedirect)

			return
		}

		client(w, r, ps)
	}
}

// registerCluegen sets up routes so that:
//   - $prefix/                   → HTML client (lobby)
//   - $prefix/game/:code         → HTML client for that game
//   - $prefix/game/:code/check   → existence check
//   - $prefix/game/:code/qr      → PNG QR code for that game URL
//   - $prefix/game/:code/history → archived rounds
//   - $prefix/ws                 → websocket
func registerCluegen(cfg *Config, mux *httprouter.Router, mgr *Manager, hub *Fanout, archive *RoundArchive, logger zerolog.Logger, errs chan<- error) {
	client := serveClient(cfg, logger, errs)

	mux.GET(cfg.prefix+"/", client)
	mux.GET(cfg.prefix+"/game/:code", redirectGame(cfg, client))
	mux.GET(cfg.prefix+"/game/:code/check", serveCheck(cfg, mgr, errs))
	mux.GET(cfg.prefix+"/game/:code/qr", serveQR(cfg, errs))
	mux.GET(cfg.prefix+"/game/:code/history", serveHistory(cfg, mgr, archive, logger, errs))
	mux.GET(cfg.prefix+"/ws", serveWS(cfg, mgr, hub, logger))
}
