/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"html"
	"strings"
)

var (
	ErrRoomNotFound         = errors.New("game not found")
	ErrDuplicateCode        = errors.New("game code already in use")
	ErrDuplicatePlayer      = errors.New("player already in game")
	ErrNameTaken            = errors.New("name already taken")
	ErrInvalidPlayer        = errors.New("invalid player")
	ErrRoomFull             = errors.New("game is full")
	ErrAlreadyInRoom        = errors.New("connection already in a game")
	ErrNotInRoom            = errors.New("not in this game")
	ErrNotHost              = errors.New("only the host can do that")
	ErrInvalidPhase         = errors.New("not allowed in the current phase")
	ErrInvalidClue          = errors.New("invalid clue")
	ErrGenerationInProgress = errors.New("image generation already in progress")
	ErrGenerationFailed     = errors.New("image generation failed")
	ErrRoundOver            = errors.New("round is already over")
	ErrEmptyMessage         = errors.New("message is empty")
	ErrRateLimited          = errors.New("rate limit exceeded")
	ErrBadRequest           = errors.New("malformed request")
)

// userMessage turns an operation error into the text sent to the
// originating client in a game-error event.
func userMessage(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return "Game not found."
	case errors.Is(err, ErrDuplicatePlayer):
		return "You are already in this game."
	case errors.Is(err, ErrNameTaken):
		return "That name is already taken. Please choose a different name."
	case errors.Is(err, ErrInvalidPlayer):
		return "Please enter a name between 1 and 32 characters."
	case errors.Is(err, ErrRoomFull):
		return "That game is full."
	case errors.Is(err, ErrAlreadyInRoom):
		return "You are already playing in another game."
	case errors.Is(err, ErrNotInRoom):
		return "You are not in this game."
	case errors.Is(err, ErrNotHost):
		return "Only the host can do that."
	case errors.Is(err, ErrInvalidPhase):
		return "You can't do that right now."
	case errors.Is(err, ErrInvalidClue):
		return "You can't use the word from the prompt!"
	case errors.Is(err, ErrGenerationInProgress):
		return "Your image is still being generated."
	case errors.Is(err, ErrGenerationFailed):
		return "Failed to generate image. Please try again."
	case errors.Is(err, ErrRoundOver):
		return "The round is already over."
	case errors.Is(err, ErrEmptyMessage):
		return "Message is empty."
	case errors.Is(err, ErrRateLimited):
		return "You're sending messages too quickly. Slow down!"
	case errors.Is(err, ErrBadRequest):
		return "Invalid request."
	}

	return "Something went wrong. Please try again."
}

// errorPage renders a minimal page linking back to the lobby.
func errorPage(prefix, title, body string) string {
	var page strings.Builder

	page.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	page.WriteString(getFavicon(prefix))
	page.WriteString(`<style>html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;}</style>`)
	fmt.Fprintf(&page, "<title>%s</title></head>", html.EscapeString(title))
	fmt.Fprintf(&page, `<body><a href="%s/">%s</a></body></html>`, prefix, html.EscapeString(body))

	return page.String()
}
