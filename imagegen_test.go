/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGenerator(t *testing.T, handler http.HandlerFunc) *replicateGenerator {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	gen, ok := newGenerator(&Config{
		replicateToken: "tok",
		replicateModel: defaultReplicateModel,
		replicateURL:   srv.URL + "/",
	}).(*replicateGenerator)
	require.True(t, ok)

	gen.pollInterval = time.Millisecond

	return gen
}

func TestReplicate_SyncPrediction(t *testing.T) {
	gen := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/models/black-forest-labs/flux-schnell/predictions", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "wait", r.Header.Get("Prefer"))

		var body struct {
			Input struct {
				Prompt string `json:"prompt"`
			} `json:"input"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "cartoon a tall yellow flower", body.Input.Prompt)

		_, _ = w.Write([]byte(`{"id":"p1","status":"succeeded","output":["https://img.example/1.webp"]}`))
	})

	ref, err := gen.Generate(context.Background(), "cartoon a tall yellow flower")
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/1.webp", ref)
}

func TestReplicate_PollsUntilDone(t *testing.T) {
	var polls atomic.Int32

	gen := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		srvURL := "http://" + r.Host
		switch r.Method {
		case http.MethodPost:
			_, _ = w.Write([]byte(`{"id":"p1","status":"starting","urls":{"get":"` + srvURL + `/v1/predictions/p1"}}`))
		case http.MethodGet:
			assert.Equal(t, "/v1/predictions/p1", r.URL.Path)
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

			if polls.Add(1) < 3 {
				_, _ = w.Write([]byte(`{"id":"p1","status":"processing","urls":{"get":"` + srvURL + `/v1/predictions/p1"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":"p1","status":"succeeded","output":"https://img.example/2.webp"}`))
		}
	})

	ref, err := gen.Generate(context.Background(), "cartoon a boat")
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/2.webp", ref)
	assert.Equal(t, int32(3), polls.Load())
}

func TestReplicate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "prediction failed", status: http.StatusOK, body: `{"id":"p1","status":"failed","error":"nsfw"}`},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"detail":"bad token"}`},
		{name: "garbage", status: http.StatusOK, body: `not json`},
		{name: "no output", status: http.StatusOK, body: `{"id":"p1","status":"succeeded","output":[]}`},
		{name: "no poll url", status: http.StatusOK, body: `{"id":"p1","status":"starting"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := gen.Generate(context.Background(), "cartoon a boat")
			assert.ErrorIs(t, err, ErrGenerationFailed)
		})
	}
}

func TestReplicate_ContextBoundsPolling(t *testing.T) {
	gen := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"p1","status":"processing","urls":{"get":"http://` + r.Host + `/v1/predictions/p1"}}`))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := gen.Generate(ctx, "cartoon a boat")
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestNewGenerator_DisabledWithoutToken(t *testing.T) {
	gen := newGenerator(&Config{})
	assert.IsType(t, disabledGenerator{}, gen)

	_, err := gen.Generate(context.Background(), "cartoon a boat")
	assert.ErrorIs(t, err, ErrGenerationFailed)
}
