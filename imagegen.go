/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultReplicateURL   = "https://api.replicate.com"
	defaultReplicateModel = "black-forest-labs/flux-schnell"

	replicatePollInterval = time.Second
	maxReplicateResponse  = 1 << 20
)

// Generator turns a text prompt into an image reference. Errors wrap
// ErrGenerationFailed; callers bound the call through ctx.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type disabledGenerator struct{}

func (disabledGenerator) Generate(context.Context, string) (string, error) {
	return "", fmt.Errorf("%w: no image generation backend configured", ErrGenerationFailed)
}

// replicateGenerator calls the Replicate predictions API for a model.
type replicateGenerator struct {
	client       *http.Client
	baseURL      string
	model        string
	token        string
	pollInterval time.Duration
}

func newGenerator(cfg *Config) Generator {
	if cfg.replicateToken == "" {
		return disabledGenerator{}
	}

	return &replicateGenerator{
		client:       &http.Client{},
		baseURL:      strings.TrimSuffix(cfg.replicateURL, "/"),
		model:        cfg.replicateModel,
		token:        cfg.replicateToken,
		pollInterval: replicatePollInterval,
	}
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

func (p *prediction) done() bool {
	switch p.Status {
	case "succeeded", "failed", "canceled":
		return true
	}

	return false
}

// image returns the first output URL. Models answer with either a list
// of URLs or a single one.
func (p *prediction) image() (string, error) {
	var list []string
	if err := json.Unmarshal(p.Output, &list); err == nil && len(list) > 0 && list[0] != "" {
		return list[0], nil
	}

	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil && single != "" {
		return single, nil
	}

	return "", errors.New("prediction returned no image")
}

func (g *replicateGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"input": map[string]string{"prompt": prompt},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	endpoint := fmt.Sprintf("%s/v1/models/%s/predictions", g.baseURL, g.model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "wait")

	pred, err := g.do(req)
	if err != nil {
		return "", err
	}

	for !pred.done() {
		if pred.URLs.Get == "" {
			return "", fmt.Errorf("%w: prediction %s has no status url", ErrGenerationFailed, pred.ID)
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %w", ErrGenerationFailed, ctx.Err())
		case <-time.After(g.pollInterval):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pred.URLs.Get, nil)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
		}

		pred, err = g.do(req)
		if err != nil {
			return "", err
		}
	}

	if pred.Status != "succeeded" {
		return "", fmt.Errorf("%w: prediction %s %s: %v", ErrGenerationFailed, pred.ID, pred.Status, pred.Error)
	}

	ref, err := pred.image()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	return ref, nil
}

func (g *replicateGenerator) do(req *http.Request) (*prediction, error) {
	req.Header.Set("Authorization", "Bearer "+g.token)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplicateResponse))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: replicate returned %s: %s", ErrGenerationFailed, resp.Status, strings.TrimSpace(string(data)))
	}

	pred := &prediction{}
	if err := json.Unmarshal(data, pred); err != nil {
		return nil, fmt.Errorf("%w: decode prediction: %w", ErrGenerationFailed, err)
	}

	return pred, nil
}
