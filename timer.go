/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"time"
)

// TickerFunc returns a tick channel firing every d and a function that
// releases it. Tests swap in a hand-driven channel.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)

	return t.C, t.Stop
}

// countdown runs onTick once per interval until onTick returns false or
// stop is called. onTick receives the countdown's context and must treat
// a cancelled context as "do nothing".
type countdown struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func startCountdown(tickers TickerFunc, interval time.Duration, onTick func(ctx context.Context) bool) *countdown {
	ctx, cancel := context.WithCancel(context.Background())
	ticks, release := tickers(interval)

	go func() {
		defer release()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticks:
				if !onTick(ctx) {
					cancel()

					return
				}
			}
		}
	}()

	return &countdown{ctx: ctx, cancel: cancel}
}

func (c *countdown) stop() {
	c.cancel()
}

func (c *countdown) active() bool {
	return c.ctx.Err() == nil
}

func seconds(d time.Duration) int {
	return int(d.Round(time.Second) / time.Second)
}
