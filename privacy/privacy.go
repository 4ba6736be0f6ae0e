// Package privacy implements the timing-decorrelation subsystem: random
// delay injection around sensitive operations, response-time
// normalization, and request batching with a shuffle that breaks the
// correlation between input and output order.
package privacy

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/flammafex/prestige/types"
)

// Engine applies the configured privacy measures. All sleeps go through
// the injected clock so tests can drive them.
type Engine struct {
	cfg types.PrivacyConfig
	clk clock.Clock
}

// New creates an engine; a disabled config turns every method into a
// no-op.
func New(cfg types.PrivacyConfig, clk clock.Clock) *Engine {
	return &Engine{cfg: cfg, clk: clk}
}

// Enabled reports whether the subsystem is active.
func (e *Engine) Enabled() bool {
	return e.cfg.Enabled
}

// RandomDelay suspends for a uniform duration in [MinDelayMS, MaxDelayMS].
// Call it before and after sensitive operations.
func (e *Engine) RandomDelay(ctx context.Context) error {
	if !e.cfg.Enabled || e.cfg.MaxDelayMS <= 0 {
		return nil
	}
	span := e.cfg.MaxDelayMS - e.cfg.MinDelayMS
	d := e.cfg.MinDelayMS
	if span > 0 {
		n, err := rand.Int(rand.Reader, big.NewInt(span+1))
		if err != nil {
			return err
		}
		d += n.Int64()
	}
	return e.sleep(ctx, time.Duration(d)*time.Millisecond)
}

// Normalize runs fn and pads the total duration to at least the configured
// normalized response time, hiding how long the operation really took.
func (e *Engine) Normalize(ctx context.Context, fn func() error) error {
	if !e.cfg.Enabled || e.cfg.NormalizedResponseMS <= 0 {
		return fn()
	}
	target := time.Duration(e.cfg.NormalizedResponseMS) * time.Millisecond
	start := e.clk.Now()
	err := fn()
	if shortfall := target - e.clk.Since(start); shortfall > 0 {
		if serr := e.sleep(ctx, shortfall); serr != nil {
			return serr
		}
	}
	return err
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	t := e.clk.Timer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shuffle permutes items in place with a Fisher-Yates shuffle driven by
// crypto/rand.
func Shuffle[T any](items []T) {
	for i := len(items) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			// crypto/rand failure is unrecoverable here.
			panic(err)
		}
		items[i], items[int(j.Int64())] = items[int(j.Int64())], items[i]
	}
}
