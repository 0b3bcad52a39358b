// Package difficulty implements the sliding-window damped/clamped
// difficulty retargeting algorithm: each new block timestamp appends a
// sample to a fixed-size window and derives the next difficulty from the
// window's average spacing relative to the target block time.
package difficulty

import (
	"sync"

	"github.com/kulupu-go/kulupu/primitives"
)

// Sample is one past (difficulty, timestamp) observation in the window.
// Zero-value samples (Valid == false) stand in for the "None" slots the
// window starts with before it fills up.
type Sample struct {
	Difficulty  primitives.Difficulty
	TimestampMs uint64
	Valid       bool
}

// Damp moves actual linearly toward goal, weighted 1:(dampFactor-1) in
// goal's favor, so a single noisy sample can't swing the target too far.
func Damp(actual, goal, dampFactor uint64) uint64 {
	return (actual + (dampFactor-1)*goal) / dampFactor
}

// Clamp bounds actual to [goal/clampFactor, goal*clampFactor].
func Clamp(actual, goal, clampFactor uint64) uint64 {
	lower := goal / clampFactor
	upper := goal * clampFactor
	switch {
	case actual > upper:
		return upper
	case actual < lower:
		return lower
	default:
		return actual
	}
}

// Controller holds the sliding window of past (difficulty, timestamp)
// samples and the currently active difficulty, and derives the next
// difficulty each time a new block timestamp is observed.
type Controller struct {
	mu sync.Mutex

	window            []Sample
	current           primitives.Difficulty
	initial           primitives.Difficulty
	targetBlockTimeMs uint64
	dampFactor        uint64
	clampFactor       uint64
}

// NewController builds a Controller with an empty window, seeded with
// initial difficulty and the given target block time and damp/clamp
// factors (pass primitives.DampFactor / primitives.ClampFactor for the
// standard parameters). initial also stands in for every window slot not
// yet populated, matching the genesis-configured InitialDifficulty the
// window falls back to before it fills up.
func NewController(initial primitives.Difficulty, windowSize int, targetBlockTimeMs, dampFactor, clampFactor uint64) *Controller {
	return &Controller{
		window:            make([]Sample, windowSize),
		current:           initial,
		initial:           initial,
		targetBlockTimeMs: targetBlockTimeMs,
		dampFactor:        dampFactor,
		clampFactor:       clampFactor,
	}
}

// Current returns the difficulty currently in force.
func (c *Controller) Current() primitives.Difficulty {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// OnTimestampSet records a new block's timestamp against the current
// difficulty, shifts the sliding window, and returns the retargeted
// difficulty that now applies to the next block.
func (c *Controller) OnTimestampSet(nowMs uint64) primitives.Difficulty {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.window)
	blockTimeWindow := uint64(n) * c.targetBlockTimeMs

	for i := 1; i < n; i++ {
		c.window[i-1] = c.window[i]
	}
	c.window[n-1] = Sample{Difficulty: c.current, TimestampMs: nowMs, Valid: true}

	var tsDelta uint64
	for i := 1; i < n; i++ {
		prev, prevOK := c.window[i-1], c.window[i-1].Valid
		cur, curOK := c.window[i], c.window[i].Valid
		var delta uint64
		if prevOK && curOK {
			if cur.TimestampMs >= prev.TimestampMs {
				delta = cur.TimestampMs - prev.TimestampMs
			}
		} else {
			delta = c.targetBlockTimeMs
		}
		tsDelta += delta
	}
	if tsDelta == 0 {
		tsDelta = 1
	}

	diffSum := primitives.NewDifficultyFromUint64(0)
	for i := 0; i < n; i++ {
		if c.window[i].Valid {
			diffSum = diffSum.Add(c.window[i].Difficulty)
		} else {
			diffSum = diffSum.Add(c.initial)
		}
	}
	if diffSum.Cmp(primitives.MinDifficulty) < 0 {
		diffSum = primitives.MinDifficulty
	}

	adjTs := Clamp(Damp(tsDelta, blockTimeWindow, c.dampFactor), blockTimeWindow, c.clampFactor)

	next := diffSum.MulUint64(c.targetBlockTimeMs).DivUint64(adjTs)
	if next.Cmp(primitives.MinDifficulty) < 0 {
		next = primitives.MinDifficulty
	}
	if next.Cmp(primitives.MaxDifficulty) > 0 {
		next = primitives.MaxDifficulty
	}

	c.current = next
	return next
}
