package core

import (
	"fmt"
	"sync"
)

// RoundLimiter enforces a maximum number of rounds for one conversation loop.
type RoundLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewRoundLimiter creates a limiter allowing max rounds. Values below one
// are raised to one so every loop gets at least a single round.
func NewRoundLimiter(max int) *RoundLimiter {
	if max < 1 {
		max = 1
	}
	return &RoundLimiter{max: max}
}

// Next starts a new round and returns its 1-based number, or an error
// wrapping ErrDelegationLoopExceeded once the bound is exhausted.
func (rl *RoundLimiter) Next() (int, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.count >= rl.max {
		return rl.count, fmt.Errorf("%w: %d rounds", ErrDelegationLoopExceeded, rl.max)
	}
	rl.count++

	return rl.count, nil
}

// Count returns the number of rounds started.
func (rl *RoundLimiter) Count() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return rl.count
}

// Remaining returns how many rounds are left.
func (rl *RoundLimiter) Remaining() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return rl.max - rl.count
}

// Max returns the configured bound.
func (rl *RoundLimiter) Max() int { return rl.max }
