package mining

import (
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kulupu-go/kulupu/primitives"
)

// displayInterval throttles how often a caller should print a fresh
// hashrate line; clearInterval resets the rolling window so a worker's
// reported hashrate tracks recent performance rather than an all-time
// average that never reacts to a thread count change.
const (
	displayInterval = 2 * time.Second
	clearInterval   = 10 * time.Minute
)

// Stats tracks per-thread cumulative round counts over a rolling window,
// and the worker's lifetime valid-share count.
type Stats struct {
	mu          sync.Mutex
	rounds      []uint64
	windowStart time.Time
	lastDisplay time.Time

	sharesValid uint64
}

// NewStats allocates per-thread counters for a Worker with the given thread
// count.
func NewStats(threads int) *Stats {
	now := time.Now()
	return &Stats{
		rounds:      make([]uint64, threads),
		windowStart: now,
		lastDisplay: now,
	}
}

// RecordRounds accounts for rounds more hash attempts completed by
// threadID, first clearing the window if it has run longer than
// clearInterval.
func (s *Stats) RecordRounds(threadID, rounds int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Since(s.windowStart) > clearInterval {
		for i := range s.rounds {
			s.rounds[i] = 0
		}
		s.windowStart = time.Now()
	}

	if threadID >= 0 && threadID < len(s.rounds) {
		s.rounds[threadID] += uint64(rounds)
	}
}

// RecordShare increments the worker's lifetime valid-share count.
func (s *Stats) RecordShare() {
	atomic.AddUint64(&s.sharesValid, 1)
}

// SharesValid returns the cumulative count of seals this worker has
// submitted.
func (s *Stats) SharesValid() uint64 {
	return atomic.LoadUint64(&s.sharesValid)
}

// Hashrate returns the aggregate hashes/sec across all threads since the
// window last cleared.
func (s *Stats) Hashrate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hashrateLocked()
}

func (s *Stats) hashrateLocked() float64 {
	elapsed := time.Since(s.windowStart).Seconds()
	if elapsed < 1 {
		return 0
	}
	var total uint64
	for _, c := range s.rounds {
		total += c
	}
	return float64(total) / elapsed
}

// ShouldDisplay reports whether at least displayInterval has passed since
// the last time a caller asked, and if so marks the throttle reset. Callers
// use this to decide whether to print a fresh hashrate line without
// flooding their log on every round.
func (s *Stats) ShouldDisplay() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Since(s.lastDisplay) < displayInterval {
		return false
	}
	s.lastDisplay = time.Now()
	return true
}

// ExpectedBlocksPerHour estimates how many blocks per hour this worker
// should expect to find, given its own measured hashrate and the network's
// implied hashrate (networkDifficulty / BlockTimeTarget).
func ExpectedBlocksPerHour(ownHashrate float64, networkDifficulty primitives.Difficulty) float64 {
	networkHashrate := new(big.Float).SetInt(networkDifficulty.Big())
	networkHashrate.Quo(networkHashrate, big.NewFloat(primitives.BlockTimeTarget.Seconds()))

	nh, _ := networkHashrate.Float64()
	if nh <= 0 {
		return 0
	}

	share := ownHashrate / nh
	return share * (time.Hour.Seconds() / primitives.BlockTimeTarget.Seconds())
}
