package weaksub

import (
	"math/big"
	"testing"
)

func check(t *testing.T, bestDiff, newDiff int64, retractedLen int, want Decision) {
	t.Helper()
	alg := NewExponential(30, 1.1)
	thousand := big.NewInt(1000)
	p := Params{
		BestTotalDifficulty:   new(big.Int).Add(big.NewInt(bestDiff), thousand),
		CommonTotalDifficulty: thousand,
		NewTotalDifficulty:    new(big.Int).Add(big.NewInt(newDiff), thousand),
		RetractedLen:          retractedLen,
	}
	if got := alg.Decide(p); got != want {
		t.Fatalf("Decide(best=%d new=%d retracted=%d) = %v, want %v", bestDiff, newDiff, retractedLen, got, want)
	}
}

func TestLessThanThresholdBlocksNeverPenalized(t *testing.T) {
	check(t, 7000, 8000, 20, Continue)
	check(t, 7000, 7001, 30, Continue)
}

func TestMoreThanThresholdBlocksPenalized(t *testing.T) {
	check(t, 7000, 7001, 31, BlockReorg)
	check(t, 7000, 8000, 31, Continue)
	check(t, 7000, 8000, 40, BlockReorg)
}

func TestEqualDifficultyAtThresholdBoundaryContinues(t *testing.T) {
	check(t, 7000, 7000, 30, Continue)
}
