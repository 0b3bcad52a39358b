package consensus

import (
	"fmt"
	"math/big"

	"github.com/kulupu-go/kulupu/primitives"
	"github.com/kulupu-go/kulupu/weaksub"
)

// TotalDifficultyBackend looks up the accumulated (aux-stored) total
// difficulty recorded for a previously-imported block.
type TotalDifficultyBackend interface {
	TotalDifficulty(hash primitives.H256) (*big.Int, error)
}

// TreeRoute describes the path a block-import pipeline would retract to
// reach a new block's parent from the local best head.
type TreeRoute struct {
	CommonBlock  primitives.H256
	RetractedLen int
}

// TreeRouter computes the tree route between two blocks, as a select-chain
// implementation's block tree would.
type TreeRouter interface {
	RouteFrom(best, parent primitives.H256) (TreeRoute, error)
}

// BestChain reports the hash of the locally preferred chain head.
type BestChain interface {
	BestHash() (primitives.H256, error)
}

// ImportGuard wraps the block-import boundary with a weak-subjectivity
// check: deep reorgs (more than threshold blocks retracted) are only
// accepted if the incoming branch's difficulty gain clears the
// algorithm's exponential bar over the local head's gain.
type ImportGuard struct {
	enabled   bool
	diffs     TotalDifficultyBackend
	tree      TreeRouter
	chain     BestChain
	algorithm weaksub.Algorithm
	algo      *Algorithm
}

// NewImportGuard builds an ImportGuard. enabled mirrors the original's
// runtime flag to disable the guard entirely (e.g. for a private testnet).
func NewImportGuard(enabled bool, diffs TotalDifficultyBackend, tree TreeRouter, chain BestChain, algorithm weaksub.Algorithm, algo *Algorithm) *ImportGuard {
	return &ImportGuard{
		enabled:   enabled,
		diffs:     diffs,
		tree:      tree,
		chain:     chain,
		algorithm: algorithm,
		algo:      algo,
	}
}

// ShouldBlockReorg reports whether importing a block with the given parent
// hash should be refused the normal fork-choice reorg (forcing
// ForkChoiceStrategy::Custom(false) in the original's terms) because the
// weak-subjectivity guard rejects it.
func (g *ImportGuard) ShouldBlockReorg(parentHash primitives.H256) (bool, error) {
	if !g.enabled {
		return false, nil
	}

	bestHash, err := g.chain.BestHash()
	if err != nil {
		return false, fmt.Errorf("consensus: fetching best chain: %w", err)
	}

	route, err := g.tree.RouteFrom(bestHash, parentHash)
	if err != nil {
		return false, fmt.Errorf("consensus: computing tree route: %w", err)
	}

	bestTotal, err := g.diffs.TotalDifficulty(bestHash)
	if err != nil {
		return false, fmt.Errorf("consensus: reading best total difficulty: %w", err)
	}
	commonTotal, err := g.diffs.TotalDifficulty(route.CommonBlock)
	if err != nil {
		return false, fmt.Errorf("consensus: reading common-ancestor total difficulty: %w", err)
	}
	parentTotal, err := g.diffs.TotalDifficulty(parentHash)
	if err != nil {
		return false, fmt.Errorf("consensus: reading parent total difficulty: %w", err)
	}

	nextDifficulty, err := g.algo.Difficulty(parentHash)
	if err != nil {
		return false, fmt.Errorf("consensus: fetching next difficulty: %w", err)
	}
	newTotal := new(big.Int).Add(parentTotal, nextDifficulty.Big())

	decision := g.algorithm.Decide(weaksub.Params{
		BestTotalDifficulty:   bestTotal,
		CommonTotalDifficulty: commonTotal,
		NewTotalDifficulty:    newTotal,
		RetractedLen:          route.RetractedLen,
	})

	return decision == weaksub.BlockReorg, nil
}
