package consensus

import (
	"math/big"
	"testing"

	"github.com/kulupu-go/kulupu/primitives"
	"github.com/kulupu-go/kulupu/weaksub"
)

func TestParseTagRecognizesV1AndV2(t *testing.T) {
	v, err := ParseTag(TagV1)
	if err != nil || v != VersionV1 {
		t.Fatalf("ParseTag(TagV1) = %v, %v; want VersionV1, nil", v, err)
	}
	v, err = ParseTag(TagV2)
	if err != nil || v != VersionV2 {
		t.Fatalf("ParseTag(TagV2) = %v, %v; want VersionV2, nil", v, err)
	}
}

func TestParseTagRejectsUnknown(t *testing.T) {
	if _, err := ParseTag(Tag{'b', 'o', 'g', 'u', 's', '0', '0', '0'}); err != ErrUnknownAlgorithmTag {
		t.Fatalf("expected ErrUnknownAlgorithmTag, got %v", err)
	}
}

func TestBreakTiePrefersGreaterDigest(t *testing.T) {
	low := []byte{0x00}
	high := []byte{0xff}

	if !BreakTie(low, high) {
		t.Fatalf("expected the higher-digest seal to win the tie-break")
	}
	if BreakTie(high, low) {
		t.Fatalf("expected the lower-digest seal to lose the tie-break")
	}
	if BreakTie(low, low) {
		t.Fatalf("expected an identical seal to never win against itself")
	}
}

type fakeDiffBackend map[primitives.H256]*big.Int

func (f fakeDiffBackend) TotalDifficulty(hash primitives.H256) (*big.Int, error) {
	return f[hash], nil
}

type fakeTreeRouter struct {
	route TreeRoute
}

func (f fakeTreeRouter) RouteFrom(best, parent primitives.H256) (TreeRoute, error) {
	return f.route, nil
}

type fakeBestChain struct {
	hash primitives.H256
}

func (f fakeBestChain) BestHash() (primitives.H256, error) { return f.hash, nil }

func TestImportGuardAllowsShallowReorg(t *testing.T) {
	var best, common, parent primitives.H256
	best[0] = 1
	common[0] = 2
	parent[0] = 3

	diffs := fakeDiffBackend{
		best:   big.NewInt(1000),
		common: big.NewInt(500),
		parent: big.NewInt(900),
	}

	guard := &ImportGuard{
		enabled:   true,
		diffs:     diffs,
		tree:      fakeTreeRouter{route: TreeRoute{CommonBlock: common, RetractedLen: 5}},
		chain:     fakeBestChain{hash: best},
		algorithm: weaksub.NewExponential(30, 1.1),
	}
	guard.algo = &Algorithm{runtime: stubDifficultyRuntime{next: primitives.NewDifficultyFromUint64(10)}}

	blocked, err := guard.ShouldBlockReorg(parent)
	if err != nil {
		t.Fatalf("ShouldBlockReorg: %v", err)
	}
	if blocked {
		t.Fatalf("expected a 5-block retraction (below the default threshold) to never be blocked")
	}
}

func TestImportGuardDisabledNeverBlocks(t *testing.T) {
	guard := &ImportGuard{enabled: false}
	blocked, err := guard.ShouldBlockReorg(primitives.H256{})
	if err != nil || blocked {
		t.Fatalf("disabled guard should never block: blocked=%v err=%v", blocked, err)
	}
}

type stubDifficultyRuntime struct {
	next primitives.Difficulty
}

func (s stubDifficultyRuntime) Difficulty(primitives.H256) (primitives.Difficulty, error) {
	return s.next, nil
}
func (s stubDifficultyRuntime) AlgorithmTag(primitives.H256) (Tag, error) { return TagV2, nil }
