package mining

import (
	"errors"
	"testing"
	"time"

	"github.com/kulupu-go/kulupu/consensus"
	"github.com/kulupu-go/kulupu/primitives"
	"github.com/kulupu-go/kulupu/randomx"
)

type fakeSubmitter struct {
	calls []struct {
		preHash primitives.H256
		seal    []byte
	}
	err error
}

func (f *fakeSubmitter) SubmitSeal(preHash primitives.H256, sealBytes []byte) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, struct {
		preHash primitives.H256
		seal    []byte
	}{preHash, sealBytes})
	return nil
}

func testMetadata(difficulty uint64) *Metadata {
	return &Metadata{
		BestHash:   primitives.H256{1},
		PreHash:    primitives.H256{2},
		PreRuntime: []byte{3, 4, 5},
		Difficulty: primitives.NewDifficultyFromUint64(difficulty),
		Version:    consensus.VersionV1,
	}
}

func TestWorkerMetadataRoundTrip(t *testing.T) {
	w := NewWorker(DefaultWorkerConfig(), nil, nil, nil, &fakeSubmitter{})

	if _, ok := w.Metadata(); ok {
		t.Fatalf("expected no metadata before SetMetadata")
	}

	meta := testMetadata(10)
	w.SetMetadata(meta)

	got, ok := w.Metadata()
	if !ok {
		t.Fatalf("expected metadata after SetMetadata")
	}
	if got != meta {
		t.Fatalf("Metadata() returned a different pointer than SetMetadata stored")
	}
}

func TestSubmitIfFreshAcceptsMatchingMetadata(t *testing.T) {
	submitter := &fakeSubmitter{}
	w := NewWorker(DefaultWorkerConfig(), nil, nil, nil, submitter)

	meta := testMetadata(10)
	w.SetMetadata(meta)

	seal := []byte{0xaa, 0xbb}
	if err := w.submitIfFresh(meta, seal); err != nil {
		t.Fatalf("submitIfFresh: %v", err)
	}

	if len(submitter.calls) != 1 {
		t.Fatalf("expected exactly one submission, got %d", len(submitter.calls))
	}
	if submitter.calls[0].preHash != meta.PreHash {
		t.Fatalf("submitted under the wrong pre-hash")
	}
	if w.Stats().SharesValid() != 1 {
		t.Fatalf("expected SharesValid to be 1, got %d", w.Stats().SharesValid())
	}
}

func TestSubmitIfFreshDiscardsStaleBestHash(t *testing.T) {
	submitter := &fakeSubmitter{}
	w := NewWorker(DefaultWorkerConfig(), nil, nil, nil, submitter)

	minedUnder := testMetadata(10)
	current := testMetadata(10)
	current.BestHash = primitives.H256{9, 9, 9}
	w.SetMetadata(current)

	if err := w.submitIfFresh(minedUnder, []byte{1}); err != nil {
		t.Fatalf("submitIfFresh: %v", err)
	}
	if len(submitter.calls) != 0 {
		t.Fatalf("expected a stale-head seal to be discarded silently, got %d submissions", len(submitter.calls))
	}
}

func TestSubmitIfFreshDiscardsStaleDifficulty(t *testing.T) {
	submitter := &fakeSubmitter{}
	w := NewWorker(DefaultWorkerConfig(), nil, nil, nil, submitter)

	minedUnder := testMetadata(10)
	current := testMetadata(20)
	w.SetMetadata(current)

	if err := w.submitIfFresh(minedUnder, []byte{1}); err != nil {
		t.Fatalf("submitIfFresh: %v", err)
	}
	if len(submitter.calls) != 0 {
		t.Fatalf("expected a stale-difficulty seal to be discarded silently, got %d submissions", len(submitter.calls))
	}
}

func TestSubmitIfFreshDiscardsRotatedAuthor(t *testing.T) {
	submitter := &fakeSubmitter{}
	w := NewWorker(DefaultWorkerConfig(), nil, nil, nil, submitter)

	minedUnder := testMetadata(10)
	current := testMetadata(10)
	current.PreRuntime = []byte{9, 9, 9}
	w.SetMetadata(current)

	if err := w.submitIfFresh(minedUnder, []byte{1}); err != nil {
		t.Fatalf("submitIfFresh: %v", err)
	}
	if len(submitter.calls) != 0 {
		t.Fatalf("expected a seal mined under a since-rotated author to be discarded silently, got %d submissions", len(submitter.calls))
	}
}

func TestSubmitIfFreshDiscardsChangedVersion(t *testing.T) {
	submitter := &fakeSubmitter{}
	w := NewWorker(DefaultWorkerConfig(), nil, nil, nil, submitter)

	minedUnder := testMetadata(10)
	current := testMetadata(10)
	current.Version = consensus.VersionV2
	w.SetMetadata(current)

	if err := w.submitIfFresh(minedUnder, []byte{1}); err != nil {
		t.Fatalf("submitIfFresh: %v", err)
	}
	if len(submitter.calls) != 0 {
		t.Fatalf("expected a seal mined under a since-changed algorithm version to be discarded silently, got %d submissions", len(submitter.calls))
	}
}

func TestSubmitIfFreshDiscardsWhenMetadataCleared(t *testing.T) {
	submitter := &fakeSubmitter{}
	w := NewWorker(DefaultWorkerConfig(), nil, nil, nil, submitter)

	minedUnder := testMetadata(10)
	w.SetMetadata(nil)

	if err := w.submitIfFresh(minedUnder, []byte{1}); err != nil {
		t.Fatalf("submitIfFresh: %v", err)
	}
	if len(submitter.calls) != 0 {
		t.Fatalf("expected seal to be discarded once metadata is cleared")
	}
}

func TestSubmitIfFreshPropagatesSubmitError(t *testing.T) {
	wantErr := errors.New("boom")
	submitter := &fakeSubmitter{err: wantErr}
	w := NewWorker(DefaultWorkerConfig(), nil, nil, nil, submitter)

	meta := testMetadata(10)
	w.SetMetadata(meta)

	if err := w.submitIfFresh(meta, []byte{1}); !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped submit error, got %v", err)
	}
}

func TestHandleErrorBackoffPolicy(t *testing.T) {
	w := NewWorker(DefaultWorkerConfig(), nil, nil, nil, &fakeSubmitter{})

	start := time.Now()
	w.handleError(randomx.ErrCacheNotAvailable)
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Fatalf("expected CacheNotAvailable to back off ~1s, only waited %v", elapsed)
	}
}

func TestStatsHashrateAndShares(t *testing.T) {
	s := NewStats(2)

	s.RecordRounds(0, 1000)
	s.RecordRounds(1, 500)
	s.RecordShare()
	s.RecordShare()

	time.Sleep(1100 * time.Millisecond)

	rate := s.Hashrate()
	if rate <= 0 {
		t.Fatalf("expected a positive hashrate after recording rounds, got %f", rate)
	}
	if s.SharesValid() != 2 {
		t.Fatalf("expected SharesValid to be 2, got %d", s.SharesValid())
	}
}

func TestStatsDisplayThrottle(t *testing.T) {
	s := NewStats(1)

	if !s.ShouldDisplay() {
		t.Fatalf("expected the first ShouldDisplay call to report true")
	}
	if s.ShouldDisplay() {
		t.Fatalf("expected ShouldDisplay to throttle immediately-repeated calls")
	}
}

func TestStatsRoundsResetAfterClearInterval(t *testing.T) {
	s := NewStats(1)
	s.windowStart = time.Now().Add(-clearInterval - time.Second)
	s.RecordRounds(0, 100)

	if s.rounds[0] != 100 {
		t.Fatalf("expected the post-clear round count to restart from this call's rounds, got %d", s.rounds[0])
	}
	if time.Since(s.windowStart) > time.Second {
		t.Fatalf("expected the window to have been reset to roughly now")
	}
}

func TestExpectedBlocksPerHour(t *testing.T) {
	// Network hashrate = difficulty / 60s. If our own hashrate equals the
	// network hashrate exactly, we'd expect to find all 60 blocks/hour.
	difficulty := primitives.NewDifficultyFromUint64(6000)
	networkHashrate := 6000.0 / primitives.BlockTimeTarget.Seconds()

	got := ExpectedBlocksPerHour(networkHashrate, difficulty)
	want := time.Hour.Seconds() / primitives.BlockTimeTarget.Seconds()
	if got < want-0.001 || got > want+0.001 {
		t.Fatalf("ExpectedBlocksPerHour = %f, want %f", got, want)
	}
}

func TestExpectedBlocksPerHourZeroDifficultyIsZero(t *testing.T) {
	if got := ExpectedBlocksPerHour(1000, primitives.Difficulty{}); got != 0 {
		t.Fatalf("expected zero difficulty to yield zero expected blocks, got %f", got)
	}
}
