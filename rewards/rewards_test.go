package rewards

import (
	"math/big"
	"testing"

	"github.com/kulupu-go/kulupu/primitives"
)

func TestExtractAuthorRoundTrip(t *testing.T) {
	var want AccountID
	want[0] = 0xaa
	want[31] = 0xbb

	digest := []primitives.DigestItem{EncodeAuthorDigest(want)}
	got, ok := ExtractAuthor(digest)
	if !ok {
		t.Fatalf("expected author to be found")
	}
	if got != want {
		t.Fatalf("got %x, want %x", got, want)
	}
}

func TestExtractAuthorAbsent(t *testing.T) {
	if _, ok := ExtractAuthor(nil); ok {
		t.Fatalf("expected no author in an empty digest")
	}
}

func TestGenerateRewardLocksDefaultSchedule(t *testing.T) {
	locks := GenerateRewardLocks(1, big.NewInt(101), nil, 1, big.NewInt(1))

	if len(locks) != 10 {
		t.Fatalf("expected 10 tranches, got %d", len(locks))
	}
	for i := 0; i < 10; i++ {
		block := BlockNumber(11 + i*10)
		amount, ok := locks[block]
		if !ok {
			t.Fatalf("missing tranche at block %d", block)
		}
		if amount.Cmp(big.NewInt(10)) != 0 {
			t.Fatalf("tranche at block %d = %s, want 10", block, amount)
		}
	}
}

func TestGenerateRewardLocksNothingBelowReserve(t *testing.T) {
	locks := GenerateRewardLocks(1, big.NewInt(1), nil, 1, big.NewInt(1))
	if len(locks) != 0 {
		t.Fatalf("expected no locks when reward equals the unlocked reserve, got %v", locks)
	}
}

func TestMergeLocksSumsCollidingKeys(t *testing.T) {
	a := map[BlockNumber]Balance{10: big.NewInt(5), 20: big.NewInt(7)}
	b := map[BlockNumber]Balance{10: big.NewInt(3), 30: big.NewInt(1)}

	merged := MergeLocks(a, b)
	if merged[10].Cmp(big.NewInt(8)) != 0 {
		t.Fatalf("merged[10] = %s, want 8", merged[10])
	}
	if merged[20].Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("merged[20] = %s, want 7", merged[20])
	}
	if merged[30].Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("merged[30] = %s, want 1", merged[30])
	}
}

func TestActiveLockTotalExpiresOldTranches(t *testing.T) {
	locks := map[BlockNumber]Balance{10: big.NewInt(5), 20: big.NewInt(7), 30: big.NewInt(1)}
	total, pruned := ActiveLockTotal(locks, 20)

	if total.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("total = %s, want 1 (only block 30 still active)", total)
	}
	if len(pruned) != 1 {
		t.Fatalf("expected 1 surviving tranche, got %d", len(pruned))
	}
}

func TestFullRewardVestingVector(t *testing.T) {
	s := NewState(primitives.DefaultLockBounds())
	s.Reward = big.NewInt(101)

	var author AccountID
	author[0] = 1

	digest := []primitives.DigestItem{EncodeAuthorDigest(author)}
	s.OnInitialize(2, digest)
	s.OnFinalize(2, 1)

	total, _ := ActiveLockTotal(s.RewardLocks[author], 2)
	if total.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("locked total = %s, want 100", total)
	}
	if s.HasAuthor {
		t.Fatalf("expected author to be cleared after finalize")
	}
}

func TestOnInitializeAppliesSimultaneousChangesInAscendingOrder(t *testing.T) {
	s := NewState(primitives.DefaultLockBounds())
	s.RewardChanges = map[BlockNumber]Balance{
		10: big.NewInt(1),
		20: big.NewInt(2),
		30: big.NewInt(3),
	}
	s.MintChanges = map[BlockNumber]map[AccountID]Balance{
		10: {{1}: big.NewInt(100)},
		30: {{1}: big.NewInt(300)},
		20: {{1}: big.NewInt(200)},
	}

	// Run many times: with map iteration this would occasionally surface a
	// different final Reward/Mints under the old, unsorted implementation.
	for i := 0; i < 20; i++ {
		s.RewardChanges = map[BlockNumber]Balance{10: big.NewInt(1), 20: big.NewInt(2), 30: big.NewInt(3)}
		s.MintChanges = map[BlockNumber]map[AccountID]Balance{
			10: {{1}: big.NewInt(100)},
			30: {{1}: big.NewInt(300)},
			20: {{1}: big.NewInt(200)},
		}

		s.OnInitialize(30, nil)

		if s.Reward.Cmp(big.NewInt(3)) != 0 {
			t.Fatalf("Reward = %s, want 3 (the highest-numbered due change)", s.Reward)
		}
		if s.Mints[AccountID{1}].Cmp(big.NewInt(300)) != 0 {
			t.Fatalf("Mints[1] = %s, want 300 (the highest-numbered due change)", s.Mints[AccountID{1}])
		}
		if len(s.RewardChanges) != 0 || len(s.MintChanges) != 0 {
			t.Fatalf("expected every due change to be consumed")
		}
	}
}

func TestSetScheduleRejectsBelowExistentialDeposit(t *testing.T) {
	s := NewState(primitives.DefaultLockBounds())
	ed := big.NewInt(10)
	_, err := s.SetSchedule(big.NewInt(5), nil, nil, nil, ed)
	if err != ErrRewardTooLow {
		t.Fatalf("expected ErrRewardTooLow, got %v", err)
	}
}

func TestSetLockParamsValidation(t *testing.T) {
	s := NewState(primitives.DefaultLockBounds())

	if _, err := s.SetLockParams(LockParameters{Period: 100, Divide: 7}); err != ErrLockPeriodNotDivisible {
		t.Fatalf("expected ErrLockPeriodNotDivisible, got %v", err)
	}
	if _, err := s.SetLockParams(LockParameters{Period: 10, Divide: 2}); err != ErrLockParamsOutOfBounds {
		t.Fatalf("expected ErrLockParamsOutOfBounds (period below min), got %v", err)
	}
	if _, err := s.SetLockParams(LockParameters{Period: 100, Divide: 10}); err != nil {
		t.Fatalf("expected valid params to be accepted, got %v", err)
	}
}

func TestMigrateV0ToV1(t *testing.T) {
	s := NewState(primitives.DefaultLockBounds())
	s.StorageVersion = StorageVersionV0

	var dest AccountID
	dest[0] = 9

	MigrateV0ToV1(s,
		[]CurvePointV0{{Start: 100, Reward: big.NewInt(50)}},
		[]AdditionalRewardV0{{Destination: dest, Amount: big.NewInt(3)}},
	)

	if s.StorageVersion != StorageVersionV1 {
		t.Fatalf("expected migration to advance to V1")
	}
	if s.RewardChanges[100].Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("migrated reward change missing or wrong")
	}
	if s.Mints[dest].Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("migrated mint missing or wrong")
	}
}

func TestLockdropCampaignLifecycle(t *testing.T) {
	l := NewLockdrop()
	id := CampaignID{'e', 'r', 'a', '1'}

	if err := l.CreateCampaign(id, 0, 100, 200); err != nil {
		t.Fatalf("CreateCampaign: %v", err)
	}
	if err := l.CreateCampaign(id, 0, 100, 200); err != ErrCampaignAlreadyExists {
		t.Fatalf("expected ErrCampaignAlreadyExists, got %v", err)
	}

	var account AccountID
	account[0] = 5

	if err := l.Lock(id, account, big.NewInt(10), 250, 50); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := l.Lock(id, account, big.NewInt(5), 250, 50); err != ErrAttemptedToLockLess {
		t.Fatalf("expected ErrAttemptedToLockLess, got %v", err)
	}
	if err := l.Lock(id, account, big.NewInt(15), 250, 50); err != nil {
		t.Fatalf("topping up Lock: %v", err)
	}

	entry, ok := l.LockOf(id, account)
	if !ok || entry.Balance.Cmp(big.NewInt(15)) != 0 {
		t.Fatalf("expected locked balance 15, got %+v ok=%v", entry, ok)
	}

	l.RemoveExpiredCampaign(id, 50)
	if _, ok := l.campaigns[id]; !ok {
		t.Fatalf("campaign should survive removal attempt before its end block")
	}
	l.RemoveExpiredCampaign(id, 150)
	if _, ok := l.campaigns[id]; ok {
		t.Fatalf("campaign should be removed once expired")
	}
}
