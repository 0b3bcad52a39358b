package ledger

import (
	"encoding/hex"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/kulupu-go/kulupu/rewards"
)

func TestEncodeMintsEmptyIsNil(t *testing.T) {
	b, err := encodeMints(nil)
	if err != nil {
		t.Fatalf("encodeMints: %v", err)
	}
	if b != nil {
		t.Fatalf("expected nil JSON for an empty mints map, got %q", b)
	}
}

func TestEncodeMintsRoundTrip(t *testing.T) {
	var account rewards.AccountID
	account[0] = 0xaa

	mints := map[rewards.AccountID]rewards.Balance{
		account: big.NewInt(1000),
	}

	b, err := encodeMints(mints)
	if err != nil {
		t.Fatalf("encodeMints: %v", err)
	}

	var decoded map[string]string
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}

	hexKey := hex.EncodeToString(account[:])
	amount, ok := decoded[hexKey]
	if !ok {
		t.Fatalf("expected key %q in encoded mints, got %v", hexKey, decoded)
	}
	if amount != "1000" {
		t.Fatalf("expected amount \"1000\", got %q", amount)
	}
}

func TestAccountBytesZeroIsNil(t *testing.T) {
	if b := accountBytes(rewards.AccountID{}); b != nil {
		t.Fatalf("expected the zero account to encode as nil, got %x", b)
	}
}

func TestAccountBytesNonZero(t *testing.T) {
	var account rewards.AccountID
	account[31] = 1

	b := accountBytes(account)
	if len(b) != 32 {
		t.Fatalf("expected a 32-byte account encoding, got %d bytes", len(b))
	}
	if b[31] != 1 {
		t.Fatalf("expected the encoded bytes to match the account, got %x", b)
	}
}
