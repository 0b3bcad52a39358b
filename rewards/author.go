package rewards

import "github.com/kulupu-go/kulupu/primitives"

// ExtractAuthor scans a block's pre-runtime digest for the entry tagged
// with the PoW engine identifier and decodes it as an AccountID. It
// returns false if no such entry is present, matching the runtime's
// on_initialize behavior of simply leaving Author unset rather than
// failing the block.
func ExtractAuthor(digest []primitives.DigestItem) (AccountID, bool) {
	payload, ok := primitives.FindPreRuntime(digest, primitives.PowEngineID)
	if !ok || len(payload) < 32 {
		return AccountID{}, false
	}
	var author AccountID
	copy(author[:], payload[:32])
	return author, true
}

// EncodeAuthorDigest builds the pre-runtime digest payload a miner embeds
// to claim authorship of a block, the inverse of ExtractAuthor.
func EncodeAuthorDigest(author AccountID) primitives.DigestItem {
	payload := make([]byte, 32)
	copy(payload, author[:])
	return primitives.DigestItem{ID: primitives.PowEngineID, Payload: payload}
}
