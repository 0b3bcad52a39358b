package primitives

import "golang.org/x/crypto/blake2b"

// Blake2_256 hashes data with blake2b-256, the digest every tie-break and
// V2 signing path in this module uses.
func Blake2_256(data []byte) H256 {
	sum := blake2b.Sum256(data)
	return H256(sum)
}

// DigestItem is a single pre-runtime digest log entry attached to a block
// header before runtime execution.
type DigestItem struct {
	ID      [8]byte
	Payload []byte
}

// FindPreRuntime returns the payload of the first digest item tagged with id,
// and whether one was found.
func FindPreRuntime(items []DigestItem, id [8]byte) ([]byte, bool) {
	for _, item := range items {
		if item.ID == id {
			return item.Payload, true
		}
	}
	return nil, false
}

// InherentData is a typed map InherentId -> bytes, per SPEC_FULL.md §9: each
// provider registers its own id and encoded payload. The core only ever
// reads the "timestamp" and "author" (legacy upgrade-whitelist) entries.
type InherentData struct {
	values map[[8]byte][]byte
}

// NewInherentData returns an empty InherentData map.
func NewInherentData() *InherentData {
	return &InherentData{values: make(map[[8]byte][]byte)}
}

// Put registers a provider's encoded payload under id.
func (d *InherentData) Put(id [8]byte, payload []byte) {
	d.values[id] = payload
}

// Get returns the payload registered under id, if any.
func (d *InherentData) Get(id [8]byte) ([]byte, bool) {
	v, ok := d.values[id]
	return v, ok
}

// TimestampInherentID identifies the timestamp inherent (milliseconds since
// the Unix epoch) that drives difficulty sampling.
var TimestampInherentID = [8]byte{'t', 'i', 'm', 's', 't', 'a', 'p', '0'}
