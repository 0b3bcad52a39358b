//go:build !cgo || !randomx

package randomx

// This build of the randomx package has no native library linked (either
// CGO is disabled or the "randomx" build tag was not passed). All
// operations fail with ErrNotInitialized so callers degrade predictably
// instead of silently no-op hashing. Mirrors the dual real/stub split the
// rest of this module's mining path uses for CGO-gated code.

// GetFlags returns FlagDefault; there is no native library to query.
func GetFlags() Flag { return FlagDefault }

// Cache is an inert placeholder in stub builds.
type Cache struct {
	mode Mode
	key  []byte
}

// NewCache always fails in stub builds.
func NewCache(mode Mode, key []byte, cfg Config) (*Cache, error) {
	return nil, ErrNotInitialized
}

// Reinit always fails in stub builds.
func (c *Cache) Reinit(key []byte) error { return ErrNotInitialized }

// CreateVM always fails in stub builds.
func (c *Cache) CreateVM() (*VM, error) { return nil, ErrNotInitialized }

// Key returns nil in stub builds.
func (c *Cache) Key() []byte { return nil }

// Mode returns the cache's configured mode.
func (c *Cache) Mode() Mode { return c.mode }

// Close is a no-op in stub builds.
func (c *Cache) Close() {}

// VM is an inert placeholder in stub builds.
type VM struct{}

// CalculateHash always returns the zero hash in stub builds.
func (v *VM) CalculateHash(input []byte) [HashSize]byte { return [HashSize]byte{} }

// CalculateHashFirst is a no-op in stub builds.
func (v *VM) CalculateHashFirst(input []byte) {}

// CalculateHashNext always returns the zero hash in stub builds.
func (v *VM) CalculateHashNext(nextInput []byte) [HashSize]byte { return [HashSize]byte{} }

// CalculateHashLast always returns the zero hash in stub builds.
func (v *VM) CalculateHashLast() [HashSize]byte { return [HashSize]byte{} }

// Close is a no-op in stub builds.
func (v *VM) Close() {}
