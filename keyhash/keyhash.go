// Package keyhash resolves the RandomX cache key in force for a given
// parent block by walking chain ancestry back to the current epoch
// boundary.
package keyhash

import (
	"errors"
	"fmt"

	"github.com/kulupu-go/kulupu/primitives"
)

// ErrParentNotFound is returned when a header lookup by hash fails to find
// a block, which should never happen for a chain under a node's own
// authority.
var ErrParentNotFound = errors.New("keyhash: header not found")

// Header is the minimal chain-header view keyhash needs: its own hash,
// height, and parent hash.
type Header interface {
	Hash() primitives.H256
	Number() uint64
	ParentHash() primitives.H256
}

// Backend looks up a previously-imported header by hash.
type Backend interface {
	HeaderByHash(hash primitives.H256) (Header, error)
}

// Resolve returns the key hash in force for a block whose parent is parent,
// per the PERIOD/OFFSET epoch-rotation rule: the key hash is always the
// hash of the block at a PERIOD-aligned boundary, with OFFSET blocks of
// hysteresis so a boundary crossing doesn't immediately roll the key
// forward.
func Resolve(backend Backend, parent Header, period, offset uint64) (primitives.H256, error) {
	parentNumber := parent.Number()

	keyNumber := parentNumber - parentNumber%period
	if parentNumber-keyNumber < offset {
		if keyNumber >= period {
			keyNumber -= period
		} else {
			keyNumber = 0
		}
	}

	current := parent
	for current.Number() != keyNumber {
		next, err := backend.HeaderByHash(current.ParentHash())
		if err != nil {
			return primitives.H256{}, fmt.Errorf("keyhash: %w", err)
		}
		if next == nil {
			return primitives.H256{}, ErrParentNotFound
		}
		current = next
	}

	return current.Hash(), nil
}
