// Package consensus plugs the compute, keyhash, and difficulty layers into
// the block-import pipeline: it answers whether a candidate block's seal is
// valid, which of two equally-difficult chains to prefer, and which PoW
// algorithm version is active for a given parent.
package consensus

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/kulupu-go/kulupu/compute"
	"github.com/kulupu-go/kulupu/keyhash"
	"github.com/kulupu-go/kulupu/primitives"
	"github.com/kulupu-go/kulupu/signer"
)

// Version identifies which seal format and work function a parent's
// children must use.
type Version int

const (
	VersionV1 Version = iota
	VersionV2
)

// Tag is the 8-byte runtime-reported algorithm identifier. Any tag other
// than the two recognized below is a fatal verification error.
type Tag [8]byte

var (
	TagV1 = Tag{'r', 'a', 'n', 'd', 'o', 'm', 'x', '0'}
	TagV2 = Tag{'r', 'a', 'n', 'd', 'o', 'm', 'x', '1'}
)

// ErrUnknownAlgorithmTag is returned when the runtime reports a tag neither
// TagV1 nor TagV2.
var ErrUnknownAlgorithmTag = errors.New("consensus: unknown algorithm identifier tag")

// ParseTag resolves the runtime-reported tag to a Version.
func ParseTag(tag Tag) (Version, error) {
	switch tag {
	case TagV1:
		return VersionV1, nil
	case TagV2:
		return VersionV2, nil
	default:
		return 0, ErrUnknownAlgorithmTag
	}
}

// RuntimeAPI is the subset of the runtime's API the algorithm adapter
// delegates to: the next block's difficulty and the algorithm version in
// force for a given parent.
type RuntimeAPI interface {
	Difficulty(parentHash primitives.H256) (primitives.Difficulty, error)
	AlgorithmTag(parentHash primitives.H256) (Tag, error)
}

// Algorithm wires compute, keyhash resolution, and a node's runtime API
// together to answer the block-import pipeline's difficulty/verify/
// break_tie questions.
type Algorithm struct {
	backend keyhash.Backend
	runtime RuntimeAPI
	engine  *compute.Engine
	period  uint64
	offset  uint64
}

// NewAlgorithm builds an Algorithm over backend (chain header lookups),
// runtime (difficulty and algorithm-version queries), and engine (the
// RandomX engine whose cache pools every verification draws from).
func NewAlgorithm(backend keyhash.Backend, runtime RuntimeAPI, engine *compute.Engine) *Algorithm {
	return &Algorithm{
		backend: backend,
		runtime: runtime,
		engine:  engine,
		period:  primitives.Period,
		offset:  primitives.Offset,
	}
}

// Difficulty returns the next block's difficulty for parentHash, delegated
// to the runtime.
func (a *Algorithm) Difficulty(parentHash primitives.H256) (primitives.Difficulty, error) {
	return a.runtime.Difficulty(parentHash)
}

// Verify checks that sealBytes is a valid proof of work for preHash under
// difficulty, given parent's header and the block's pre-runtime digest
// (required for V2's author signature).
func (a *Algorithm) Verify(parent keyhash.Header, preHash primitives.H256, preDigest []primitives.DigestItem, sealBytes []byte, difficulty primitives.Difficulty) (bool, error) {
	tag, err := a.runtime.AlgorithmTag(parent.Hash())
	if err != nil {
		return false, err
	}
	version, err := ParseTag(tag)
	if err != nil {
		return false, err
	}

	keyHash, err := keyhash.Resolve(a.backend, parent, a.period, a.offset)
	if err != nil {
		return false, fmt.Errorf("consensus: resolving key hash: %w", err)
	}

	machines := a.engine.NewMachines()

	switch version {
	case VersionV1:
		return a.verifyV1(machines, keyHash, preHash, sealBytes, difficulty)
	case VersionV2:
		return a.verifyV2(machines, keyHash, preHash, preDigest, sealBytes, difficulty)
	default:
		return false, ErrUnknownAlgorithmTag
	}
}

func (a *Algorithm) verifyV1(machines *compute.Machines, keyHash, preHash primitives.H256, sealBytes []byte, difficulty primitives.Difficulty) (bool, error) {
	seal, err := compute.DecodeSealV1(sealBytes)
	if err != nil {
		return false, nil
	}

	c := compute.ComputeV1{
		KeyHash:    keyHash,
		PreHash:    preHash,
		Difficulty: seal.Difficulty,
		Nonce:      seal.Nonce,
	}
	recomputed, work, err := c.SealAndWork(machines, compute.ModeSync)
	if err != nil {
		return false, err
	}

	if !bytes.Equal(compute.EncodeSealV1(recomputed), sealBytes) {
		return false, nil
	}
	return primitives.MeetsTarget(work, difficulty), nil
}

func (a *Algorithm) verifyV2(machines *compute.Machines, keyHash, preHash primitives.H256, preDigest []primitives.DigestItem, sealBytes []byte, difficulty primitives.Difficulty) (bool, error) {
	seal, err := compute.DecodeSealV2(sealBytes)
	if err != nil {
		return false, nil
	}

	public, ok := primitives.FindPreRuntime(preDigest, primitives.PowEngineID)
	if !ok {
		return false, nil
	}

	c := compute.ComputeV2{
		KeyHash:    keyHash,
		PreHash:    preHash,
		Difficulty: seal.Difficulty,
		Nonce:      seal.Nonce,
	}
	if !signer.VerifyCompact(c.SigningMessage(), seal.Signature, public) {
		return false, nil
	}

	recomputed, work, err := c.SealAndWork(machines, compute.ModeSync, seal.Signature)
	if err != nil {
		return false, err
	}

	if !bytes.Equal(compute.EncodeSealV2(recomputed), sealBytes) {
		return false, nil
	}
	return primitives.MeetsTarget(work, difficulty), nil
}

// BreakTie decides, for two chains of equal cumulative difficulty, whether
// newSeal should replace ownSeal: the seal with the strictly greater
// blake2_256 digest wins. This is deterministic and requires no extra
// state.
func BreakTie(ownSeal, newSeal []byte) bool {
	own := primitives.Blake2_256(ownSeal)
	new_ := primitives.Blake2_256(newSeal)
	return bytes.Compare(new_[:], own[:]) > 0
}
