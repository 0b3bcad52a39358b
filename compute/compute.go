// Package compute builds RandomX pre-images for algorithm versions V1 and
// V2 and runs the mine/verify loop primitive against them.
package compute

import (
	"encoding/binary"

	"github.com/kulupu-go/kulupu/primitives"
	"github.com/kulupu-go/kulupu/randomx"
)

// Mode selects which goroutine-local Machine (and therefore which cache
// pool) a computation draws from. Mining always uses the full/fast path;
// Sync (verification) prefers the full machine if it is already bound to
// the requested key hash, falling back to the light machine otherwise, to
// avoid allocating the multi-GiB dataset on nodes that only verify.
type Mode int

const (
	ModeMining Mode = iota
	ModeSync
)

// Calculation is the ephemeral, deterministically-serialized input to a
// single hash attempt.
type Calculation struct {
	PreHash    primitives.H256
	Difficulty primitives.Difficulty
	Nonce      [32]byte
}

// Encode serializes a Calculation the same way on every call: PreHash (32),
// Difficulty as a 32-byte big-endian integer, Nonce (32).
func (c Calculation) Encode() []byte {
	out := make([]byte, 0, 96)
	out = append(out, c.PreHash[:]...)
	diffBytes := c.Difficulty.Big().FillBytes(make([]byte, 32))
	out = append(out, diffBytes...)
	out = append(out, c.Nonce[:]...)
	return out
}

// Loop is the two-armed result of a validator function: keep searching, or
// stop with a result.
type Loop[R any] struct {
	done   bool
	result R
}

// Continue builds a Loop value that asks the caller to keep iterating.
func Continue[R any]() Loop[R] {
	return Loop[R]{}
}

// Break builds a Loop value that stops iteration with result.
func Break[R any](result R) Loop[R] {
	return Loop[R]{done: true, result: result}
}

// Done reports whether the loop should stop, and if so, its result.
func (l Loop[R]) Done() (R, bool) {
	return l.result, l.done
}

// Machines bundles the two goroutine-local handles loopRaw chooses between.
type Machines struct {
	Full  *randomx.Machine
	Light *randomx.Machine
}

// Engine ties a randomx.Engine to the Machines a caller's goroutine owns,
// and runs the compute loop over them.
type Engine struct {
	rx *randomx.Engine
}

// NewEngine wraps a randomx.Engine for compute-layer use.
func NewEngine(rx *randomx.Engine) *Engine {
	return &Engine{rx: rx}
}

// NewMachines returns a fresh pair of goroutine-local machine handles drawn
// from e's cache pools. Call this once per mining/verification goroutine and
// keep the result for the goroutine's lifetime.
func (e *Engine) NewMachines() *Machines {
	return &Machines{
		Full:  randomx.NewMachine(e.rx.Full),
		Light: randomx.NewMachine(e.rx.Light),
	}
}

// resolveVM picks the full or light machine per mode and returns its VM
// bound to keyHash.
func resolveVM(m *Machines, mode Mode, keyHash primitives.H256) (*randomx.VM, error) {
	if mode == ModeMining {
		return m.Full.VM(keyHash)
	}
	// Sync: prefer the full machine if it is already bound to this key hash
	// (no extra allocation), else fall back to the light path.
	if bound, ok := m.Full.Bound(); ok && bound == keyHash {
		return m.Full.VM(keyHash)
	}
	return m.Light.VM(keyHash)
}

// Compute runs a single-shot hash of input under keyHash using the
// appropriate machine for mode.
func Compute(m *Machines, mode Mode, keyHash primitives.H256, input []byte) (primitives.H256, error) {
	vm, err := resolveVM(m, mode, keyHash)
	if err != nil {
		return primitives.H256{}, err
	}
	return primitives.H256(vm.CalculateHash(input)), nil
}

// PreImageFunc produces the next pre-image to hash, given the attempt index.
type PreImageFunc func(round int) []byte

// ValidateFunc inspects the hash of a pre-image and the pre-image it was
// produced from, deciding whether to keep looping or stop with a result.
type ValidateFunc[R any] func(round int, input []byte, hash primitives.H256) Loop[R]

// LoopRaw is the mining/verification primitive: it calls genPreImage for up
// to rounds attempts, hashing each with the iterative API once rounds >= 2
// (single-shot for rounds == 1, matching the RandomX pipelined-hash
// performance note), and returns as soon as validate signals Break, or the
// zero value and false if every round is exhausted without a match.
func LoopRaw[R any](m *Machines, mode Mode, keyHash primitives.H256, rounds int, genPreImage PreImageFunc, validate ValidateFunc[R]) (R, bool, error) {
	var zero R
	if rounds <= 0 {
		return zero, false, nil
	}

	vm, err := resolveVM(m, mode, keyHash)
	if err != nil {
		return zero, false, err
	}

	if rounds == 1 {
		input := genPreImage(0)
		hash := primitives.H256(vm.CalculateHash(input))
		if result, ok := validate(0, input, hash).Done(); ok {
			return result, true, nil
		}
		return zero, false, nil
	}

	inputs := make([][]byte, rounds)
	for i := range inputs {
		inputs[i] = genPreImage(i)
	}

	vm.CalculateHashFirst(inputs[0])
	for i := 1; i < rounds; i++ {
		hash := primitives.H256(vm.CalculateHashNext(inputs[i]))
		if result, ok := validate(i-1, inputs[i-1], hash).Done(); ok {
			return result, true, nil
		}
	}
	lastHash := primitives.H256(vm.CalculateHashLast())
	if result, ok := validate(rounds-1, inputs[rounds-1], lastHash).Done(); ok {
		return result, true, nil
	}

	return zero, false, nil
}

// encodeUint64 writes v as 8 little-endian bytes; compactEncode uses it for
// the SCALE compact big-integer mode.
func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}
