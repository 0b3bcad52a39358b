// Package mining drives the RandomX mine/verify loop against a shared,
// externally-updated block template: a MiningWorker never proposes blocks
// itself, it only hashes against the metadata snapshot it is handed and
// submits whatever seal it finds back through a Submitter.
package mining

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kulupu-go/kulupu/compute"
	"github.com/kulupu-go/kulupu/consensus"
	"github.com/kulupu-go/kulupu/keyhash"
	"github.com/kulupu-go/kulupu/primitives"
	"github.com/kulupu-go/kulupu/randomx"
)

// Metadata is a snapshot of the block template every mining thread races
// against: the locally preferred head to build on (from which the key hash
// is resolved), its pre-hash, the author's public key decoded from the
// pre-runtime digest, the target difficulty, and which seal format is
// currently in force.
type Metadata struct {
	BestHash   primitives.H256
	PreHash    primitives.H256
	PreRuntime []byte
	Difficulty primitives.Difficulty
	Version    consensus.Version
}

// Keystore resolves the signer for a public key previously decoded from a
// block's pre-runtime digest, so a V2 thread can sign its calculation under
// the author identity its metadata names.
type Keystore interface {
	Signer(public []byte) (compute.Signer, error)
}

// Submitter hands a freshly mined seal back to the import pipeline.
type Submitter interface {
	SubmitSeal(preHash primitives.H256, sealBytes []byte) error
}

// ErrNoMetadata reports that no metadata snapshot has been set yet. Nothing
// in this package returns it: mining threads poll and retry instead.
var ErrNoMetadata = errors.New("mining: no metadata set yet")

// WorkerConfig configures a Worker's mining threads.
type WorkerConfig struct {
	Threads int
	// Rounds is the loop_raw batch size per attempt; the iterative hashing
	// API amortizes its per-call overhead across this many nonces before a
	// thread re-checks its metadata snapshot.
	Rounds int
	Logger *slog.Logger
}

// DefaultWorkerConfig returns the config a single-threaded CPU miner starts
// from.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{Threads: 1, Rounds: 1000}
}

// Worker holds the shared metadata snapshot and coordinates however many
// mining threads hash against it concurrently.
type Worker struct {
	cfg            WorkerConfig
	logger         *slog.Logger
	engine         *compute.Engine
	backend        keyhash.Backend
	keystore       Keystore
	submit         Submitter
	period, offset uint64

	metadata atomic.Pointer[Metadata]
	stats    *Stats

	mining atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker builds a Worker. engine supplies the per-thread RandomX
// machines, backend resolves key hashes from best-head ancestry, keystore
// loads the signing key for V2 metadata, and submit is called with any seal
// a thread finds.
func NewWorker(cfg WorkerConfig, engine *compute.Engine, backend keyhash.Backend, keystore Keystore, submit Submitter) *Worker {
	if cfg.Threads <= 0 {
		cfg.Threads = 1
	}
	if cfg.Rounds <= 0 {
		cfg.Rounds = 1000
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		cfg:      cfg,
		logger:   logger,
		engine:   engine,
		backend:  backend,
		keystore: keystore,
		submit:   submit,
		period:   primitives.Period,
		offset:   primitives.Offset,
		stats:    NewStats(cfg.Threads),
	}
}

// SetMetadata installs a new block template for every mining thread to pick
// up on its next poll. Passing nil pauses mining until a fresh snapshot
// arrives.
func (w *Worker) SetMetadata(m *Metadata) {
	w.metadata.Store(m)
}

// Metadata returns the current snapshot, and whether one has been set.
func (w *Worker) Metadata() (*Metadata, bool) {
	m := w.metadata.Load()
	return m, m != nil
}

// Stats returns the worker's hashrate/share counters.
func (w *Worker) Stats() *Stats {
	return w.stats
}

// Start spawns cfg.Threads mining goroutines. Calling Start on an
// already-running Worker is a no-op.
func (w *Worker) Start() {
	if !w.mining.CompareAndSwap(false, true) {
		return
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())
	for i := 0; i < w.cfg.Threads; i++ {
		w.wg.Add(1)
		go w.mineThread(i)
	}
}

// Stop cancels every mining thread and waits for them to release their
// RandomX machines. Calling Stop on an already-stopped Worker is a no-op.
func (w *Worker) Stop() {
	if !w.mining.CompareAndSwap(true, false) {
		return
	}
	w.cancel()
	w.wg.Wait()
}

func (w *Worker) mineThread(threadID int) {
	defer w.wg.Done()

	machines := w.engine.NewMachines()
	defer machines.Full.Close()
	defer machines.Light.Close()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		meta, ok := w.Metadata()
		if !ok {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		if err := w.mineRound(machines, meta); err != nil {
			w.handleError(err)
			continue
		}
		w.stats.RecordRounds(threadID, w.cfg.Rounds)
	}
}

func (w *Worker) mineRound(machines *compute.Machines, meta *Metadata) error {
	header, err := w.backend.HeaderByHash(meta.BestHash)
	if err != nil {
		return fmt.Errorf("mining: fetching best header: %w", err)
	}
	keyHash, err := keyhash.Resolve(w.backend, header, w.period, w.offset)
	if err != nil {
		return fmt.Errorf("mining: resolving key hash: %w", err)
	}

	switch meta.Version {
	case consensus.VersionV1:
		return w.mineV1(machines, keyHash, meta)
	case consensus.VersionV2:
		return w.mineV2(machines, keyHash, meta)
	default:
		return fmt.Errorf("mining: unknown algorithm version %d", meta.Version)
	}
}

func randomNonces(n int) ([][32]byte, error) {
	nonces := make([][32]byte, n)
	for i := range nonces {
		if _, err := rand.Read(nonces[i][:]); err != nil {
			return nil, fmt.Errorf("mining: generating nonce: %w", err)
		}
	}
	return nonces, nil
}

func (w *Worker) mineV1(machines *compute.Machines, keyHash primitives.H256, meta *Metadata) error {
	nonces, err := randomNonces(w.cfg.Rounds)
	if err != nil {
		return err
	}

	genPreImage := func(round int) []byte {
		c := compute.ComputeV1{KeyHash: keyHash, PreHash: meta.PreHash, Difficulty: meta.Difficulty, Nonce: nonces[round]}
		return c.Input().Encode()
	}
	validate := func(round int, input []byte, hash primitives.H256) compute.Loop[[]byte] {
		if !primitives.MeetsTarget(hash, meta.Difficulty) {
			return compute.Continue[[]byte]()
		}
		c := compute.ComputeV1{KeyHash: keyHash, PreHash: meta.PreHash, Difficulty: meta.Difficulty, Nonce: nonces[round]}
		return compute.Break(compute.EncodeSealV1(c.Seal()))
	}

	sealBytes, found, err := compute.LoopRaw(machines, compute.ModeMining, keyHash, w.cfg.Rounds, genPreImage, validate)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	return w.submitIfFresh(meta, sealBytes)
}

func (w *Worker) mineV2(machines *compute.Machines, keyHash primitives.H256, meta *Metadata) error {
	author, err := w.keystore.Signer(meta.PreRuntime)
	if err != nil {
		return fmt.Errorf("mining: loading author key: %w", err)
	}

	nonces, err := randomNonces(w.cfg.Rounds)
	if err != nil {
		return err
	}

	// Every round's signature is folded into the pre-image hashed for that
	// round (see compute.ComputeV2.Input), so the author must sign each
	// candidate nonce up front, before the RandomX search runs over it: the
	// work hash this loop searches is already bound to the author, not just
	// the seal attached to it afterward.
	signatures := make([]compute.Signature, w.cfg.Rounds)
	for round, nonce := range nonces {
		c := compute.ComputeV2{KeyHash: keyHash, PreHash: meta.PreHash, Difficulty: meta.Difficulty, Nonce: nonce}
		sig, err := author.Sign(c.SigningMessage())
		if err != nil {
			return fmt.Errorf("mining: signing seal: %w", err)
		}
		signatures[round] = sig
	}

	genPreImage := func(round int) []byte {
		c := compute.ComputeV2{KeyHash: keyHash, PreHash: meta.PreHash, Difficulty: meta.Difficulty, Nonce: nonces[round]}
		return c.Input(signatures[round]).Encode()
	}

	validate := func(round int, input []byte, hash primitives.H256) compute.Loop[[]byte] {
		if !primitives.MeetsTarget(hash, meta.Difficulty) {
			return compute.Continue[[]byte]()
		}
		c := compute.ComputeV2{KeyHash: keyHash, PreHash: meta.PreHash, Difficulty: meta.Difficulty, Nonce: nonces[round]}
		return compute.Break(compute.EncodeSealV2(c.Seal(signatures[round])))
	}

	sealBytes, found, err := compute.LoopRaw(machines, compute.ModeMining, keyHash, w.cfg.Rounds, genPreImage, validate)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	return w.submitIfFresh(meta, sealBytes)
}

// submitIfFresh re-checks the worker's metadata against what this round was
// mined under: if anything changed mid-round (a new head, a new difficulty,
// a rotated author, or a changed algorithm version) the result is stale and
// is discarded silently, on any mismatch.
func (w *Worker) submitIfFresh(minedUnder *Metadata, sealBytes []byte) error {
	current, ok := w.Metadata()
	if !ok ||
		current.BestHash != minedUnder.BestHash ||
		current.PreHash != minedUnder.PreHash ||
		current.Difficulty.Cmp(minedUnder.Difficulty) != 0 ||
		current.Version != minedUnder.Version ||
		!bytes.Equal(current.PreRuntime, minedUnder.PreRuntime) {
		w.logger.Debug("discarding seal for stale metadata")
		return nil
	}

	if err := w.submit.SubmitSeal(minedUnder.PreHash, sealBytes); err != nil {
		return fmt.Errorf("mining: submitting seal: %w", err)
	}
	w.stats.RecordShare()
	w.logger.Info("submitted seal", "pre_hash", minedUnder.PreHash.String())
	return nil
}

// handleError applies the backoff policy: CacheNotAvailable (every cache
// slot is held by a live VM elsewhere) backs off briefly since it is
// expected to clear on its own; CacheAllocationFailed is rarer and worth a
// warning plus a longer backoff; anything else just warns and retries.
func (w *Worker) handleError(err error) {
	switch {
	case errors.Is(err, randomx.ErrCacheNotAvailable):
		w.logger.Debug("cache not available, backing off", "error", err)
		time.Sleep(1 * time.Second)
	case errors.Is(err, randomx.ErrCacheAllocation), errors.Is(err, randomx.ErrDatasetAllocation):
		w.logger.Warn("cache allocation failed, backing off", "error", err)
		time.Sleep(10 * time.Second)
	default:
		w.logger.Warn("mining round failed, retrying", "error", err)
	}
}
