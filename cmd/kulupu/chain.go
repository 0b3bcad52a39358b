package main

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/kulupu-go/kulupu/compute"
	"github.com/kulupu-go/kulupu/consensus"
	"github.com/kulupu-go/kulupu/difficulty"
	"github.com/kulupu-go/kulupu/keyhash"
	"github.com/kulupu-go/kulupu/mining"
	"github.com/kulupu-go/kulupu/primitives"
	"github.com/kulupu-go/kulupu/rewards"
)

// headerRecord is chain's on-disk and in-memory view of an imported block:
// just enough to drive keyhash resolution and the reward pipeline, since
// this binary carries no runtime or state-transition machinery of its own.
type headerRecord struct {
	Hash       primitives.H256 `json:"hash"`
	Parent     primitives.H256 `json:"parent"`
	Number     uint64          `json:"number"`
	Timestamp  uint64          `json:"timestamp_ms"`
	PreRuntime []byte          `json:"pre_runtime"`
	SealBytes  []byte          `json:"seal"`
	Version    consensus.Version `json:"version"`
}

// asHeader adapts headerRecord to keyhash.Header without exporting the
// method names SCALE/JSON already claim on the struct itself.
type asHeader struct{ headerRecord }

func (a asHeader) Hash() primitives.H256       { return a.headerRecord.Hash }
func (a asHeader) Number() uint64              { return a.headerRecord.Number }
func (a asHeader) ParentHash() primitives.H256 { return a.headerRecord.Parent }

// snapshot is the whole of chain's persistent state, serialized as JSON for
// export-blocks/export-state/import-blocks/purge-chain/revert.
type snapshot struct {
	Headers []headerRecord `json:"headers"`
	Best    primitives.H256 `json:"best"`
	State   *rewards.State  `json:"state"`
}

func loadSnapshot(path string) (*snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding chain snapshot: %w", err)
	}
	return &s, nil
}

func (s *snapshot) save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// chain is a single-node devnet harness: it plays the role a full chain
// client/runtime pair would play for keyhash resolution, difficulty
// sampling, algorithm versioning, and seal verification, backed by nothing
// more than an in-memory header list and a rewards.State. It exists so
// `run` has a real (if toy) chain to mine against without
// this module taking on block-storage and state-transition concerns that
// belong to a separate runtime.
type chain struct {
	mu      sync.Mutex
	headers map[primitives.H256]headerRecord
	best    primitives.H256

	version    consensus.Version
	controller *difficulty.Controller
	algorithm  *consensus.Algorithm
	state      *rewards.State
	dayHeight  uint64

	logger          *slog.Logger
	onSeal          func(headerRecord)
	authorPublicKey []byte
}

// SetAuthor registers the local miner's public key as the candidate block's
// author digest: it is embedded in every Metadata snapshot's PreRuntime and
// fed back to Verify as the V2 author-signature digest when a seal is
// submitted. With no registered author, candidates carry no author digest:
// V1 seals still verify but name no reward recipient, and V2 seals fail
// verification.
func (c *chain) SetAuthor(public []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authorPublicKey = public
}

func newChain(version consensus.Version, engine *compute.Engine, initialDifficulty primitives.Difficulty, logger *slog.Logger) *chain {
	if logger == nil {
		logger = slog.Default()
	}

	c := &chain{
		headers:    make(map[primitives.H256]headerRecord),
		version:    version,
		controller: difficulty.NewController(initialDifficulty, int(primitives.DifficultyAdjustWindow), uint64(primitives.BlockTimeTarget.Milliseconds()), primitives.DampFactor, primitives.ClampFactor),
		state:      rewards.NewState(primitives.DefaultLockBounds()),
		dayHeight:  primitives.DayHeight,
		logger:     logger,
	}
	c.algorithm = consensus.NewAlgorithm(c, c, engine)

	genesis := headerRecord{Number: 0, Timestamp: uint64(nowMillis())}
	genesis.Hash = primitives.Blake2_256([]byte("kulupu-genesis"))
	c.headers[genesis.Hash] = genesis
	c.best = genesis.Hash

	return c
}

func (c *chain) restore(snap *snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.headers = make(map[primitives.H256]headerRecord, len(snap.Headers))
	for _, h := range snap.Headers {
		c.headers[h.Hash] = h
	}
	c.best = snap.Best
	if snap.State != nil {
		c.state = snap.State
	}
}

func (c *chain) snapshot() *snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	headers := make([]headerRecord, 0, len(c.headers))
	for _, h := range c.headers {
		headers = append(headers, h)
	}
	return &snapshot{Headers: headers, Best: c.best, State: c.state}
}

// HeaderByHash implements keyhash.Backend.
func (c *chain) HeaderByHash(hash primitives.H256) (keyhash.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.headers[hash]
	if !ok {
		return nil, keyhash.ErrParentNotFound
	}
	return asHeader{h}, nil
}

// Difficulty implements consensus.RuntimeAPI.
func (c *chain) Difficulty(parentHash primitives.H256) (primitives.Difficulty, error) {
	return c.controller.Current(), nil
}

// AlgorithmTag implements consensus.RuntimeAPI.
func (c *chain) AlgorithmTag(parentHash primitives.H256) (consensus.Tag, error) {
	if c.version == consensus.VersionV1 {
		return consensus.TagV1, nil
	}
	return consensus.TagV2, nil
}

// Metadata implements mining.Metadata's source interface (and rpcwork's
// MetadataSource): it hands every miner the block template for the current
// best header.
func (c *chain) Metadata() (*mining.Metadata, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	best, ok := c.headers[c.best]
	if !ok {
		return nil, false
	}

	preRuntime := c.authorPublicKey
	preHash := primitives.Blake2_256(append(best.Hash[:], preRuntime...))
	return &mining.Metadata{
		BestHash:   best.Hash,
		PreHash:    preHash,
		PreRuntime: preRuntime,
		Difficulty: c.controller.Current(),
		Version:    c.version,
	}, true
}

// candidateDigest rebuilds the pre-runtime digest a Metadata snapshot
// carried, from the author public key it was built from: the digest log
// itself is never persisted, only replayed at verification time.
func (c *chain) candidateDigest(preRuntime []byte) []primitives.DigestItem {
	if len(preRuntime) == 0 {
		return nil
	}
	return []primitives.DigestItem{{ID: primitives.PowEngineID, Payload: preRuntime}}
}

// SubmitSeal implements mining.Submitter (and rpcwork's Submitter): it
// verifies the seal against the current best header, and if valid, appends
// a new block, runs the reward pipeline, and feeds the observed interval
// back into the difficulty controller.
func (c *chain) SubmitSeal(preHash primitives.H256, sealBytes []byte) error {
	c.mu.Lock()
	best, ok := c.headers[c.best]
	preRuntime := c.authorPublicKey
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("chain: no best header")
	}

	wantPreHash := primitives.Blake2_256(append(best.Hash[:], preRuntime...))
	if preHash != wantPreHash {
		return fmt.Errorf("chain: stale pre-hash, template has moved on")
	}

	difficultyNow := c.controller.Current()
	digest := c.candidateDigest(preRuntime)
	valid, err := c.algorithm.Verify(asHeader{best}, preHash, digest, sealBytes, difficultyNow)
	if err != nil {
		return fmt.Errorf("chain: verify: %w", err)
	}
	if !valid {
		return fmt.Errorf("chain: seal failed verification")
	}

	now := uint64(nowMillis())
	child := headerRecord{
		Parent:     best.Hash,
		Number:     best.Number + 1,
		Timestamp:  now,
		PreRuntime: preRuntime,
		SealBytes:  sealBytes,
		Version:    c.version,
	}
	child.Hash = primitives.Blake2_256(append(append(best.Hash[:], sealBytes...), byteOf(child.Number)...))

	c.mu.Lock()
	c.headers[child.Hash] = child
	c.best = child.Hash
	events := c.state.OnInitialize(child.Number, digest)
	events = append(events, c.state.OnFinalize(child.Number, c.dayHeight)...)
	c.controller.OnTimestampSet(now)
	c.mu.Unlock()

	c.logger.Info("imported block", "number", child.Number, "hash", child.Hash.String(), "events", len(events))
	if c.onSeal != nil {
		c.onSeal(child)
	}
	return nil
}

func byteOf(n uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[7-i] = byte(n >> (8 * i))
	}
	return b
}

// randomKeyHash is used by benchmark, which has no real chain to resolve a
// key hash from.
func randomKeyHash() primitives.H256 {
	var h primitives.H256
	_, _ = rand.Read(h[:])
	return h
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
