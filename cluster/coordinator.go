// Package cluster implements a cooperative mining coordinator: multiple
// worker processes register with a single coordinator, pull the current
// block-template metadata from it, and submit mined seals back for
// verification and forwarding to the node.
package cluster

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kulupu-go/kulupu/consensus"
	"github.com/kulupu-go/kulupu/keyhash"
	"github.com/kulupu-go/kulupu/mining"
	"github.com/kulupu-go/kulupu/primitives"
)

// Config holds cluster-coordinator configuration.
type Config struct {
	ClusterID       string
	ClusterName     string
	CoordinatorAddr string
	HeartbeatInt    time.Duration
	WorkerTimeout   time.Duration
	Logger          *slog.Logger
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		HeartbeatInt:  10 * time.Second,
		WorkerTimeout: 30 * time.Second,
		Logger:        slog.Default(),
	}
}

// WorkerInfo represents a connected worker node.
type WorkerInfo struct {
	ID            string
	Name          string
	Addr          string
	Hashrate      float64
	SharesValid   uint64
	SharesInvalid uint64
	LastSeen      time.Time
	JoinedAt      time.Time
	Status        WorkerStatus
}

// WorkerStatus represents a worker's liveness state.
type WorkerStatus int

const (
	WorkerIdle WorkerStatus = iota
	WorkerMining
	WorkerOffline
)

// ClusterStats holds cluster-wide statistics.
type ClusterStats struct {
	ClusterID     string
	TotalWorkers  int
	OnlineWorkers int
	TotalHashrate float64
	SharesValid   uint64
	SharesInvalid uint64
	BlocksFound   uint64
	Uptime        time.Duration
}

// Coordinator distributes the current mining.Metadata snapshot to
// registered workers and verifies seals they submit before forwarding them
// on to the node through OnSealAccepted.
type Coordinator struct {
	cfg    Config
	logger *slog.Logger

	algorithm *consensus.Algorithm
	backend   keyhash.Backend

	workers   map[string]*WorkerInfo
	workersMu sync.RWMutex

	metadata   atomic.Pointer[mining.Metadata]
	metadataMu sync.Mutex // serializes metadata broadcast vs. Set

	sharesValid   atomic.Uint64
	sharesInvalid atomic.Uint64
	blocksFound   atomic.Uint64
	startTime     time.Time

	// OnSealAccepted is invoked once a submitted seal passes verification;
	// it is responsible for forwarding the seal to the node for inclusion
	// and reports back whether the node itself accepted it.
	OnSealAccepted func(preHash primitives.H256, sealBytes []byte) (bool, error)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCoordinator creates a new cluster coordinator. algorithm and backend
// may both be nil in tests that do not exercise seal verification; in that
// case SubmitSeal defers entirely to OnSealAccepted.
func NewCoordinator(cfg Config, algorithm *consensus.Algorithm, backend keyhash.Backend) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ClusterID == "" {
		b := make([]byte, 4)
		rand.Read(b)
		cfg.ClusterID = hex.EncodeToString(b)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Coordinator{
		cfg:       cfg,
		logger:    cfg.Logger.With("component", "coordinator", "cluster", cfg.ClusterID),
		algorithm: algorithm,
		backend:   backend,
		workers:   make(map[string]*WorkerInfo),
		startTime: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the coordinator's background health-check and stats loops.
func (c *Coordinator) Start() {
	c.logger.Info("starting cluster coordinator", "cluster", c.cfg.ClusterID)
	c.wg.Add(2)
	go c.healthCheckLoop()
	go c.statsLoop()
}

// Stop shuts the coordinator down and waits for its background loops to
// exit.
func (c *Coordinator) Stop() {
	c.cancel()
	c.wg.Wait()
}

// RegisterWorker admits a new worker into the cluster.
func (c *Coordinator) RegisterWorker(id, name, addr string) (*WorkerInfo, error) {
	c.workersMu.Lock()
	defer c.workersMu.Unlock()

	if _, exists := c.workers[id]; exists {
		return nil, fmt.Errorf("cluster: worker %s already registered", id)
	}

	worker := &WorkerInfo{
		ID:       id,
		Name:     name,
		Addr:     addr,
		LastSeen: time.Now(),
		JoinedAt: time.Now(),
		Status:   WorkerIdle,
	}
	c.workers[id] = worker

	c.logger.Info("worker registered", "worker_id", id, "name", name, "addr", addr, "total_workers", len(c.workers))
	return worker, nil
}

// UnregisterWorker removes a worker from the cluster.
func (c *Coordinator) UnregisterWorker(id string) {
	c.workersMu.Lock()
	defer c.workersMu.Unlock()

	if worker, exists := c.workers[id]; exists {
		c.logger.Info("worker unregistered", "worker_id", id, "name", worker.Name, "shares", worker.SharesValid)
		delete(c.workers, id)
	}
}

// Heartbeat updates a worker's last-seen time and reported hashrate.
func (c *Coordinator) Heartbeat(id string, hashrate float64) error {
	c.workersMu.Lock()
	defer c.workersMu.Unlock()

	worker, exists := c.workers[id]
	if !exists {
		return fmt.Errorf("cluster: worker %s not found", id)
	}
	worker.LastSeen = time.Now()
	worker.Hashrate = hashrate
	worker.Status = WorkerMining
	return nil
}

// SetMetadata publishes a new block-template snapshot for workers to pull.
func (c *Coordinator) SetMetadata(meta *mining.Metadata) {
	c.metadataMu.Lock()
	defer c.metadataMu.Unlock()

	c.metadata.Store(meta)
	c.logger.Info("new metadata broadcast", "best_hash", meta.BestHash.String(), "difficulty", meta.Difficulty.String())
}

// Metadata returns the current block-template snapshot, if one has been
// set.
func (c *Coordinator) Metadata() (*mining.Metadata, bool) {
	m := c.metadata.Load()
	if m == nil {
		return nil, false
	}
	return m, true
}

// SubmitSeal verifies a worker-submitted seal against the coordinator's
// current metadata and, if it checks out, hands it to OnSealAccepted for
// forwarding to the node.
func (c *Coordinator) SubmitSeal(workerID string, preHash primitives.H256, sealBytes []byte) (bool, error) {
	c.workersMu.Lock()
	worker, exists := c.workers[workerID]
	c.workersMu.Unlock()
	if !exists {
		return false, fmt.Errorf("cluster: worker %s not found", workerID)
	}

	meta, ok := c.Metadata()
	if !ok {
		c.recordInvalid(worker)
		return false, fmt.Errorf("cluster: no metadata to verify against")
	}
	if meta.PreHash != preHash {
		c.recordInvalid(worker)
		return false, fmt.Errorf("cluster: seal submitted against stale pre-hash")
	}

	if c.algorithm != nil && c.backend != nil {
		parent, err := c.backend.HeaderByHash(meta.BestHash)
		if err != nil {
			c.recordInvalid(worker)
			return false, fmt.Errorf("cluster: resolving parent header: %w", err)
		}
		preDigest := []primitives.DigestItem{{ID: primitives.PowEngineID, Payload: meta.PreRuntime}}

		ok, err := c.algorithm.Verify(parent, preHash, preDigest, sealBytes, meta.Difficulty)
		if err != nil {
			c.recordInvalid(worker)
			return false, fmt.Errorf("cluster: seal verification error: %w", err)
		}
		if !ok {
			c.recordInvalid(worker)
			return false, nil
		}
	}

	if c.OnSealAccepted != nil {
		accepted, err := c.OnSealAccepted(preHash, sealBytes)
		if err != nil {
			c.recordInvalid(worker)
			return false, err
		}
		if !accepted {
			c.recordInvalid(worker)
			return false, nil
		}
		c.blocksFound.Add(1)
	}

	c.sharesValid.Add(1)
	c.workersMu.Lock()
	worker.SharesValid++
	c.workersMu.Unlock()

	c.logger.Debug("seal accepted", "worker", workerID, "pre_hash", preHash.String())
	return true, nil
}

func (c *Coordinator) recordInvalid(worker *WorkerInfo) {
	c.sharesInvalid.Add(1)
	c.workersMu.Lock()
	worker.SharesInvalid++
	c.workersMu.Unlock()
}

// GetStats returns cluster-wide statistics.
func (c *Coordinator) GetStats() *ClusterStats {
	c.workersMu.RLock()
	defer c.workersMu.RUnlock()

	var totalHashrate float64
	var online int
	for _, w := range c.workers {
		if w.Status != WorkerOffline {
			online++
			totalHashrate += w.Hashrate
		}
	}

	return &ClusterStats{
		ClusterID:     c.cfg.ClusterID,
		TotalWorkers:  len(c.workers),
		OnlineWorkers: online,
		TotalHashrate: totalHashrate,
		SharesValid:   c.sharesValid.Load(),
		SharesInvalid: c.sharesInvalid.Load(),
		BlocksFound:   c.blocksFound.Load(),
		Uptime:        time.Since(c.startTime),
	}
}

// GetWorker returns a single worker by ID, or nil if unknown.
func (c *Coordinator) GetWorker(id string) *WorkerInfo {
	c.workersMu.RLock()
	defer c.workersMu.RUnlock()
	return c.workers[id]
}

// GetWorkers returns a snapshot of all registered workers.
func (c *Coordinator) GetWorkers() []*WorkerInfo {
	c.workersMu.RLock()
	defer c.workersMu.RUnlock()

	workers := make([]*WorkerInfo, 0, len(c.workers))
	for _, w := range c.workers {
		workers = append(workers, w)
	}
	return workers
}

func (c *Coordinator) healthCheckLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.HeartbeatInt)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.checkWorkerHealth()
		}
	}
}

func (c *Coordinator) checkWorkerHealth() {
	c.workersMu.Lock()
	defer c.workersMu.Unlock()

	for _, worker := range c.workers {
		if time.Since(worker.LastSeen) > c.cfg.WorkerTimeout && worker.Status != WorkerOffline {
			worker.Status = WorkerOffline
			c.logger.Warn("worker went offline", "worker_id", worker.ID, "name", worker.Name, "last_seen", worker.LastSeen)
		}
	}
}

func (c *Coordinator) statsLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			stats := c.GetStats()
			c.logger.Info("cluster stats", "workers", stats.OnlineWorkers, "hashrate", stats.TotalHashrate, "shares", stats.SharesValid, "blocks", stats.BlocksFound)
		}
	}
}
