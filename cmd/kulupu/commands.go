package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/kulupu-go/kulupu/compute"
	"github.com/kulupu-go/kulupu/config"
	"github.com/kulupu-go/kulupu/consensus"
	"github.com/kulupu-go/kulupu/dashboard"
	"github.com/kulupu-go/kulupu/metrics"
	"github.com/kulupu-go/kulupu/mining"
	"github.com/kulupu-go/kulupu/primitives"
	"github.com/kulupu-go/kulupu/randomx"
	"github.com/kulupu-go/kulupu/rpcwork"
)

var (
	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML node configuration file",
	}
	dataDirFlag = cli.StringFlag{
		Name:  "datadir",
		Usage: "Directory holding the chain snapshot and mining key",
		Value: "./data",
	}
)

func loadNodeConfigFromContext(ctx *cli.Context) config.NodeConfig {
	cfg := config.DefaultNodeConfig()
	if file := ctx.GlobalString(configFileFlag.Name); file != "" {
		if err := config.LoadNodeConfig(file, &cfg); err != nil {
			fatal(err)
		}
	}
	return cfg
}

func fatal(err error) {
	slog.Error(err.Error())
	os.Exit(1)
}

// snapshotPath is the devnet harness's single state file within datadir.
func snapshotPath(datadir string) string {
	return filepath.Join(datadir, "chain.json")
}

func keyPath(datadir string) string {
	return filepath.Join(datadir, "mining.key")
}

var runCommand = cli.Command{
	Action:      runAction,
	Name:        "run",
	Usage:       "Run the node: consensus harness, mining loop, and ambient services",
	Category:    "NODE COMMANDS",
	Description: "Starts the mining worker against the local devnet harness along with the rpcwork service (default settings), metrics on :9100, and the dashboard websocket on :9200. With --remote, mines against a remote rpcwork endpoint instead and starts none of those services.",
	Flags: []cli.Flag{
		cli.IntFlag{Name: "threads", Usage: "Mining threads (0 = auto-detect)"},
		cli.IntFlag{Name: "rounds", Value: 1000, Usage: "Hashes per batch before re-checking the block template"},
		cli.StringFlag{Name: "remote", Usage: "rpcwork endpoint to mine against instead of the local devnet harness"},
		cli.StringFlag{Name: "version", Value: "v2", Usage: "Seal algorithm version for the local harness: v1 or v2"},
		cli.BoolFlag{Name: "large-pages", Usage: "Request RandomX large pages"},
	},
}

func runAction(ctx *cli.Context) error {
	datadir := ctx.GlobalString(dataDirFlag.Name)
	if err := os.MkdirAll(datadir, 0o755); err != nil {
		return err
	}

	threads := ctx.Int("threads")
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	if remote := ctx.String("remote"); remote != "" {
		return runRemoteMiner(ctx, remote, threads, ctx.Int("rounds"))
	}
	return runLocalHarness(ctx, datadir, threads, ctx.Int("rounds"))
}

func runLocalHarness(ctx *cli.Context, datadir string, threads, rounds int) error {
	logger := slog.Default()

	version := consensus.VersionV2
	if ctx.String("version") == "v1" {
		version = consensus.VersionV1
	}

	rxEngine := randomx.NewEngine(randomx.Config{LargePages: ctx.Bool("large-pages")})
	defer rxEngine.Close()
	cmpEngine := compute.NewEngine(rxEngine)

	c := newChain(version, cmpEngine, primitives.NewDifficultyFromUint64(3), logger)
	if snap, err := loadSnapshot(snapshotPath(datadir)); err == nil {
		c.restore(snap)
		logger.Info("restored chain snapshot", "path", snapshotPath(datadir))
	}

	key, err := readKeyFile(keyPath(datadir))
	if err != nil && version == consensus.VersionV2 {
		logger.Warn("no mining key found, run generate-mining-key first; falling back to V1 (unsigned, unrewarded) mining", "err", err)
		version = consensus.VersionV1
		c.version = version
	}

	var keystore mining.Keystore
	if key != nil {
		keystore = newFileKeystore(key)
		c.SetAuthor(signerPublicKey(key))
	}

	workerCfg := mining.WorkerConfig{Threads: threads, Rounds: rounds, Logger: logger}
	worker := mining.NewWorker(workerCfg, cmpEngine, c, keystore, c)

	m := metrics.NewMetrics("kulupu")
	go func() {
		if err := metrics.ServeMetrics(":9100", m); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", "err", err)
		}
	}()

	rpcCfg := rpcwork.DefaultConfig()
	rpcCfg.Logger = logger
	rpcServer := rpcwork.NewServer(rpcCfg, c, c, c)
	if err := rpcServer.Start(); err != nil {
		return fmt.Errorf("starting rpcwork server: %w", err)
	}

	dash := dashboard.NewServer(dashboard.DefaultConfig())
	dash.SetStatsProvider(func() *dashboard.StatsData {
		stats := worker.Stats()
		return &dashboard.StatsData{Hashrate: stats.Hashrate(), SharesValid: stats.SharesValid()}
	})
	dash.Start()

	dashMux := http.NewServeMux()
	dashMux.HandleFunc("/ws", dash.Handler())
	dashHTTP := &http.Server{Addr: ":9200", Handler: dashMux}
	go func() {
		if err := dashHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("dashboard server stopped", "err", err)
		}
	}()

	c.onSeal = func(h headerRecord) {
		dash.BroadcastBlock(&dashboard.BlockData{Height: h.Number, Hash: h.Hash.String()})
		m.RecordBlockImported(versionLabel(h.Version), 0, h.Number)
	}

	meta, _ := c.Metadata()
	worker.SetMetadata(meta)
	worker.Start()

	logger.Info("kulupu node running", "threads", threads, "version", versionLabel(version))

	stop := waitForSignal()
	logger.Info("shutting down", "signal", stop)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = rpcServer.Stop(shutdownCtx)
	_ = dashHTTP.Shutdown(shutdownCtx)
	dash.Stop()
	worker.Stop()

	return c.snapshot().save(snapshotPath(datadir))
}

func runRemoteMiner(ctx *cli.Context, remote string, threads, rounds int) error {
	logger := slog.Default()
	client := rpcwork.NewClient(remote)

	rxEngine := randomx.NewEngine(randomx.Config{LargePages: ctx.Bool("large-pages")})
	defer rxEngine.Close()
	cmpEngine := compute.NewEngine(rxEngine)
	machines := cmpEngine.NewMachines()

	stop := make(chan struct{})
	go func() {
		<-waitForSignalChan()
		close(stop)
	}()

	logger.Info("mining against remote rpcwork endpoint", "remote", remote, "threads", threads)

	for {
		select {
		case <-stop:
			return nil
		default:
		}

		comp, err := client.GetCompute(context.Background())
		if err != nil {
			logger.Warn("work_getCompute failed, backing off", "err", err)
			time.Sleep(time.Second)
			continue
		}

		keyHash, err := decodeH256(comp.KeyHash)
		if err != nil {
			logger.Error("malformed key_hash from remote", "err", err)
			continue
		}
		preHash, err := decodeH256(comp.PreHash)
		if err != nil {
			logger.Error("malformed pre_hash from remote", "err", err)
			continue
		}
		diff, ok := new(big.Int).SetString(comp.Difficulty, 10)
		if !ok {
			logger.Error("malformed difficulty from remote", "difficulty", comp.Difficulty)
			continue
		}
		difficulty := primitives.NewDifficultyFromBig(diff)

		nonce, err := randomNonce()
		if err != nil {
			return err
		}
		v1 := compute.ComputeV1{KeyHash: keyHash, PreHash: preHash, Difficulty: difficulty, Nonce: nonce}
		seal, work, err := v1.SealAndWork(machines, compute.ModeMining)
		if err != nil {
			logger.Warn("hashing failed, retrying", "err", err)
			continue
		}
		if !primitives.MeetsTarget(work, difficulty) {
			continue
		}

		ok, err = client.SubmitSeal(context.Background(), rpcwork.Seal{Nonce: hex.EncodeToString(seal.Nonce[:])})
		if err != nil {
			logger.Warn("work_submitSeal failed", "err", err)
			continue
		}
		logger.Info("submitted seal", "accepted", ok)
	}
}

func versionLabel(v consensus.Version) string {
	if v == consensus.VersionV1 {
		return "v1"
	}
	return "v2"
}

func decodeH256(s string) (primitives.H256, error) {
	raw, err := hex.DecodeString(trimHexPrefix(s))
	if err != nil || len(raw) != 32 {
		return primitives.H256{}, fmt.Errorf("expected a 32-byte hex string, got %q", s)
	}
	var h primitives.H256
	copy(h[:], raw)
	return h, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

func randomNonce() ([32]byte, error) {
	var nonce [32]byte
	if _, err := rngReader().Read(nonce[:]); err != nil {
		return nonce, err
	}
	return nonce, nil
}

var buildSpecCommand = cli.Command{
	Name:        "build-spec",
	Usage:       "Build a chain specification file from the current node config",
	Category:    "CHAIN COMMANDS",
	Description: "Writes a JSON chain spec holding the node config, the key-hash period and offset, and the minimum difficulty, for distribution to other nodes.",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "out", Value: "chain-spec.json", Usage: "Output path"},
	},
	Action: func(ctx *cli.Context) error {
		cfg := loadNodeConfigFromContext(ctx)
		spec := struct {
			Name        string            `json:"name"`
			Node        config.NodeConfig `json:"node"`
			PeriodBlks  uint64            `json:"period_blocks"`
			OffsetBlks  uint64            `json:"offset_blocks"`
			MinDiff     uint64            `json:"min_difficulty"`
			GeneratedAt int64             `json:"generated_at_unix"`
		}{
			Name:        cfg.Name,
			Node:        cfg,
			PeriodBlks:  primitives.Period,
			OffsetBlks:  primitives.Offset,
			MinDiff:     3,
			GeneratedAt: time.Now().Unix(),
		}
		data, err := json.MarshalIndent(spec, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(ctx.String("out"), data, 0o644)
	},
}

var checkBlockCommand = cli.Command{
	Name:      "check-block",
	Usage:     "Verify a block's seal against the stored chain snapshot",
	Category:  "CHAIN COMMANDS",
	ArgsUsage: "<block-hash-hex>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return fmt.Errorf("check-block requires exactly one block hash argument")
		}
		datadir := ctx.GlobalString(dataDirFlag.Name)
		snap, err := loadSnapshot(snapshotPath(datadir))
		if err != nil {
			return fmt.Errorf("loading chain snapshot: %w", err)
		}
		target, err := decodeH256(ctx.Args().Get(0))
		if err != nil {
			return err
		}
		for _, h := range snap.Headers {
			if h.Hash == target {
				fmt.Printf("block %d (%s): parent=%s seal_bytes=%d\n", h.Number, h.Hash, h.Parent, len(h.SealBytes))
				return nil
			}
		}
		return fmt.Errorf("block %s not found in the local snapshot", target)
	},
}

var exportBlocksCommand = cli.Command{
	Name:      "export-blocks",
	Usage:     "Export the chain snapshot's headers to a JSON file",
	Category:  "CHAIN COMMANDS",
	ArgsUsage: "<output-file>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return fmt.Errorf("export-blocks requires an output file argument")
		}
		datadir := ctx.GlobalString(dataDirFlag.Name)
		snap, err := loadSnapshot(snapshotPath(datadir))
		if err != nil {
			return fmt.Errorf("loading chain snapshot: %w", err)
		}
		data, err := json.MarshalIndent(snap.Headers, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(ctx.Args().Get(0), data, 0o644)
	},
}

var exportStateCommand = cli.Command{
	Name:      "export-state",
	Usage:     "Export the reward pipeline's runtime state to a JSON file",
	Category:  "CHAIN COMMANDS",
	ArgsUsage: "<output-file>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return fmt.Errorf("export-state requires an output file argument")
		}
		datadir := ctx.GlobalString(dataDirFlag.Name)
		snap, err := loadSnapshot(snapshotPath(datadir))
		if err != nil {
			return fmt.Errorf("loading chain snapshot: %w", err)
		}
		data, err := json.MarshalIndent(snap.State, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(ctx.Args().Get(0), data, 0o644)
	},
}

var importBlocksCommand = cli.Command{
	Name:      "import-blocks",
	Usage:     "Import a full chain snapshot file (the datadir's chain.json format); the header-only and state-only files written by export-blocks/export-state are not in that format",
	Category:  "CHAIN COMMANDS",
	ArgsUsage: "<input-file>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return fmt.Errorf("import-blocks requires an input file argument")
		}
		datadir := ctx.GlobalString(dataDirFlag.Name)
		if err := os.MkdirAll(datadir, 0o755); err != nil {
			return err
		}
		snap, err := loadSnapshot(ctx.Args().Get(0))
		if err != nil {
			return fmt.Errorf("loading snapshot to import: %w", err)
		}
		return snap.save(snapshotPath(datadir))
	},
}

var purgeChainCommand = cli.Command{
	Name:     "purge-chain",
	Usage:    "Delete the local chain snapshot",
	Category: "CHAIN COMMANDS",
	Flags: []cli.Flag{
		cli.BoolFlag{Name: "yes", Usage: "Skip the confirmation prompt"},
	},
	Action: func(ctx *cli.Context) error {
		path := snapshotPath(ctx.GlobalString(dataDirFlag.Name))
		if !ctx.Bool("yes") && !confirm(fmt.Sprintf("Remove %s? [y/N] ", path)) {
			return nil
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		fmt.Println("chain snapshot purged")
		return nil
	},
}

var revertCommand = cli.Command{
	Name:      "revert",
	Usage:     "Revert the local chain snapshot to an earlier block height",
	Category:  "CHAIN COMMANDS",
	ArgsUsage: "<height>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return fmt.Errorf("revert requires a target height argument")
		}
		var height uint64
		if _, err := fmt.Sscanf(ctx.Args().Get(0), "%d", &height); err != nil {
			return fmt.Errorf("malformed height: %w", err)
		}

		datadir := ctx.GlobalString(dataDirFlag.Name)
		snap, err := loadSnapshot(snapshotPath(datadir))
		if err != nil {
			return fmt.Errorf("loading chain snapshot: %w", err)
		}

		kept := snap.Headers[:0]
		var newBest primitives.H256
		var bestNumber uint64
		for _, h := range snap.Headers {
			if h.Number > height {
				continue
			}
			kept = append(kept, h)
			if h.Number >= bestNumber {
				bestNumber = h.Number
				newBest = h.Hash
			}
		}
		snap.Headers = kept
		snap.Best = newBest
		return snap.save(snapshotPath(datadir))
	},
}

var exportBuiltinWasmCommand = cli.Command{
	Name:     "export-builtin-wasm",
	Usage:    "Export an empty placeholder runtime blob",
	Category: "CHAIN COMMANDS",
	Description: "This module carries no runtime Wasm blob of its own (the consensus core here is a Go library, not a Substrate runtime); this command exists for CLI-surface parity and writes an empty file.",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "out", Value: "runtime.wasm", Usage: "Output path"},
	},
	Action: func(ctx *cli.Context) error {
		return os.WriteFile(ctx.String("out"), []byte{}, 0o644)
	},
}

var importMiningKeyCommand = cli.Command{
	Name:      "import-mining-key",
	Usage:     "Import a hex-encoded secp256k1 private key as the mining identity",
	Category:  "KEY COMMANDS",
	ArgsUsage: "<hex-private-key>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return fmt.Errorf("import-mining-key requires a hex private key argument")
		}
		raw, err := hex.DecodeString(trimHexPrefix(ctx.Args().Get(0)))
		if err != nil || len(raw) != 32 {
			return fmt.Errorf("expected a 32-byte hex private key")
		}
		key, _ := btcecPrivKeyFromBytes(raw)

		datadir := ctx.GlobalString(dataDirFlag.Name)
		if err := os.MkdirAll(datadir, 0o755); err != nil {
			return err
		}
		if err := writeKeyFile(keyPath(datadir), key); err != nil {
			return err
		}
		fmt.Printf("imported mining key, public key: %x\n", signerPublicKey(key))
		return nil
	},
}

var generateMiningKeyCommand = cli.Command{
	Name:     "generate-mining-key",
	Usage:    "Generate a fresh secp256k1 mining key and store it in the data directory",
	Category: "KEY COMMANDS",
	Action: func(ctx *cli.Context) error {
		datadir := ctx.GlobalString(dataDirFlag.Name)
		if err := os.MkdirAll(datadir, 0o755); err != nil {
			return err
		}
		key, err := generateKey()
		if err != nil {
			return err
		}
		if err := writeKeyFile(keyPath(datadir), key); err != nil {
			return err
		}
		fmt.Printf("generated mining key, public key: %x\n", signerPublicKey(key))
		return nil
	},
}

var benchmarkCommand = cli.Command{
	Name:     "benchmark",
	Usage:    "Benchmark RandomX hashrate for a fixed duration",
	Category: "MISCELLANEOUS COMMANDS",
	Flags: []cli.Flag{
		cli.IntFlag{Name: "threads", Value: 1, Usage: "Mining threads"},
		cli.DurationFlag{Name: "duration", Value: 10 * time.Second, Usage: "Benchmark duration"},
		cli.BoolFlag{Name: "large-pages", Usage: "Request RandomX large pages"},
	},
	Action: func(ctx *cli.Context) error {
		threads := ctx.Int("threads")
		if threads <= 0 {
			threads = 1
		}

		rxEngine := randomx.NewEngine(randomx.Config{LargePages: ctx.Bool("large-pages")})
		defer rxEngine.Close()
		cmpEngine := compute.NewEngine(rxEngine)

		keyHash := randomKeyHash()
		preHash := randomKeyHash()
		difficulty := primitives.NewDifficultyFromUint64(1)

		stats := mining.NewStats(threads)
		deadline := time.Now().Add(ctx.Duration("duration"))

		done := make(chan struct{})
		for i := 0; i < threads; i++ {
			go func(id int) {
				machines := cmpEngine.NewMachines()
				rounds := 0
				for time.Now().Before(deadline) {
					nonce, err := randomNonce()
					if err != nil {
						break
					}
					v1 := compute.ComputeV1{KeyHash: keyHash, PreHash: preHash, Difficulty: difficulty, Nonce: nonce}
					if _, _, err := v1.SealAndWork(machines, compute.ModeMining); err != nil {
						break
					}
					rounds++
				}
				stats.RecordRounds(id, rounds)
				done <- struct{}{}
			}(i)
		}
		for i := 0; i < threads; i++ {
			<-done
		}

		fmt.Printf("hashrate: %.2f H/s across %d thread(s)\n", stats.Hashrate(), threads)
		return nil
	},
}

var dumpConfigCommand = cli.Command{
	Name:        "dumpconfig",
	Usage:       "Show the effective node configuration",
	Category:    "MISCELLANEOUS COMMANDS",
	Description: "The dumpconfig command shows the effective node configuration values.",
	Action: func(ctx *cli.Context) error {
		cfg := loadNodeConfigFromContext(ctx)
		return config.DumpNodeConfig(os.Stdout, cfg)
	},
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false
	}
	return len(line) > 0 && (line[0] == 'y' || line[0] == 'Y')
}
