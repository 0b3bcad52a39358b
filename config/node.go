package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"reflect"
	"unicode"

	"github.com/naoina/toml"
)

// tomlSettings ensures TOML keys use the same names as the Go struct
// fields they decode into, matching the node operator's expectation that
// the config file mirrors NodeConfig's field names exactly.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		link := ""
		if unicode.IsUpper(rune(rt.Name()[0])) {
			link = ", see the NodeConfig field list in config/node.go"
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// NodeConfig is the hand-editable configuration of a running Kulupu node:
// the parts an operator sets once in a TOML file rather than on every
// command-line invocation (chain spec path, base path, telemetry, RPC
// exposure), distinct from the YAML mining/cluster configuration in
// config.go that is reloaded per mining/worker process.
type NodeConfig struct {
	// Name identifies the node in telemetry and the P2P network identity
	// string.
	Name string
	// DataDir is the base directory for chain data, the keystore, and
	// network identity.
	DataDir string
	// ChainSpec is the path to (or name of) the chain specification to
	// start from.
	ChainSpec string

	RPC       RPCConfig
	Network   NetworkConfig
	Telemetry TelemetryConfig
	Mining    NodeMiningConfig
}

// RPCConfig controls the node's JSON-RPC surface (including rpcwork).
type RPCConfig struct {
	HTTPEnabled bool
	HTTPPort    int
	WSEnabled   bool
	WSPort      int
	CORSDomains []string
}

// NetworkConfig controls the node's P2P listener.
type NetworkConfig struct {
	ListenPort  int
	BootNodes   []string
	MaxPeers    int
	NoDiscovery bool
}

// TelemetryConfig controls telemetry reporting.
type TelemetryConfig struct {
	Enabled     bool
	Endpoints   []string
	NoTelemetry bool
}

// NodeMiningConfig holds the node-level mining toggle and author identity;
// the thread/round tuning knobs live in config.go's MiningConfig, loaded
// separately by the mining process itself.
type NodeMiningConfig struct {
	Enabled    bool
	AuthorSeed string
}

// DefaultNodeConfig returns the configuration a freshly initialized node
// starts from.
func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		Name:      "kulupu-node",
		DataDir:   "./data",
		ChainSpec: "kulupu",
		RPC: RPCConfig{
			HTTPEnabled: true,
			HTTPPort:    9933,
			WSEnabled:   true,
			WSPort:      9944,
		},
		Network: NetworkConfig{
			ListenPort: 30333,
			MaxPeers:   50,
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
		},
	}
}

// fileConfig is the top-level shape of the TOML config file: a single
// [Node] table, mirroring berConfig's single-section-per-component layout
// but with just the one component this module's CLI manages directly.
type fileConfig struct {
	Node NodeConfig
}

// LoadNodeConfig reads and decodes a TOML node config file into cfg,
// starting from whatever cfg already holds (normally DefaultNodeConfig)
// and overlaying the file's fields on top.
func LoadNodeConfig(path string, cfg *NodeConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: opening node config: %w", err)
	}
	defer f.Close()

	fc := fileConfig{Node: *cfg}
	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&fc)
	if _, ok := err.(*toml.LineError); ok {
		return fmt.Errorf("config: %s, %w", path, err)
	}
	if err != nil {
		return fmt.Errorf("config: decoding node config: %w", err)
	}

	*cfg = fc.Node
	return nil
}

// DumpNodeConfig renders cfg as TOML to w, the way the dumpconfig CLI
// command surfaces a node's effective configuration for an operator to
// copy into a file.
func DumpNodeConfig(w io.Writer, cfg NodeConfig) error {
	out, err := tomlSettings.Marshal(&fileConfig{Node: cfg})
	if err != nil {
		return fmt.Errorf("config: marshaling node config: %w", err)
	}
	_, err = w.Write(out)
	return err
}
