package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/kulupu-go/kulupu/compute"
	"github.com/kulupu-go/kulupu/signer"
)

// keyFile is the on-disk shape import-mining-key/generate-mining-key write
// and run reads: a single secp256k1 private key, hex-encoded.
type keyFile struct {
	PrivateKey string `json:"private_key"`
}

func writeKeyFile(path string, key *btcec.PrivateKey) error {
	kf := keyFile{PrivateKey: hex.EncodeToString(key.Serialize())}
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func readKeyFile(path string) (*btcec.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mining key: %w", err)
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("decoding mining key: %w", err)
	}
	raw, err := hex.DecodeString(kf.PrivateKey)
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("mining key: malformed private key")
	}
	key, _ := btcec.PrivKeyFromBytes(raw)
	return key, nil
}

// fileKeystore implements mining.Keystore over a single local signer: a
// standalone miner only ever signs under its own key, so the public-key
// lookup either matches that one signer or fails.
type fileKeystore struct {
	signer *signer.Secp256k1Signer
}

func newFileKeystore(key *btcec.PrivateKey) *fileKeystore {
	return &fileKeystore{signer: signer.NewSecp256k1Signer(key)}
}

func (k *fileKeystore) Signer(public []byte) (compute.Signer, error) {
	own := k.signer.PublicKey()
	if len(public) != len(own) {
		return nil, fmt.Errorf("keystore: no signer for the requested public key")
	}
	for i := range own {
		if own[i] != public[i] {
			return nil, fmt.Errorf("keystore: no signer for the requested public key")
		}
	}
	return k.signer, nil
}
