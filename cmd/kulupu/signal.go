package main

import (
	"crypto/rand"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/kulupu-go/kulupu/signer"
)

// waitForSignalChan returns a channel that fires once on SIGINT or SIGTERM,
// mirroring the worker process's graceful-shutdown trigger.
func waitForSignalChan() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return sigCh
}

// waitForSignal blocks until SIGINT or SIGTERM and returns which one fired.
func waitForSignal() os.Signal {
	return <-waitForSignalChan()
}

// rngReader is the randomness source nonces are drawn from; factored out so
// tests could substitute a deterministic reader if ever needed.
func rngReader() io.Reader {
	return rand.Reader
}

func generateKey() (*btcec.PrivateKey, error) {
	return btcec.NewPrivateKey()
}

func btcecPrivKeyFromBytes(raw []byte) (*btcec.PrivateKey, error) {
	key, _ := btcec.PrivKeyFromBytes(raw)
	return key, nil
}

func signerPublicKey(key *btcec.PrivateKey) []byte {
	return signer.NewSecp256k1Signer(key).PublicKey()
}
