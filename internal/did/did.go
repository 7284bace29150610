// Package did deterministically derives a network-scoped DID string
// from a master key (C5).
package did

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
	"golang.org/x/crypto/blake2b"

	"github.com/fractionestate/decentralized-did/internal/aggregator"
	"github.com/fractionestate/decentralized-did/internal/bioerr"
)

// DomainTag scopes the DID digest so it can never collide with a
// BLAKE2b-256 digest computed for an unrelated purpose over the same
// master key.
const DomainTag = "did-cardano-v1"

// Network identifies which Cardano network a DID is scoped to.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
	Preview Network = "preview"
	Preprod Network = "preprod"
)

// ValidNetwork reports whether network is one of the four recognized
// Cardano network tags.
func ValidNetwork(network Network) bool {
	switch network {
	case Mainnet, Testnet, Preview, Preprod:
		return true
	default:
		return false
	}
}

// Identifier is a DID string of the form
// did:cardano:<network>:z<base58btc-of-32-byte-digest>.
type Identifier string

// Derive computes the DID for a master key and network tag. It is a
// pure deterministic mapping: identical (masterKey, network) pairs
// always produce the identical Identifier, which is what makes
// duplicate-detection (C8) a meaningful Sybil check downstream.
func Derive(masterKey aggregator.MasterKey, network Network) (Identifier, error) {
	if !ValidNetwork(network) {
		return "", bioerr.ErrInvalidNetwork
	}

	input := make([]byte, 0, len(DomainTag)+len(network)+len(masterKey))
	input = append(input, DomainTag...)
	input = append(input, network...)
	input = append(input, masterKey[:]...)

	digest := blake2b.Sum256(input)
	encoded := base58.Encode(digest[:])

	return Identifier(fmt.Sprintf("did:cardano:%s:z%s", network, encoded)), nil
}
