// Package indexer defines the duplicate-detection query interface
// (C8, interface only): given a candidate DID, ask an external
// registry whether a bundle for that identifier already exists. This
// is what turns DID derivation's determinism into an actual
// one-person-one-DID guarantee at enrollment time.
package indexer

import (
	"sync"

	"github.com/fractionestate/decentralized-did/internal/bioerr"
	"github.com/fractionestate/decentralized-did/internal/did"
	"github.com/fractionestate/decentralized-did/internal/metadata"
)

// Index is the duplicate-detection query interface (spec §4.8).
type Index interface {
	FindDID(candidate did.Identifier) (metadata.Bundle, bool, error)
}

// Registry is an in-memory reference Index implementation, suitable
// for a single-node deployment or as a local cache in front of a
// remote chain-indexing service. Reads never block writers for long;
// the lock only guards the map itself.
type Registry struct {
	mu      sync.RWMutex
	bundles map[did.Identifier]metadata.Bundle
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{bundles: make(map[did.Identifier]metadata.Bundle)}
}

// FindDID reports whether a bundle is registered for candidate.
func (r *Registry) FindDID(candidate did.Identifier) (metadata.Bundle, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bundle, ok := r.bundles[candidate]
	return bundle, ok, nil
}

// Register records bundle under its own DID, overwriting any previous
// entry. Callers performing a Sybil check should call FindDID first
// and reject enrollment if an unrevoked bundle already exists; only
// after that check passes should Register be called.
func (r *Registry) Register(bundle metadata.Bundle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bundles[bundle.DID] = bundle
}

// CheckNotDuplicate is the enrollment-time Sybil guard: it fails with
// bioerr.ErrDuplicateIdentity if candidate already maps to a bundle
// that is not revoked.
func CheckNotDuplicate(idx Index, candidate did.Identifier) error {
	existing, found, err := idx.FindDID(candidate)
	if err != nil {
		return err
	}
	if found && !existing.Revoked {
		return bioerr.ErrDuplicateIdentity
	}
	return nil
}
