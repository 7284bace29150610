// Package storage defines the helper-data storage adapter interface
// (C7, interface only) and provides two concrete implementations: an
// inline in-memory backend for tests and small deployments, and a
// filesystem backend using atomic rename writes.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/fractionestate/decentralized-did/internal/bioerr"
	"github.com/fractionestate/decentralized-did/internal/security"
)

// Backend names a storage implementation, recorded in StorageRef so a
// caller knows how to interpret URI.
type Backend string

const (
	BackendInline     Backend = "inline"
	BackendFilesystem Backend = "filesystem"
)

// Ref is the opaque reference returned by Store and consumed by Fetch
// (spec §4.7).
type Ref struct {
	Backend       Backend
	URI           string
	IntegrityHash [32]byte
}

// Adapter is the storage interface the fuzzy-extractor helper blobs
// flow through. Implementations are external collaborators: the core
// only requires these three guarantees and must tolerate Fetch
// failures during Rep by surfacing them through bioerr.
type Adapter interface {
	Store(data []byte) (Ref, error)
	Fetch(ref Ref) ([]byte, error)
	HealthCheck() bool
}

func integrityHash(data []byte) [32]byte {
	return blake2b.Sum256(data)
}

// InlineAdapter keeps blobs in process memory, keyed by their
// integrity hash. It is suitable for tests and for the
// MetadataBundle.HelperStorage == "inline" case where the bundle
// itself is the durable copy.
type InlineAdapter struct {
	mu   sync.RWMutex
	data map[[32]byte][]byte
}

// NewInlineAdapter returns a ready-to-use InlineAdapter.
func NewInlineAdapter() *InlineAdapter {
	return &InlineAdapter{data: make(map[[32]byte][]byte)}
}

func (a *InlineAdapter) Store(data []byte) (Ref, error) {
	hash := integrityHash(data)
	a.mu.Lock()
	a.data[hash] = append([]byte(nil), data...)
	a.mu.Unlock()
	return Ref{Backend: BackendInline, URI: fmt.Sprintf("inline:%x", hash), IntegrityHash: hash}, nil
}

func (a *InlineAdapter) Fetch(ref Ref) ([]byte, error) {
	a.mu.RLock()
	data, ok := a.data[ref.IntegrityHash]
	a.mu.RUnlock()
	if !ok {
		return nil, bioerr.ErrFetchFailed
	}
	if integrityHash(data) != ref.IntegrityHash {
		return nil, bioerr.ErrIntegrityMismatch
	}
	return append([]byte(nil), data...), nil
}

func (a *InlineAdapter) HealthCheck() bool { return true }

// FilesystemAdapter persists blobs as content-addressed files under a
// root directory, written via security.WriteSecureFile's
// temp-file-then-rename pattern so a crash mid-write can never leave a
// partially written helper blob at its final path.
type FilesystemAdapter struct {
	root string
}

// NewFilesystemAdapter returns an adapter rooted at dir, creating it
// if necessary.
func NewFilesystemAdapter(dir string) (*FilesystemAdapter, error) {
	if err := os.MkdirAll(dir, security.PermSecretDir); err != nil {
		return nil, fmt.Errorf("storage: create root dir: %w", err)
	}
	return &FilesystemAdapter{root: dir}, nil
}

func (a *FilesystemAdapter) pathFor(hash [32]byte) string {
	return filepath.Join(a.root, fmt.Sprintf("%x.helper", hash))
}

func (a *FilesystemAdapter) Store(data []byte) (Ref, error) {
	hash := integrityHash(data)
	path := a.pathFor(hash)

	if err := security.WriteSecureFile(path, data, security.PermSecretFile); err != nil {
		return Ref{}, fmt.Errorf("%w: %v", bioerr.ErrStorageUnavailable, err)
	}

	return Ref{Backend: BackendFilesystem, URI: "file://" + path, IntegrityHash: hash}, nil
}

func (a *FilesystemAdapter) Fetch(ref Ref) ([]byte, error) {
	path := a.pathFor(ref.IntegrityHash)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bioerr.ErrFetchFailed, err)
	}
	if integrityHash(data) != ref.IntegrityHash {
		return nil, bioerr.ErrIntegrityMismatch
	}
	return data, nil
}

func (a *FilesystemAdapter) HealthCheck() bool {
	info, err := os.Stat(a.root)
	return err == nil && info.IsDir()
}
