package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fractionestate/decentralized-did/internal/bioerr"
)

func TestInlineAdapterStoreFetchRoundTrip(t *testing.T) {
	a := NewInlineAdapter()
	ref, err := a.Store([]byte("helper-blob"))
	require.NoError(t, err)
	require.True(t, a.HealthCheck())

	got, err := a.Fetch(ref)
	require.NoError(t, err)
	require.Equal(t, []byte("helper-blob"), got)
}

func TestInlineAdapterFetchUnknownRefFails(t *testing.T) {
	a := NewInlineAdapter()
	_, err := a.Fetch(Ref{Backend: BackendInline})
	require.ErrorIs(t, err, bioerr.ErrFetchFailed)
}

func TestFilesystemAdapterStoreFetchRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "helpers")
	a, err := NewFilesystemAdapter(dir)
	require.NoError(t, err)
	require.True(t, a.HealthCheck())

	ref, err := a.Store([]byte("helper-blob-on-disk"))
	require.NoError(t, err)

	got, err := a.Fetch(ref)
	require.NoError(t, err)
	require.Equal(t, []byte("helper-blob-on-disk"), got)
}

func TestFilesystemAdapterFetchMissingFails(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "helpers")
	a, err := NewFilesystemAdapter(dir)
	require.NoError(t, err)

	var hash [32]byte
	_, err = a.Fetch(Ref{Backend: BackendFilesystem, IntegrityHash: hash})
	require.ErrorIs(t, err, bioerr.ErrFetchFailed)
}
