package secret

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBytesEqualConstantTime(t *testing.T) {
	b := FromBytes([]byte{1, 2, 3, 4})
	require.True(t, b.Equal([]byte{1, 2, 3, 4}))
	require.False(t, b.Equal([]byte{1, 2, 3, 5}))
	require.False(t, b.Equal([]byte{1, 2, 3}))
}

func TestBytesWipeZeroesAndBlocksReuse(t *testing.T) {
	b := FromBytes([]byte{0xAA, 0xBB, 0xCC})
	b.Wipe()
	require.Nil(t, b.Bytes())
	// wiping twice must not panic
	b.Wipe()
}

func TestBytesStringNeverLeaks(t *testing.T) {
	b := FromBytes([]byte("super-secret-template-bits"))
	require.NotContains(t, b.String(), "super-secret")
	require.NotContains(t, fmt.Sprintf("%v", b), "super-secret")
}

func TestWipeOverwritesInPlace(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	Wipe(data)
	for _, v := range data {
		require.Equal(t, byte(0), v)
	}
}

func TestConstantTimeEqual(t *testing.T) {
	require.True(t, ConstantTimeEqual([]byte("abc"), []byte("abc")))
	require.False(t, ConstantTimeEqual([]byte("abc"), []byte("abd")))
	require.False(t, ConstantTimeEqual([]byte("ab"), []byte("abc")))
}
