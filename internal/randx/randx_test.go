package randx

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHexString(t *testing.T) {
	s, err := HexString(8)
	require.NoError(t, err)
	require.Len(t, s, 8)
	require.Regexp(t, regexp.MustCompile(`^[0-9a-f]+$`), s)

	other, err := HexString(8)
	require.NoError(t, err)
	require.NotEqual(t, s, other)
}

func TestBytes(t *testing.T) {
	b, err := Bytes(32)
	require.NoError(t, err)
	require.Len(t, b, 32)

	other, err := Bytes(32)
	require.NoError(t, err)
	require.NotEqual(t, b, other)
}

func TestWipe(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	Wipe(b)
	require.Equal(t, []byte{0, 0, 0, 0}, b)
}
