package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSchema(t *testing.T) {
	require.True(t, SchemaBase.Supported())
	require.True(t, Schema9.Supported())
	require.False(t, Schema(5).Supported())

	require.False(t, SchemaBase.HasExtendedHeader())
	require.True(t, Schema7.HasExtendedHeader())
	require.False(t, Schema7.HasDeltaMask())
	require.True(t, Schema8.HasDeltaMask())

	require.Equal(t, 352, SchemaBase.HeaderSize())
	require.Equal(t, 4560, Schema7.HeaderSize())
	require.Equal(t, 8656, Schema8.HeaderSize())
	require.Equal(t, 8656, Schema9.HeaderSize())
}

func TestParseCompressionType(t *testing.T) {
	for _, name := range []string{"none", "zstd", "s2", "lz4"} {
		ct, ok := ParseCompressionType(name)
		require.True(t, ok)
		require.Equal(t, name, ct.String())
	}

	_, ok := ParseCompressionType("gzip")
	require.False(t, ok)
}
