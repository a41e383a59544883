package snapshot

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openeeg/ktlx/errs"
	"github.com/openeeg/ktlx/format"
)

func testSnapshot() *Snapshot {
	return &Snapshot{
		StartSample: 2560,
		SampleRate:  256,
		Channels:    []int{0, 3, 17},
		Values: [][]float64{
			{0.0395, 0.0397, -0.0011, 0},
			{1.25, 1.25, 1.25, 1.25},
			{-3e-5, 2e-5, 0, 4.5e-4},
		},
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	for _, ct := range []format.CompressionType{
		format.CompressionNone,
		format.CompressionZstd,
		format.CompressionS2,
		format.CompressionLZ4,
	} {
		t.Run(ct.String(), func(t *testing.T) {
			original := testSnapshot()
			data, err := Encode(original, ct)
			require.NoError(t, err)

			decoded, err := Decode(data)
			require.NoError(t, err)
			require.Equal(t, original, decoded)
		})
	}
}

func TestEncode_Validation(t *testing.T) {
	t.Run("row count mismatch", func(t *testing.T) {
		s := testSnapshot()
		s.Values = s.Values[:2]
		_, err := Encode(s, format.CompressionNone)
		require.Error(t, err)
	})

	t.Run("ragged rows", func(t *testing.T) {
		s := testSnapshot()
		s.Values[1] = s.Values[1][:3]
		_, err := Encode(s, format.CompressionNone)
		require.Error(t, err)
	})

	t.Run("unknown compression", func(t *testing.T) {
		_, err := Encode(testSnapshot(), format.CompressionType(0x7F))
		require.ErrorIs(t, err, errs.ErrUnsupportedCompression)
	})
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, testSnapshot(), format.CompressionS2))

	decoded, err := Decode(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, testSnapshot(), decoded)
}

func TestDecode_Errors(t *testing.T) {
	data, err := Encode(testSnapshot(), format.CompressionNone)
	require.NoError(t, err)

	t.Run("short header", func(t *testing.T) {
		_, err := Decode(data[:headerSize-1])
		require.ErrorIs(t, err, errs.ErrTruncated)
	})

	t.Run("bad magic", func(t *testing.T) {
		corrupted := append([]byte(nil), data...)
		corrupted[0] = 'X'
		_, err := Decode(corrupted)
		require.ErrorIs(t, err, errs.ErrBadSnapshotMagic)
	})

	t.Run("unknown version", func(t *testing.T) {
		corrupted := append([]byte(nil), data...)
		corrupted[4] = 9
		_, err := Decode(corrupted)
		require.ErrorIs(t, err, errs.ErrBadSnapshotMagic)
	})

	t.Run("unknown compression", func(t *testing.T) {
		corrupted := append([]byte(nil), data...)
		corrupted[6] = 0x7F
		_, err := Decode(corrupted)
		require.ErrorIs(t, err, errs.ErrUnsupportedCompression)
	})

	t.Run("short channel list", func(t *testing.T) {
		_, err := Decode(data[:headerSize+4])
		require.ErrorIs(t, err, errs.ErrTruncated)
	})

	t.Run("short payload", func(t *testing.T) {
		_, err := Decode(data[:len(data)-8])
		require.ErrorIs(t, err, errs.ErrTruncated)
	})

	t.Run("flipped payload byte", func(t *testing.T) {
		corrupted := append([]byte(nil), data...)
		corrupted[len(corrupted)-1] ^= 0x01
		_, err := Decode(corrupted)
		require.ErrorIs(t, err, errs.ErrChecksumMismatch)
	})
}
