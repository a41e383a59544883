package header

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openeeg/ktlx/errs"
	"github.com/openeeg/ktlx/format"
)

func testHeader(schema format.Schema, numChannels int) *Header {
	h := &Header{
		Schema:       schema,
		BaseSchema:   1,
		CreationTime: time.Unix(1700000000, 0).UTC(),
		PatientID:    42,
		StudyID:      7,
		LastName:     "Doe",
		FirstName:    "Jane",
		PatientCode:  "MG59",
	}
	copy(h.GUID[:], []byte{0xDE, 0xAD, 0xBE, 0xEF, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})

	if schema.HasExtendedHeader() {
		h.SampleRate = 256.0
		h.NumChannels = numChannels
		h.DeltaBits = 8
		h.PhysicalChannels = make([]int32, numChannels)
		for i := range h.PhysicalChannels {
			h.PhysicalChannels[i] = int32(i)
		}
		h.HeadboxTypes = [4]int32{1, 0, 0, 0}
		h.HeadboxSerials = [4]int32{1234, 0, 0, 0}
		h.HeadboxSoftware = "1.0.2.3"
		h.DSPHardware = "DSP-A"
		h.DSPSoftware = "2.1"
		h.DiscardBits = 0
	}
	if schema.HasDeltaMask() {
		h.Shorted = make([]int16, format.ShortedTableLen)
		h.FrequencyFactor = make([]int16, format.ShortedTableLen)
		h.Shorted[3] = 1
		h.FrequencyFactor[0] = 4
	}

	return h
}

func TestParse_RoundTrip(t *testing.T) {
	for _, schema := range []format.Schema{format.SchemaBase, format.Schema7, format.Schema8, format.Schema9} {
		t.Run(schema.String(), func(t *testing.T) {
			original := testHeader(schema, 32)
			data := original.Bytes()
			require.Len(t, data, schema.HeaderSize())

			parsed, err := Parse(data)
			require.NoError(t, err)
			require.Equal(t, original, parsed)
		})
	}
}

func TestParseGeneric_TextFields(t *testing.T) {
	h := testHeader(format.SchemaBase, 0)
	data := h.Bytes()
	// Garbage after the terminator must be ignored.
	copy(data[32:], []byte("Doe\x00leftover-bytes"))

	parsed, err := ParseGeneric(data)
	require.NoError(t, err)
	require.Equal(t, "Doe", parsed.LastName)
}

func TestParse_UnsupportedSchema(t *testing.T) {
	h := testHeader(format.SchemaBase, 0)
	data := h.Bytes()
	data[16] = 5
	data[17] = 0

	parsed, err := Parse(data)
	require.ErrorIs(t, err, errs.ErrUnsupportedSchema)
	require.Nil(t, parsed)
}

func TestParse_UnsupportedBaseSchema(t *testing.T) {
	h := testHeader(format.SchemaBase, 0)
	data := h.Bytes()
	data[18] = 2

	_, err := Parse(data)
	require.ErrorIs(t, err, errs.ErrUnsupportedBaseSchema)
}

func TestParse_Truncated(t *testing.T) {
	t.Run("generic block short", func(t *testing.T) {
		_, err := Parse(make([]byte, 100))
		require.ErrorIs(t, err, errs.ErrTruncated)
	})

	t.Run("extension missing", func(t *testing.T) {
		data := testHeader(format.Schema8, 4).Bytes()
		_, err := Parse(data[:format.GenericHeaderSize])
		require.ErrorIs(t, err, errs.ErrTruncated)
	})

	t.Run("extension short", func(t *testing.T) {
		data := testHeader(format.Schema8, 4).Bytes()
		_, err := Parse(data[:5000])
		require.ErrorIs(t, err, errs.ErrTruncated)
	})
}

func TestParse_InvalidChannelCount(t *testing.T) {
	for _, count := range []int32{0, -1, format.MaxChannels + 1} {
		data := testHeader(format.Schema7, 4).Bytes()
		data[360] = byte(count)
		data[361] = byte(count >> 8)
		data[362] = byte(count >> 16)
		data[363] = byte(count >> 24)

		_, err := Parse(data)
		require.ErrorIs(t, err, errs.ErrInvalidChannelCount)
	}
}

func TestRead(t *testing.T) {
	dir := t.TempDir()

	t.Run("reads header and ignores trailing data", func(t *testing.T) {
		original := testHeader(format.Schema8, 8)
		path := filepath.Join(dir, "rec.erd")
		content := append(original.Bytes(), 0x00, 0x01, 0x02) // sample stream follows
		require.NoError(t, os.WriteFile(path, content, 0o644))

		parsed, err := Read(path)
		require.NoError(t, err)
		require.Equal(t, original, parsed)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Read(filepath.Join(dir, "nope.erd"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("truncated file", func(t *testing.T) {
		path := filepath.Join(dir, "short.erd")
		require.NoError(t, os.WriteFile(path, testHeader(format.Schema8, 8).Bytes()[:400], 0o644))

		_, err := Read(path)
		require.ErrorIs(t, err, errs.ErrTruncated)
	})
}
