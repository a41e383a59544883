// Package snapshot implements a compact container for decoded sample
// windows. Snapshots are how windows leave the KTLX world: a fixed
// little-endian header, the exported channel list, and a checksummed,
// optionally compressed float64 payload.
//
// The container is this module's own format and is not part of the KTLX
// file family.
package snapshot

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/openeeg/ktlx/compress"
	"github.com/openeeg/ktlx/errs"
	"github.com/openeeg/ktlx/format"
	"github.com/openeeg/ktlx/internal/hash"
)

const (
	// Magic spells "KSNP" in the file's first four bytes.
	Magic uint32 = 0x504E534B
	// Version is the current container layout revision.
	Version uint16 = 1

	headerSize = 40
)

// Snapshot is one exported window in physical units.
type Snapshot struct {
	// StartSample is the window's first global sample index.
	StartSample int64
	// SampleRate is the recording's sampling frequency in Hz.
	SampleRate float64
	// Channels lists the original channel indices, in export order.
	Channels []int
	// Values holds one row per entry of Channels; all rows are the same
	// length.
	Values [][]float64
}

// Encode serializes the snapshot with the given payload compression.
func Encode(s *Snapshot, compression format.CompressionType) ([]byte, error) {
	if len(s.Values) != len(s.Channels) {
		return nil, fmt.Errorf("snapshot has %d channels but %d value rows", len(s.Channels), len(s.Values))
	}
	sampleCount := 0
	if len(s.Values) > 0 {
		sampleCount = len(s.Values[0])
	}
	for i, row := range s.Values {
		if len(row) != sampleCount {
			return nil, fmt.Errorf("value row %d has %d samples, expected %d", i, len(row), sampleCount)
		}
	}

	codec, err := compress.GetCodec(compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %d", errs.ErrUnsupportedCompression, compression)
	}

	payload := make([]byte, 0, 8*len(s.Channels)*sampleCount)
	for _, row := range s.Values {
		for _, v := range row {
			payload = binary.LittleEndian.AppendUint64(payload, math.Float64bits(v))
		}
	}

	compressed, err := codec.Compress(payload)
	if err != nil {
		return nil, err
	}

	out := make([]byte, headerSize, headerSize+4*len(s.Channels)+len(compressed))
	binary.LittleEndian.PutUint32(out[0:], Magic)
	binary.LittleEndian.PutUint16(out[4:], Version)
	out[6] = byte(compression)
	out[7] = 0
	binary.LittleEndian.PutUint64(out[8:], uint64(s.StartSample))
	binary.LittleEndian.PutUint32(out[16:], uint32(sampleCount))
	binary.LittleEndian.PutUint32(out[20:], uint32(len(s.Channels)))
	binary.LittleEndian.PutUint64(out[24:], math.Float64bits(s.SampleRate))
	// The checksum covers the uncompressed payload, so corruption is
	// caught regardless of codec.
	binary.LittleEndian.PutUint64(out[32:], hash.Sum64(payload))

	for _, ch := range s.Channels {
		out = binary.LittleEndian.AppendUint32(out, uint32(int32(ch)))
	}
	out = append(out, compressed...)

	return out, nil
}

// Write encodes the snapshot and writes it to w.
func Write(w io.Writer, s *Snapshot, compression format.CompressionType) error {
	data, err := Encode(s, compression)
	if err != nil {
		return err
	}

	_, err = w.Write(data)

	return err
}

// Decode parses and verifies a snapshot.
func Decode(data []byte) (*Snapshot, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: snapshot header needs %d bytes, have %d",
			errs.ErrTruncated, headerSize, len(data))
	}
	if binary.LittleEndian.Uint32(data[0:]) != Magic {
		return nil, errs.ErrBadSnapshotMagic
	}
	if v := binary.LittleEndian.Uint16(data[4:]); v != Version {
		return nil, fmt.Errorf("%w: version %d", errs.ErrBadSnapshotMagic, v)
	}

	compression := format.CompressionType(data[6])
	codec, err := compress.GetCodec(compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %d", errs.ErrUnsupportedCompression, compression)
	}

	s := &Snapshot{
		StartSample: int64(binary.LittleEndian.Uint64(data[8:])),
		SampleRate:  math.Float64frombits(binary.LittleEndian.Uint64(data[24:])),
	}
	sampleCount := int(binary.LittleEndian.Uint32(data[16:]))
	channelCount := int(binary.LittleEndian.Uint32(data[20:]))
	wantHash := binary.LittleEndian.Uint64(data[32:])

	rest := data[headerSize:]
	if len(rest) < 4*channelCount {
		return nil, fmt.Errorf("%w: channel list needs %d bytes, have %d",
			errs.ErrTruncated, 4*channelCount, len(rest))
	}
	s.Channels = make([]int, channelCount)
	for i := range s.Channels {
		s.Channels[i] = int(int32(binary.LittleEndian.Uint32(rest[4*i:])))
	}

	payload, err := codec.Decompress(rest[4*channelCount:])
	if err != nil {
		return nil, err
	}
	if len(payload) != 8*channelCount*sampleCount {
		return nil, fmt.Errorf("%w: payload holds %d bytes, expected %d",
			errs.ErrTruncated, len(payload), 8*channelCount*sampleCount)
	}
	if hash.Sum64(payload) != wantHash {
		return nil, errs.ErrChecksumMismatch
	}

	s.Values = make([][]float64, channelCount)
	for c := range s.Values {
		row := make([]float64, sampleCount)
		for i := range row {
			row[i] = math.Float64frombits(binary.LittleEndian.Uint64(payload[8*(c*sampleCount+i):]))
		}
		s.Values[c] = row
	}

	return s, nil
}
