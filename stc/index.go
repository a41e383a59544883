// Package stc reads and writes the segment table-of-contents (.stc) file
// that indexes the raw-data/per-segment-toc file pairs of a recording.
//
// Recordings are split across segments to bound individual file size. The
// .stc starts with the generic KTLX header, a small sub-header, and a
// series of fixed-length entries, one per segment, whose cumulative sample
// offsets must exactly match the running total of the segment spans.
package stc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"github.com/openeeg/ktlx/errs"
	"github.com/openeeg/ktlx/format"
	"github.com/openeeg/ktlx/header"
)

const (
	// subHeaderSize covers the next-segment and final fields plus 48
	// bytes of padding between the generic header and the first entry.
	subHeaderSize = 56
	entriesOffset = format.GenericHeaderSize + subHeaderSize

	nameFieldSize = 256
	// entrySize is the fixed length of one segment record: the name
	// field plus four 32-bit integers.
	entrySize = nameFieldSize + 16
)

// Entry describes one segment of the recording.
type Entry struct {
	// SegmentName is the shared base name of the segment's .erd/.etc
	// pair, without extension.
	SegmentName string
	// StartStamp and EndStamp are the first and last sample stamps found
	// in the segment.
	StartStamp int32
	EndStamp   int32
	// SampleOffset is the number of samples recorded before this
	// segment; it accumulates over segments.
	SampleOffset int64
	// SampleSpan is the number of samples within the segment.
	SampleSpan int64
}

// Index is the parsed, validated table of contents. It is immutable after
// construction.
type Index struct {
	// Header is the generic header of the .stc file itself.
	Header *header.Header
	// NextSegment and Final are the sub-header fields of the file.
	NextSegment int32
	Final       int32

	entries []Entry
	total   int64
}

// Read parses the table-of-contents file at path.
func Read(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	idx, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return idx, nil
}

// Parse decodes and validates a table of contents from data.
func Parse(data []byte) (*Index, error) {
	hdr, err := header.ParseGeneric(data)
	if err != nil {
		return nil, err
	}
	if len(data) < entriesOffset {
		return nil, fmt.Errorf("%w: stc sub-header needs %d bytes, have %d",
			errs.ErrTruncated, entriesOffset, len(data))
	}

	idx := &Index{
		Header:      hdr,
		NextSegment: int32(binary.LittleEndian.Uint32(data[format.GenericHeaderSize:])),
		Final:       int32(binary.LittleEndian.Uint32(data[format.GenericHeaderSize+4:])),
	}

	rest := data[entriesOffset:]
	if len(rest)%entrySize != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after the last full entry",
			errs.ErrTruncated, len(rest)%entrySize)
	}

	idx.entries = make([]Entry, len(rest)/entrySize)
	for i := range idx.entries {
		rec := rest[i*entrySize:]
		e := Entry{
			SegmentName:  cstring(rec[:nameFieldSize]),
			StartStamp:   int32(binary.LittleEndian.Uint32(rec[nameFieldSize:])),
			EndStamp:     int32(binary.LittleEndian.Uint32(rec[nameFieldSize+4:])),
			SampleOffset: int64(int32(binary.LittleEndian.Uint32(rec[nameFieldSize+8:]))),
			SampleSpan:   int64(int32(binary.LittleEndian.Uint32(rec[nameFieldSize+12:]))),
		}
		idx.entries[i] = e
	}

	if err := validate(idx.entries); err != nil {
		return nil, err
	}
	if n := len(idx.entries); n > 0 {
		idx.total = idx.entries[n-1].SampleOffset + idx.entries[n-1].SampleSpan
	}

	return idx, nil
}

// Build assembles an Index from already-decoded parts, applying the same
// validation as Parse. hdr must be a generic header for the .stc file.
func Build(hdr *header.Header, nextSegment, final int32, entries []Entry) (*Index, error) {
	if err := validate(entries); err != nil {
		return nil, err
	}

	idx := &Index{
		Header:      hdr,
		NextSegment: nextSegment,
		Final:       final,
		entries:     append([]Entry(nil), entries...),
	}
	if n := len(idx.entries); n > 0 {
		idx.total = idx.entries[n-1].SampleOffset + idx.entries[n-1].SampleSpan
	}

	return idx, nil
}

// validate checks the cumulative-offset invariant: offsets start at zero
// and each entry begins exactly where the previous one ended.
func validate(entries []Entry) error {
	var want int64
	for i, e := range entries {
		if e.SampleSpan < 0 {
			return fmt.Errorf("%w: entry %d has negative span %d", errs.ErrIndexInconsistent, i, e.SampleSpan)
		}
		if e.SampleOffset != want {
			return fmt.Errorf("%w: entry %d offset %d, running total %d",
				errs.ErrIndexInconsistent, i, e.SampleOffset, want)
		}
		want += e.SampleSpan
	}

	return nil
}

// Bytes serializes the index into the exact on-disk layout.
func (x *Index) Bytes() []byte {
	b := make([]byte, entriesOffset+len(x.entries)*entrySize)
	copy(b, x.Header.Bytes())
	binary.LittleEndian.PutUint32(b[format.GenericHeaderSize:], uint32(x.NextSegment))
	binary.LittleEndian.PutUint32(b[format.GenericHeaderSize+4:], uint32(x.Final))

	for i, e := range x.entries {
		rec := b[entriesOffset+i*entrySize:]
		n := len(e.SegmentName)
		if n > nameFieldSize-1 {
			n = nameFieldSize - 1
		}
		copy(rec, e.SegmentName[:n])
		binary.LittleEndian.PutUint32(rec[nameFieldSize:], uint32(e.StartStamp))
		binary.LittleEndian.PutUint32(rec[nameFieldSize+4:], uint32(e.EndStamp))
		binary.LittleEndian.PutUint32(rec[nameFieldSize+8:], uint32(int32(e.SampleOffset)))
		binary.LittleEndian.PutUint32(rec[nameFieldSize+12:], uint32(int32(e.SampleSpan)))
	}

	return b
}

// Len returns the number of segments.
func (x *Index) Len() int {
	return len(x.entries)
}

// Entry returns the i-th segment descriptor.
func (x *Index) Entry(i int) Entry {
	return x.entries[i]
}

// Entries returns a copy of all segment descriptors in order.
func (x *Index) Entries() []Entry {
	return append([]Entry(nil), x.entries...)
}

// TotalSamples returns the sum of all segment spans.
func (x *Index) TotalSamples() int64 {
	return x.total
}

// Lookup returns the index of the unique segment whose half-open sample
// interval [offset, offset+span) contains the global sample.
func (x *Index) Lookup(sample int64) (int, error) {
	if sample < 0 || sample >= x.total {
		return 0, fmt.Errorf("%w: sample %d of %d", errs.ErrOutOfRange, sample, x.total)
	}

	// First segment ending past the sample. Zero-span segments never
	// contain anything and are correctly skipped.
	i := sort.Search(len(x.entries), func(i int) bool {
		return x.entries[i].SampleOffset+x.entries[i].SampleSpan > sample
	})
	if i == len(x.entries) {
		return 0, fmt.Errorf("%w: sample %d of %d", errs.ErrOutOfRange, sample, x.total)
	}

	return i, nil
}

// SegmentBaseName returns the shared base name of segment i's file pair:
// the recording base name for the first segment, with a numeric suffix
// starting at _001 for the rest.
func SegmentBaseName(base string, i int) string {
	if i == 0 {
		return base
	}
	return fmt.Sprintf("%s_%03d", base, i)
}

// cstring decodes a null-terminated text field.
func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
