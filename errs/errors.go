// Package errs defines the sentinel errors shared across the ktlx packages.
//
// Callers should match them with errors.Is; most error values returned by
// the library wrap one of these sentinels with positional context.
package errs

import "errors"

// Format errors. Any of these during recording open aborts the open
// entirely; no partially-initialized handle is ever returned.
var (
	// ErrUnsupportedSchema is returned when a file's schema field is not
	// one of the supported values (1, 7, 8, 9).
	ErrUnsupportedSchema = errors.New("unsupported file schema")

	// ErrUnsupportedBaseSchema is returned when a file's base schema field
	// is not 1.
	ErrUnsupportedBaseSchema = errors.New("unsupported base schema")

	// ErrTruncated is returned when a header or index holds fewer bytes
	// than its schema requires. Sample streams that end early are not an
	// error; see erd.Result.Truncated.
	ErrTruncated = errors.New("file truncated")

	// ErrBadEventByte is returned in strict mode when a sample record
	// starts with an event byte other than 0x00 or 0x01.
	ErrBadEventByte = errors.New("bad event byte")

	// ErrIndexInconsistent is returned when the cumulative sample offsets
	// of the segment table of contents do not match the running total of
	// the segment spans.
	ErrIndexInconsistent = errors.New("segment index inconsistent")

	// ErrUnsupportedHeadbox is returned when no conversion band table is
	// known for a headbox type.
	ErrUnsupportedHeadbox = errors.New("unsupported headbox type")

	// ErrInvalidChannelCount is returned when the header channel count
	// falls outside [1, format.MaxChannels].
	ErrInvalidChannelCount = errors.New("invalid channel count")
)

// Range errors.
var (
	// ErrOutOfRange is returned when a requested sample or channel index
	// falls outside the recording.
	ErrOutOfRange = errors.New("out of range")
)

// Snapshot errors.
var (
	// ErrBadSnapshotMagic is returned when snapshot data does not start
	// with the KSNP magic number or carries an unknown version.
	ErrBadSnapshotMagic = errors.New("bad snapshot magic")

	// ErrChecksumMismatch is returned when a snapshot payload does not
	// match its recorded xxHash64 checksum.
	ErrChecksumMismatch = errors.New("snapshot checksum mismatch")

	// ErrUnsupportedCompression is returned for an unknown compression
	// type byte.
	ErrUnsupportedCompression = errors.New("unsupported compression type")
)
