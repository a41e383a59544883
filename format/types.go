// Package format holds the fixed layout constants and enums of the KTLX
// file family. Every file of the family is little-endian.
package format

import "fmt"

type (
	// Schema identifies the layout revision of one KTLX file. Each file
	// kind carries its own schema number in the generic header.
	Schema uint16

	// CompressionType selects the payload codec of a snapshot container.
	// It is not part of the KTLX on-disk format.
	CompressionType uint8
)

const (
	// SchemaBase marks files that consist of the generic header plus a
	// kind-specific payload (.stc, .snc, .ent and friends).
	SchemaBase Schema = 1
	// Schema7 is the oldest raw-data schema: no delta mask, every channel
	// narrow.
	Schema7 Schema = 7
	// Schema8 adds the per-sample delta mask and the shorted-channel and
	// frequency-factor header tables.
	Schema8 Schema = 8
	// Schema9 shares the Schema8 layout.
	Schema9 Schema = 9
)

const (
	CompressionNone CompressionType = 0x1
	CompressionZstd CompressionType = 0x2
	CompressionS2   CompressionType = 0x3
	CompressionLZ4  CompressionType = 0x4
)

// Layout constants. Offsets are absolute from the start of the file.
const (
	// GenericHeaderSize is the size of the header block shared by every
	// file of the KTLX family.
	GenericHeaderSize = 352

	// HeadboxOffset is the absolute offset of the headbox block in
	// schema >= 7 headers.
	HeadboxOffset = 4464

	// MaxChannels bounds the channel count: the physical-channel map
	// starting at offset 368 must fit below the headbox block.
	MaxChannels = 1024

	// ShortedTableLen is the entry count of each of the shorted-channel
	// and frequency-factor tables in schema >= 8 headers.
	ShortedTableLen = 1024
)

// Delta stream escape sentinels. A slot holding its width's sentinel defers
// the channel to a trailing 4-byte absolute value.
const (
	// EscapeNarrow is the 1-byte sentinel for narrow (8-bit) delta slots.
	EscapeNarrow byte = 0x80
	// EscapeWide is the 2-byte sentinel for wide (16-bit) delta slots.
	EscapeWide uint16 = 0xFFFF
)

// Supported reports whether s is one of the schema revisions this module
// can parse.
func (s Schema) Supported() bool {
	return s == SchemaBase || s == Schema7 || s == Schema8 || s == Schema9
}

// HasExtendedHeader reports whether headers of this schema carry the
// sampling extension (sample rate, channel map, headbox block).
func (s Schema) HasExtendedHeader() bool {
	return s >= Schema7
}

// HasDeltaMask reports whether sample records of this schema start with a
// per-channel width mask. Schema 7 streams encode every channel narrow.
func (s Schema) HasDeltaMask() bool {
	return s >= Schema8
}

// HeaderSize returns the total header size in bytes for this schema. In
// raw-data files the sample stream begins immediately after.
func (s Schema) HeaderSize() int {
	switch {
	case s >= Schema8:
		return HeadboxOffset + 96 + 2*2*ShortedTableLen // 8656
	case s >= Schema7:
		return HeadboxOffset + 96 // 4560
	default:
		return GenericHeaderSize
	}
}

func (s Schema) String() string {
	return fmt.Sprintf("schema %d", uint16(s))
}

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionS2:
		return "s2"
	case CompressionLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

// ParseCompressionType maps a codec name to its CompressionType.
func ParseCompressionType(name string) (CompressionType, bool) {
	switch name {
	case "none":
		return CompressionNone, true
	case "zstd":
		return CompressionZstd, true
	case "s2":
		return CompressionS2, true
	case "lz4":
		return CompressionLZ4, true
	default:
		return 0, false
	}
}
