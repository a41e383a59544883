// Package header reads and writes the generic KTLX file header and its
// schema-specific extensions.
//
// Every file of the family starts with the same 352-byte generic block.
// Raw-data schemas (>= 7) follow it with a sampling extension at fixed
// absolute offsets; schema >= 8 appends the shorted-channel and
// frequency-factor tables. Parsing is all-or-nothing: any error discards
// the partial result.
package header

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/openeeg/ktlx/errs"
	"github.com/openeeg/ktlx/format"
)

// Generic block field offsets.
const (
	guidOffset       = 0
	schemaOffset     = 16
	baseSchemaOffset = 18
	creationOffset   = 20
	patientIDOffset  = 24
	studyIDOffset    = 28
	lastNameOffset   = 32
	firstNameOffset  = 112
	middleNameOffset = 192
	patientCodeOff   = 272

	nameFieldSize = 80

	// Sampling extension offsets (schema >= 7).
	sampleRateOffset  = 352
	numChannelsOffset = 360
	deltaBitsOffset   = 364
	physChanOffset    = 368

	// Headbox block field sizes at format.HeadboxOffset.
	headboxSlots    = 4
	swVersionSize   = 40
	dspVersionSize  = 10
	shortedOffset   = 4560
	freqFactorCount = format.ShortedTableLen
)

// Header is the decoded file header. Fields past the generic block are only
// populated when the schema provides them.
type Header struct {
	// GUID identifies the recording. Its byte order on disk is not
	// reliable, so it is kept as an opaque blob.
	GUID         [16]byte
	Schema       format.Schema
	BaseSchema   uint16
	CreationTime time.Time
	PatientID    int32
	StudyID      int32
	LastName     string
	FirstName    string
	MiddleName   string
	// PatientCode is the free-form 80-byte identifier field.
	PatientCode string

	// Sampling extension, schema >= 7.
	SampleRate       float64
	NumChannels      int
	DeltaBits        int32
	PhysicalChannels []int32
	HeadboxTypes     [headboxSlots]int32
	HeadboxSerials   [headboxSlots]int32
	HeadboxSoftware  string
	DSPHardware      string
	DSPSoftware      string
	DiscardBits      int32

	// Schema >= 8 tables, format.ShortedTableLen entries each.
	Shorted         []int16
	FrequencyFactor []int16
}

// Read opens path and parses its header. The file may be longer than the
// header; trailing bytes are ignored.
func Read(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, format.GenericHeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("%w: %s: generic header: %v", errs.ErrTruncated, path, err)
	}

	h, err := ParseGeneric(buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if !h.Schema.HasExtendedHeader() {
		return h, nil
	}

	full := make([]byte, h.Schema.HeaderSize())
	copy(full, buf)
	if _, err := io.ReadFull(f, full[format.GenericHeaderSize:]); err != nil {
		return nil, fmt.Errorf("%w: %s: %s extension: %v", errs.ErrTruncated, path, h.Schema, err)
	}
	if err := h.parseExtension(full); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return h, nil
}

// Parse decodes a full header from data, which must hold at least the
// schema's HeaderSize bytes.
func Parse(data []byte) (*Header, error) {
	if len(data) < format.GenericHeaderSize {
		return nil, fmt.Errorf("%w: generic header needs %d bytes, have %d",
			errs.ErrTruncated, format.GenericHeaderSize, len(data))
	}

	h, err := ParseGeneric(data[:format.GenericHeaderSize])
	if err != nil {
		return nil, err
	}
	if !h.Schema.HasExtendedHeader() {
		return h, nil
	}
	if len(data) < h.Schema.HeaderSize() {
		return nil, fmt.Errorf("%w: %s header needs %d bytes, have %d",
			errs.ErrTruncated, h.Schema, h.Schema.HeaderSize(), len(data))
	}
	if err := h.parseExtension(data); err != nil {
		return nil, err
	}

	return h, nil
}

// ParseGeneric decodes the 352-byte block shared by all file kinds.
func ParseGeneric(data []byte) (*Header, error) {
	if len(data) < format.GenericHeaderSize {
		return nil, fmt.Errorf("%w: generic header needs %d bytes, have %d",
			errs.ErrTruncated, format.GenericHeaderSize, len(data))
	}

	h := &Header{}
	copy(h.GUID[:], data[guidOffset:guidOffset+16])

	h.Schema = format.Schema(binary.LittleEndian.Uint16(data[schemaOffset:]))
	if !h.Schema.Supported() {
		return nil, fmt.Errorf("%w: %d", errs.ErrUnsupportedSchema, uint16(h.Schema))
	}

	h.BaseSchema = binary.LittleEndian.Uint16(data[baseSchemaOffset:])
	if h.BaseSchema != 1 {
		return nil, fmt.Errorf("%w: %d", errs.ErrUnsupportedBaseSchema, h.BaseSchema)
	}

	h.CreationTime = time.Unix(int64(int32(binary.LittleEndian.Uint32(data[creationOffset:]))), 0).UTC()
	h.PatientID = int32(binary.LittleEndian.Uint32(data[patientIDOffset:]))
	h.StudyID = int32(binary.LittleEndian.Uint32(data[studyIDOffset:]))
	h.LastName = cstring(data[lastNameOffset : lastNameOffset+nameFieldSize])
	h.FirstName = cstring(data[firstNameOffset : firstNameOffset+nameFieldSize])
	h.MiddleName = cstring(data[middleNameOffset : middleNameOffset+nameFieldSize])
	h.PatientCode = cstring(data[patientCodeOff : patientCodeOff+nameFieldSize])

	return h, nil
}

// parseExtension fills the schema >= 7 fields. data holds the full header
// with absolute offsets intact and has already been length-checked.
func (h *Header) parseExtension(data []byte) error {
	h.SampleRate = math.Float64frombits(binary.LittleEndian.Uint64(data[sampleRateOffset:]))

	n := int32(binary.LittleEndian.Uint32(data[numChannelsOffset:]))
	if n < 1 || n > format.MaxChannels {
		return fmt.Errorf("%w: %d", errs.ErrInvalidChannelCount, n)
	}
	h.NumChannels = int(n)
	h.DeltaBits = int32(binary.LittleEndian.Uint32(data[deltaBitsOffset:]))

	h.PhysicalChannels = make([]int32, h.NumChannels)
	for i := range h.PhysicalChannels {
		h.PhysicalChannels[i] = int32(binary.LittleEndian.Uint32(data[physChanOffset+4*i:]))
	}

	off := format.HeadboxOffset
	for i := 0; i < headboxSlots; i++ {
		h.HeadboxTypes[i] = int32(binary.LittleEndian.Uint32(data[off+4*i:]))
		h.HeadboxSerials[i] = int32(binary.LittleEndian.Uint32(data[off+4*headboxSlots+4*i:]))
	}
	off += 8 * headboxSlots
	h.HeadboxSoftware = cstring(data[off : off+swVersionSize])
	off += swVersionSize
	h.DSPHardware = cstring(data[off : off+dspVersionSize])
	off += dspVersionSize
	h.DSPSoftware = cstring(data[off : off+dspVersionSize])
	off += dspVersionSize
	h.DiscardBits = int32(binary.LittleEndian.Uint32(data[off:]))

	if h.Schema.HasDeltaMask() {
		h.Shorted = make([]int16, freqFactorCount)
		h.FrequencyFactor = make([]int16, freqFactorCount)
		for i := 0; i < freqFactorCount; i++ {
			h.Shorted[i] = int16(binary.LittleEndian.Uint16(data[shortedOffset+2*i:]))
			h.FrequencyFactor[i] = int16(binary.LittleEndian.Uint16(data[shortedOffset+2*freqFactorCount+2*i:]))
		}
	}

	return nil
}

// Bytes serializes the header into the exact on-disk layout of its schema.
// Gaps between the fixed-offset blocks are zero-filled.
func (h *Header) Bytes() []byte {
	b := make([]byte, h.Schema.HeaderSize())

	copy(b[guidOffset:], h.GUID[:])
	binary.LittleEndian.PutUint16(b[schemaOffset:], uint16(h.Schema))
	binary.LittleEndian.PutUint16(b[baseSchemaOffset:], h.BaseSchema)
	binary.LittleEndian.PutUint32(b[creationOffset:], uint32(int32(h.CreationTime.Unix())))
	binary.LittleEndian.PutUint32(b[patientIDOffset:], uint32(h.PatientID))
	binary.LittleEndian.PutUint32(b[studyIDOffset:], uint32(h.StudyID))
	putCString(b[lastNameOffset:lastNameOffset+nameFieldSize], h.LastName)
	putCString(b[firstNameOffset:firstNameOffset+nameFieldSize], h.FirstName)
	putCString(b[middleNameOffset:middleNameOffset+nameFieldSize], h.MiddleName)
	putCString(b[patientCodeOff:patientCodeOff+nameFieldSize], h.PatientCode)

	if !h.Schema.HasExtendedHeader() {
		return b
	}

	binary.LittleEndian.PutUint64(b[sampleRateOffset:], math.Float64bits(h.SampleRate))
	binary.LittleEndian.PutUint32(b[numChannelsOffset:], uint32(int32(h.NumChannels)))
	binary.LittleEndian.PutUint32(b[deltaBitsOffset:], uint32(h.DeltaBits))
	for i, pc := range h.PhysicalChannels {
		binary.LittleEndian.PutUint32(b[physChanOffset+4*i:], uint32(pc))
	}

	off := format.HeadboxOffset
	for i := 0; i < headboxSlots; i++ {
		binary.LittleEndian.PutUint32(b[off+4*i:], uint32(h.HeadboxTypes[i]))
		binary.LittleEndian.PutUint32(b[off+4*headboxSlots+4*i:], uint32(h.HeadboxSerials[i]))
	}
	off += 8 * headboxSlots
	putCString(b[off:off+swVersionSize], h.HeadboxSoftware)
	off += swVersionSize
	putCString(b[off:off+dspVersionSize], h.DSPHardware)
	off += dspVersionSize
	putCString(b[off:off+dspVersionSize], h.DSPSoftware)
	off += dspVersionSize
	binary.LittleEndian.PutUint32(b[off:], uint32(h.DiscardBits))

	if h.Schema.HasDeltaMask() {
		for i, v := range h.Shorted {
			binary.LittleEndian.PutUint16(b[shortedOffset+2*i:], uint16(v))
		}
		for i, v := range h.FrequencyFactor {
			binary.LittleEndian.PutUint16(b[shortedOffset+2*freqFactorCount+2*i:], uint16(v))
		}
	}

	return b
}

// cstring decodes a null-terminated text field, ignoring bytes after the
// first null.
func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// putCString writes s into the zeroed field dst, truncating if needed.
func putCString(dst []byte, s string) {
	n := len(s)
	if n > len(dst) {
		n = len(dst)
	}
	copy(dst, s[:n])
}
