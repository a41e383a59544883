package erd

import (
	"encoding/binary"
	"fmt"

	"github.com/openeeg/ktlx/format"
	"github.com/openeeg/ktlx/header"
)

// ChannelSample specifies how one channel is encoded within a sample
// record.
type ChannelSample struct {
	// Wide selects a 16-bit delta slot. Only valid for schemas with a
	// delta mask.
	Wide bool
	// Absolute writes the slot's escape sentinel followed by Value as a
	// trailing 32-bit literal, bypassing the delta chain for this sample.
	Absolute bool
	// Value is the target absolute sample value.
	Value int32
}

// Sample is one fully specified sample record.
type Sample struct {
	Trigger  bool
	Channels []ChannelSample
}

// Encoder builds a bit-exact .erd file image: the schema's header followed
// by delta-compressed sample records. It tracks the previous value per
// channel exactly like the decoder, which makes it the reference peer for
// round-trip tests and fixture files.
type Encoder struct {
	hdr      *header.Header
	numChans int
	prev     []int32
	buf      []byte
	count    int
}

// NewEncoder creates an encoder for raw-data files described by hdr
// (schema >= 7).
func NewEncoder(hdr *header.Header) (*Encoder, error) {
	if !hdr.Schema.HasExtendedHeader() {
		return nil, fmt.Errorf("raw data requires schema >= 7, got %s", hdr.Schema)
	}

	return &Encoder{
		hdr:      hdr,
		numChans: hdr.NumChannels,
		prev:     make([]int32, hdr.NumChannels),
	}, nil
}

// AddSample appends one explicitly specified sample record. The record is
// validated in full before any bytes are emitted, so a failed call leaves
// the stream unchanged.
func (e *Encoder) AddSample(s Sample) error {
	if len(s.Channels) != e.numChans {
		return fmt.Errorf("sample specifies %d channels, file has %d", len(s.Channels), e.numChans)
	}

	hasMask := e.hdr.Schema.HasDeltaMask()
	for c, cs := range s.Channels {
		if cs.Wide && !hasMask {
			return fmt.Errorf("channel %d: wide slots need a delta mask (%s has none)", c, e.hdr.Schema)
		}
		if cs.Absolute {
			continue
		}
		delta := int64(cs.Value) - int64(e.prev[c])
		if cs.Wide {
			if delta < -32768 || delta > 32767 || delta == -1 {
				return fmt.Errorf("channel %d: delta %d does not fit a wide slot", c, delta)
			}
		} else if delta < -127 || delta > 127 {
			// -128 is the narrow escape sentinel.
			return fmt.Errorf("channel %d: delta %d does not fit a narrow slot", c, delta)
		}
	}

	if s.Trigger {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}

	if hasMask {
		maskLen := (e.numChans + 7) / 8
		mask := make([]byte, maskLen)
		// Trailing bits beyond the channel count are filled with ones.
		for bit := e.numChans; bit < maskLen*8; bit++ {
			mask[bit/8] |= 1 << (bit % 8)
		}
		for c, cs := range s.Channels {
			if cs.Wide {
				mask[c/8] |= 1 << (c % 8)
			}
		}
		e.buf = append(e.buf, mask...)
	}

	for c, cs := range s.Channels {
		switch {
		case cs.Absolute && cs.Wide:
			e.buf = binary.LittleEndian.AppendUint16(e.buf, format.EscapeWide)
		case cs.Absolute:
			e.buf = append(e.buf, format.EscapeNarrow)
		case cs.Wide:
			delta := cs.Value - e.prev[c]
			e.buf = binary.LittleEndian.AppendUint16(e.buf, uint16(int16(delta)))
		default:
			delta := cs.Value - e.prev[c]
			e.buf = append(e.buf, byte(int8(delta)))
		}
	}
	for _, cs := range s.Channels {
		if cs.Absolute {
			e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(cs.Value))
		}
	}

	for c, cs := range s.Channels {
		e.prev[c] = cs.Value
	}
	e.count++

	return nil
}

// AddValues appends one sample with the given target values, picking the
// cheapest encoding per channel: narrow delta, then wide delta (schema >=
// 8), then a narrow escape with an absolute literal.
func (e *Encoder) AddValues(values []int32, trigger bool) error {
	if len(values) != e.numChans {
		return fmt.Errorf("sample specifies %d channels, file has %d", len(values), e.numChans)
	}

	hasMask := e.hdr.Schema.HasDeltaMask()
	s := Sample{Trigger: trigger, Channels: make([]ChannelSample, e.numChans)}
	for c, v := range values {
		cs := ChannelSample{Value: v}
		delta := int64(v) - int64(e.prev[c])
		switch {
		case delta >= -127 && delta <= 127:
		case hasMask && delta >= -32768 && delta <= 32767 && delta != -1:
			cs.Wide = true
		default:
			cs.Absolute = true
		}
		s.Channels[c] = cs
	}

	return e.AddSample(s)
}

// SampleCount returns the number of samples encoded so far.
func (e *Encoder) SampleCount() int {
	return e.count
}

// Payload returns the encoded sample records without the file header.
func (e *Encoder) Payload() []byte {
	return e.buf
}

// Bytes returns the complete file image: the serialized header followed by
// the sample records.
func (e *Encoder) Bytes() []byte {
	return append(e.hdr.Bytes(), e.buf...)
}
