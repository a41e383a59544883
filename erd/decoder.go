// Package erd decodes and encodes the delta-compressed sample stream of
// KTLX raw-data (.erd) files.
//
// The stream is a sequence of per-sample records: an event byte, a
// per-channel width mask (schema >= 8), one narrow (8-bit) or wide (16-bit)
// signed delta per channel, and a trailing 32-bit absolute value for every
// channel whose delta slot held its width's escape sentinel. Each channel's
// delta is relative to that channel's previous value within the segment, so
// decoding always starts at the segment's first sample.
package erd

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/openeeg/ktlx/errs"
	"github.com/openeeg/ktlx/format"
	"github.com/openeeg/ktlx/header"
)

// Result is the outcome of one segment decode.
type Result struct {
	// Values holds one row per channel in file channel order. When the
	// decoder was built with WithChannels, unrequested rows are nil.
	// Rows are trimmed to SampleCount.
	Values [][]int32

	// SampleCount is the number of fully decoded samples.
	SampleCount int

	// Truncated reports that the stream ended before the requested sample
	// count. This is the normal end-of-segment condition for segment
	// files that hold fewer samples than nominal, not an error.
	Truncated bool

	// Triggers lists the sample indices whose event byte flagged an
	// external trigger.
	Triggers []int
}

// Decoder turns a segment's raw byte stream into a channel-by-sample
// integer matrix. A Decoder is stateless across Decode calls and safe to
// reuse; a single Decode call is inherently sequential.
//
// The output is raw integer counts. Physical-unit conversion is the
// caller's job, via header.ConversionFactors.
type Decoder struct {
	schema   format.Schema
	numChans int
	lenient  bool
	logger   *slog.Logger
	channels []int
	want     []bool // nil when every channel is materialized
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithLenientEvents makes the decoder log corrupt event bytes and treat
// them as "no trigger" instead of failing. The default is strict.
func WithLenientEvents() Option {
	return func(d *Decoder) { d.lenient = true }
}

// WithLogger sets the logger used by the lenient event-byte path.
func WithLogger(l *slog.Logger) Option {
	return func(d *Decoder) { d.logger = l }
}

// WithChannels restricts which channels get output rows. Every channel's
// slot in the stream is still consumed regardless, because skipping a slot
// would desynchronize the cursor for everything after it; only the output
// storage is elided.
func WithChannels(channels []int) Option {
	return func(d *Decoder) { d.channels = channels }
}

// NewDecoder creates a decoder for segments described by hdr, which must
// be a raw-data header (schema >= 7).
func NewDecoder(hdr *header.Header, opts ...Option) (*Decoder, error) {
	if !hdr.Schema.HasExtendedHeader() {
		return nil, fmt.Errorf("%w: raw data requires schema >= 7, got %s",
			errs.ErrUnsupportedSchema, hdr.Schema)
	}

	d := &Decoder{
		schema:   hdr.Schema,
		numChans: hdr.NumChannels,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}

	if d.channels != nil {
		d.want = make([]bool, d.numChans)
		for _, ch := range d.channels {
			if ch < 0 || ch >= d.numChans {
				return nil, fmt.Errorf("%w: channel %d of %d", errs.ErrOutOfRange, ch, d.numChans)
			}
			d.want[ch] = true
		}
	}

	return d, nil
}

// Decode decodes up to maxSamples samples from data, the byte stream that
// follows the file header. A stream that runs out mid-record yields the
// fully decoded samples so far with Truncated set; partially decoded
// samples are discarded, never zero-filled.
func (d *Decoder) Decode(data []byte, maxSamples int) (*Result, error) {
	if maxSamples < 0 {
		maxSamples = 0
	}

	maskLen := 0
	if d.schema.HasDeltaMask() {
		maskLen = (d.numChans + 7) / 8
	}

	values := make([][]int32, d.numChans)
	for c := range values {
		if d.want == nil || d.want[c] {
			values[c] = make([]int32, maxSamples)
		}
	}

	// Loop-carried decoder state: previous absolute value per channel.
	prev := make([]int32, d.numChans)
	cur := make([]int32, d.numChans)
	pending := make([]bool, d.numChans)

	res := &Result{Values: values}
	pos := 0
	for res.SampleCount < maxSamples {
		n, trigger, err := d.decodeSample(data[pos:], maskLen, prev, cur, pending, pos, res.SampleCount)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			break // record incomplete, stream exhausted
		}
		pos += n

		if trigger {
			res.Triggers = append(res.Triggers, res.SampleCount)
		}
		for c := 0; c < d.numChans; c++ {
			prev[c] = cur[c]
			if values[c] != nil {
				values[c][res.SampleCount] = cur[c]
			}
		}
		res.SampleCount++
	}

	res.Truncated = res.SampleCount < maxSamples
	for c := range values {
		if values[c] != nil {
			values[c] = values[c][:res.SampleCount]
		}
	}

	return res, nil
}

// decodeSample decodes one sample record from buf into cur. It returns the
// bytes consumed, or -1 when buf holds less than one full record. prev is
// read but never written; the caller commits cur only on success.
func (d *Decoder) decodeSample(buf []byte, maskLen int, prev, cur []int32, pending []bool, base, sample int) (int, bool, error) {
	pos := 0
	if pos >= len(buf) {
		return -1, false, nil
	}

	ev := buf[pos]
	pos++
	if ev != 0 && ev != 1 {
		if !d.lenient {
			return 0, false, fmt.Errorf("%w: 0x%02x at stream offset %d (sample %d)",
				errs.ErrBadEventByte, ev, base, sample)
		}
		d.logger.Warn("bad event byte, treating as no trigger",
			"value", ev, "offset", base, "sample", sample)
		ev = 0
	}

	var mask []byte
	if maskLen > 0 {
		if pos+maskLen > len(buf) {
			return -1, false, nil
		}
		mask = buf[pos : pos+maskLen]
		pos += maskLen
	}

	// Delta slots. Bits are taken least-significant-first, concatenated
	// across mask bytes; no mask means every channel is narrow.
	pendingAny := false
	for c := 0; c < d.numChans; c++ {
		pending[c] = false
		if mask != nil && mask[c/8]&(1<<(c%8)) != 0 {
			if pos+2 > len(buf) {
				return -1, false, nil
			}
			raw := binary.LittleEndian.Uint16(buf[pos:])
			pos += 2
			if raw == format.EscapeWide {
				pending[c] = true
				pendingAny = true
			} else {
				cur[c] = prev[c] + int32(int16(raw))
			}
		} else {
			if pos >= len(buf) {
				return -1, false, nil
			}
			raw := buf[pos]
			pos++
			if raw == format.EscapeNarrow {
				pending[c] = true
				pendingAny = true
			} else {
				cur[c] = prev[c] + int32(int8(raw))
			}
		}
	}

	// Absolute values for escaped channels, in channel order. These
	// override the delta chain for this sample only.
	if pendingAny {
		for c := 0; c < d.numChans; c++ {
			if !pending[c] {
				continue
			}
			if pos+4 > len(buf) {
				return -1, false, nil
			}
			cur[c] = int32(binary.LittleEndian.Uint32(buf[pos:]))
			pos += 4
		}
	}

	return pos, ev == 1, nil
}
