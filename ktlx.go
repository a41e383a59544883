// Package ktlx provides random access to segmented KTLX EEG recordings.
//
// A recording is a directory of files sharing one base name: a segment
// table of contents (.stc) plus one raw-data/table-of-contents pair
// (.erd/.etc) per segment. Sample values are delta-compressed per channel
// with periodic absolute-value escapes; segments bound individual file
// size so multi-gigabyte recordings stay seekable.
//
// Basic usage:
//
//	rec, err := ktlx.Open("/data/MG59")
//	if err != nil {
//	    return err
//	}
//	// 10 seconds of channels 2 and 5, in volts.
//	n := int64(10 * rec.SampleRate())
//	data, err := rec.Read(ctx, []int{2, 5}, 0, n)
//
// The handle is immutable after Open and safe for concurrent reads. The
// demographics (.eeg), notes (.ent), synchronization (.snc) and video
// files of the family are outside this package; their readers consume
// this handle's metadata and read results only.
package ktlx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openeeg/ktlx/erd"
	"github.com/openeeg/ktlx/errs"
	"github.com/openeeg/ktlx/header"
	"github.com/openeeg/ktlx/internal/pool"
	"github.com/openeeg/ktlx/stc"
)

// Recording is an open handle to one recording. All metadata is read once
// at open time; Read and ReadRaw share no mutable state.
type Recording struct {
	dir     string
	base    string
	hdr     *header.Header
	index   *stc.Index
	factors []float64
	lenient bool
	logger  *slog.Logger
}

// Option configures a Recording at open time.
type Option func(*Recording)

// WithLenientEvents makes reads log corrupt event bytes and continue
// instead of failing. See erd.WithLenientEvents.
func WithLenientEvents() Option {
	return func(r *Recording) { r.lenient = true }
}

// WithLogger sets the logger used by lenient-mode decoding.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recording) { r.logger = l }
}

// Open locates the single .stc file in dir and opens the recording it
// describes. Any header or index failure aborts the open; no partially
// initialized handle is returned.
func Open(dir string, opts ...Option) (*Recording, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.stc"))
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("ktlx: no .stc file in %s: %w", dir, os.ErrNotExist)
	case 1:
	default:
		return nil, fmt.Errorf("ktlx: found %d .stc files in %s, expected one", len(matches), dir)
	}

	base := strings.TrimSuffix(filepath.Base(matches[0]), ".stc")

	return OpenBase(dir, base, opts...)
}

// OpenBase opens the recording with the given base file name in dir,
// skipping the directory scan.
func OpenBase(dir, base string, opts ...Option) (*Recording, error) {
	r := &Recording{dir: dir, base: base}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}

	index, err := stc.Read(filepath.Join(dir, base+".stc"))
	if err != nil {
		return nil, err
	}
	if index.Len() == 0 {
		return nil, fmt.Errorf("%w: %s.stc lists no segments", errs.ErrIndexInconsistent, base)
	}

	// The sampling metadata lives in the raw-data headers; read it from
	// the first segment.
	hdr, err := header.Read(r.segmentPath(index.Entry(0)))
	if err != nil {
		return nil, err
	}
	if !hdr.Schema.HasExtendedHeader() {
		return nil, fmt.Errorf("%w: raw data requires schema >= 7, got %s",
			errs.ErrUnsupportedSchema, hdr.Schema)
	}

	factors, err := hdr.ConversionFactors()
	if err != nil {
		return nil, err
	}

	r.hdr = hdr
	r.index = index
	r.factors = factors

	return r, nil
}

// SampleRate returns the sampling frequency in Hz.
func (r *Recording) SampleRate() float64 {
	return r.hdr.SampleRate
}

// NumChannels returns the number of recorded channels.
func (r *Recording) NumChannels() int {
	return r.hdr.NumChannels
}

// TotalSamples returns the recording length in samples, the sum of all
// segment spans.
func (r *Recording) TotalSamples() int64 {
	return r.index.TotalSamples()
}

// StartTime returns the creation time of the recording.
func (r *Recording) StartTime() time.Time {
	return r.hdr.CreationTime
}

// SegmentCount returns the number of raw-data segments.
func (r *Recording) SegmentCount() int {
	return r.index.Len()
}

// Header returns the raw-data header of the first segment. The caller
// must treat it as read-only.
func (r *Recording) Header() *header.Header {
	return r.hdr
}

// Index returns the segment table of contents. The caller must treat it
// as read-only.
func (r *Recording) Index() *stc.Index {
	return r.index
}

// ConversionFactors returns a copy of the per-channel raw-count-to-volts
// scale vector.
func (r *Recording) ConversionFactors() []float64 {
	return append([]float64(nil), r.factors...)
}

// Read returns the requested sample window in physical units (volts),
// one row per entry of channels, in request order, with exactly end-begin
// samples per row.
//
// On context cancellation the rows assembled so far are returned together
// with the context's error; unfilled regions are zero.
func (r *Recording) Read(ctx context.Context, channels []int, begin, end int64) ([][]float64, error) {
	raw, err := r.ReadRaw(ctx, channels, begin, end)
	if raw == nil {
		return nil, err
	}

	out := make([][]float64, len(channels))
	for i, ch := range channels {
		factor := r.factors[ch]
		row := make([]float64, len(raw[i]))
		for s, v := range raw[i] {
			row[s] = float64(v) * factor
		}
		out[i] = row
	}

	return out, err
}

// ReadRaw is Read without the physical-unit conversion: it returns raw
// integer counts exactly as decoded.
func (r *Recording) ReadRaw(ctx context.Context, channels []int, begin, end int64) ([][]int32, error) {
	if err := r.checkRange(channels, begin, end); err != nil {
		return nil, err
	}

	out := make([][]int32, len(channels))
	for i := range out {
		out[i] = make([]int32, end-begin)
	}
	if begin == end {
		return out, nil
	}

	// Range already validated, lookups cannot fail.
	first, _ := r.index.Lookup(begin)
	last, _ := r.index.Lookup(end - 1)

	buf := pool.GetByteBuffer()
	defer pool.PutByteBuffer(buf)

	var written int64
	for seg := first; seg <= last; seg++ {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}

		entry := r.index.Entry(seg)
		localBegin, localEnd := int64(0), entry.SampleSpan
		if seg == first {
			localBegin = begin - entry.SampleOffset
		}
		if seg == last {
			localEnd = end - entry.SampleOffset
		}

		// Decoding the prefix up to localEnd suffices; nothing past the
		// requested range is decoded.
		res, err := r.decodeSegment(entry, channels, int(localEnd), buf)
		if err != nil {
			return nil, err
		}
		if int64(res.SampleCount) < localEnd {
			return out, fmt.Errorf("%w: segment %s holds %d of the %d samples its index entry spans",
				errs.ErrTruncated, entry.SegmentName, res.SampleCount, localEnd)
		}

		for i, ch := range channels {
			copy(out[i][written:], res.Values[ch][localBegin:localEnd])
		}
		written += localEnd - localBegin
	}

	return out, nil
}

// decodeSegment reads one segment file and decodes its first upTo samples.
// The raw bytes live in buf, so at most one segment's file content is held
// at a time; the decoded matrix is returned to the caller.
func (r *Recording) decodeSegment(entry stc.Entry, channels []int, upTo int, buf *pool.ByteBuffer) (*erd.Result, error) {
	path := r.segmentPath(entry)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	b := buf.Resize(int(fi.Size()))
	if _, err := io.ReadFull(f, b); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	// Each segment carries its own header; trust it for the stream
	// layout but hold it to the recording's channel count.
	hdr, err := header.Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if hdr.NumChannels != r.hdr.NumChannels {
		return nil, fmt.Errorf("%s: segment has %d channels, recording has %d",
			path, hdr.NumChannels, r.hdr.NumChannels)
	}

	opts := []erd.Option{erd.WithChannels(channels), erd.WithLogger(r.logger)}
	if r.lenient {
		opts = append(opts, erd.WithLenientEvents())
	}
	dec, err := erd.NewDecoder(hdr, opts...)
	if err != nil {
		return nil, err
	}

	return dec.Decode(b[hdr.Schema.HeaderSize():], upTo)
}

// segmentPath resolves the raw-data file of a segment. Entries name their
// file pair; an empty name falls back to the recording base name.
func (r *Recording) segmentPath(entry stc.Entry) string {
	name := entry.SegmentName
	if name == "" {
		name = r.base
	}

	return filepath.Join(r.dir, name+".erd")
}

func (r *Recording) checkRange(channels []int, begin, end int64) error {
	if begin < 0 || end < begin || end > r.index.TotalSamples() {
		return fmt.Errorf("%w: samples [%d, %d) of %d",
			errs.ErrOutOfRange, begin, end, r.index.TotalSamples())
	}
	for _, ch := range channels {
		if ch < 0 || ch >= r.hdr.NumChannels {
			return fmt.Errorf("%w: channel %d of %d", errs.ErrOutOfRange, ch, r.hdr.NumChannels)
		}
	}

	return nil
}
