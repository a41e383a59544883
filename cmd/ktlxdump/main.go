// ktlxdump inspects KTLX recordings and exports sample windows.
//
// Without -out it prints a summary of the recording's header and segment
// index. With -out it decodes the requested window and writes it as a
// snapshot container, optionally alongside a YAML manifest describing the
// export.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openeeg/ktlx"
	"github.com/openeeg/ktlx/format"
	"github.com/openeeg/ktlx/snapshot"
)

var (
	dir          string
	base         string
	channelsFlag string
	begin        int64
	end          int64
	outPath      string
	manifestPath string
	compression  string
	lenient      bool
	verbose      bool
)

func init() {
	flag.StringVar(&dir, "dir", "", "Recording directory (required)")
	flag.StringVar(&base, "base", "", "Recording base name (defaults to the single .stc file in -dir)")
	flag.StringVar(&channelsFlag, "channels", "", "Comma-separated channel indices to export (defaults to all)")
	flag.Int64Var(&begin, "begin", 0, "First sample of the export window")
	flag.Int64Var(&end, "end", -1, "One past the last sample of the export window (defaults to the recording end)")
	flag.StringVar(&outPath, "out", "", "Snapshot output file; omit to only print a summary")
	flag.StringVar(&manifestPath, "manifest", "", "Optional YAML manifest describing the export")
	flag.StringVar(&compression, "compression", "zstd", "Snapshot payload compression: none, zstd, s2 or lz4")
	flag.BoolVar(&lenient, "lenient", false, "Log corrupt event bytes and continue instead of failing")
	flag.BoolVar(&verbose, "v", false, "Debug logging")
}

// manifest is the YAML sidecar written next to an export.
type manifest struct {
	Recording   string    `yaml:"recording"`
	ExportedAt  time.Time `yaml:"exported_at"`
	SampleRate  float64   `yaml:"sample_rate"`
	Channels    []int     `yaml:"channels"`
	BeginSample int64     `yaml:"begin_sample"`
	EndSample   int64     `yaml:"end_sample"`
	Compression string    `yaml:"compression"`
	Output      string    `yaml:"output"`
}

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if dir == "" {
		fmt.Fprintln(os.Stderr, "Error: -dir is required")
		flag.Usage()
		os.Exit(1)
	}

	if err := run(); err != nil {
		slog.Error("ktlxdump failed", "err", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var opts []ktlx.Option
	if lenient {
		opts = append(opts, ktlx.WithLenientEvents())
	}

	var (
		rec *ktlx.Recording
		err error
	)
	if base != "" {
		rec, err = ktlx.OpenBase(dir, base, opts...)
	} else {
		rec, err = ktlx.Open(dir, opts...)
	}
	if err != nil {
		return fmt.Errorf("open recording: %w", err)
	}

	if outPath == "" {
		printSummary(rec)
		return nil
	}

	return export(ctx, rec)
}

func printSummary(rec *ktlx.Recording) {
	hdr := rec.Header()
	fmt.Printf("schema:        %s\n", hdr.Schema)
	fmt.Printf("created:       %s\n", rec.StartTime().Format(time.RFC3339))
	fmt.Printf("sample rate:   %g Hz\n", rec.SampleRate())
	fmt.Printf("channels:      %d\n", rec.NumChannels())
	fmt.Printf("total samples: %d (%.1fs)\n",
		rec.TotalSamples(), float64(rec.TotalSamples())/rec.SampleRate())
	fmt.Printf("segments:      %d\n", rec.SegmentCount())
	fmt.Printf("headbox:       type %d, serial %d, %q\n",
		hdr.HeadboxTypes[0], hdr.HeadboxSerials[0], hdr.HeadboxSoftware)
	for i, e := range rec.Index().Entries() {
		fmt.Printf("  segment %3d: %-40s samples [%d, %d)\n",
			i, e.SegmentName, e.SampleOffset, e.SampleOffset+e.SampleSpan)
	}
}

func export(ctx context.Context, rec *ktlx.Recording) error {
	comp, ok := format.ParseCompressionType(compression)
	if !ok {
		return fmt.Errorf("unknown compression %q", compression)
	}

	channels, err := parseChannels(channelsFlag, rec.NumChannels())
	if err != nil {
		return err
	}

	last := end
	if last < 0 {
		last = rec.TotalSamples()
	}

	slog.Info("exporting window",
		"channels", len(channels), "begin", begin, "end", last, "compression", comp.String())

	values, err := rec.Read(ctx, channels, begin, last)
	if err != nil {
		return fmt.Errorf("read window: %w", err)
	}

	snap := &snapshot.Snapshot{
		StartSample: begin,
		SampleRate:  rec.SampleRate(),
		Channels:    channels,
		Values:      values,
	}
	data, err := snapshot.Encode(snap, comp)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return err
	}
	slog.Info("snapshot written", "path", outPath, "bytes", len(data))

	if manifestPath == "" {
		return nil
	}

	m := manifest{
		Recording:   dir,
		ExportedAt:  time.Now().UTC(),
		SampleRate:  rec.SampleRate(),
		Channels:    channels,
		BeginSample: begin,
		EndSample:   last,
		Compression: comp.String(),
		Output:      outPath,
	}
	out, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath, out, 0o644); err != nil {
		return err
	}
	slog.Info("manifest written", "path", manifestPath)

	return nil
}

// parseChannels parses the -channels flag; empty means all channels.
func parseChannels(s string, numChannels int) ([]int, error) {
	if s == "" {
		channels := make([]int, numChannels)
		for i := range channels {
			channels[i] = i
		}
		return channels, nil
	}

	parts := strings.Split(s, ",")
	channels := make([]int, 0, len(parts))
	for _, p := range parts {
		ch, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("bad channel list %q: %w", s, err)
		}
		channels = append(channels, ch)
	}

	return channels, nil
}
