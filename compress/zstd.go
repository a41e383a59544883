package compress

// ZstdCompressor favors compression ratio; the natural choice for
// long-term archival of exported windows.
//
// Two implementations exist: the default pure-Go one and a cgo binding
// selected with the ktlx_cgo_zstd build tag.
type ZstdCompressor struct{}

var _ Codec = (*ZstdCompressor)(nil)

// NewZstdCompressor creates a new Zstd codec.
func NewZstdCompressor() ZstdCompressor {
	return ZstdCompressor{}
}
