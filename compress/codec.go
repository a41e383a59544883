// Package compress provides the payload codecs used by the snapshot
// container. Decoded sample windows are large and repetitive, so optional
// block compression pays off for archival and transfer.
package compress

import (
	"fmt"

	"github.com/openeeg/ktlx/format"
)

// Compressor compresses a complete payload in one call.
//
// The returned slice is newly allocated and owned by the caller; the input
// is never modified.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// Decompressor reverses Compressor. Implementations validate the input
// format and fail on corrupted or mismatched data.
type Decompressor interface {
	Decompress(data []byte) ([]byte, error)
}

// Codec combines both directions. All codecs in this package are safe for
// concurrent use.
type Codec interface {
	Compressor
	Decompressor
}

var builtinCodecs = map[format.CompressionType]Codec{
	format.CompressionNone: NewNoOpCompressor(),
	format.CompressionZstd: NewZstdCompressor(),
	format.CompressionS2:   NewS2Compressor(),
	format.CompressionLZ4:  NewLZ4Compressor(),
}

// GetCodec retrieves the built-in Codec for the given compression type.
func GetCodec(compressionType format.CompressionType) (Codec, error) {
	if codec, ok := builtinCodecs[compressionType]; ok {
		return codec, nil
	}

	return nil, fmt.Errorf("unsupported compression type: %s", compressionType)
}
