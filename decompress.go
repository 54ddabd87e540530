package payload_dumper

import (
	"bytes"
	"io"

	"github.com/DataDog/zstd"
	"github.com/andybalholm/brotli"
	"github.com/dsnet/compress/bzip2"
	"github.com/ulikunitz/xz"
)

// The decompressors share one contract: whole compressed slice in, whole
// decompressed slice out. Nothing streams to the output file; the executor
// writes the result in a single positional write.

// DecompressXZ inflates an XZ stream. Concatenated streams are accepted and
// there is no decoder memory limit.
func DecompressXZ(data []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

// DecompressBZ2 inflates a bzip2 stream.
func DecompressBZ2(data []byte) ([]byte, error) {
	r, err := bzip2.NewReader(bytes.NewReader(data), nil)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// DecompressZstd inflates a Zstandard frame. The frame-declared content
// size, when present, sizes the output buffer up front.
func DecompressZstd(data []byte) ([]byte, error) {
	return zstd.Decompress(nil, data)
}

// DecompressBrotli inflates a Brotli stream. No install operation dispatches
// to it today; it is kept wired for BROTLI_BSDIFF payload data.
func DecompressBrotli(data []byte) ([]byte, error) {
	return io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
}
