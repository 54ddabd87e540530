package payload_dumper

import (
	"errors"
	"fmt"
	"os"

	"github.com/affggh/payload_dumper/update_metadata"
)

// processOperation applies one install operation to the output image. The
// payload slice, if any, is fetched through the serialized byte source;
// destination offsets are always written with 64-bit positional writes so
// partitions past 2 GiB land where the manifest says.
func (p *Payload) processOperation(op *update_metadata.InstallOperation, out *os.File) error {
	blockSize := uint64(p.Manifest.GetBlockSize())

	var data []byte
	if op.GetDataLength() > 0 {
		var err error
		data, err = p.readData(p.DataOffset+op.GetDataOffset(), op.GetDataLength())
		if err != nil {
			return fmt.Errorf("read operation data: %w", err)
		}
	}

	switch op.GetType() {
	case update_metadata.InstallOperation_REPLACE:
		return writeToFirstExtent(out, op, blockSize, data)

	case update_metadata.InstallOperation_REPLACE_XZ:
		decompressed, err := DecompressXZ(data)
		if err != nil {
			return fmt.Errorf("xz: %w", err)
		}
		return writeToFirstExtent(out, op, blockSize, decompressed)

	case update_metadata.InstallOperation_REPLACE_BZ:
		decompressed, err := DecompressBZ2(data)
		if err != nil {
			return fmt.Errorf("bzip2: %w", err)
		}
		return writeToFirstExtent(out, op, blockSize, decompressed)

	case update_metadata.InstallOperation_ZSTD:
		decompressed, err := DecompressZstd(data)
		if err != nil {
			return fmt.Errorf("zstd: %w", err)
		}
		return writeToFirstExtent(out, op, blockSize, decompressed)

	case update_metadata.InstallOperation_ZERO:
		for _, ext := range op.GetDstExtents() {
			zero := make([]byte, ext.GetNumBlocks()*blockSize)
			if _, err := out.WriteAt(zero, int64(ext.GetStartBlock()*blockSize)); err != nil {
				return err
			}
		}
		return nil

	default:
		Logger.Printf("Unsupported operation type: %d", op.GetType())
		return nil
	}
}

// writeToFirstExtent places the produced bytes at the first destination
// extent's block offset; REPLACE-family operations carry their whole output
// as one contiguous run.
func writeToFirstExtent(out *os.File, op *update_metadata.InstallOperation, blockSize uint64, data []byte) error {
	extents := op.GetDstExtents()
	if len(extents) == 0 {
		return errors.New("operation has no destination extents")
	}
	_, err := out.WriteAt(data, int64(extents[0].GetStartBlock()*blockSize))
	return err
}
