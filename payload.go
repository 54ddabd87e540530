// Package payload_dumper extracts partition images from Android A/B OTA
// payload.bin containers. The payload may be a raw file, a local ZIP archive
// or a remote ZIP served by a range-capable HTTP origin.
package payload_dumper

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/affggh/payload_dumper/update_metadata"
	"github.com/dustin/go-humanize"
	"github.com/panjf2000/ants/v2"
)

var Logger = log.New(os.Stdout, "- ", 0)

func badPayload(msg any) error {
	switch msg := msg.(type) {
	case string:
		return errors.New("invalid payload: " + msg)
	default:
		return fmt.Errorf("invalid payload: %v", msg)
	}
}

const PAYLOAD_MAGIC = "CrAU"

// MAX_THREADS caps the partition worker pool.
const MAX_THREADS = 8

// PayloadCommonHdr is the fixed big-endian prefix of every payload: magic,
// file format version, manifest length and metadata signature length. The
// data region starts right after the manifest and its signature.
type PayloadCommonHdr struct {
	Magic          [4]byte
	Version        uint64
	ManifestLen    uint64
	ManifestSigLen uint32
}

const payloadHdrLen = 24

// Payload is a parsed payload envelope bound to its byte source. All reads
// against the source go through a mutex; the source itself is never assumed
// safe for concurrent access.
type Payload struct {
	r  io.ReaderAt
	mu sync.Mutex

	Header     PayloadCommonHdr
	Manifest   *update_metadata.DeltaArchiveManifest
	DataOffset uint64

	// Progress overrides the renderer picked at extraction time. Leave nil
	// for the default (multi-line on terminals, one aggregate bar otherwise),
	// set NoProgress to silence it.
	Progress ProgressRenderer
}

func readFullAt(r io.ReaderAt, buf []byte, off int64) error {
	n, err := r.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return err
}

// InitPayloadInfo parses the payload envelope and manifest from r. Offsets
// in r are payload-relative: ZIP sources must already be unwrapped by
// OpenPayloadSource or NewZipPayloadReader.
func InitPayloadInfo(r io.ReaderAt) (*Payload, error) {
	hdr := PayloadCommonHdr{}
	if err := binary.Read(io.NewSectionReader(r, 0, payloadHdrLen), binary.BigEndian, &hdr); err != nil {
		return nil, badPayload(err)
	}

	if !bytes.Equal(hdr.Magic[:], []byte(PAYLOAD_MAGIC)) {
		return nil, badPayload("invalid magic")
	}
	if hdr.Version != 2 {
		return nil, badPayload("unsupported version: " + strconv.FormatUint(hdr.Version, 10))
	}
	if hdr.ManifestLen == 0 {
		return nil, badPayload("manifest length is zero")
	}

	buf := make([]byte, hdr.ManifestLen)
	if err := readFullAt(r, buf, payloadHdrLen); err != nil {
		return nil, badPayload(fmt.Sprintf("short read on manifest: %v", err))
	}

	manifest := new(update_metadata.DeltaArchiveManifest)
	if err := manifest.Unmarshal(buf); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	return &Payload{
		r:          r,
		Header:     hdr,
		Manifest:   manifest,
		DataOffset: payloadHdrLen + hdr.ManifestLen + uint64(hdr.ManifestSigLen),
	}, nil
}

// readData fetches one operation's slice from the data region. The mutex
// serializes every read so the source never sees overlapping requests.
func (p *Payload) readData(off, n uint64) ([]byte, error) {
	buf := make([]byte, n)
	p.mu.Lock()
	err := readFullAt(p.r, buf, int64(off))
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// NormalizeWorkers applies the worker-count policy for explicit requests:
// anything outside [1, MAX_THREADS] falls back to 4.
func NormalizeWorkers(n int) int {
	if n <= 0 || n > MAX_THREADS {
		return 4
	}
	return n
}

// DefaultWorkers derives the worker count from the host CPU count, clamped
// to [1, MAX_THREADS].
func DefaultWorkers() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 4
	}
	if n > MAX_THREADS {
		return MAX_THREADS
	}
	return n
}

// filterPartitions keeps the partitions whose name occurs inside the joined
// inclusion list. The substring match mirrors the historical behavior:
// --images=boot_a also selects a partition named boot.
func filterPartitions(parts []*update_metadata.PartitionUpdate, images []string) []*update_metadata.PartitionUpdate {
	if len(images) == 0 {
		return parts
	}
	list := strings.Join(images, ",")
	var out []*update_metadata.PartitionUpdate
	for _, part := range parts {
		if strings.Contains(list, part.GetPartitionName()) {
			out = append(out, part)
		}
	}
	return out
}

// ExtractPartitions writes one <name>.img per selected partition into
// outdir. Partitions are distributed over a fixed worker pool; operations
// within one partition run in manifest order on a single worker. Operation
// failures are logged and do not abort the run.
func (p *Payload) ExtractPartitions(images []string, outdir string, workers int) error {
	queue := filterPartitions(p.Manifest.GetPartitions(), images)

	if err := os.MkdirAll(outdir, 0o755); err != nil {
		return err
	}

	if len(queue) == 0 {
		fmt.Println("\nExtraction completed!")
		return nil
	}

	workers = NormalizeWorkers(workers)
	if len(queue) < workers {
		workers = len(queue)
	}

	tracker := newProgressTracker(queue, workers, p.Progress)

	pool, err := ants.NewPool(workers)
	if err != nil {
		return err
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, part := range queue {
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			p.extractPartition(part, i, outdir, tracker)
		}); err != nil {
			wg.Done()
			Logger.Printf("Failed to schedule partition %s: %v", part.GetPartitionName(), err)
		}
	}
	wg.Wait()

	fmt.Println("\nExtraction completed!")
	return nil
}

func (p *Payload) extractPartition(part *update_metadata.PartitionUpdate, idx int, outdir string, tracker *progressTracker) {
	name := part.GetPartitionName()
	outPath := filepath.Join(outdir, name+".img")

	out, err := os.Create(outPath)
	if err != nil {
		Logger.Printf("Failed to create output file: %s: %v", outPath, err)
		return
	}
	defer out.Close()

	for _, op := range part.GetOperations() {
		if err := p.processOperation(op, out); err != nil {
			Logger.Printf("Operation %s failed on %s: %v", op.GetType(), name, err)
		}
		tracker.opDone(idx)
	}
}

// ExtractPartitionsFromPayload parses the envelope in r and extracts the
// selected partitions in one call.
func ExtractPartitionsFromPayload(r io.ReaderAt, images []string, outdir string, workers int) error {
	p, err := InitPayloadInfo(r)
	if err != nil {
		return err
	}
	return p.ExtractPartitions(images, outdir, workers)
}

// PartitionSize reports the output image size in bytes: the authoritative
// new_partition_info size when the manifest carries one, otherwise the byte
// offset just past the highest destination extent.
func PartitionSize(part *update_metadata.PartitionUpdate, blockSize uint32) uint64 {
	var maxEndBlock uint64
	for _, op := range part.GetOperations() {
		for _, ext := range op.GetDstExtents() {
			if end := ext.GetStartBlock() + ext.GetNumBlocks(); end > maxEndBlock {
				maxEndBlock = end
			}
		}
	}
	size := maxEndBlock * uint64(blockSize)
	if info := part.GetNewPartitionInfo(); info != nil && info.Size != nil {
		size = info.GetSize()
	}
	return size
}

// WritePartitionsInfo renders the partition table for --list.
func WritePartitionsInfo(w io.Writer, manifest *update_metadata.DeltaArchiveManifest, images []string) {
	parts := filterPartitions(manifest.GetPartitions(), images)
	sep := strings.Repeat("─", 49)

	fmt.Fprintln(w, "Available partitions:")
	fmt.Fprintf(w, "%-50s\n", sep)
	fmt.Fprintf(w, "%-20s %-15s %-15s\n", "Partition Name", "Size", "Size (bytes)")
	fmt.Fprintf(w, "%-50s\n", sep)

	var total uint64
	for _, part := range parts {
		size := PartitionSize(part, manifest.GetBlockSize())
		total += size
		fmt.Fprintf(w, "%-20s %-15s %-15d\n", part.GetPartitionName(), humanize.IBytes(size), size)
	}

	fmt.Fprintf(w, "%-50s\n", sep)
	fmt.Fprintf(w, "%-20s %-15s %-15d\n", "Total", humanize.IBytes(total), total)
	fmt.Fprintf(w, "\nTotal partitions: %d\n", len(parts))
	fmt.Fprintf(w, "Block size: %d bytes\n", manifest.GetBlockSize())
}

// PrintPartitionsInfo writes the partition table to stdout.
func PrintPartitionsInfo(manifest *update_metadata.DeltaArchiveManifest, images []string) {
	WritePartitionsInfo(os.Stdout, manifest, images)
}
