package payload_dumper

import (
	"archive/zip"
	"errors"
	"io"
	"strings"
	"sync"
)

// ZipPayloadReader exposes the payload.bin member of a ZIP archive as an
// io.ReaderAt with payload-relative offsets. A stored entry maps straight
// onto byte ranges of the underlying reader; a deflated entry is served from
// a reusable sequential inflate stream that only reopens when a read jumps
// backwards.
type ZipPayloadReader struct {
	zf *zip.File
	or io.ReaderAt // origin reader

	dataoff int64 // first content byte, store method fast path

	stream       io.ReadCloser
	streamOffset int64

	mu sync.Mutex
}

// NewZipPayloadReader parses the archive's central directory and locates the
// payload.bin member by name suffix.
func NewZipPayloadReader(reader io.ReaderAt, size int64) (*ZipPayloadReader, error) {
	zr, err := zip.NewReader(reader, size)
	if err != nil {
		return nil, err
	}

	var zf *zip.File = nil
	for _, file := range zr.File {
		if strings.HasSuffix(file.Name, "payload.bin") {
			zf = file
			break // save time
		}
	}
	if zf == nil {
		return nil, errors.New("could not found payload.bin in zip file")
	}

	dataoff, err := zf.DataOffset()
	if err != nil {
		return nil, errors.New("could not found payload.bin data offset")
	}

	Logger.Println("Zip compress method:", func() string {
		if zf.Method == zip.Store {
			return "Store"
		}
		return "Deflate"
	}())

	return &ZipPayloadReader{
		zf:      zf,
		or:      reader,
		dataoff: dataoff,
	}, nil
}

// Stored reports whether the payload entry is stored uncompressed, i.e. raw
// byte ranges of the archive equal payload bytes.
func (r *ZipPayloadReader) Stored() bool {
	return r.zf.Method == zip.Store
}

// DataOffset is the archive offset of the entry's first content byte.
func (r *ZipPayloadReader) DataOffset() int64 {
	return r.dataoff
}

// Size is the entry's uncompressed length.
func (r *ZipPayloadReader) Size() int64 {
	return int64(r.zf.UncompressedSize64)
}

func (r *ZipPayloadReader) ReadAt(p []byte, off int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := int64(r.zf.UncompressedSize64)
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 || off >= size {
		return 0, io.EOF
	}

	want := p
	short := false
	if off+int64(len(p)) > size {
		want = p[:size-off]
		short = true
	}

	var n int
	var err error
	if r.zf.Method == zip.Store {
		n, err = r.or.ReadAt(want, r.dataoff+off)
	} else {
		n, err = r.readCompressed(want, off)
	}
	if err == nil && short {
		err = io.EOF
	}
	return n, err
}

// readCompressed serves a deflated entry. The inflate stream is kept open
// across calls and reused whenever reads continue where the last one ended;
// anything else pays a reopen plus a discard of the leading bytes.
func (r *ZipPayloadReader) readCompressed(p []byte, off int64) (int, error) {
	if r.stream == nil || r.streamOffset != off {
		if r.stream != nil {
			r.stream.Close()
			r.stream = nil
		}
		stream, err := r.zf.Open()
		if err != nil {
			return 0, err
		}
		if _, err := io.CopyN(io.Discard, stream, off); err != nil {
			stream.Close()
			return 0, err
		}
		r.stream = stream
		r.streamOffset = off
	}

	n, err := io.ReadFull(r.stream, p)
	r.streamOffset += int64(n)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		// Entry ended early; the stream is no longer trustworthy.
		r.stream.Close()
		r.stream = nil
		return n, io.ErrUnexpectedEOF
	}
	return n, err
}

func (r *ZipPayloadReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stream != nil {
		err := r.stream.Close()
		r.stream = nil
		return err
	}
	return nil
}
