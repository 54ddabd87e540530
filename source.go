package payload_dumper

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
)

// VerifyPayloadMagic reads four bytes at off and checks them against the
// CrAU payload magic.
func VerifyPayloadMagic(r io.ReaderAt, off int64) error {
	magic := make([]byte, len(PAYLOAD_MAGIC))
	if err := readFullAt(r, magic, off); err != nil {
		return err
	}
	if !bytes.Equal(magic, []byte(PAYLOAD_MAGIC)) {
		return badPayload("invalid magic")
	}
	return nil
}

// PayloadSource is an opened byte source with payload-relative offsets and
// whatever underlying handles need closing after the workers join.
type PayloadSource struct {
	io.ReaderAt
	closers []io.Closer
}

func (s *PayloadSource) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OpenPayloadSource resolves a local path or HTTP(S) URL into a payload
// byte source. Remote sources must be ZIP archives whose payload.bin entry
// is stored uncompressed; local files may be a raw payload or a ZIP.
func OpenPayloadSource(path, userAgent string) (*PayloadSource, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return openRemoteSource(path, userAgent)
	}
	return openLocalSource(path)
}

func openRemoteSource(url, userAgent string) (*PayloadSource, error) {
	Logger.Println("Opening remote ZIP:", url)

	ur, err := NewUrlRangeReaderAt(url, userAgent)
	if err != nil {
		return nil, err
	}

	zr, err := NewZipPayloadReader(ur, ur.Size())
	if err != nil {
		ur.Close()
		return nil, err
	}
	if !zr.Stored() {
		zr.Close()
		ur.Close()
		return nil, errors.New("remote payload.bin must be stored uncompressed")
	}
	if err := VerifyPayloadMagic(zr, 0); err != nil {
		zr.Close()
		ur.Close()
		return nil, err
	}

	Logger.Printf("Found payload: offset=%d, size=%s", zr.DataOffset(), humanize.IBytes(uint64(zr.Size())))
	return &PayloadSource{ReaderAt: zr, closers: []io.Closer{zr, ur}}, nil
}

func openLocalSource(path string) (*PayloadSource, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	// Raw payload first: CrAU at offset zero means there is no archive.
	if err := VerifyPayloadMagic(fd, 0); err == nil {
		return &PayloadSource{ReaderAt: fd, closers: []io.Closer{fd}}, nil
	}

	st, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, err
	}

	zr, err := NewZipPayloadReader(fd, st.Size())
	if err != nil {
		fd.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := VerifyPayloadMagic(zr, 0); err != nil {
		zr.Close()
		fd.Close()
		return nil, err
	}

	Logger.Printf("Found payload in ZIP: offset=%d, size=%s", zr.DataOffset(), humanize.IBytes(uint64(zr.Size())))
	return &PayloadSource{ReaderAt: zr, closers: []io.Closer{zr, fd}}, nil
}
