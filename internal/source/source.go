// Package source opens maillog inputs as decoded text streams.
//
// Compression is pluggable: decoders register themselves by name from their
// own packages (see source/gzip, source/zstd). Two names are built in:
// "none" reads the file as is, and "auto" sniffs the leading bytes and picks
// the registered decoder whose magic matches, falling back to "none".
package source

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	None = "none"
	Auto = "auto"
)

// Decoder turns a compressed byte stream into plain text.
type Decoder interface {
	// Magic returns the leading bytes that identify the encoding, or nil
	// if it cannot be sniffed.
	Magic() []byte

	// NewReader wraps r. Closing the returned reader must not close r.
	NewReader(r io.Reader) (io.ReadCloser, error)
}

func init() {
	Register(None, func() Decoder { return plain{} })
}

type plain struct{}

func (plain) Magic() []byte { return nil }

func (plain) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

// File is an opened input: decoded text plus metadata of the file on disk.
type File struct {
	io.Reader

	Path        string
	Size        int64
	ModTime     time.Time
	Compression string

	dec io.Closer
	raw *os.File
}

// Close releases the decoder and the underlying file.
func (f *File) Close() error {
	derr := f.dec.Close()
	ferr := f.raw.Close()
	if derr != nil {
		return derr
	}
	return ferr
}

// Open opens path and wraps it in the decoder named by compression. An
// empty compression means Auto.
func Open(path, compression string) (*File, error) {
	if compression == "" {
		compression = Auto
	}

	raw, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := raw.Stat()
	if err != nil {
		raw.Close()
		return nil, err
	}

	var r io.Reader = raw
	if compression == Auto {
		br := bufio.NewReader(raw)
		compression = Sniff(br)
		r = br
	}

	ctor, err := Get(compression)
	if err != nil {
		raw.Close()
		return nil, err
	}
	dec, err := ctor().NewReader(r)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("%s decoder: %w", compression, err)
	}

	return &File{
		Reader:      dec,
		Path:        path,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		Compression: compression,
		dec:         dec,
		raw:         raw,
	}, nil
}

// Sniff peeks at the head of br and returns the name of the registered
// decoder whose magic matches, or None. It does not consume input.
func Sniff(br *bufio.Reader) string {
	for _, name := range Providers() {
		magic := registry[name]().Magic()
		if len(magic) == 0 {
			continue
		}
		head, _ := br.Peek(len(magic))
		if bytes.Equal(head, magic) {
			return name
		}
	}
	return None
}
