// Package gzip registers the "gzip" decoder for rotated maillogs
// (maillog.1.gz and friends). Concatenated members are read as one stream.
package gzip

import (
	"io"

	kgzip "github.com/klauspost/compress/gzip"

	"github.com/crimson-sun/maillog/internal/source"
)

func init() {
	source.Register("gzip", func() source.Decoder {
		return Decoder{}
	})
}

var magic = []byte{0x1f, 0x8b}

// Decoder implements source.Decoder using klauspost/compress.
type Decoder struct{}

func (Decoder) Magic() []byte { return magic }

func (Decoder) NewReader(r io.Reader) (io.ReadCloser, error) {
	return kgzip.NewReader(r)
}
