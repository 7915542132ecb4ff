// Package zstd registers the "zstd" decoder.
package zstd

import (
	"io"

	kzstd "github.com/klauspost/compress/zstd"

	"github.com/crimson-sun/maillog/internal/source"
)

func init() {
	source.Register("zstd", func() source.Decoder {
		return Decoder{}
	})
}

var magic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Decoder implements source.Decoder using klauspost/compress.
type Decoder struct{}

func (Decoder) Magic() []byte { return magic }

func (Decoder) NewReader(r io.Reader) (io.ReadCloser, error) {
	// One decoding goroutine per input.
	dec, err := kzstd.NewReader(r, kzstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}
