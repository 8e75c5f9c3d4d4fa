package input

import (
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

type writeCloser struct {
	io.Writer
	closers []io.Closer
}

// Close flushes the compressor, then closes the file
func (wc *writeCloser) Close() error {
	var first error
	for _, c := range wc.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Create opens path for writing a stage's output. "" and "-" write to stdout,
// .gz paths are gzip-compressed.
func Create(path string, stdout io.Writer) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		if stdout == nil {
			stdout = os.Stdout
		}
		return nopWriteCloser{stdout}, nil
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", path)
	}
	if !IsGzip(path) {
		return file, nil
	}

	gz := gzip.NewWriter(file)
	return &writeCloser{Writer: gz, closers: []io.Closer{gz, file}}, nil
}
