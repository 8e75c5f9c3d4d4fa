// Package input opens the dump files a stage reads: plain text, gzip, stdin
// or named pipes, all exposed as a line source.
package input

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// MaxLineSize bounds a single record line
const MaxLineSize = 8 * 1024 * 1024

// ErrNotCompressed is returned when gzip input is required but the path is not a .gz file
var ErrNotCompressed = errors.New("input must be a gzip-compressed .gz file")

// Options controls how a path is opened
type Options struct {
	RequireGzip bool
	Stdin       io.Reader
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

// Close releases the decompressor and the file, in that order
func (rc *readCloser) Close() error {
	var first error
	for _, c := range rc.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// IsGzip reports whether a path names a gzip file
func IsGzip(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".gz")
}

// Check validates a path against the options without opening it
func Check(path string, opts Options) error {
	if opts.RequireGzip && !IsGzip(path) {
		return errors.Wrapf(ErrNotCompressed, "%s", path)
	}
	return nil
}

// Open opens path for reading. "-" reads standard input.
func Open(path string, opts Options) (io.ReadCloser, error) {
	if err := Check(path, opts); err != nil {
		return nil, err
	}

	if path == "-" {
		stdin := opts.Stdin
		if stdin == nil {
			stdin = os.Stdin
		}
		return io.NopCloser(stdin), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}

	if !IsGzip(path) {
		return file, nil
	}

	gz, err := gzip.NewReader(bufio.NewReaderSize(file, 1<<20))
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "gunzip %s", path)
	}
	return &readCloser{Reader: gz, closers: []io.Closer{gz, file}}, nil
}

// NewLineScanner returns a scanner over r that accepts lines up to MaxLineSize
func NewLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), MaxLineSize)
	return scanner
}

// Lines opens path and returns a line scanner plus the closer that releases it
func Lines(path string, opts Options) (*bufio.Scanner, io.Closer, error) {
	rc, err := Open(path, opts)
	if err != nil {
		return nil, nil, err
	}
	return NewLineScanner(rc), rc, nil
}
