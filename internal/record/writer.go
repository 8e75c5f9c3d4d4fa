package record

import (
	"bufio"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// Writer emits records as lines on a buffered stream
type Writer struct {
	w   *bufio.Writer
	buf []byte
}

// NewWriter wraps w in a buffered record writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriterSize(w, 1<<20)}
}

func (w *Writer) line() []byte {
	return w.buf[:0]
}

func (w *Writer) flushLine(b []byte) error {
	b = append(b, '\n')
	w.buf = b
	if _, err := w.w.Write(b); err != nil {
		return errors.Wrap(err, "write record")
	}
	return nil
}

func appendIDList(b []byte, ids []int64) []byte {
	for i, id := range ids {
		if i > 0 {
			b = append(b, '|')
		}
		b = strconv.AppendInt(b, id, 10)
	}
	return b
}

// WritePage writes `page_id \t title \t is_redirect`
func (w *Writer) WritePage(p Page) error {
	b := strconv.AppendInt(w.line(), p.ID, 10)
	b = append(b, '\t')
	b = append(b, p.Title...)
	if p.IsRedirect {
		b = append(b, "\t1"...)
	} else {
		b = append(b, "\t0"...)
	}
	return w.flushLine(b)
}

// WriteEdge writes `source_id \t target_id`
func (w *Writer) WriteEdge(e Edge) error {
	b := strconv.AppendInt(w.line(), e.SourceID, 10)
	b = append(b, '\t')
	b = strconv.AppendInt(b, e.TargetID, 10)
	return w.flushLine(b)
}

// WriteFields writes raw fields joined by tabs
func (w *Writer) WriteFields(fields ...string) error {
	b := w.line()
	for i, f := range fields {
		if i > 0 {
			b = append(b, '\t')
		}
		b = append(b, f...)
	}
	return w.flushLine(b)
}

// WriteGroup writes `page_id \t id|id|...`
func (w *Writer) WriteGroup(g Group) error {
	b := strconv.AppendInt(w.line(), g.PageID, 10)
	b = append(b, '\t')
	b = appendIDList(b, g.IDs)
	return w.flushLine(b)
}

// WriteAdjacency writes `page_id \t out_count \t in_count \t out_list \t in_list`
func (w *Writer) WriteAdjacency(a Adjacency) error {
	b := strconv.AppendInt(w.line(), a.PageID, 10)
	b = append(b, '\t')
	b = strconv.AppendInt(b, int64(a.OutgoingCount), 10)
	b = append(b, '\t')
	b = strconv.AppendInt(b, int64(a.IncomingCount), 10)
	b = append(b, '\t')
	b = appendIDList(b, a.Outgoing)
	b = append(b, '\t')
	b = appendIDList(b, a.Incoming)
	return w.flushLine(b)
}

// Flush writes any buffered data to the underlying stream
func (w *Writer) Flush() error {
	return errors.Wrap(w.w.Flush(), "flush records")
}
