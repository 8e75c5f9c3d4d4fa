// Package adjacency turns sorted edge streams into per-page link groups and
// merge-joins outgoing and incoming groups into one record per page.
package adjacency

import (
	"github.com/alvmarrod/link-weaver/internal/metrics"
	"github.com/alvmarrod/link-weaver/internal/record"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Stream is a pull iterator over link groups sorted ascending by page ID
type Stream interface {
	Next() bool
	Group() record.Group
	Err() error
}

// EdgeStream is a pull iterator over edges
type EdgeStream interface {
	Next() bool
	Edge() record.Edge
	Err() error
}

// LineStream decodes `page_id \t id|id|...` lines. Malformed lines are
// reported and skipped.
type LineStream struct {
	src     record.LineSource
	name    string
	log     logrus.FieldLogger
	obs     metrics.Observer
	line    int
	current record.Group
	err     error
}

// NewLineStream creates a LineStream; name labels diagnostics and metrics
func NewLineStream(src record.LineSource, name string, log logrus.FieldLogger, obs metrics.Observer) *LineStream {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LineStream{src: src, name: name, log: log, obs: metrics.OrDiscard(obs)}
}

// Next advances to the next well-formed group
func (s *LineStream) Next() bool {
	for s.src.Scan() {
		s.line++
		s.obs.Observe(s.name, metrics.Read)

		g, err := record.ParseGroup(s.src.Text())
		if err != nil {
			s.obs.Observe(s.name, metrics.Malformed)
			s.log.Warnf("%s: skipping line %d: %v", s.name, s.line, err)
			continue
		}
		s.current = g
		return true
	}
	if err := s.src.Err(); err != nil {
		s.err = errors.Wrapf(err, "read %s", s.name)
	}
	return false
}

// Group returns the current group
func (s *LineStream) Group() record.Group { return s.current }

// Err returns the first read error
func (s *LineStream) Err() error { return s.err }

// LineEdgeStream decodes `source_id \t target_id` lines
type LineEdgeStream struct {
	src     record.LineSource
	name    string
	log     logrus.FieldLogger
	obs     metrics.Observer
	line    int
	current record.Edge
	err     error
}

// NewLineEdgeStream creates a LineEdgeStream; name labels diagnostics and metrics
func NewLineEdgeStream(src record.LineSource, name string, log logrus.FieldLogger, obs metrics.Observer) *LineEdgeStream {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LineEdgeStream{src: src, name: name, log: log, obs: metrics.OrDiscard(obs)}
}

// Next advances to the next well-formed edge
func (s *LineEdgeStream) Next() bool {
	for s.src.Scan() {
		s.line++
		s.obs.Observe(s.name, metrics.Read)

		e, err := record.ParseEdge(s.src.Text())
		if err != nil {
			s.obs.Observe(s.name, metrics.Malformed)
			s.log.Warnf("%s: skipping line %d: %v", s.name, s.line, err)
			continue
		}
		s.current = e
		return true
	}
	if err := s.src.Err(); err != nil {
		s.err = errors.Wrapf(err, "read %s", s.name)
	}
	return false
}

// Edge returns the current edge
func (s *LineEdgeStream) Edge() record.Edge { return s.current }

// Err returns the first read error
func (s *LineEdgeStream) Err() error { return s.err }

// SliceStream serves groups from memory
type SliceStream struct {
	groups []record.Group
	pos    int
}

// NewSliceStream creates a Stream over groups, which must already be sorted
func NewSliceStream(groups ...record.Group) *SliceStream {
	return &SliceStream{groups: groups, pos: -1}
}

func (s *SliceStream) Next() bool {
	if s.pos+1 >= len(s.groups) {
		s.pos = len(s.groups)
		return false
	}
	s.pos++
	return true
}

func (s *SliceStream) Group() record.Group { return s.groups[s.pos] }

func (s *SliceStream) Err() error { return nil }

// LineAdjacencyStream decodes merged `page_id \t out_count \t in_count \t out \t in` lines
type LineAdjacencyStream struct {
	src     record.LineSource
	log     logrus.FieldLogger
	line    int
	current record.Adjacency
	err     error
}

// NewLineAdjacencyStream creates a LineAdjacencyStream over src
func NewLineAdjacencyStream(src record.LineSource, log logrus.FieldLogger) *LineAdjacencyStream {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LineAdjacencyStream{src: src, log: log}
}

// Next advances to the next well-formed record
func (s *LineAdjacencyStream) Next() bool {
	for s.src.Scan() {
		s.line++
		a, err := record.ParseAdjacency(s.src.Text())
		if err != nil {
			s.log.Warnf("links: skipping line %d: %v", s.line, err)
			continue
		}
		s.current = a
		return true
	}
	if err := s.src.Err(); err != nil {
		s.err = errors.Wrap(err, "read merged links")
	}
	return false
}

// Adjacency returns the current record
func (s *LineAdjacencyStream) Adjacency() record.Adjacency { return s.current }

// Err returns the first read error
func (s *LineAdjacencyStream) Err() error { return s.err }
