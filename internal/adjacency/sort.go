package adjacency

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/alvmarrod/link-weaver/internal/record"
	"github.com/lanrat/extsort"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// SortConfig tunes the external sort
type SortConfig struct {
	ChunkSize  int
	NumWorkers int
	TempDir    string
}

type sortEdge record.Edge

// ToBytes encodes the edge as two big-endian int64 values
func (e sortEdge) ToBytes() []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[:8], uint64(e.SourceID))
	binary.BigEndian.PutUint64(b[8:], uint64(e.TargetID))
	return b
}

func sortEdgeFromBytes(b []byte) extsort.SortType {
	return sortEdge{
		SourceID: int64(binary.BigEndian.Uint64(b[:8])),
		TargetID: int64(binary.BigEndian.Uint64(b[8:16])),
	}
}

// SortedEdges streams the output of an external sort
type SortedEdges struct {
	out     chan extsort.SortType
	errs    chan error
	group   *errgroup.Group
	cancel  context.CancelFunc
	once    sync.Once
	done    bool
	current record.Edge
	err     error
}

// SortEdges sorts src by (key, other endpoint) using temporary files for
// inputs that do not fit in memory. The returned stream must be drained or
// closed.
func SortEdges(ctx context.Context, src EdgeStream, key Key, cfg SortConfig) *SortedEdges {
	config := extsort.DefaultConfig()
	if cfg.ChunkSize > 0 {
		config.ChunkSize = cfg.ChunkSize
	}
	if cfg.NumWorkers > 0 {
		config.NumWorkers = cfg.NumWorkers
	}
	if cfg.TempDir != "" {
		config.TempFilesDir = cfg.TempDir
	}

	less := func(a, b extsort.SortType) bool {
		return key.less(record.Edge(a.(sortEdge)), record.Edge(b.(sortEdge)))
	}

	ctx, cancel := context.WithCancel(ctx)
	input := make(chan extsort.SortType, config.ChanBuffSize)
	sorter, out, errs := extsort.New(input, sortEdgeFromBytes, less, config)

	// New reports an unusable temp dir on errs and leaves the sorter unusable
	select {
	case err := <-errs:
		if err != nil {
			cancel()
			return &SortedEdges{
				cancel: cancel,
				done:   true,
				err:    errors.Wrapf(err, "external sort in %q", config.TempFilesDir),
			}
		}
	default:
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(input)
		for src.Next() {
			select {
			case input <- sortEdge(src.Edge()):
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return errors.Wrap(src.Err(), "read edges to sort")
	})
	g.Go(func() error {
		sorter.Sort(gctx)
		return nil
	})

	return &SortedEdges{out: out, errs: errs, group: g, cancel: cancel}
}

// Next advances to the next edge in sorted order
func (s *SortedEdges) Next() bool {
	if s.done {
		return false
	}
	item, ok := <-s.out
	if !ok {
		s.finish()
		return false
	}
	s.current = record.Edge(item.(sortEdge))
	return true
}

func (s *SortedEdges) finish() {
	s.once.Do(func() {
		s.done = true
		sortErr := <-s.errs
		if sortErr != nil {
			// unblock the feeder, the sorter no longer reads its input
			s.cancel()
		}
		inputErr := s.group.Wait()
		s.cancel()

		switch {
		case inputErr != nil && !errors.Is(inputErr, context.Canceled):
			s.err = inputErr
		case sortErr != nil:
			s.err = errors.Wrap(sortErr, "external sort")
		default:
			s.err = inputErr
		}
	})
}

// Edge returns the current edge
func (s *SortedEdges) Edge() record.Edge {
	return s.current
}

// Err returns the first sort or input error, once the stream is exhausted
func (s *SortedEdges) Err() error {
	return s.err
}

// Close stops the sort early and releases its goroutines and temp files
func (s *SortedEdges) Close() error {
	s.cancel()
	if s.done {
		return s.closeErr()
	}
	for range s.out {
	}
	s.finish()
	return s.closeErr()
}

func (s *SortedEdges) closeErr() error {
	if errors.Is(s.err, context.Canceled) {
		return nil
	}
	return s.err
}
