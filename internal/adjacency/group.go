package adjacency

import (
	"github.com/alvmarrod/link-weaver/internal/record"
	"github.com/pkg/errors"
)

// Key selects which endpoint of an edge a stream is grouped by
type Key int

const (
	BySource Key = iota
	ByTarget
)

func (k Key) String() string {
	if k == ByTarget {
		return "target"
	}
	return "source"
}

// ParseKey parses "source" or "target"
func ParseKey(s string) (Key, error) {
	switch s {
	case "source", "outgoing":
		return BySource, nil
	case "target", "incoming":
		return ByTarget, nil
	}
	return BySource, errors.Errorf("unknown grouping key %q (want source or target)", s)
}

// split returns the grouping column and the other column of e
func (k Key) split(e record.Edge) (key, other int64) {
	if k == ByTarget {
		return e.TargetID, e.SourceID
	}
	return e.SourceID, e.TargetID
}

func (k Key) less(a, b record.Edge) bool {
	ak, ao := k.split(a)
	bk, bo := k.split(b)
	if ak != bk {
		return ak < bk
	}
	return ao < bo
}

// Grouper collapses consecutive edges sharing a key into one Group. Edges
// must arrive sorted by that key; a key seen again after a different key
// starts a new group.
type Grouper struct {
	edges   EdgeStream
	key     Key
	pending record.Edge
	hasNext bool
	started bool
	current record.Group
}

// NewGrouper creates a Stream of groups over a sorted edge stream
func NewGrouper(edges EdgeStream, key Key) *Grouper {
	return &Grouper{edges: edges, key: key}
}

// Next advances to the next group
func (g *Grouper) Next() bool {
	if !g.started {
		g.started = true
		g.hasNext = g.edges.Next()
		if g.hasNext {
			g.pending = g.edges.Edge()
		}
	}
	if !g.hasNext {
		return false
	}

	pageID, other := g.key.split(g.pending)
	ids := []int64{other}
	for {
		g.hasNext = g.edges.Next()
		if !g.hasNext {
			break
		}
		g.pending = g.edges.Edge()
		k, o := g.key.split(g.pending)
		if k != pageID {
			break
		}
		ids = append(ids, o)
	}

	g.current = record.Group{PageID: pageID, IDs: ids}
	return true
}

// Group returns the current group
func (g *Grouper) Group() record.Group {
	return g.current
}

// Err returns the error of the underlying edge stream
func (g *Grouper) Err() error {
	return g.edges.Err()
}
