// Package links rewrites raw link records into canonical page ID pairs.
package links

import (
	"fmt"

	"github.com/alvmarrod/link-weaver/internal/metrics"
	"github.com/alvmarrod/link-weaver/internal/record"
	"github.com/sirupsen/logrus"
)

// Stage is the metrics stage name of the normalizer
const Stage = "links"

// Catalog resolves page references to existing page IDs
type Catalog interface {
	Lookup(ref record.Ref) (int64, bool)
}

// Resolver maps a page to its canonical redirect target
type Resolver interface {
	Resolve(id int64) (int64, bool)
}

// Drop names why a link was discarded
type Drop string

const (
	keep             Drop = ""
	UnknownSource    Drop = "unknown_source"
	UnresolvedSource Drop = "unresolved_source"
	UnknownTarget    Drop = "unknown_target"
	UnresolvedTarget Drop = "unresolved_target"
	SelfLoop         Drop = "self_loop"
)

// Options configures a Normalizer
type Options struct {
	SourceRef record.RefKind
	TargetRef record.RefKind
	// ResolveSource collapses redirecting sources to their canonical page.
	// When false, sources pass through as looked up.
	ResolveSource bool
	Log           logrus.FieldLogger
	Observer      metrics.Observer
}

// Stats summarizes a normalization pass
type Stats struct {
	Lines     int
	Malformed int
	Emitted   int
	Dropped   map[Drop]int
}

// Normalizer is a pull iterator of canonical edges over a raw link stream
type Normalizer struct {
	src     record.LineSource
	cat     Catalog
	res     Resolver
	opts    Options
	log     logrus.FieldLogger
	obs     metrics.Observer
	current record.Edge
	stats   Stats
	err     error
}

// NewNormalizer creates a Normalizer. A nil resolver leaves redirects untouched.
func NewNormalizer(src record.LineSource, cat Catalog, res Resolver, opts Options) *Normalizer {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Normalizer{
		src:   src,
		cat:   cat,
		res:   res,
		opts:  opts,
		log:   log,
		obs:   metrics.OrDiscard(opts.Observer),
		stats: Stats{Dropped: make(map[Drop]int)},
	}
}

// Next advances to the next emitted edge
func (n *Normalizer) Next() bool {
	for n.src.Scan() {
		n.stats.Lines++
		n.obs.Observe(Stage, metrics.Read)

		raw, err := record.ParseLink(n.src.Text(), n.opts.SourceRef, n.opts.TargetRef)
		if err != nil {
			n.stats.Malformed++
			n.obs.Observe(Stage, metrics.Malformed)
			n.log.Warnf("links: skipping line %d: %v", n.stats.Lines, err)
			continue
		}

		edge, drop := n.Normalize(raw)
		if drop != keep {
			n.stats.Dropped[drop]++
			n.obs.Observe(Stage, metrics.DropReason(string(drop)))
			continue
		}

		n.stats.Emitted++
		n.obs.Observe(Stage, metrics.Emitted)
		n.current = edge
		return true
	}
	if err := n.src.Err(); err != nil {
		n.err = fmt.Errorf("failed to read links: %w", err)
	}
	return false
}

// Normalize resolves both endpoints of one link. The returned Drop is empty
// when the edge should be emitted.
func (n *Normalizer) Normalize(raw record.RawLink) (record.Edge, Drop) {
	source, ok := n.cat.Lookup(raw.Source)
	if !ok {
		return record.Edge{}, UnknownSource
	}
	if n.opts.ResolveSource && n.res != nil {
		if source, ok = n.res.Resolve(source); !ok {
			return record.Edge{}, UnresolvedSource
		}
	}

	target, ok := n.cat.Lookup(raw.Target)
	if !ok {
		return record.Edge{}, UnknownTarget
	}
	if n.res != nil {
		if target, ok = n.res.Resolve(target); !ok {
			return record.Edge{}, UnresolvedTarget
		}
	}

	if source == target {
		return record.Edge{}, SelfLoop
	}
	return record.Edge{SourceID: source, TargetID: target}, keep
}

// Edge returns the current edge
func (n *Normalizer) Edge() record.Edge {
	return n.current
}

// Err returns the first read error
func (n *Normalizer) Err() error {
	return n.err
}

// Stats returns the counters so far
func (n *Normalizer) Stats() Stats {
	return n.stats
}
