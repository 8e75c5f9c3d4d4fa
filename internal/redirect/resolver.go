// Package redirect collapses redirect chains to their canonical,
// non-redirecting destination.
package redirect

import (
	"fmt"
	"slices"

	"github.com/alvmarrod/link-weaver/internal/metrics"
	"github.com/alvmarrod/link-weaver/internal/record"
	"github.com/sirupsen/logrus"
)

// DefaultMaxHops bounds how many redirects a chain may follow past its first
// edge, so a chain of DefaultMaxHops+1 edges still resolves
const DefaultMaxHops = 100

// Stage is the metrics stage name used while building a resolver
const Stage = "redirects"

// Catalog is the part of the page catalog the resolver validates against
type Catalog interface {
	Exists(id int64) bool
	IsRedirect(id int64) bool
	Lookup(ref record.Ref) (int64, bool)
}

// Options configures Build
type Options struct {
	TargetRef record.RefKind
	MaxHops   int
	Log       logrus.FieldLogger
	Observer  metrics.Observer
}

// Stats summarizes a Build pass
type Stats struct {
	Lines      int
	Malformed  int
	Dropped    int
	Edges      int
	Resolved   int
	Cycles     int
	HopLimit   int
	Dangling   int
	Unresolved int
}

type state uint8

const (
	resolved state = iota + 1
	cyclic
	hopLimit
	dangling
)

type resolution struct {
	target int64
	hops   int32
	state  state
}

// Resolver maps every redirecting page to its canonical target. It is
// read-only once Build returns.
type Resolver struct {
	edges     map[int64]int64
	canonical map[int64]resolution
	isRedir   func(int64) bool
	maxHops   int
	stats     Stats
}

// Build reads every redirect edge, keeps the ones whose endpoints both exist
// and whose source is flagged as a redirect, then resolves all of them.
func Build(cat Catalog, src record.LineSource, opts Options) (*Resolver, error) {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	obs := metrics.OrDiscard(opts.Observer)

	r := newResolver(cat.IsRedirect, opts.MaxHops)
	for src.Scan() {
		r.stats.Lines++
		obs.Observe(Stage, metrics.Read)

		raw, err := record.ParseRedirect(src.Text(), opts.TargetRef)
		if err != nil {
			r.stats.Malformed++
			obs.Observe(Stage, metrics.Malformed)
			log.Warnf("redirects: skipping line %d: %v", r.stats.Lines, err)
			continue
		}

		if !cat.Exists(raw.SourceID) {
			r.stats.Dropped++
			obs.Observe(Stage, metrics.DropReason("unknown_source"))
			continue
		}
		if !cat.IsRedirect(raw.SourceID) {
			r.stats.Dropped++
			obs.Observe(Stage, metrics.DropReason("not_redirect"))
			log.Debugf("redirects: page %d is not flagged as a redirect", raw.SourceID)
			continue
		}
		target, ok := cat.Lookup(raw.Target)
		if !ok {
			r.stats.Dropped++
			obs.Observe(Stage, metrics.DropReason("unknown_target"))
			continue
		}

		r.edges[raw.SourceID] = target
	}
	if err := src.Err(); err != nil {
		return nil, fmt.Errorf("failed to read redirects: %w", err)
	}

	r.resolveAll()
	log.Infof("Redirects resolved: %d edges, %d resolved, %d unresolved (%d cycles, %d over %d hops, %d dangling)",
		r.stats.Edges, r.stats.Resolved, r.stats.Unresolved,
		r.stats.Cycles, r.stats.HopLimit, r.maxHops, r.stats.Dangling)
	return r, nil
}

// FromEdges builds a resolver from an already validated edge map
func FromEdges(edges map[int64]int64, isRedirect func(int64) bool, maxHops int) *Resolver {
	r := newResolver(isRedirect, maxHops)
	for source, target := range edges {
		r.edges[source] = target
	}
	r.resolveAll()
	return r
}

// maxEdges is the longest chain, in edges, that still resolves
func (r *Resolver) maxEdges() int {
	return r.maxHops + 1
}

func newResolver(isRedirect func(int64) bool, maxHops int) *Resolver {
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	if isRedirect == nil {
		isRedirect = func(int64) bool { return false }
	}
	return &Resolver{
		edges:     make(map[int64]int64),
		canonical: make(map[int64]resolution),
		isRedir:   isRedirect,
		maxHops:   maxHops,
	}
}

func (r *Resolver) resolveAll() {
	r.canonical = make(map[int64]resolution, len(r.edges))
	for _, source := range r.sortedSources() {
		r.resolve(source)
	}

	r.stats.Edges = len(r.edges)
	for _, res := range r.canonical {
		switch res.state {
		case resolved:
			r.stats.Resolved++
		case cyclic:
			r.stats.Cycles++
		case hopLimit:
			r.stats.HopLimit++
		case dangling:
			r.stats.Dangling++
		}
	}
	r.stats.Unresolved = r.stats.Cycles + r.stats.HopLimit + r.stats.Dangling
}

func (r *Resolver) sortedSources() []int64 {
	sources := make([]int64, 0, len(r.edges))
	for source := range r.edges {
		sources = append(sources, source)
	}
	slices.Sort(sources)
	return sources
}

// resolve walks the chain starting at start and memoizes the outcome for
// every page on the walked path.
func (r *Resolver) resolve(start int64) resolution {
	if res, ok := r.canonical[start]; ok {
		return res
	}

	path := []int64{start}
	var seen visited
	seen.add(start)

	cur := r.edges[start]
	hops := 1
	var out resolution
	for {
		if hops > r.maxEdges() {
			out = resolution{state: hopLimit}
			break
		}
		if memo, ok := r.canonical[cur]; ok {
			out = memo
			if memo.state == resolved {
				total := hops + int(memo.hops)
				if total > r.maxEdges() {
					out = resolution{state: hopLimit}
				} else {
					out.hops = int32(total)
				}
			}
			break
		}
		next, isSource := r.edges[cur]
		if !isSource {
			if r.isRedir(cur) {
				out = resolution{state: dangling}
			} else {
				out = resolution{target: cur, hops: int32(hops), state: resolved}
			}
			break
		}
		if seen.has(cur) {
			out = resolution{state: cyclic}
			break
		}
		seen.add(cur)
		path = append(path, cur)
		cur = next
		hops++
	}

	if out.state == hopLimit {
		// pages further down the path may still be within the bound on their own
		r.canonical[start] = out
		return out
	}
	for i, id := range path {
		res := out
		if res.state == resolved {
			res.hops = out.hops - int32(i)
		}
		r.canonical[id] = res
	}
	return out
}

// Resolve returns the canonical page for id. Pages that are not redirect
// sources resolve to themselves. ok is false when id is a redirect whose
// chain is circular, too long, or ends on a redirect with no target.
func (r *Resolver) Resolve(id int64) (int64, bool) {
	if _, isSource := r.edges[id]; !isSource {
		return id, true
	}
	res := r.canonical[id]
	if res.state != resolved {
		return 0, false
	}
	return res.target, true
}

// IsSource reports whether id has a redirect edge of its own
func (r *Resolver) IsSource(id int64) bool {
	_, ok := r.edges[id]
	return ok
}

// Target returns the page a redirect directly names
func (r *Resolver) Target(id int64) (int64, bool) {
	target, ok := r.edges[id]
	return target, ok
}

// Len returns the number of admitted redirect edges
func (r *Resolver) Len() int {
	return len(r.edges)
}

// Each calls fn for every resolved redirect in ascending source order
func (r *Resolver) Each(fn func(source, canonical int64) error) error {
	for _, source := range r.sortedSources() {
		res := r.canonical[source]
		if res.state != resolved {
			continue
		}
		if err := fn(source, res.target); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns the counters of the Build pass
func (r *Resolver) Stats() Stats {
	return r.stats
}

// visited is a set tuned for the common case of short chains
type visited struct {
	small []int64
	large map[int64]struct{}
}

const smallVisited = 32

func (v *visited) add(id int64) {
	if v.large != nil {
		v.large[id] = struct{}{}
		return
	}
	v.small = append(v.small, id)
	if len(v.small) > smallVisited {
		v.large = make(map[int64]struct{}, len(v.small)*2)
		for _, s := range v.small {
			v.large[s] = struct{}{}
		}
		v.small = nil
	}
}

func (v *visited) has(id int64) bool {
	if v.large != nil {
		_, ok := v.large[id]
		return ok
	}
	return slices.Contains(v.small, id)
}
