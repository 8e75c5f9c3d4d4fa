package catalog

import (
	"fmt"

	"github.com/alvmarrod/link-weaver/internal/metrics"
	"github.com/alvmarrod/link-weaver/internal/record"
	"github.com/sirupsen/logrus"
)

// PruneStage is the metrics stage name of the prune pass
const PruneStage = "prune"

// RedirectSources collects the source IDs of a redirects dataset. Only the
// first column is read, so raw and resolved redirect files both work.
func RedirectSources(src record.LineSource, opts Options) (map[int64]struct{}, error) {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	sources := make(map[int64]struct{})
	line := 0
	for src.Scan() {
		line++
		fields, err := record.Split(src.Text(), 2)
		if err == nil {
			var id int64
			if id, err = record.ParseID(fields[0]); err == nil {
				sources[id] = struct{}{}
				continue
			}
		}
		log.Warnf("redirects: skipping line %d: %v", line, err)
	}
	if err := src.Err(); err != nil {
		return nil, fmt.Errorf("failed to read redirects: %w", err)
	}
	return sources, nil
}

// Pruner streams the pages dataset, dropping pages flagged as redirects that
// have no entry in the redirects dataset
type Pruner struct {
	src     record.LineSource
	sources map[int64]struct{}
	log     logrus.FieldLogger
	obs     metrics.Observer
	line    int
	current record.Page
	err     error
}

// NewPruner creates a Pruner over src
func NewPruner(src record.LineSource, redirectSources map[int64]struct{}, opts Options) *Pruner {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pruner{
		src:     src,
		sources: redirectSources,
		log:     log,
		obs:     metrics.OrDiscard(opts.Observer),
	}
}

// Next advances to the next kept page
func (p *Pruner) Next() bool {
	for p.src.Scan() {
		p.line++
		p.obs.Observe(PruneStage, metrics.Read)

		page, err := record.ParsePage(p.src.Text())
		if err != nil {
			p.obs.Observe(PruneStage, metrics.Malformed)
			p.log.Warnf("pages: skipping line %d: %v", p.line, err)
			continue
		}

		if page.IsRedirect {
			if _, ok := p.sources[page.ID]; !ok {
				p.obs.Observe(PruneStage, metrics.DropReason("dangling_redirect"))
				p.log.Debugf("pages: dropping redirect %d (%s) with no target", page.ID, page.Title)
				continue
			}
		}

		p.obs.Observe(PruneStage, metrics.Emitted)
		p.current = page
		return true
	}
	if err := p.src.Err(); err != nil {
		p.err = fmt.Errorf("failed to read pages: %w", err)
	}
	return false
}

// Page returns the current page
func (p *Pruner) Page() record.Page {
	return p.current
}

// Err returns the first read error
func (p *Pruner) Err() error {
	return p.err
}

// PageReader streams every well-formed page of a pages dataset
type PageReader struct {
	src     record.LineSource
	log     logrus.FieldLogger
	line    int
	current record.Page
	err     error
}

// NewPageReader creates a PageReader over src
func NewPageReader(src record.LineSource, log logrus.FieldLogger) *PageReader {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &PageReader{src: src, log: log}
}

// Next advances to the next page
func (r *PageReader) Next() bool {
	for r.src.Scan() {
		r.line++
		page, err := record.ParsePage(r.src.Text())
		if err != nil {
			r.log.Warnf("pages: skipping line %d: %v", r.line, err)
			continue
		}
		r.current = page
		return true
	}
	if err := r.src.Err(); err != nil {
		r.err = fmt.Errorf("failed to read pages: %w", err)
	}
	return false
}

// Page returns the current page
func (r *PageReader) Page() record.Page {
	return r.current
}

// Err returns the first read error
func (r *PageReader) Err() error {
	return r.err
}
