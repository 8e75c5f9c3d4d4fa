// Package catalog maps page titles to IDs and records which pages are
// redirects. A Catalog is built once from the pages dataset and is read-only
// afterwards.
package catalog

import (
	"fmt"

	"github.com/alvmarrod/link-weaver/internal/metrics"
	"github.com/alvmarrod/link-weaver/internal/record"
	"github.com/sirupsen/logrus"
)

// Stage is the metrics stage name used while building a catalog
const Stage = "pages"

// Options configures Build
type Options struct {
	Log      logrus.FieldLogger
	Observer metrics.Observer
}

// Stats summarizes a Build pass
type Stats struct {
	Lines     int
	Malformed int
	Pages     int
	Redirects int
}

// Catalog holds every page of one dataset snapshot
type Catalog struct {
	byTitle    map[string]int64
	isRedirect map[int64]bool // absent means the page does not exist
	titles     map[int64]string
	stats      Stats
}

// New creates an empty catalog
func New() *Catalog {
	return &Catalog{
		byTitle:    make(map[string]int64),
		isRedirect: make(map[int64]bool),
		titles:     make(map[int64]string),
	}
}

// Build scans the pages dataset once. Malformed lines are reported and skipped.
func Build(src record.LineSource, opts Options) (*Catalog, error) {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	obs := metrics.OrDiscard(opts.Observer)

	c := New()
	for src.Scan() {
		c.stats.Lines++
		obs.Observe(Stage, metrics.Read)

		page, err := record.ParsePage(src.Text())
		if err != nil {
			c.stats.Malformed++
			obs.Observe(Stage, metrics.Malformed)
			log.Warnf("pages: skipping line %d: %v", c.stats.Lines, err)
			continue
		}

		c.Add(page)
		obs.Observe(Stage, metrics.Emitted)
	}
	if err := src.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pages: %w", err)
	}

	log.Infof("Catalog built: %d pages (%d redirects), %d malformed lines skipped",
		c.stats.Pages, c.stats.Redirects, c.stats.Malformed)
	return c, nil
}

// Add inserts or replaces a page. A repeated title keeps the last page seen.
func (c *Catalog) Add(p record.Page) {
	if prev, exists := c.isRedirect[p.ID]; exists {
		if prev {
			c.stats.Redirects--
		}
		if oldTitle := c.titles[p.ID]; c.byTitle[oldTitle] == p.ID {
			delete(c.byTitle, oldTitle)
		}
	} else {
		c.stats.Pages++
	}
	if p.IsRedirect {
		c.stats.Redirects++
	}

	c.isRedirect[p.ID] = p.IsRedirect
	c.titles[p.ID] = p.Title
	c.byTitle[p.Title] = p.ID
}

// LookupByTitle returns the ID of the page with the given title
func (c *Catalog) LookupByTitle(title string) (int64, bool) {
	id, ok := c.byTitle[title]
	return id, ok
}

// Exists reports whether id names a page in the catalog
func (c *Catalog) Exists(id int64) bool {
	_, ok := c.isRedirect[id]
	return ok
}

// IsRedirect reports whether id names a page flagged as a redirect
func (c *Catalog) IsRedirect(id int64) bool {
	return c.isRedirect[id]
}

// Title returns the title of a page
func (c *Catalog) Title(id int64) (string, bool) {
	title, ok := c.titles[id]
	return title, ok
}

// Lookup resolves a reference of either kind to an existing page ID
func (c *Catalog) Lookup(ref record.Ref) (int64, bool) {
	if ref.Kind == record.RefTitle {
		return c.LookupByTitle(ref.Title)
	}
	return ref.ID, c.Exists(ref.ID)
}

// Len returns the number of pages
func (c *Catalog) Len() int {
	return len(c.isRedirect)
}

// Stats returns the counters of the Build pass
func (c *Catalog) Stats() Stats {
	return c.stats
}
