// Package dumps discovers the SQL table dumps a pipeline run starts from by
// scraping the directory index of a dumps mirror.
package dumps

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Latest is the directory name used when no date is given
const Latest = "latest"

// ErrMissingTable is returned when an index lacks one of the required tables
var ErrMissingTable = errors.New("dump table not found")

// Dump holds the table URLs of one wiki dump
type Dump struct {
	Wiki   string
	Date   string
	Tables map[Table]string
}

// URL returns the location of a table
func (d *Dump) URL(t Table) string {
	return d.Tables[t]
}

// Lister scrapes dump directory indexes
type Lister struct {
	baseURL string
	timeout time.Duration
	log     logrus.FieldLogger
}

// NewLister creates a lister rooted at a dumps mirror base URL
func NewLister(baseURL string, timeout time.Duration, log logrus.FieldLogger) *Lister {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Lister{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		timeout: timeout,
		log:     log,
	}
}

// newCollector configures a synchronous collector for a single index page
func (l *Lister) newCollector(ctx context.Context) *colly.Collector {
	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.MaxDepth(1),
	)
	if l.timeout > 0 {
		c.SetRequestTimeout(l.timeout)
	}
	return c
}

// links visits an index page and returns the absolute URL of every anchor
func (l *Lister) links(ctx context.Context, indexURL string) ([]string, error) {
	c := l.newCollector(ctx)

	var (
		mu       sync.Mutex
		found    []string
		fetchErr error
	)

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if link == "" {
			return
		}
		mu.Lock()
		found = append(found, link)
		mu.Unlock()
	})

	c.OnResponse(func(r *colly.Response) {
		l.log.Debugf("Fetched %s (status=%d, %d bytes)", r.Request.URL, r.StatusCode, len(r.Body))
	})

	c.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		if r != nil && r.Request != nil {
			fetchErr = errors.Wrapf(err, "fetch %s (status %d)", r.Request.URL, r.StatusCode)
			return
		}
		fetchErr = errors.Wrap(err, "fetch index")
	})

	if err := c.Visit(indexURL); err != nil {
		return nil, errors.Wrapf(err, "visit %s", indexURL)
	}
	c.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}
	return found, nil
}

// List returns the page, redirect, and pagelinks table URLs of a wiki dump.
// An empty date selects the latest dump.
func (l *Lister) List(ctx context.Context, wiki, date string) (*Dump, error) {
	if wiki == "" {
		return nil, errors.New("wiki name is required")
	}
	if date == "" {
		date = Latest
	}
	if date != Latest && !IsDate(date) {
		return nil, errors.Errorf("invalid dump date %q, expected YYYYMMDD", date)
	}

	indexURL := l.baseURL + "/" + wiki + "/" + date + "/"
	links, err := l.links(ctx, indexURL)
	if err != nil {
		return nil, err
	}

	dump := &Dump{Wiki: wiki, Date: date, Tables: make(map[Table]string)}
	prefix := wiki + "-" + date + "-"
	for _, link := range links {
		name := fileName(link)
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		table, ok := MatchTable(name)
		if !ok {
			continue
		}
		if _, dup := dump.Tables[table]; !dup {
			dump.Tables[table] = link
		}
	}

	for _, t := range Tables {
		if _, ok := dump.Tables[t]; !ok {
			return nil, errors.Wrapf(ErrMissingTable, "%s in %s", t, indexURL)
		}
	}

	l.log.Infof("Found %d tables for %s/%s", len(dump.Tables), wiki, date)
	return dump, nil
}

// Dates returns the dump dates listed for a wiki, newest first
func (l *Lister) Dates(ctx context.Context, wiki string) ([]string, error) {
	if wiki == "" {
		return nil, errors.New("wiki name is required")
	}

	links, err := l.links(ctx, l.baseURL+"/"+wiki+"/")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var dates []string
	for _, link := range links {
		name := fileName(link)
		if !IsDate(name) {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		dates = append(dates, name)
	}

	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}
