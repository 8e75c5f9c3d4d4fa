// Package record defines the tab-separated line formats exchanged between
// pipeline stages and the types they decode into.
package record

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrMalformed is returned for a line that does not decode into the expected record
var ErrMalformed = errors.New("malformed record")

// LineSource yields decoded text lines one at a time. *bufio.Scanner satisfies it.
type LineSource interface {
	Scan() bool
	Text() string
	Err() error
}

// RefKind tells whether a page reference column holds a numeric ID or a title
type RefKind int

const (
	RefID RefKind = iota
	RefTitle
)

func (k RefKind) String() string {
	if k == RefTitle {
		return "title"
	}
	return "id"
}

// ParseRefKind parses "id" or "title"
func ParseRefKind(s string) (RefKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "id":
		return RefID, nil
	case "title":
		return RefTitle, nil
	}
	return RefID, errors.Errorf("unknown reference kind %q (want id or title)", s)
}

// Ref is a page reference, either by ID or by title
type Ref struct {
	Kind  RefKind
	ID    int64
	Title string
}

// Page is one row of the pages dataset
type Page struct {
	ID         int64
	Title      string
	IsRedirect bool
}

// RawRedirect names a redirecting page and the raw destination it points at
type RawRedirect struct {
	SourceID int64
	Target   Ref
}

// RawLink is a link whose endpoints are still raw references
type RawLink struct {
	Source Ref
	Target Ref
}

// Edge is a normalized link between two page IDs
type Edge struct {
	SourceID int64
	TargetID int64
}

// Group is one page's links in a single direction
type Group struct {
	PageID int64
	IDs    []int64
}

// Adjacency is the merged record for one page
type Adjacency struct {
	PageID        int64
	Outgoing      []int64
	Incoming      []int64
	OutgoingCount int
	IncomingCount int
}

// Split cuts a line into exactly n tab-separated fields
func Split(line string, n int) ([]string, error) {
	line = strings.TrimSuffix(line, "\r")
	fields := strings.Split(line, "\t")
	if len(fields) != n {
		return nil, errors.Wrapf(ErrMalformed, "expected %d fields, got %d", n, len(fields))
	}
	return fields, nil
}

// ParseID parses a page ID column. Stray NUL bytes are ignored.
func ParseID(s string) (int64, error) {
	s = strings.ReplaceAll(s, "\x00", "")
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrMalformed, "invalid page id %q", s)
	}
	return id, nil
}

// ParseRef decodes a reference column of the given kind
func ParseRef(s string, kind RefKind) (Ref, error) {
	if kind == RefTitle {
		return Ref{Kind: RefTitle, Title: s}, nil
	}
	id, err := ParseID(s)
	if err != nil {
		return Ref{}, err
	}
	return Ref{Kind: RefID, ID: id}, nil
}

// ParsePage decodes `page_id \t title \t is_redirect`
func ParsePage(line string) (Page, error) {
	fields, err := Split(line, 3)
	if err != nil {
		return Page{}, err
	}
	id, err := ParseID(fields[0])
	if err != nil {
		return Page{}, err
	}
	var isRedirect bool
	switch fields[2] {
	case "0":
	case "1":
		isRedirect = true
	default:
		return Page{}, errors.Wrapf(ErrMalformed, "invalid redirect flag %q", fields[2])
	}
	return Page{ID: id, Title: fields[1], IsRedirect: isRedirect}, nil
}

// ParseRedirect decodes `source_page_id \t target_ref`
func ParseRedirect(line string, targetKind RefKind) (RawRedirect, error) {
	fields, err := Split(line, 2)
	if err != nil {
		return RawRedirect{}, err
	}
	source, err := ParseID(fields[0])
	if err != nil {
		return RawRedirect{}, err
	}
	target, err := ParseRef(fields[1], targetKind)
	if err != nil {
		return RawRedirect{}, err
	}
	return RawRedirect{SourceID: source, Target: target}, nil
}

// ParseLink decodes `source_ref \t target_ref`
func ParseLink(line string, sourceKind, targetKind RefKind) (RawLink, error) {
	fields, err := Split(line, 2)
	if err != nil {
		return RawLink{}, err
	}
	source, err := ParseRef(fields[0], sourceKind)
	if err != nil {
		return RawLink{}, err
	}
	target, err := ParseRef(fields[1], targetKind)
	if err != nil {
		return RawLink{}, err
	}
	return RawLink{Source: source, Target: target}, nil
}

// ParseEdge decodes `source_id \t target_id`
func ParseEdge(line string) (Edge, error) {
	fields, err := Split(line, 2)
	if err != nil {
		return Edge{}, err
	}
	source, err := ParseID(fields[0])
	if err != nil {
		return Edge{}, err
	}
	target, err := ParseID(fields[1])
	if err != nil {
		return Edge{}, err
	}
	return Edge{SourceID: source, TargetID: target}, nil
}

// ParseGroup decodes `page_id \t id|id|...`
func ParseGroup(line string) (Group, error) {
	fields, err := Split(line, 2)
	if err != nil {
		return Group{}, err
	}
	id, err := ParseID(fields[0])
	if err != nil {
		return Group{}, err
	}
	ids, err := ParseIDList(fields[1])
	if err != nil {
		return Group{}, err
	}
	return Group{PageID: id, IDs: ids}, nil
}

// ParseIDList decodes a `|`-delimited list; the empty string is an empty list
func ParseIDList(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, "|")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := ParseID(p)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// FormatIDList encodes ids as a `|`-delimited list
func FormatIDList(ids []int64) string {
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(strconv.FormatInt(id, 10))
	}
	return b.String()
}

// ParseAdjacency decodes `page_id \t out_count \t in_count \t out_list \t in_list`.
// Counts must agree with the lists.
func ParseAdjacency(line string) (Adjacency, error) {
	fields, err := Split(line, 5)
	if err != nil {
		return Adjacency{}, err
	}
	id, err := ParseID(fields[0])
	if err != nil {
		return Adjacency{}, err
	}
	outCount, err := strconv.Atoi(fields[1])
	if err != nil {
		return Adjacency{}, errors.Wrapf(ErrMalformed, "invalid outgoing count %q", fields[1])
	}
	inCount, err := strconv.Atoi(fields[2])
	if err != nil {
		return Adjacency{}, errors.Wrapf(ErrMalformed, "invalid incoming count %q", fields[2])
	}
	outgoing, err := ParseIDList(fields[3])
	if err != nil {
		return Adjacency{}, err
	}
	incoming, err := ParseIDList(fields[4])
	if err != nil {
		return Adjacency{}, err
	}
	if outCount != len(outgoing) || inCount != len(incoming) {
		return Adjacency{}, errors.Wrapf(ErrMalformed, "counts %d/%d do not match lists of %d/%d",
			outCount, inCount, len(outgoing), len(incoming))
	}
	return Adjacency{
		PageID:        id,
		Outgoing:      outgoing,
		Incoming:      incoming,
		OutgoingCount: outCount,
		IncomingCount: inCount,
	}, nil
}
