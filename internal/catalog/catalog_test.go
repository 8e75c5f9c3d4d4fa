package catalog

import (
	"bufio"
	"strings"
	"testing"

	"github.com/alvmarrod/link-weaver/internal/record"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(s string) *bufio.Scanner {
	return bufio.NewScanner(strings.NewReader(s))
}

func TestBuild(t *testing.T) {
	log, hook := test.NewNullLogger()

	cat, err := Build(lines("1\tA\t0\n2\tB\t0\n3\tC\t1\n"), Options{Log: log})
	require.NoError(t, err)

	id, ok := cat.LookupByTitle("C")
	require.True(t, ok)
	assert.Equal(t, int64(3), id)

	assert.True(t, cat.Exists(1))
	assert.False(t, cat.Exists(4))
	assert.True(t, cat.IsRedirect(3))
	assert.False(t, cat.IsRedirect(1))
	assert.False(t, cat.IsRedirect(99))
	assert.Equal(t, 3, cat.Len())

	title, ok := cat.Title(2)
	require.True(t, ok)
	assert.Equal(t, "B", title)

	assert.Equal(t, Stats{Lines: 3, Pages: 3, Redirects: 1}, cat.Stats())
	for _, e := range hook.AllEntries() {
		assert.NotEqual(t, logrus.WarnLevel, e.Level)
	}
}

func TestBuild_MalformedLinesAreSkipped(t *testing.T) {
	log, hook := test.NewNullLogger()

	cat, err := Build(lines("1\tA\t0\nbroken line\n2\tB\t0\textra\n3\tC\t0\n"), Options{Log: log})
	require.NoError(t, err)

	assert.Equal(t, 2, cat.Len())
	assert.True(t, cat.Exists(3))
	assert.Equal(t, 2, cat.Stats().Malformed)

	var warnings int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings++
		}
	}
	assert.Equal(t, 2, warnings)
}

func TestBuild_DuplicateTitleKeepsLast(t *testing.T) {
	cat, err := Build(lines("1\tA\t0\n2\tA\t0\n"), Options{Log: logrus.New()})
	require.NoError(t, err)

	id, ok := cat.LookupByTitle("A")
	require.True(t, ok)
	assert.Equal(t, int64(2), id)
	assert.True(t, cat.Exists(1))
}

func TestAdd_ReplacesPage(t *testing.T) {
	cat := New()
	cat.Add(record.Page{ID: 1, Title: "Old", IsRedirect: true})
	cat.Add(record.Page{ID: 1, Title: "New"})

	_, ok := cat.LookupByTitle("Old")
	assert.False(t, ok)
	id, ok := cat.LookupByTitle("New")
	require.True(t, ok)
	assert.Equal(t, int64(1), id)
	assert.False(t, cat.IsRedirect(1))
	assert.Equal(t, Stats{Pages: 1}, cat.Stats())
}

func TestLookup(t *testing.T) {
	cat := New()
	cat.Add(record.Page{ID: 7, Title: "Seven"})

	id, ok := cat.Lookup(record.Ref{Kind: record.RefTitle, Title: "Seven"})
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)

	_, ok = cat.Lookup(record.Ref{Kind: record.RefID, ID: 8})
	assert.False(t, ok)

	id, ok = cat.Lookup(record.Ref{Kind: record.RefID, ID: 7})
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)
}

func TestPruner(t *testing.T) {
	log, _ := test.NewNullLogger()

	sources, err := RedirectSources(lines("3\tB\n5\t2\nbad\n"), Options{Log: log})
	require.NoError(t, err)
	assert.Len(t, sources, 2)

	p := NewPruner(lines("1\tA\t0\n3\tC\t1\n4\tD\t1\n5\tE\t1\nbad\n"), sources, Options{Log: log})

	var kept []int64
	for p.Next() {
		kept = append(kept, p.Page().ID)
	}
	require.NoError(t, p.Err())
	assert.Equal(t, []int64{1, 3, 5}, kept)
}
