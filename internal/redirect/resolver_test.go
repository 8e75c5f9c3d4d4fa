package redirect

import (
	"bufio"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/alvmarrod/link-weaver/internal/catalog"
	"github.com/alvmarrod/link-weaver/internal/record"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(s string) *bufio.Scanner {
	return bufio.NewScanner(strings.NewReader(s))
}

// buildCatalog creates pages 1..n; ids listed in redirects are flagged as redirects
func buildCatalog(t *testing.T, n int, redirects ...int64) *catalog.Catalog {
	t.Helper()
	flagged := make(map[int64]bool)
	for _, id := range redirects {
		flagged[id] = true
	}
	cat := catalog.New()
	for id := int64(1); id <= int64(n); id++ {
		cat.Add(record.Page{ID: id, Title: fmt.Sprintf("P%d", id), IsRedirect: flagged[id]})
	}
	return cat
}

func buildResolver(t *testing.T, cat *catalog.Catalog, redirects string, opts Options) *Resolver {
	t.Helper()
	if opts.Log == nil {
		opts.Log, _ = test.NewNullLogger()
	}
	r, err := Build(cat, lines(redirects), opts)
	require.NoError(t, err)
	return r
}

func TestResolve_Chain(t *testing.T) {
	cat := buildCatalog(t, 7, 5, 6)
	r := buildResolver(t, cat, "5\t6\n6\t7\n", Options{TargetRef: record.RefID})

	got, ok := r.Resolve(5)
	require.True(t, ok)
	assert.Equal(t, int64(7), got)

	got, ok = r.Resolve(6)
	require.True(t, ok)
	assert.Equal(t, int64(7), got)

	got, ok = r.Resolve(7)
	require.True(t, ok)
	assert.Equal(t, int64(7), got, "non-redirects resolve to themselves")

	got, ok = r.Resolve(1000)
	require.True(t, ok, "ids unknown to the resolver are terminal")
	assert.Equal(t, int64(1000), got)
}

func TestResolve_ByTitle(t *testing.T) {
	cat := catalog.New()
	cat.Add(record.Page{ID: 1, Title: "A"})
	cat.Add(record.Page{ID: 2, Title: "B"})
	cat.Add(record.Page{ID: 3, Title: "C", IsRedirect: true})

	r := buildResolver(t, cat, "3\tB\n", Options{TargetRef: record.RefTitle})

	got, ok := r.Resolve(3)
	require.True(t, ok)
	assert.Equal(t, int64(2), got)
}

func TestResolve_Cycles(t *testing.T) {
	tests := []struct {
		name       string
		redirects  string
		unresolved []int64
	}{
		{name: "two cycle", redirects: "1\t2\n2\t1\n", unresolved: []int64{1, 2}},
		{name: "self redirect", redirects: "1\t1\n", unresolved: []int64{1}},
		{name: "three cycle", redirects: "1\t2\n2\t3\n3\t1\n", unresolved: []int64{1, 2, 3}},
		{name: "tail into cycle", redirects: "1\t2\n2\t3\n3\t4\n4\t2\n", unresolved: []int64{1, 2, 3, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := buildCatalog(t, 5, 1, 2, 3, 4)
			r := buildResolver(t, cat, tt.redirects, Options{TargetRef: record.RefID})

			for _, id := range tt.unresolved {
				_, ok := r.Resolve(id)
				assert.False(t, ok, "page %d should be unresolved", id)
			}
			assert.Equal(t, len(tt.unresolved), r.Stats().Cycles)
			assert.Equal(t, 0, r.Stats().Resolved)
		})
	}
}

func TestResolve_HopLimit(t *testing.T) {
	const length = 151
	var b strings.Builder
	flagged := make([]int64, 0, length)
	for id := 1; id <= length; id++ {
		fmt.Fprintf(&b, "%d\t%d\n", id, id+1)
		flagged = append(flagged, int64(id))
	}
	cat := buildCatalog(t, length+1, flagged...)
	r := buildResolver(t, cat, b.String(), Options{TargetRef: record.RefID, MaxHops: 100})

	_, ok := r.Resolve(1)
	assert.False(t, ok)
	_, ok = r.Resolve(50)
	assert.False(t, ok, "102 edges follow 101 redirects past the first")

	got, ok := r.Resolve(51)
	require.True(t, ok, "101 edges follow exactly 100 redirects past the first")
	assert.Equal(t, int64(length+1), got)

	got, ok = r.Resolve(length)
	require.True(t, ok)
	assert.Equal(t, int64(length+1), got)

	assert.Equal(t, 50, r.Stats().HopLimit)
	assert.Equal(t, 101, r.Stats().Resolved)
}

func TestResolve_HopLimitThroughMemo(t *testing.T) {
	cat := buildCatalog(t, 9, 3, 4, 9)
	r := buildResolver(t, cat, "3\t4\n4\t5\n9\t3\n", Options{TargetRef: record.RefID, MaxHops: 1})

	got, ok := r.Resolve(3)
	require.True(t, ok)
	assert.Equal(t, int64(5), got)

	_, ok = r.Resolve(9)
	assert.False(t, ok, "9 needs three edges even though 3 was memoized")
}

func TestResolve_DanglingRedirect(t *testing.T) {
	// 2 is flagged as a redirect but has no edge of its own
	cat := buildCatalog(t, 3, 1, 2)
	r := buildResolver(t, cat, "1\t2\n", Options{TargetRef: record.RefID})

	_, ok := r.Resolve(1)
	assert.False(t, ok)
	assert.Equal(t, 1, r.Stats().Dangling)
}

func TestBuild_DropsInvalidEdges(t *testing.T) {
	log, hook := test.NewNullLogger()
	cat := buildCatalog(t, 4, 1, 2, 3)

	r := buildResolver(t, cat, "1\t4\n2\t99\n88\t4\n4\t1\nmalformed\n3\tx\n", Options{TargetRef: record.RefID, Log: log})

	assert.Equal(t, 1, r.Len())
	assert.True(t, r.IsSource(1))
	assert.False(t, r.IsSource(2), "target does not exist")
	assert.False(t, r.IsSource(88), "source does not exist")
	assert.False(t, r.IsSource(4), "source is not a redirect")

	stats := r.Stats()
	assert.Equal(t, 6, stats.Lines)
	assert.Equal(t, 2, stats.Malformed)
	assert.Equal(t, 3, stats.Dropped)
	assert.Len(t, hook.AllEntries(), 3, "two malformed warnings plus the summary")

	target, ok := r.Target(1)
	require.True(t, ok)
	assert.Equal(t, int64(4), target)
}

func TestEach_Ordered(t *testing.T) {
	cat := buildCatalog(t, 10, 2, 5, 9, 7, 8)
	r := buildResolver(t, cat, "9\t1\n2\t3\n5\t9\n7\t8\n8\t7\n", Options{TargetRef: record.RefID})

	var got [][2]int64
	require.NoError(t, r.Each(func(source, canonical int64) error {
		got = append(got, [2]int64{source, canonical})
		return nil
	}))
	assert.Equal(t, [][2]int64{{2, 3}, {5, 1}, {9, 1}}, got)
}

func TestEach_StopsOnError(t *testing.T) {
	r := FromEdges(map[int64]int64{1: 2, 3: 4}, nil, 0)

	calls := 0
	err := r.Each(func(int64, int64) error {
		calls++
		return fmt.Errorf("stop")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

// randomGraph builds a redirect graph where every node has at most one
// outgoing edge, which is exactly the shape of a redirects table
func randomGraph(rng *rand.Rand, n int) map[int64]int64 {
	edges := make(map[int64]int64)
	for id := int64(1); id <= int64(n); id++ {
		if rng.Intn(3) > 0 {
			edges[id] = int64(rng.Intn(n) + 1)
		}
	}
	return edges
}

func TestResolve_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		edges := randomGraph(rng, 200)
		r := FromEdges(edges, nil, 10)

		for id := int64(1); id <= 200; id++ {
			canonical, ok := r.Resolve(id)
			if !ok {
				continue
			}

			again, ok := r.Resolve(canonical)
			require.True(t, ok)
			assert.Equal(t, canonical, again, "resolve must be idempotent")
			assert.False(t, r.IsSource(canonical), "canonical target must not be a redirect")

			// walking the chain by hand must reach the same page within the bound
			cur, hops := id, 0
			for r.IsSource(cur) {
				cur = edges[cur]
				hops++
				require.LessOrEqual(t, hops, 10)
			}
			assert.Equal(t, canonical, cur)
		}
	}
}
