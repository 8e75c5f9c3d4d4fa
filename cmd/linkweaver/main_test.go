package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alvmarrod/link-weaver/internal/input"
	"github.com/alvmarrod/link-weaver/internal/metrics"
	"github.com/alvmarrod/link-weaver/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPages     = "1\tA\t0\n2\tB\t0\n3\tC\t1\n4\tD\t1\n"
	testRedirects = "3\tB\n"
	testLinks     = "1\tC\n2\tA\n3\tA\n1\tA\n9\tA\nbroken\n"
)

type result struct {
	stdout string
	stderr string
	err    error
}

// execute runs the CLI with isolated metrics and env files
func execute(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	dir := t.TempDir()

	cmd := newRootCmd()
	var out, errb bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errb)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(args,
		"--metrics", filepath.Join(dir, "metrics.json"),
		"--env-file", filepath.Join(dir, ".env"),
	))

	err := cmd.Execute()
	return result{stdout: out.String(), stderr: errb.String(), err: err}
}

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRootCmd_Definition(t *testing.T) {
	root := newRootCmd()
	assert.Equal(t, "linkweaver", root.Use)

	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	for _, want := range []string{"prune-pages", "redirects", "links", "targets", "group", "combine", "load", "dumps", "version"} {
		assert.Contains(t, names, want)
	}

	for _, flag := range []string{"config", "verbose", "metrics", "env-file"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestVersionCmd(t *testing.T) {
	r := execute(t, "", "version")
	require.NoError(t, r.err)
	assert.True(t, strings.HasPrefix(r.stdout, "linkweaver "))
}

func TestPrunePagesCmd(t *testing.T) {
	pages := writeInput(t, "pages.tsv", testPages)
	redirects := writeInput(t, "redirects.tsv", testRedirects)

	r := execute(t, "", "prune-pages", pages, redirects)
	require.NoError(t, r.err, r.stderr)
	assert.Equal(t, "1\tA\t0\n2\tB\t0\n3\tC\t1\n", r.stdout)
}

func TestRedirectsCmd(t *testing.T) {
	pages := writeInput(t, "pages.tsv", testPages)
	redirects := writeInput(t, "redirects.tsv", testRedirects)

	r := execute(t, "", "redirects", pages, redirects)
	require.NoError(t, r.err, r.stderr)
	assert.Equal(t, "3\t2\n", r.stdout)
}

func TestRedirectsCmd_ByID(t *testing.T) {
	pages := writeInput(t, "pages.tsv", "1\tA\t1\n2\tB\t1\n3\tC\t1\n4\tD\t0\n")
	redirects := writeInput(t, "redirects.tsv", "1\t2\n2\t3\n3\t4\n")

	r := execute(t, "", "redirects", pages, redirects, "--redirect-ref", "id")
	require.NoError(t, r.err, r.stderr)
	assert.Equal(t, "1\t4\n2\t4\n3\t4\n", r.stdout)

	// one redirect past the first edge: two-edge chains resolve, three-edge chains do not
	r = execute(t, "", "redirects", pages, redirects, "--redirect-ref", "id", "--max-hops", "1")
	require.NoError(t, r.err, r.stderr)
	assert.Equal(t, "2\t4\n3\t4\n", r.stdout)
}

func TestLinksCmd(t *testing.T) {
	pages := writeInput(t, "pages.tsv", testPages)
	redirects := writeInput(t, "redirects.tsv", testRedirects)
	linksPath := writeInput(t, "links.tsv", testLinks)

	r := execute(t, "", "links", pages, redirects, linksPath)
	require.NoError(t, r.err, r.stderr)
	assert.Equal(t, "1\t2\n2\t1\n2\t1\n", r.stdout)
	assert.Contains(t, r.stderr, "skipping line 6")
}

func TestLinksCmd_NoResolveSource(t *testing.T) {
	pages := writeInput(t, "pages.tsv", testPages)
	redirects := writeInput(t, "redirects.tsv", testRedirects)
	linksPath := writeInput(t, "links.tsv", "3\tA\n")

	r := execute(t, "", "links", pages, redirects, linksPath, "--resolve-source=false")
	require.NoError(t, r.err, r.stderr)
	assert.Equal(t, "3\t1\n", r.stdout)
}

func TestLinksCmd_Stdin(t *testing.T) {
	pages := writeInput(t, "pages.tsv", testPages)
	linksPath := writeInput(t, "links.tsv", "1\tC\n")

	r := execute(t, testRedirects, "links", pages, "-", linksPath)
	require.NoError(t, r.err, r.stderr)
	assert.Equal(t, "1\t2\n", r.stdout)

	r = execute(t, testRedirects, "links", pages, "-", "-")
	assert.Error(t, r.err)
	assert.Empty(t, r.stdout)
}

func TestLinksCmd_GzipOutput(t *testing.T) {
	pages := writeInput(t, "pages.tsv", testPages)
	redirects := writeInput(t, "redirects.tsv", testRedirects)
	linksPath := writeInput(t, "links.tsv", testLinks)
	output := filepath.Join(t.TempDir(), "edges.tsv.gz")

	r := execute(t, "", "links", pages, redirects, linksPath, "-o", output)
	require.NoError(t, r.err, r.stderr)
	assert.Empty(t, r.stdout)

	scanner, closer, err := input.Lines(output, input.Options{RequireGzip: true})
	require.NoError(t, err)
	defer closer.Close()
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	assert.Equal(t, []string{"1\t2", "2\t1", "2\t1"}, lines)
}

func TestLinksCmd_Metrics(t *testing.T) {
	pages := writeInput(t, "pages.tsv", testPages)
	redirects := writeInput(t, "redirects.tsv", testRedirects)
	linksPath := writeInput(t, "links.tsv", testLinks)
	metricsPath := filepath.Join(t.TempDir(), "run.json")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"links", pages, redirects, linksPath, "--metrics", metricsPath})
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	var summary metrics.Summary
	require.NoError(t, json.Unmarshal(data, &summary))

	assert.Equal(t, "links", summary.Stage)
	assert.Equal(t, "completed", summary.TerminationReason)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, int64(6), summary.Counts["links"][metrics.Read])
	assert.Equal(t, int64(3), summary.Counts["links"][metrics.Emitted])
	assert.Equal(t, int64(1), summary.Counts["links"][metrics.Malformed])
	assert.Equal(t, int64(4), summary.Counts["pages"][metrics.Read])
}

func TestTargetsCmd(t *testing.T) {
	pages := writeInput(t, "pages.tsv", testPages)
	redirects := writeInput(t, "redirects.tsv", testRedirects)
	targets := writeInput(t, "targets.tsv", "k1\tC\nk2\tZ\nk3\tA\n")

	r := execute(t, "", "targets", pages, redirects, targets)
	require.NoError(t, r.err, r.stderr)
	assert.Equal(t, "k1\t2\nk3\t1\n", r.stdout)
}

func TestGroupCmd(t *testing.T) {
	edges := writeInput(t, "edges.tsv", "2\t3\n1\t2\n2\t1\n")

	tests := []struct {
		by   string
		want string
	}{
		{by: "source", want: "1\t2\n2\t1|3\n"},
		{by: "target", want: "1\t2\n2\t1\n3\t2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.by, func(t *testing.T) {
			r := execute(t, "", "group", "--by", tt.by, "--chunk-size", "2", "--temp-dir", t.TempDir(), edges)
			require.NoError(t, r.err, r.stderr)
			assert.Equal(t, tt.want, r.stdout)
		})
	}
}

func TestCombineCmd(t *testing.T) {
	outgoing := writeInput(t, "out.tsv", "1\t2\n2\t1|3\n")
	incoming := writeInput(t, "in.tsv", "1\t2\n2\t1\n3\t2\n")

	r := execute(t, "", "combine", outgoing, incoming)
	require.NoError(t, r.err, r.stderr)
	assert.Equal(t, "1\t1\t1\t2\t2\n2\t2\t1\t1|3\t1\n3\t0\t1\t\t2\n", r.stdout)
}

func TestLoadCmd(t *testing.T) {
	pages := writeInput(t, "pages.tsv", "1\tA\t0\n2\tB\t0\n3\tC\t1\n")
	redirects := writeInput(t, "redirects.tsv", "3\t2\n")
	combined := writeInput(t, "combined.tsv", "1\t1\t1\t2\t2\n2\t1\t1\t1\t1\n")
	dbPath := filepath.Join(t.TempDir(), "graph.db")

	r := execute(t, "", "load", pages, redirects, combined, "--db", dbPath, "--batch-size", "2")
	require.NoError(t, r.err, r.stderr)

	store, err := storage.NewStorage(dbPath)
	require.NoError(t, err)
	defer store.Close()

	nPages, nRedirects, nLinks, err := store.Counts()
	require.NoError(t, err)
	assert.Equal(t, 3, nPages)
	assert.Equal(t, 1, nRedirects)
	assert.Equal(t, 2, nLinks)
}

func TestDumpsCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/simplewiki/":
			fmt.Fprint(w, `<a href="20240101/">20240101/</a><a href="20240301/">20240301/</a>`)
		case "/simplewiki/20240101/":
			fmt.Fprint(w, `<a href="simplewiki-20240101-pagelinks.sql.gz">l</a>`+
				`<a href="simplewiki-20240101-page.sql.gz">p</a>`+
				`<a href="simplewiki-20240101-redirect.sql.gz">r</a>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	r := execute(t, "", "dumps", "simplewiki", "20240101", "--base-url", srv.URL)
	require.NoError(t, r.err, r.stderr)
	base := srv.URL + "/simplewiki/20240101/simplewiki-20240101-"
	assert.Equal(t,
		"page\t"+base+"page.sql.gz\nredirect\t"+base+"redirect.sql.gz\npagelinks\t"+base+"pagelinks.sql.gz\n",
		r.stdout)

	r = execute(t, "", "dumps", "simplewiki", "--dates", "--base-url", srv.URL)
	require.NoError(t, r.err, r.stderr)
	assert.Equal(t, "20240301\n20240101\n", r.stdout)
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "links missing args", args: []string{"links", "a", "b"}},
		{name: "combine extra args", args: []string{"combine", "a", "b", "c"}},
		{name: "group without key", args: []string{"group", "edges.tsv"}},
		{name: "group bad key", args: []string{"group", "--by", "middle", "edges.tsv"}},
		{name: "dumps without wiki", args: []string{"dumps"}},
		{name: "unknown flag", args: []string{"redirects", "--nope", "a", "b"}},
		{name: "targets source ref", args: []string{"targets", "--source-ref", "id", "a", "b", "c"}},
		{name: "targets resolve source", args: []string{"targets", "--resolve-source=false", "a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := execute(t, "", tt.args...)
			assert.Error(t, r.err)
			assert.Empty(t, r.stdout)
			assert.Contains(t, r.stderr, "Usage:")
		})
	}
}

func TestRequireGzip(t *testing.T) {
	t.Setenv("LINKWEAVER_REQUIRE_GZIP", "true")
	pages := writeInput(t, "pages.tsv", testPages)
	redirects := writeInput(t, "redirects.tsv", testRedirects)

	r := execute(t, "", "redirects", pages, redirects)
	assert.ErrorIs(t, r.err, input.ErrNotCompressed)
	assert.Empty(t, r.stdout)
}

func TestMissingInput(t *testing.T) {
	pages := writeInput(t, "pages.tsv", testPages)

	r := execute(t, "", "redirects", pages, filepath.Join(t.TempDir(), "missing.tsv"))
	assert.Error(t, r.err)
	assert.Empty(t, r.stdout)
}

func TestTargetsCmd_Flags(t *testing.T) {
	root := newRootCmd()
	cmd, _, err := root.Find([]string{"targets"})
	require.NoError(t, err)

	assert.NotNil(t, cmd.Flags().Lookup("target-ref"))
	assert.NotNil(t, cmd.Flags().Lookup("redirect-ref"))
	assert.NotNil(t, cmd.Flags().Lookup("max-hops"))
	assert.Nil(t, cmd.Flags().Lookup("source-ref"))
	assert.Nil(t, cmd.Flags().Lookup("resolve-source"))
}

func TestGroupCmd_MissingTempDir(t *testing.T) {
	edges := writeInput(t, "edges.tsv", "2\t1\n1\t3\n")

	r := execute(t, "", "group", "--by", "source", "--temp-dir", filepath.Join(t.TempDir(), "missing"), edges)
	assert.Error(t, r.err)
	assert.Empty(t, r.stdout)
}

func TestOutput_NotCreatedOnFailure(t *testing.T) {
	pages := writeInput(t, "pages.tsv", testPages)
	redirects := writeInput(t, "redirects.tsv", testRedirects)
	output := filepath.Join(t.TempDir(), "edges.tsv")

	r := execute(t, "", "links", pages, redirects, filepath.Join(t.TempDir(), "missing.tsv"), "-o", output)
	assert.Error(t, r.err)

	_, err := os.Stat(output)
	assert.True(t, os.IsNotExist(err), "failed stage must not create %s", output)
}

func TestOutput_CreatedWhenEmpty(t *testing.T) {
	pages := writeInput(t, "pages.tsv", testPages)
	redirects := writeInput(t, "redirects.tsv", "")
	output := filepath.Join(t.TempDir(), "resolved.tsv")

	r := execute(t, "", "redirects", pages, redirects, "-o", output)
	require.NoError(t, r.err, r.stderr)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestOutput_RejectsInputPath(t *testing.T) {
	pages := writeInput(t, "pages.tsv", testPages)
	redirects := writeInput(t, "redirects.tsv", testRedirects)

	r := execute(t, "", "prune-pages", pages, redirects, "-o", pages)
	assert.Error(t, r.err)

	data, err := os.ReadFile(pages)
	require.NoError(t, err)
	assert.Equal(t, testPages, string(data))
}
