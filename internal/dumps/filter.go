package dumps

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// Table names a dump file the pipeline consumes
type Table string

const (
	TablePage      Table = "page"
	TableRedirect  Table = "redirect"
	TablePageLinks Table = "pagelinks"
)

// Tables lists every table in pipeline order
var Tables = []Table{TablePage, TableRedirect, TablePageLinks}

var (
	tablePattern = regexp.MustCompile(`^[a-z0-9_]+-(\d{8}|latest)-(page|redirect|pagelinks)\.sql\.gz$`)
	datePattern  = regexp.MustCompile(`^\d{8}$`)
)

// MatchTable reports which table a dump file name belongs to
func MatchTable(name string) (Table, bool) {
	m := tablePattern.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	return Table(m[2]), true
}

// IsDate reports whether a directory name is a dump date (YYYYMMDD)
func IsDate(name string) bool {
	return datePattern.MatchString(name)
}

// fileName extracts the last path element of a link, ignoring query and fragment
func fileName(link string) string {
	parsed, err := url.Parse(link)
	if err != nil {
		return ""
	}
	name := path.Base(strings.TrimSuffix(parsed.Path, "/"))
	if name == "." || name == "/" {
		return ""
	}
	return name
}
