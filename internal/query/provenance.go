package query

import (
	"regexp"
	"strings"

	"docquery/internal/docs"
)

// DefaultInputPrefix is the directory prefix generated scripts are expected
// to reference documents under.
const DefaultInputPrefix = "files_to_query"

// ProvenanceTracker heuristically extracts which document paths a generated
// script references. It is a best-effort audit trail, not a parser: the
// patterns below are the whole contract, and consumers must not treat the
// result as complete.
type ProvenanceTracker struct {
	prefix  string
	openRe  *regexp.Regexp
	quoteRe *regexp.Regexp
}

// NewProvenanceTracker builds a tracker for the given input-directory prefix.
func NewProvenanceTracker(prefix string) *ProvenanceTracker {
	if prefix == "" {
		prefix = DefaultInputPrefix
	}
	quoted := regexp.QuoteMeta(prefix)
	return &ProvenanceTracker{
		prefix: prefix,
		// open('files_to_query/report.txt') / open("files_to_query\report.txt")
		openRe: regexp.MustCompile(`open\s*\(\s*['"]` + quoted + `[/\\]([^'"]+)['"]`),
		// any quoted string containing the prefix, covers path construction
		quoteRe: regexp.MustCompile(`['"]` + quoted + `[/\\]([^'"\s]+)['"]`),
	}
}

// Extract returns the referenced document paths in insertion order, deduplicated.
//
// When the prefix appears in the script but neither pattern matched a concrete
// file, exactly one degraded sentinel path is emitted: a pattern-failure
// marker if the script mentions a document extension, otherwise a
// directory-scan marker.
func (t *ProvenanceTracker) Extract(script string) []string {
	var found []string
	for _, m := range t.openRe.FindAllStringSubmatch(script, -1) {
		found = append(found, t.prefix+"/"+m[1])
	}
	for _, m := range t.quoteRe.FindAllStringSubmatch(script, -1) {
		found = append(found, t.prefix+"/"+m[1])
	}

	if len(found) == 0 && strings.Contains(strings.ToLower(script), strings.ToLower(t.prefix)) {
		if docs.HasDocExtension(script) {
			found = append(found, t.prefix+"/ (detected but pattern failed)")
		} else {
			found = append(found, t.prefix+"/ (directory scan)")
		}
	}

	return dedupe(found)
}

func dedupe(paths []string) []string {
	if len(paths) < 2 {
		return paths
	}
	seen := make(map[string]struct{}, len(paths))
	unique := paths[:0]
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		unique = append(unique, p)
	}
	return unique
}
