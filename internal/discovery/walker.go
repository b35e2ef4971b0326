// Copyright 2025 James Ross
package discovery

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// LogFile is one discovered candidate, carrying enough of its directory
// context for the batch processor to decide whether to skip
// stabilization (spec.md §4.5 step 1: files under a past date partition
// are assumed closed by logrotate).
type LogFile struct {
	Path              string
	DatePartition     string // the date directory (YYYY-MM-DD or YYYYMMDD) normalized to YYYY-MM-DD, "" if the file is not under one
	PastDatePartition bool
}

// Walk scans root for candidate log files, directly adapted from
// producer.go's filepath.WalkDir body: the same include/exclude
// doublestar matching against a path relative to root, generalized from
// arbitrary files to nginx access logs laid out as either a flat
// directory or <root>/<YYYY-MM-DD>/*.log[.gz]. The walk is bounded to two
// levels deep — root and one partition directory beneath it — matching
// spec.md §3's stated tree layout; it does not recurse further.
//
// Results are ordered oldest date-partition first, then by filename
// ascending within a partition, per spec.md §4.6's ordering guarantee.
func Walk(root string, include, exclude []string, today time.Time) ([]LogFile, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	var files []LogFile
	err = filepath.WalkDir(absRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// root is rel ".", a partition directory has no separator in
			// rel; anything deeper is skipped.
			if rel, rerr := filepath.Rel(absRoot, path); rerr == nil && strings.ContainsRune(rel, os.PathSeparator) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}

		incMatch := len(include) == 0
		for _, g := range include {
			if ok, _ := doublestar.PathMatch(g, rel); ok {
				incMatch = true
				break
			}
		}
		if !incMatch {
			return nil
		}
		for _, g := range exclude {
			if ok, _ := doublestar.PathMatch(g, rel); ok {
				return nil
			}
		}

		partition := datePartitionOf(rel)
		files = append(files, LogFile{
			Path:              path,
			DatePartition:     partition,
			PastDatePartition: partition != "" && partition < today.Format("2006-01-02"),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].DatePartition != files[j].DatePartition {
			return files[i].DatePartition < files[j].DatePartition
		}
		return files[i].Path < files[j].Path
	})
	return files, nil
}

// datePartitionOf returns the leading path segment of rel, normalized to
// canonical YYYY-MM-DD form, when it looks like either a dashed
// (YYYY-MM-DD) or compact (YYYYMMDD) date directory name per spec.md
// §4.6's tree layout; else "". Normalizing both accepted forms to one
// canonical value keeps sorting, PastDatePartition comparison, and
// --date scoping all working against a single representation regardless
// of which form the log tree actually uses.
func datePartitionOf(rel string) string {
	seg := rel
	if i := strings.IndexRune(rel, os.PathSeparator); i >= 0 {
		seg = rel[:i]
	}
	switch len(seg) {
	case 10:
		if seg[4] == '-' && seg[7] == '-' {
			if t, err := time.Parse("2006-01-02", seg); err == nil {
				return t.Format("2006-01-02")
			}
		}
	case 8:
		if t, err := time.Parse("20060102", seg); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}
