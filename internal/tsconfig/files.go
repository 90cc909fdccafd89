package tsconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/jward/tsuparser/internal/diagnostic"
)

var defaultExcludes = []string{"node_modules", "bower_components", "jspm_packages"}

// sourceExtensions lists the extensions picked up by include patterns, in
// priority order: when two files share a stem only the first is kept.
func sourceExtensions(opts *CompilerOptions) []string {
	exts := []string{".ts", ".tsx", ".d.ts"}
	if opts.AllowJs {
		exts = append(exts, ".js", ".jsx")
	}
	return exts
}

// expandRootFiles computes the root file list: "files" entries verbatim,
// then every include match that no exclude pattern covers. An empty list
// is a configuration error.
func (r *reader) expandRootFiles(path, dir string, raw *rawConfig, opts *CompilerOptions) []string {
	var out []string
	seen := map[string]bool{}
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, f := range raw.files {
		if _, err := os.Stat(f); err != nil {
			r.diags = append(r.diags, diagnostic.Global(6053, "File '%s' not found.", f))
			continue
		}
		add(f)
	}

	include := raw.include
	if include == nil && raw.files == nil {
		include = []string{filepath.Join(dir, "**", "*")}
	}
	exclude := raw.exclude
	if exclude == nil {
		for _, d := range defaultExcludes {
			exclude = append(exclude, filepath.Join(dir, d))
		}
		if opts.OutDir != "" {
			exclude = append(exclude, opts.OutDir)
		}
	}

	exts := sourceExtensions(opts)
	var matched []string
	for _, pattern := range include {
		for _, p := range globFiles(normalizeInclude(pattern), exts) {
			if !excluded(p, exclude) {
				matched = append(matched, p)
			}
		}
	}
	for _, p := range dropShadowed(matched, exts) {
		add(p)
	}

	switch {
	case len(out) > 0 || len(r.diags) > 0:
	case raw.files != nil && len(raw.files) == 0 && raw.include == nil:
		r.diags = append(r.diags, diagnostic.Global(18002, "The 'files' list in config file '%s' is empty.", path))
	default:
		r.diags = append(r.diags, diagnostic.Global(18003,
			"No inputs were found in config file '%s'. Specified 'include' paths were '%s' and 'exclude' paths were '%s'.",
			path, specList(dir, include), specList(dir, raw.exclude)))
	}
	return out
}

// specList renders patterns relative to dir as a JSON array.
func specList(dir string, patterns []string) string {
	rel := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if r, err := filepath.Rel(dir, p); err == nil {
			p = r
		}
		rel = append(rel, filepath.ToSlash(p))
	}
	data, _ := json.Marshal(rel)
	return string(data)
}

// normalizeInclude turns directory patterns into recursive file patterns.
func normalizeInclude(pattern string) string {
	p := filepath.ToSlash(pattern)
	base := p[strings.LastIndex(p, "/")+1:]
	switch {
	case strings.HasSuffix(p, "**"):
		return p + "/*"
	case !strings.ContainsAny(base, "*?[{") && filepath.Ext(base) == "":
		return strings.TrimSuffix(p, "/") + "/**/*"
	}
	return p
}

func globFiles(pattern string, exts []string) []string {
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil
	}
	var out []string
	for _, m := range matches {
		if hasExtension(m, exts) {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

func hasExtension(p string, exts []string) bool {
	for _, ext := range exts {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}
	return false
}

func excluded(p string, patterns []string) bool {
	slash := filepath.ToSlash(p)
	for _, pattern := range patterns {
		pat := filepath.ToSlash(pattern)
		if !strings.ContainsAny(pat, "*?[{") {
			// Plain paths exclude themselves and everything below.
			if slash == pat || strings.HasPrefix(slash, strings.TrimSuffix(pat, "/")+"/") {
				return true
			}
			continue
		}
		if ok, _ := doublestar.Match(pat, slash); ok {
			return true
		}
		if ok, _ := doublestar.Match(strings.TrimSuffix(pat, "/")+"/**", slash); ok {
			return true
		}
	}
	return false
}

// dropShadowed removes files whose stem is also present with a
// higher-priority extension, e.g. foo.d.ts next to foo.ts.
func dropShadowed(files []string, exts []string) []string {
	rank := func(p string) (string, int) {
		best, stem := len(exts), p
		for i, ext := range exts {
			if strings.HasSuffix(p, ext) && (best == len(exts) || len(ext) > len(exts[best])) {
				best, stem = i, strings.TrimSuffix(p, ext)
			}
		}
		return stem, best
	}
	bestByStem := map[string]int{}
	for _, f := range files {
		stem, r := rank(f)
		if cur, ok := bestByStem[stem]; !ok || r < cur {
			bestByStem[stem] = r
		}
	}
	var out []string
	for _, f := range files {
		stem, r := rank(f)
		if bestByStem[stem] == r {
			out = append(out, f)
		}
	}
	return out
}
