package checker

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"
)

var moduleExtensions = []string{".ts", ".tsx", ".d.ts"}

func isRelativeSpecifier(spec string) bool {
	return strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") || spec == "." || spec == ".."
}

// resolveModule maps a module specifier to a file path, or "" when no file
// provides it (it may still be an ambient module).
func (b *programBuilder) resolveModule(spec, from string) string {
	if isRelativeSpecifier(spec) || filepath.IsAbs(spec) {
		base := spec
		if !filepath.IsAbs(spec) {
			base = filepath.Join(filepath.Dir(from), spec)
		}
		return b.loadFileOrDirectory(base)
	}

	opts := b.program.options
	if len(opts.Paths) > 0 {
		baseURL := opts.BaseURL
		if baseURL == "" {
			baseURL = b.program.cwd
		}
		for _, sub := range matchPaths(opts.Paths, spec) {
			if path := b.loadFileOrDirectory(filepath.Join(baseURL, sub)); path != "" {
				return path
			}
		}
	}
	if opts.BaseURL != "" {
		if path := b.loadFileOrDirectory(filepath.Join(opts.BaseURL, spec)); path != "" {
			return path
		}
	}

	for dir := filepath.Dir(from); ; {
		modules := filepath.Join(dir, "node_modules")
		if path := b.loadFileOrDirectory(filepath.Join(modules, spec)); path != "" {
			return path
		}
		if path := b.loadFileOrDirectory(filepath.Join(modules, "@types", mangleScoped(spec))); path != "" {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// matchPaths applies the "paths" mapping, longest matching prefix first.
func matchPaths(paths map[string][]string, spec string) []string {
	type match struct {
		prefix int
		subs   []string
		star   string
	}
	var matches []match
	for pattern, subs := range paths {
		star := strings.Index(pattern, "*")
		if star < 0 {
			if pattern == spec {
				matches = append(matches, match{prefix: len(pattern) + 1, subs: subs})
			}
			continue
		}
		prefix, suffix := pattern[:star], pattern[star+1:]
		if strings.HasPrefix(spec, prefix) && strings.HasSuffix(spec, suffix) && len(spec) >= len(prefix)+len(suffix) {
			matches = append(matches, match{prefix: len(prefix), subs: subs, star: spec[len(prefix) : len(spec)-len(suffix)]})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].prefix > matches[j].prefix })
	var out []string
	for _, m := range matches {
		for _, sub := range m.subs {
			out = append(out, strings.Replace(sub, "*", m.star, 1))
		}
	}
	return out
}

func mangleScoped(spec string) string {
	if strings.HasPrefix(spec, "@") {
		if i := strings.Index(spec, "/"); i > 0 {
			return spec[1:i] + "__" + spec[i+1:]
		}
	}
	return spec
}

func (b *programBuilder) loadFileOrDirectory(base string) string {
	if path := b.loadFile(base); path != "" {
		return path
	}
	return b.loadDirectory(base)
}

func (b *programBuilder) loadFile(base string) string {
	host := b.host
	for _, ext := range []string{".js", ".jsx", ".mjs", ".cjs"} {
		if strings.HasSuffix(base, ext) {
			stem := strings.TrimSuffix(base, ext)
			for _, tsExt := range moduleExtensions {
				if host.FileExists(stem + tsExt) {
					return stem + tsExt
				}
			}
		}
	}
	if hasModuleExtension(base) && host.FileExists(base) {
		return base
	}
	for _, ext := range moduleExtensions {
		if host.FileExists(base + ext) {
			return base + ext
		}
	}
	if b.program.options.AllowJs {
		for _, ext := range []string{".js", ".jsx"} {
			if host.FileExists(base + ext) {
				return base + ext
			}
		}
	}
	return ""
}

func hasModuleExtension(path string) bool {
	for _, ext := range moduleExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

type packageJSON struct {
	Types   string `json:"types"`
	Typings string `json:"typings"`
	Main    string `json:"main"`
}

func (b *programBuilder) loadDirectory(dir string) string {
	if data, err := b.host.ReadFile(filepath.Join(dir, "package.json")); err == nil {
		var pkg packageJSON
		if json.Unmarshal(data, &pkg) == nil {
			for _, entry := range []string{pkg.Types, pkg.Typings} {
				if entry == "" {
					continue
				}
				if path := b.loadFile(filepath.Join(dir, entry)); path != "" {
					return path
				}
			}
			if pkg.Main != "" {
				main := filepath.Join(dir, pkg.Main)
				main = strings.TrimSuffix(main, filepath.Ext(main))
				if path := b.loadFile(main); path != "" {
					return path
				}
			}
		}
	}
	for _, ext := range moduleExtensions {
		if index := filepath.Join(dir, "index"+ext); b.host.FileExists(index) {
			return index
		}
	}
	return ""
}

// typeRoots returns the configured type roots, or every node_modules/@types
// directory from the current directory upwards.
func (b *programBuilder) typeRoots() []string {
	if roots := b.program.options.TypeRoots; roots != nil {
		return roots
	}
	var roots []string
	for dir := b.program.cwd; dir != ""; {
		candidate := filepath.Join(dir, "node_modules", "@types")
		if _, err := b.host.ReadDirectory(candidate); err == nil {
			roots = append(roots, candidate)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return roots
}

// automaticTypes resolves the "types" option, or every package found in the
// type roots when it is unset.
func (b *programBuilder) automaticTypes() []string {
	roots := b.typeRoots()
	names := b.program.options.Types
	if names == nil {
		for _, root := range roots {
			entries, err := b.host.ReadDirectory(root)
			if err != nil {
				continue
			}
			for _, e := range entries {
				if !strings.HasPrefix(e, ".") {
					names = append(names, e)
				}
			}
		}
	}
	var out []string
	for _, name := range names {
		if path := b.resolveTypeReference(name, filepath.Join(b.program.cwd, "__inferred type names__.ts")); path != "" {
			out = append(out, path)
		}
	}
	return out
}

func (b *programBuilder) resolveTypeReference(name, from string) string {
	for _, root := range b.typeRoots() {
		if path := b.loadDirectory(filepath.Join(root, name)); path != "" {
			return path
		}
		if path := b.loadFile(filepath.Join(root, name)); path != "" {
			return path
		}
	}
	for dir := filepath.Dir(from); ; {
		if path := b.loadFileOrDirectory(filepath.Join(dir, "node_modules", name)); path != "" {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}
