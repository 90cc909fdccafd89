package tsconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/muhammadmuzzammil1998/jsonc"

	"github.com/jward/tsuparser/internal/diagnostic"
)

// rawConfig is one level of an extends chain after merging with its bases.
// Paths are absolute; a nil slice means the key was not set.
type rawConfig struct {
	options map[string]any
	files   []string
	include []string
	exclude []string
}

// extendsRef records where a child config named its base, for diagnostics.
type extendsRef struct {
	file   string
	lines  *diagnostic.LineMap
	offset int
	chain  []string
}

type reader struct {
	diags []diagnostic.Diagnostic
}

func (r *reader) read(path string, from *extendsRef) (*rawConfig, error) {
	var chain []string
	if from != nil {
		chain = from.chain
	}
	for _, seen := range chain {
		if seen == path {
			r.diags = append(r.diags, diagnostic.Global(18000,
				"Circularity detected while resolving configuration: %s",
				strings.Join(append(chain, path), " -> ")))
			return &rawConfig{}, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if from == nil {
			return nil, &DiagnosticError{Diagnostics: []diagnostic.Diagnostic{
				diagnostic.Global(5083, "Cannot read file '%s'.", path),
			}}
		}
		d := from.lines.At(from.file, from.offset, 5083, "Cannot read file '%s'.", path)
		r.diags = append(r.diags, d)
		return &rawConfig{}, nil
	}

	lines := diagnostic.NewLineMap(data)
	clean := jsonc.ToJSON(data)

	doc, err := decodeDocument(clean)
	if err != nil {
		offset := 0
		var syn *json.SyntaxError
		if errors.As(err, &syn) && syn.Offset > 0 {
			offset = originalOffset(data, clean, int(syn.Offset-1))
		}
		return nil, &DiagnosticError{Diagnostics: []diagnostic.Diagnostic{
			lines.At(path, offset, 1005, "%s.", sentence(err.Error())),
		}}
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, &DiagnosticError{Diagnostics: []diagnostic.Diagnostic{
			lines.At(path, 0, 5092, "The root value of a '%s' file must be an object.", filepath.Base(path)),
		}}
	}

	r.diags = append(r.diags, validate(path, data, lines, obj)...)

	dir := filepath.Dir(path)
	own := &rawConfig{options: map[string]any{}}
	if co, ok := obj["compilerOptions"].(map[string]any); ok {
		for k, v := range co {
			own.options[k] = v
		}
		absolutizeOptions(dir, own.options)
	}
	own.files = absList(dir, obj["files"])
	own.include = absList(dir, obj["include"])
	own.exclude = absList(dir, obj["exclude"])

	ext, ok := obj["extends"].(string)
	if !ok || ext == "" {
		return own, nil
	}
	basePath := resolveExtends(dir, ext)
	base, err := r.read(basePath, &extendsRef{
		file:   path,
		lines:  lines,
		offset: locate(data, []string{"extends"}),
		chain:  append(append([]string(nil), chain...), path),
	})
	if err != nil {
		return nil, err
	}
	return merge(base, own), nil
}

func decodeDocument(clean []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(clean))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("invalid character after top-level value")
	}
	return doc, nil
}

// merge overlays child on base: compiler options merge key by key, file
// lists are replaced wholesale when the child sets them.
func merge(base, child *rawConfig) *rawConfig {
	out := &rawConfig{options: map[string]any{}}
	for k, v := range base.options {
		out.options[k] = v
	}
	for k, v := range child.options {
		out.options[k] = v
	}
	out.files = pick(child.files, base.files)
	out.include = pick(child.include, base.include)
	out.exclude = pick(child.exclude, base.exclude)
	return out
}

func pick(child, base []string) []string {
	if child != nil {
		return child
	}
	return base
}

func absList(dir string, v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, absPath(dir, s))
		}
	}
	return out
}

// resolveExtends maps an "extends" value to a file. Relative and absolute
// values are files next to the child; bare names are looked up in
// node_modules directories walking upward.
func resolveExtends(dir, ext string) string {
	if filepath.IsAbs(ext) || strings.HasPrefix(ext, "./") || strings.HasPrefix(ext, "../") {
		p := absPath(dir, ext)
		if filepath.Ext(p) != ".json" {
			if _, err := os.Stat(p); err != nil {
				p += ".json"
			}
		}
		return p
	}
	for cur := dir; ; {
		pkg := filepath.Join(cur, "node_modules", filepath.FromSlash(ext))
		for _, candidate := range []string{pkg, pkg + ".json", filepath.Join(pkg, FileName)} {
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate
			}
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return filepath.Join(dir, "node_modules", filepath.FromSlash(ext))
		}
		cur = parent
	}
}

// originalOffset maps an offset in the comment-stripped text back onto the
// original bytes. The stripped text is a subsequence of the original, so the
// two are walked in step.
func originalOffset(original, clean []byte, offset int) int {
	i := 0
	for j := 0; j < len(clean) && j < offset; j++ {
		for i < len(original) && original[i] != clean[j] {
			i++
		}
		i++
	}
	for i < len(original) && (offset < len(clean)) && original[i] != clean[offset] {
		i++
	}
	if i > len(original) {
		return len(original)
	}
	return i
}

// locate finds the offset of the key at path, searching for each quoted key
// after the previous one. Numeric path elements (array indexes) are skipped.
func locate(data []byte, path []string) int {
	pos, found := 0, 0
	for _, key := range path {
		if key == "" || strings.Trim(key, "0123456789") == "" {
			continue
		}
		idx := bytes.Index(data[pos:], []byte(`"`+key+`"`))
		if idx < 0 {
			break
		}
		pos += idx
		found = pos
		pos += len(key) + 2
	}
	return found
}

func sentence(msg string) string {
	msg = strings.TrimSuffix(msg, ".")
	if msg == "" {
		return msg
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}
