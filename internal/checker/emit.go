package checker

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// ErrTranspile means the transpiler rejected a file the checker accepted.
var ErrTranspile = errors.New("transpile failed")

// OutputFile is one file produced by Emit.
type OutputFile struct {
	Name string
	Text string
}

// EmitResult is the outcome of emitting one source file. Skipped is set
// when the options or the file kind produce no JavaScript.
type EmitResult struct {
	Skipped bool
	Files   []OutputFile
}

// Emit strips the types from f with esbuild and returns the JavaScript,
// plus a source map file when sourceMap is set.
func (p *Program) Emit(f *SourceFile) (EmitResult, error) {
	o := p.options
	if o.NoEmit || o.EmitDeclarationOnly || f.IsDeclaration || p.IsLibFile(f) {
		return EmitResult{Skipped: true}, nil
	}

	name := p.outputPath(f)
	source, err := filepath.Rel(filepath.Dir(name), f.Path)
	if err != nil {
		source = filepath.Base(f.Path)
	}

	opts := api.TransformOptions{
		Loader:      loaderFor(f.Path),
		Format:      p.format(f),
		Target:      targetFor(o.Target),
		Sourcefile:  filepath.ToSlash(source),
		SourceRoot:  o.SourceRoot,
		TsconfigRaw: p.tsconfigRaw(),
		LogLevel:    api.LogLevelSilent,
	}
	switch {
	case o.InlineSourceMap:
		opts.Sourcemap = api.SourceMapInline
	case o.SourceMap:
		opts.Sourcemap = api.SourceMapExternal
	}
	opts.SourcesContent = api.SourcesContentExclude
	if o.InlineSources {
		opts.SourcesContent = api.SourcesContentInclude
	}

	res := api.Transform(string(f.Text), opts)
	if len(res.Errors) > 0 {
		msg := res.Errors[0]
		if msg.Location != nil {
			return EmitResult{}, fmt.Errorf("%w: %s(%d,%d): %s", ErrTranspile,
				filepath.Base(f.Path), msg.Location.Line, msg.Location.Column+1, msg.Text)
		}
		return EmitResult{}, fmt.Errorf("%w: %s: %s", ErrTranspile, filepath.Base(f.Path), msg.Text)
	}

	js := string(res.Code)
	if !o.SourceMap || o.InlineSourceMap {
		return EmitResult{Files: []OutputFile{{Name: name, Text: js}}}, nil
	}
	js += "//# sourceMappingURL=" + filepath.Base(name) + ".map\n"
	return EmitResult{Files: []OutputFile{
		{Name: name, Text: js},
		{Name: name + ".map", Text: string(res.Map)},
	}}, nil
}

func loaderFor(path string) api.Loader {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsx":
		return api.LoaderTSX
	case ".js", ".mjs", ".cjs":
		return api.LoaderJS
	case ".jsx":
		return api.LoaderJSX
	}
	return api.LoaderTS
}

// format picks CommonJS for modules under a require/exports module kind and
// ES modules otherwise. Scripts are emitted without a module wrapper.
func (p *Program) format(f *SourceFile) api.Format {
	switch {
	case !f.isModule:
		return api.FormatDefault
	case p.options.CommonJS():
		return api.FormatCommonJS
	}
	return api.FormatESModule
}

// targetFor maps the target option onto esbuild. ES3 and ES5 are raised to
// ES2015, the oldest target esbuild lowers block scoping and classes for.
func targetFor(target string) api.Target {
	switch strings.ToLower(target) {
	case "", "es3", "es5", "es6", "es2015":
		return api.ES2015
	case "es2016":
		return api.ES2016
	case "es2017":
		return api.ES2017
	case "es2018":
		return api.ES2018
	case "es2019":
		return api.ES2019
	case "es2020":
		return api.ES2020
	case "es2021":
		return api.ES2021
	case "es2022":
		return api.ES2022
	}
	return api.ESNext
}

// tsconfigRaw passes the options that change emitted code to esbuild.
func (p *Program) tsconfigRaw() string {
	data, _ := json.Marshal(map[string]any{
		"compilerOptions": map[string]any{"strict": p.options.Strict},
	})
	return string(data)
}

// outputPath places the output under outDir, mirroring the layout below
// rootDir, or next to the source.
func (p *Program) outputPath(f *SourceFile) string {
	ext := filepath.Ext(f.Path)
	out := strings.TrimSuffix(f.Path, ext)
	if ext == ".tsx" || ext == ".jsx" {
		out += ".jsx"
	} else {
		out += ".js"
	}
	if p.options.OutDir == "" {
		return out
	}
	root := p.options.RootDir
	if root == "" {
		root = p.cwd
	}
	rel, err := filepath.Rel(root, out)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(out)
	}
	return filepath.Join(p.options.OutDir, rel)
}
