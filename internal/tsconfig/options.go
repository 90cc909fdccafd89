package tsconfig

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// CompilerOptions holds the subset of compiler options the service honours.
// Unknown options are rejected by schema validation before decoding, so
// every other valid option is accepted and ignored.
type CompilerOptions struct {
	AllowJs             bool                `json:"allowJs"`
	BaseURL             string              `json:"baseUrl"`
	EmitDeclarationOnly bool                `json:"emitDeclarationOnly"`
	InlineSourceMap     bool                `json:"inlineSourceMap"`
	InlineSources       bool                `json:"inlineSources"`
	Lib                 []string            `json:"lib"`
	Module              string              `json:"module"`
	NoEmit              bool                `json:"noEmit"`
	NoImplicitAny       *bool               `json:"noImplicitAny"`
	NoLib               bool                `json:"noLib"`
	OutDir              string              `json:"outDir"`
	Paths               map[string][]string `json:"paths"`
	RootDir             string              `json:"rootDir"`
	SourceMap           bool                `json:"sourceMap"`
	SourceRoot          string              `json:"sourceRoot"`
	Strict              bool                `json:"strict"`
	StrictNullChecks    *bool               `json:"strictNullChecks"`
	Target              string              `json:"target"`
	TypeRoots           []string            `json:"typeRoots"`
	// Types is nil when the option is absent, which enables automatic
	// inclusion of every package under the type roots. An empty list
	// disables it.
	Types []string `json:"types"`
}

// ImplicitAnyErrors reports whether parameters without a type annotation
// are errors.
func (o *CompilerOptions) ImplicitAnyErrors() bool {
	if o.NoImplicitAny != nil {
		return *o.NoImplicitAny
	}
	return o.Strict
}

// StrictNulls reports whether null and undefined are distinct types.
func (o *CompilerOptions) StrictNulls() bool {
	if o.StrictNullChecks != nil {
		return *o.StrictNullChecks
	}
	return o.Strict
}

// ModuleKind returns the lower-cased module option, defaulting the way the
// compiler does: CommonJS for ES3/ES5 targets, ES2015 otherwise.
func (o *CompilerOptions) ModuleKind() string {
	if o.Module != "" {
		return strings.ToLower(o.Module)
	}
	switch strings.ToLower(o.Target) {
	case "", "es3", "es5":
		return "commonjs"
	}
	return "es2015"
}

// CommonJS reports whether emitted modules use require/exports.
func (o *CompilerOptions) CommonJS() bool {
	switch o.ModuleKind() {
	case "commonjs", "none", "node16", "nodenext", "umd", "amd":
		return true
	}
	return false
}

// pathOptions are resolved against the directory of the file that set them,
// so values inherited through "extends" keep pointing where the base meant.
var pathOptions = map[string]bool{
	"baseUrl":         true,
	"declarationDir":  true,
	"outDir":          true,
	"outFile":         true,
	"rootDir":         true,
	"tsBuildInfoFile": true,
}

var pathListOptions = map[string]bool{
	"rootDirs":  true,
	"typeRoots": true,
}

func absolutizeOptions(dir string, opts map[string]any) {
	for k, v := range opts {
		switch {
		case pathOptions[k]:
			if s, ok := v.(string); ok {
				opts[k] = absPath(dir, s)
			}
		case pathListOptions[k]:
			list, ok := v.([]any)
			if !ok {
				continue
			}
			out := make([]any, len(list))
			for i, item := range list {
				if s, ok := item.(string); ok {
					out[i] = absPath(dir, s)
				} else {
					out[i] = item
				}
			}
			opts[k] = out
		}
	}
}

func absPath(dir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(dir, p)
}

func decodeOptions(raw map[string]any) (CompilerOptions, error) {
	var opts CompilerOptions
	if len(raw) == 0 {
		return opts, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return opts, fmt.Errorf("encoding compiler options: %w", err)
	}
	if err := json.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("decoding compiler options: %w", err)
	}
	return opts, nil
}
