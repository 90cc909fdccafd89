// Package tsconfig locates and parses the project's tsconfig.json.
//
// The file is JSONC: comments and trailing commas are accepted. Its shape is
// validated against an embedded JSON schema so unknown or mistyped compiler
// options surface as compiler-style diagnostics instead of being ignored.
package tsconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jward/tsuparser/internal/diagnostic"
)

// FileName is the configuration file looked up by Find.
const FileName = "tsconfig.json"

var (
	// ErrConfigurationNotFound means no tsconfig.json exists in the project
	// directory or any of its parents.
	ErrConfigurationNotFound = errors.New("failed to find tsconfig")

	// ErrConfigurationInvalid wraps every parse or validation failure.
	ErrConfigurationInvalid = errors.New("invalid tsconfig")
)

// DiagnosticError carries the diagnostics produced while reading a
// configuration. Its message is the formatted diagnostics, one per line.
type DiagnosticError struct {
	Diagnostics []diagnostic.Diagnostic
}

func (e *DiagnosticError) Error() string {
	return strings.Join(diagnostic.Strings(e.Diagnostics), "\n")
}

// Unwrap lets errors.Is match ErrConfigurationInvalid.
func (e *DiagnosticError) Unwrap() error { return ErrConfigurationInvalid }

// Config is the resolved project configuration. It is read once at startup
// and never mutated afterwards.
type Config struct {
	// Dir is the directory containing the configuration file.
	Dir string
	// Path is the absolute path of the configuration file.
	Path string
	// Options are the merged compiler options, with path-valued options
	// made absolute.
	Options CompilerOptions
	// RootFiles are the files named by "files" followed by every file the
	// include patterns matched, minus excludes.
	RootFiles []string
}

// Find looks for tsconfig.json in dir and then in each parent directory.
func Find(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%w in: %s", ErrConfigurationNotFound, dir)
	}
	for cur := abs; ; {
		candidate := filepath.Join(cur, FileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}
	return "", fmt.Errorf("%w in: %s", ErrConfigurationNotFound, abs)
}

// Load finds and parses the configuration for the project rooted at dir.
func Load(dir string) (*Config, error) {
	path, err := Find(dir)
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile parses the configuration at path, following "extends" chains.
func LoadFile(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigurationInvalid, err)
	}

	r := &reader{}
	raw, err := r.read(abs, nil)
	if err != nil {
		return nil, err
	}
	if len(r.diags) > 0 {
		return nil, &DiagnosticError{Diagnostics: r.diags}
	}

	opts, err := decodeOptions(raw.options)
	if err != nil {
		return nil, &DiagnosticError{Diagnostics: []diagnostic.Diagnostic{
			diagnostic.Global(5024, "%v", err),
		}}
	}

	dir := filepath.Dir(abs)
	cfg := &Config{
		Dir:     dir,
		Path:    abs,
		Options: opts,
	}
	cfg.RootFiles = r.expandRootFiles(abs, dir, raw, &cfg.Options)
	if len(r.diags) > 0 {
		return nil, &DiagnosticError{Diagnostics: r.diags}
	}
	return cfg, nil
}
