package tsconfig

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFind_WalksUpward(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, FileName), `{}`)
	nested := filepath.Join(root, "src", "game")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	got, err := Find(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, FileName), got)
}

func TestLoad_NotFound(t *testing.T) {
	t.Parallel()
	missing := filepath.Join(t.TempDir(), "does", "not", "exist")

	_, err := Load(missing)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigurationNotFound))
	assert.Contains(t, err.Error(), "failed to find tsconfig in:")
}

func TestLoad_JSONCAndDefaults(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, FileName), `{
  // comments are allowed
  "compilerOptions": {
    "strict": true,
    "outDir": "out",
    "sourceMap": false, /* trailing comma next */
  },
}`)
	writeFile(t, filepath.Join(root, "src", "Foo.ts"), "export {}\n")
	writeFile(t, filepath.Join(root, "src", "types.d.ts"), "declare class UObject {}\n")
	writeFile(t, filepath.Join(root, "node_modules", "pkg", "index.d.ts"), "export {}\n")
	writeFile(t, filepath.Join(root, "out", "Foo.d.ts"), "export {}\n")
	writeFile(t, filepath.Join(root, "README.md"), "nope\n")

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, root, cfg.Dir)
	assert.True(t, cfg.Options.Strict)
	assert.True(t, cfg.Options.ImplicitAnyErrors())
	assert.True(t, cfg.Options.StrictNulls())
	assert.Equal(t, filepath.Join(root, "out"), cfg.Options.OutDir)
	assert.Equal(t, "commonjs", cfg.Options.ModuleKind())
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "src", "Foo.ts"),
		filepath.Join(root, "src", "types.d.ts"),
	}, cfg.RootFiles)
}

func TestLoad_UnknownOption(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, FileName), "{\n  \"compilerOptions\": {\n    \"bogus\": true\n  }\n}\n")

	_, err := Load(root)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigurationInvalid))

	var de *DiagnosticError
	require.True(t, errors.As(err, &de))
	require.Len(t, de.Diagnostics, 1)
	assert.Equal(t, 5023, de.Diagnostics[0].Code)
	assert.Equal(t, "[TS]: tsconfig.json(3,5): error TS5023: Unknown compiler option 'bogus'.", err.Error())
}

func TestLoad_WrongOptionType(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, FileName), `{"compilerOptions": {"strict": "yes"}}`)

	_, err := Load(root)
	var de *DiagnosticError
	require.True(t, errors.As(err, &de))
	require.Len(t, de.Diagnostics, 1)
	assert.Equal(t, 5024, de.Diagnostics[0].Code)
	assert.Contains(t, de.Diagnostics[0].Message, "'strict' requires a value of type boolean")
}

func TestLoad_InvalidTarget(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, FileName), `{"compilerOptions": {"target": "es1999"}}`)

	_, err := Load(root)
	var de *DiagnosticError
	require.True(t, errors.As(err, &de))
	require.Len(t, de.Diagnostics, 1)
	assert.Equal(t, 6046, de.Diagnostics[0].Code)
	assert.Contains(t, de.Diagnostics[0].Message, "'es5'")
}

func TestLoad_SyntaxError(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, FileName), "{\n  \"compilerOptions\": {\n    \"strict\" true\n  }\n}\n")

	_, err := Load(root)
	var de *DiagnosticError
	require.True(t, errors.As(err, &de))
	require.Len(t, de.Diagnostics, 1)
	assert.Equal(t, 1005, de.Diagnostics[0].Code)
	assert.Equal(t, 2, de.Diagnostics[0].Line)
}

func TestLoad_Extends(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "configs", "base.json"), `{
  "compilerOptions": {"strict": true, "outDir": "../build", "module": "es2020"},
  "include": ["../lib"]
}`)
	writeFile(t, filepath.Join(root, FileName), `{
  "extends": "./configs/base",
  "compilerOptions": {"module": "commonjs"}
}`)
	writeFile(t, filepath.Join(root, "lib", "A.ts"), "export {}\n")
	writeFile(t, filepath.Join(root, "other", "B.ts"), "export {}\n")

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.True(t, cfg.Options.Strict)
	assert.Equal(t, "commonjs", cfg.Options.ModuleKind())
	assert.Equal(t, filepath.Join(root, "build"), cfg.Options.OutDir)
	assert.Equal(t, []string{filepath.Join(root, "lib", "A.ts")}, cfg.RootFiles)
}

func TestLoad_MissingExtendsBase(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, FileName), `{"extends": "./nope.json"}`)

	_, err := Load(root)
	var de *DiagnosticError
	require.True(t, errors.As(err, &de))
	require.Len(t, de.Diagnostics, 1)
	assert.Equal(t, 5083, de.Diagnostics[0].Code)
	assert.Equal(t, 0, de.Diagnostics[0].Line)
	assert.Equal(t, 1, de.Diagnostics[0].Character)
}

func TestLoad_FilesEntries(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, FileName), `{"files": ["main.ts", "gone.ts"]}`)
	writeFile(t, filepath.Join(root, "main.ts"), "export {}\n")

	_, err := Load(root)
	var de *DiagnosticError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 6053, de.Diagnostics[0].Code)
	assert.Equal(t, "[TS]: File '"+filepath.Join(root, "gone.ts")+"' not found.", de.Diagnostics[0].String())
}

func TestLoad_NoInputs(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	path := filepath.Join(root, FileName)
	writeFile(t, path, `{"compilerOptions": {}}`)
	writeFile(t, filepath.Join(root, "node_modules", "pkg", "index.d.ts"), "export {}\n")

	_, err := Load(root)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigurationInvalid))

	var de *DiagnosticError
	require.True(t, errors.As(err, &de))
	require.Len(t, de.Diagnostics, 1)
	assert.Equal(t, 18003, de.Diagnostics[0].Code)
	assert.Equal(t, "[TS]: No inputs were found in config file '"+path+
		"'. Specified 'include' paths were '[\"**/*\"]' and 'exclude' paths were '[]'.", de.Diagnostics[0].String())
}

func TestLoad_NoInputsWithPatterns(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, FileName), `{"include": ["src"], "exclude": ["src/gen"]}`)
	writeFile(t, filepath.Join(root, "src", "gen", "A.ts"), "export {}\n")

	_, err := Load(root)
	var de *DiagnosticError
	require.True(t, errors.As(err, &de))
	require.Len(t, de.Diagnostics, 1)
	assert.Equal(t, 18003, de.Diagnostics[0].Code)
	assert.Contains(t, de.Diagnostics[0].Message, `'include' paths were '["src"]' and 'exclude' paths were '["src/gen"]'`)
}

func TestLoad_EmptyFilesList(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, FileName), `{"files": []}`)
	writeFile(t, filepath.Join(root, "main.ts"), "export {}\n")

	_, err := Load(root)
	var de *DiagnosticError
	require.True(t, errors.As(err, &de))
	require.Len(t, de.Diagnostics, 1)
	assert.Equal(t, 18002, de.Diagnostics[0].Code)
}

func TestNormalizeInclude(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"/p/src":     "/p/src/**/*",
		"/p/src/":    "/p/src/**/*",
		"/p/**":      "/p/**/*",
		"/p/**/*.ts": "/p/**/*.ts",
		"/p/main.ts": "/p/main.ts",
		"/p/src/*":   "/p/src/*",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeInclude(in), in)
	}
}

func TestExcluded(t *testing.T) {
	t.Parallel()
	patterns := []string{"/p/node_modules", "/p/**/*.spec.ts"}
	assert.True(t, excluded("/p/node_modules/x/index.d.ts", patterns))
	assert.True(t, excluded("/p/src/a.spec.ts", patterns))
	assert.False(t, excluded("/p/src/a.ts", patterns))
	assert.False(t, excluded("/p/node_modules_extra/a.ts", patterns))
}

func TestOriginalOffset(t *testing.T) {
	t.Parallel()
	original := []byte("{ /* c */ \"a\": x }")
	clean := []byte("{\"a\":x}")
	// 'x' is at index 5 in clean.
	assert.Equal(t, 15, originalOffset(original, clean, 5))
}
