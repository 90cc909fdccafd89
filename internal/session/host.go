package session

import (
	"os"
	"strings"

	"github.com/jward/tsuparser/internal/checker"
	"github.com/jward/tsuparser/internal/snapshot"
	"github.com/jward/tsuparser/internal/tsconfig"
)

// StoreHost answers host questions from the version store and the project
// configuration, and reads everything else from disk.
type StoreHost struct {
	store  *snapshot.Store
	config *tsconfig.Config
}

// NewStoreHost creates a host over store and cfg.
func NewStoreHost(store *snapshot.Store, cfg *tsconfig.Config) *StoreHost {
	return &StoreHost{store: store, config: cfg}
}

// ScriptFileNames returns the files requested so far, followed by the
// declaration files of the configured root list. Those carry the global
// host declarations a project never imports.
func (h *StoreHost) ScriptFileNames() []string {
	names := h.store.Tracked()
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	for _, f := range h.config.RootFiles {
		if strings.HasSuffix(f, ".d.ts") && !seen[f] {
			names = append(names, f)
		}
	}
	return names
}

func (h *StoreHost) ScriptVersion(path string) string { return h.store.Version(path) }

func (h *StoreHost) ScriptSnapshot(path string) (*snapshot.Snapshot, error) {
	return h.store.Snapshot(path)
}

func (h *StoreHost) CurrentDirectory() string { return h.config.Dir }

func (h *StoreHost) CompilationSettings() *tsconfig.CompilerOptions { return &h.config.Options }

func (h *StoreHost) DefaultLibFileName() string { return checker.DefaultLibPath }

func (h *StoreHost) FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (h *StoreHost) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

func (h *StoreHost) ReadDirectory(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	return dirs, nil
}
