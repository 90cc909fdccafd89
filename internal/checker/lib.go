package checker

import _ "embed"

// DefaultLibPath is the virtual path the embedded library is served under.
// It never exists on disk.
const DefaultLibPath = "/__tsuparser__/lib.d.ts"

//go:embed lib.d.ts
var defaultLib []byte

// DefaultLib returns the embedded declaration file for the global scope.
func DefaultLib() []byte { return defaultLib }
