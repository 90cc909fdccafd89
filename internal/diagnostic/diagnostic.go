// Package diagnostic holds the compiler diagnostic shape shared by the
// configuration resolver and the checker, and the line map used to turn
// byte offsets into editor positions.
package diagnostic

import (
	"fmt"
	"path/filepath"
	"sort"
	"unicode/utf8"
)

// Category mirrors the compiler's diagnostic categories.
type Category int

const (
	Error Category = iota
	Warning
	Suggestion
	Message
)

func (c Category) String() string {
	switch c {
	case Warning:
		return "warning"
	case Suggestion:
		return "suggestion"
	case Message:
		return "message"
	default:
		return "error"
	}
}

// Diagnostic is a single compiler message. File is empty for global
// diagnostics such as option conflicts; Line and Character are 0-based.
type Diagnostic struct {
	File      string
	Line      int
	Character int
	Category  Category
	Code      int
	Message   string
}

// String renders the diagnostic the way the host expects to read it:
//
//	[TS]: Foo.ts(3,10): error TS2304: Cannot find name 'Baz'.
//	[TS]: Option 'sourceMap' cannot be specified with option 'inlineSourceMap'.
func (d Diagnostic) String() string {
	if d.File == "" {
		return "[TS]: " + d.Message
	}
	return fmt.Sprintf("[TS]: %s(%d,%d): %s TS%d: %s",
		filepath.Base(d.File), d.Line+1, d.Character+1, d.Category, d.Code, d.Message)
}

// Strings formats every diagnostic in order.
func Strings(diags []Diagnostic) []string {
	out := make([]string, len(diags))
	for i, d := range diags {
		out[i] = d.String()
	}
	return out
}

// LineMap converts byte offsets into 0-based line and UTF-16 character
// positions.
type LineMap struct {
	text   []byte
	starts []int
}

// NewLineMap indexes the line starts of text. Lines end at "\n"; a preceding
// "\r" stays part of the previous line.
func NewLineMap(text []byte) *LineMap {
	starts := []int{0}
	for i, b := range text {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &LineMap{text: text, starts: starts}
}

// LineCount reports the number of lines in the text.
func (m *LineMap) LineCount() int { return len(m.starts) }

// LineStart returns the byte offset where the 0-based line begins.
func (m *LineMap) LineStart(line int) int {
	if line < 0 {
		return 0
	}
	if line >= len(m.starts) {
		return len(m.text)
	}
	return m.starts[line]
}

// Position returns the 0-based line and UTF-16 character of offset.
func (m *LineMap) Position(offset int) (line, character int) {
	if offset < 0 {
		offset = 0
	}
	if offset > len(m.text) {
		offset = len(m.text)
	}
	line = sort.Search(len(m.starts), func(i int) bool { return m.starts[i] > offset }) - 1
	if line < 0 {
		line = 0
	}
	for i := m.starts[line]; i < offset; {
		r, size := utf8.DecodeRune(m.text[i:])
		if r >= 0x10000 {
			character += 2
		} else {
			character++
		}
		i += size
	}
	return line, character
}

// At builds an error diagnostic for file at the given byte offset.
func (m *LineMap) At(file string, offset, code int, format string, args ...any) Diagnostic {
	line, char := m.Position(offset)
	return Diagnostic{
		File:      file,
		Line:      line,
		Character: char,
		Category:  Error,
		Code:      code,
		Message:   fmt.Sprintf(format, args...),
	}
}

// Global builds an error diagnostic that is not attached to a file.
func Global(code int, format string, args ...any) Diagnostic {
	return Diagnostic{Category: Error, Code: code, Message: fmt.Sprintf(format, args...)}
}
