package diagnostic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiagnostic_String(t *testing.T) {
	t.Parallel()

	d := Diagnostic{File: "/proj/src/Foo.ts", Line: 2, Character: 9, Code: 2304, Message: "Cannot find name 'Baz'."}
	assert.Equal(t, "[TS]: Foo.ts(3,10): error TS2304: Cannot find name 'Baz'.", d.String())

	g := Global(5053, "Option '%s' cannot be specified with option '%s'.", "sourceMap", "inlineSourceMap")
	assert.Equal(t, "[TS]: Option 'sourceMap' cannot be specified with option 'inlineSourceMap'.", g.String())
}

func TestLineMap_Position(t *testing.T) {
	t.Parallel()

	text := []byte("ab\r\ncd\n\U0001F600x\n")
	m := NewLineMap(text)
	assert.Equal(t, 4, m.LineCount())

	tests := []struct {
		offset     int
		line, char int
	}{
		{0, 0, 0},
		{1, 0, 1},
		{4, 1, 0},
		{5, 1, 1},
		{7, 2, 0},
		{11, 2, 2}, // the emoji counts as two UTF-16 units
		{100, 3, 0},
	}
	for _, tt := range tests {
		line, char := m.Position(tt.offset)
		assert.Equal(t, tt.line, line, "offset %d", tt.offset)
		assert.Equal(t, tt.char, char, "offset %d", tt.offset)
	}
}

func TestLineMap_At(t *testing.T) {
	t.Parallel()

	m := NewLineMap([]byte("let a\nlet b"))
	d := m.At("x.ts", 10, 1005, "'%s' expected.", ";")
	assert.Equal(t, 1, d.Line)
	assert.Equal(t, 4, d.Character)
	assert.Equal(t, "[TS]: x.ts(2,5): error TS1005: ';' expected.", d.String())
}
