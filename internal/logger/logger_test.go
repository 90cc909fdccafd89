package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"silent", LevelSilent, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogger_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelWarn, &buf)

	l.Debug("hidden")
	l.Info("hidden too")
	l.Warn("shown")
	l.Error("also shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "[tsuparser] WARN shown", lines[0])
	assert.Equal(t, "[tsuparser] ERROR also shown", lines[1])
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelDebug, &buf).WithFields(F("request", "abc"))

	l.Info("analyzed", F("file", "Foo.ts"), F("exports", 2))

	assert.Equal(t, "[tsuparser] INFO analyzed request=abc file=Foo.ts exports=2\n", buf.String())
}

func TestLogger_ChildSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	parent := New(LevelInfo, &buf)
	child := parent.WithFields(F("k", "v"))

	parent.SetLevel(LevelError)
	child.Info("dropped")

	assert.Empty(t, buf.String())
}

func TestNewSilent(t *testing.T) {
	l := NewSilent()
	// Must not panic or write anywhere.
	l.Error("nothing")
}
