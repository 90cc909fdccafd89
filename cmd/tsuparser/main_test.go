package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/tsuparser"
	"github.com/jward/tsuparser/internal/logger"
	"github.com/jward/tsuparser/internal/tsconfig"
)

func newProjectDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	files[tsconfig.FileName] = `{"compilerOptions": {}}`
	if _, ok := files["index.ts"]; !ok {
		files["index.ts"] = "export {};\n"
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func execute(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(viper.New())
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(input))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRoot_ServesUntilExit(t *testing.T) {
	dir := newProjectDir(t, map[string]string{"Foo.ts": "export function f(): void {}\n"})

	out, err := execute(t, `{"file": "Foo.ts"}`+"\nEXIT\n", dir, "--log-level", "silent")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "\n"+tsuparser.ResponseTag+` {"fileName":"Foo.ts"`))
}

func TestRoot_LogsShareOutput(t *testing.T) {
	dir := newProjectDir(t, map[string]string{})

	out, err := execute(t, "EXIT\n", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "start parse")
	assert.Contains(t, out, "< EXIT >")
	assert.Contains(t, out, "end parse")
}

func TestRoot_RequiresProjectDir(t *testing.T) {
	_, err := execute(t, "")
	assert.Error(t, err)
}

func TestRoot_MissingConfiguration(t *testing.T) {
	_, err := execute(t, "EXIT\n", t.TempDir(), "--log-level", "silent")
	require.Error(t, err)
	assert.True(t, errors.Is(err, tsconfig.ErrConfigurationNotFound))
}

func TestRoot_FatalRequest(t *testing.T) {
	dir := newProjectDir(t, map[string]string{})

	out, err := execute(t, "not json\n", dir, "--log-level", "silent")
	var fatal *tsuparser.FatalError
	require.True(t, errors.As(err, &fatal))
	assert.Equal(t, err.Error()+"\n", out)
}

func TestRoot_BadLogLevel(t *testing.T) {
	dir := newProjectDir(t, map[string]string{})
	_, err := execute(t, "EXIT\n", dir, "--log-level", "loud")
	assert.ErrorContains(t, err, "unknown level")
}

func TestLoadConfig_Sources(t *testing.T) {
	dir := newProjectDir(t, map[string]string{
		".tsuparser.yaml": "host-base-type: Entity\nimmutable:\n  - \"**/lib/**\"\n",
	})
	t.Setenv("TSUPARSER_DB", filepath.Join(dir, "cache.db"))

	v := viper.New()
	cmd := newRootCmd(v)
	require.NoError(t, cmd.ParseFlags([]string{"--log-level", "debug"}))
	require.NoError(t, initConfig(v, cmd, dir))

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, logger.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "Entity", cfg.HostBaseType)
	assert.Equal(t, []string{"**/lib/**"}, cfg.Immutable)
	assert.Equal(t, filepath.Join(dir, "cache.db"), cfg.DB)
	assert.Empty(t, cfg.RulesScript)
}

func TestLoadConfig_Defaults(t *testing.T) {
	dir := newProjectDir(t, map[string]string{})

	v := viper.New()
	cmd := newRootCmd(v)
	require.NoError(t, initConfig(v, cmd, dir))

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel)
	assert.Equal(t, tsuparser.DefaultHostBaseType, cfg.HostBaseType)
	assert.Empty(t, cfg.Immutable)
	assert.Len(t, cfg.options(&bytes.Buffer{}), 2)
}
