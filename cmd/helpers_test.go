// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/wingminer/internal/config"
	"github.com/xkilldash9x/wingminer/internal/observability"
)

// testEnv is an isolated set of files the commands read and write.
type testEnv struct {
	dir          string
	configFile   string
	stateFile    string
	settingsFile string
}

// resetForTest silences the logger and points every file at a temp dir.
func resetForTest(t *testing.T) *testEnv {
	t.Helper()
	observability.ResetForTest()
	observability.InitializeLogger(config.LoggerConfig{Level: "fatal", Format: "console", ServiceName: "test"})
	t.Cleanup(observability.ResetForTest)

	dir := t.TempDir()
	env := &testEnv{
		dir:          dir,
		configFile:   filepath.Join(dir, "wingminer.yaml"),
		stateFile:    filepath.Join(dir, "state.json"),
		settingsFile: filepath.Join(dir, "settings.json"),
	}
	env.writeConfig(t, "")
	return env
}

// writeConfig writes a config file pointing at the env's files, followed by
// extra YAML.
func (e *testEnv) writeConfig(t *testing.T, extra string) {
	t.Helper()
	content := fmt.Sprintf(`
logger:
  level: fatal
  log_file: %q
wing_mining:
  state_file: %q
  settings_file: %q
%s`, filepath.Join(e.dir, "wingminer.log"), e.stateFile, e.settingsFile, extra)
	require.NoError(t, os.WriteFile(e.configFile, []byte(content), 0o644))
}

func (e *testEnv) writeSettings(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, writeString(e.settingsFile, content))
}

// execute runs a fresh root command with the env's config file.
func (e *testEnv) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeCommand(t, append([]string{"--config", e.configFile, "--env-file", ""}, args...)...)
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func writeString(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
