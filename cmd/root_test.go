// File: cmd/root_test.go
package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_VersionFlag(t *testing.T) {
	resetForTest(t)
	out, err := executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "wingminer version "+Version)
}

func TestRootCmd_VersionSubcommand(t *testing.T) {
	resetForTest(t)
	out, err := executeCommand(t, "version", "--config", "/does/not/exist.yaml")
	require.NoError(t, err, "version needs no configuration")
	assert.Equal(t, "wingminer version "+Version+"\n", out)
}

func TestRootCmd_NoArgs(t *testing.T) {
	resetForTest(t)
	out, err := executeCommand(t)
	require.NoError(t, err)
	assert.Contains(t, out, "Wingminer automates wing mining mission logistics.")
	for _, sub := range []string{"run", "scan", "status", "reset", "ingest", "version"} {
		assert.Contains(t, out, sub)
	}
}

func TestRootCmd_ArgumentValidation(t *testing.T) {
	resetForTest(t)
	for _, sub := range []string{"run", "scan", "status", "reset", "ingest"} {
		t.Run(sub, func(t *testing.T) {
			_, err := executeCommand(t, sub, "unexpected")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "unknown command")
		})
	}
}

func TestRootCmd_InvalidConfig(t *testing.T) {
	env := resetForTest(t)
	env.writeConfig(t, "ocr:\n  engine: magic\n")

	_, err := env.execute(t, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ocr.engine must be one of tesseract, remote")
}

func TestRootCmd_MissingConfigFile(t *testing.T) {
	resetForTest(t)
	_, err := executeCommand(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize configuration")
}

func TestInitializeConfig_Precedence(t *testing.T) {
	env := resetForTest(t)
	env.writeConfig(t, "ocr:\n  engine: remote\n")

	t.Run("environment overrides the file", func(t *testing.T) {
		t.Setenv("WINGMINER_WING_MINING_TARGET_MISSIONS", "5")
		out, err := env.execute(t, "status")
		require.NoError(t, err)
		assert.Contains(t, out, "Completed: 0/5 missions")
	})

	t.Run("dotenv file feeds the environment", func(t *testing.T) {
		dotenv := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(dotenv, []byte("WINGMINER_WING_MINING_TARGET_MISSIONS=7\n"), 0o644))
		t.Cleanup(func() { os.Unsetenv("WINGMINER_WING_MINING_TARGET_MISSIONS") })

		out, err := executeCommand(t, "--config", env.configFile, "--env-file", dotenv, "status")
		require.NoError(t, err)
		assert.Contains(t, out, "Completed: 0/7 missions")
	})

	t.Run("state file flag overrides the config", func(t *testing.T) {
		root := NewRootCommand()
		var seen string
		root.AddCommand(&cobra.Command{
			Use: "probe",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := getConfig(cmd)
				if err != nil {
					return err
				}
				seen = cfg.WingMining().StateFile
				assert.Equal(t, "remote", cfg.OCR().Engine)
				return nil
			},
		})
		root.SetArgs([]string{"--config", env.configFile, "--env-file", "", "--state-file", "/tmp/elsewhere.json", "probe"})
		require.NoError(t, root.Execute())
		assert.Equal(t, "/tmp/elsewhere.json", seen)
	})
}
