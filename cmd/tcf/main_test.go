package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/dep2p/go-tcf/config"
)

func runLoad(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()
	var (
		cfg *config.Config
		err error
	)
	app := &cli.App{
		Flags: []cli.Flag{configFlag, dataDirFlag, logLevelFlag, logFormatFlag},
		Action: func(c *cli.Context) error {
			cfg, err = loadConfig(c)
			return nil
		},
	}
	require.NoError(t, app.Run(append([]string{"tcf"}, args...)))
	return cfg, err
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := runLoad(t)
	require.NoError(t, err)
	assert.Equal(t, config.NewConfig(), cfg)
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tcf.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"storage":{"data_dir":"/from/file"},"log":{"level":"warn"}}`), 0o600))

	cfg, err := runLoad(t, "--config", path, "--data-dir", "/from/flag")
	require.NoError(t, err)
	assert.Equal(t, "/from/flag", cfg.Storage.DataDir)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := runLoad(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
