package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_ParsesYAML(t *testing.T) {
	assert := require.New(t)

	path := filepath.Join(t.TempDir(), "pagedb.yml")
	contents := "data_directory: /var/lib/pagedb\npage_size: 4096\nlog_level: debug\n"
	assert.NoError(os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	assert.NoError(err)
	assert.Equal("/var/lib/pagedb", cfg.DataDir)
	assert.Equal(4096, cfg.PageSize)
	assert.Equal(5, int(cfg.LogLevel)) // logrus.DebugLevel
}

func TestLoad_MissingFileErrors(t *testing.T) {
	assert := require.New(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(err)
}

func TestDefault_UsesStandardPageSize(t *testing.T) {
	assert := require.New(t)

	cfg := Default()
	assert.Equal(4096, cfg.PageSize)
}
