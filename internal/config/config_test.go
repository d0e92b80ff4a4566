package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/ghg-dashboard/internal/csvtable"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ghg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("parser: rfc4180\nencoding: latin1\ngeometry: maps/canada.json\n"), 0644))
	t.Setenv("GHG_ENCODING", "cp1252")
	t.Setenv("GHG_NO_CACHE", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, csvtable.ModeRFC4180, cfg.Parser)
	assert.Equal(t, "cp1252", cfg.Encoding, "environment wins over the file")
	assert.Equal(t, "maps/canada.json", cfg.Geometry)
	assert.True(t, cfg.NoCache)
	assert.Equal(t, "provinces", cfg.GeometryObject, "unset keys keep their default")
}

func TestLoad_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("parser: [unclosed\n"), 0644))
	_, err := Load(path)
	assert.Error(t, err)

	t.Setenv("GHG_VERBOSE", "loud")
	_, err = Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Parser = csvtable.ModeRFC4180
	cfg.Verbose = true
	path := filepath.Join(t.TempDir(), "nested", "ghg.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("GHG_PARSER=rfc4180\n"), 0644))
	t.Setenv("GHG_PARSER", "")
	os.Unsetenv("GHG_PARSER")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "rfc4180", os.Getenv("GHG_PARSER"))
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Parser = "excel"
	assert.ErrorIs(t, cfg.Validate(), csvtable.ErrUnknownMode)

	cfg = DefaultConfig()
	cfg.Encoding = "ebcdic"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.HTTPTimeout = "soon"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	d, err := cfg.Timeout()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)
}
