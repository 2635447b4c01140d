package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sonata-project/mediastore/interfaces"
	"github.com/sonata-project/mediastore/pathgen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mediastore.yaml")
	err := os.WriteFile(path, []byte(`
server:
  listen_addr: 0.0.0.0:9000
storage:
  primary: file:///srv/media
  secondary: s3://media-backup/uploads?region=eu-west-1
media:
  generator: bucket
  cdn_path: https://cdn.example.com
  bucket_first_level: 1000
  bucket_second_level: 10
log:
  json: true
`), 0o600)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.ListenAddr)
	// Untouched fields keep their defaults.
	assert.Equal(t, "127.0.0.1:8090", cfg.Server.MetricsAddr)
	assert.Equal(t, int64(45), cfg.Server.DrainSeconds)
	assert.Equal(t, "s3://media-backup/uploads?region=eu-west-1", cfg.Storage.Secondary)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, "mediastore", cfg.Log.Service)

	gen, err := cfg.PathGenerator()
	require.NoError(t, err)
	assert.Equal(t, "user/0002/01", gen.GeneratePath("user", "1000"))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte("server: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{"empty listen addr", func(c *Config) { c.Server.ListenAddr = "" }, nil},
		{"empty primary", func(c *Config) { c.Storage.Primary = "" }, nil},
		{"bad primary scheme", func(c *Config) { c.Storage.Primary = "ftp://host/" }, interfaces.ErrInvalidLocationURI},
		{"bad secondary scheme", func(c *Config) { c.Storage.Secondary = "github://o/r" }, interfaces.ErrInvalidLocationURI},
		{"unknown generator", func(c *Config) { c.Media.Generator = "random" }, nil},
		{"zero bucket level", func(c *Config) {
			c.Media.Generator = pathgen.BucketName
			c.Media.BucketSecondLevel = 0
		}, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}
