package originfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigFromFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
base_directory: /tmp/buckets
origin: https://app.example.com:8443
max_size: 1048576
denylist:
  - "*.secret"
export:
  write_limit: 4
`), 0o600))

	cfg, err := NewConfigFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/buckets", cfg.BaseDirectory)
	assert.Equal(t, "https://app.example.com:8443", cfg.Origin)
	assert.Equal(t, int64(1048576), cfg.MaxSize)
	assert.Equal(t, []string{"*.secret"}, cfg.Denylist)
	assert.Equal(t, 4, cfg.Export.WriteLimit)

	// Unset fields fall back to their defaults.
	assert.Equal(t, int64(150), cfg.DiskCheckInterval)
	assert.Equal(t, int64(300), cfg.PermissionTTL)
	assert.Equal(t, "best_speed", cfg.Export.CompressionLevel)
}

func TestNewConfigFromFile_Missing(t *testing.T) {
	t.Parallel()
	_, err := NewConfigFromFile(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestConfig_BucketName(t *testing.T) {
	t.Parallel()
	for origin, want := range map[string]string{
		"https://example.com":          "https_example.com",
		"https://app.example.com:8443": "https_app.example.com_8443",
		"  file:///data  ":             "file__data",
		"":                             "",
	} {
		cfg := &Config{Origin: origin}
		assert.Equal(t, want, cfg.bucketName(), "origin %q", origin)
	}
}
