package originfs

import (
	"os"
	"strings"

	"emperror.dev/errors"
	"github.com/creasty/defaults"
	"gopkg.in/yaml.v2"
)

// Config controls how a Store is opened for an origin. Zero values are
// replaced with the tagged defaults when passed to Open.
type Config struct {
	// BaseDirectory is the directory underneath which every origin's
	// private root lives.
	BaseDirectory string `default:"/var/lib/originfs" yaml:"base_directory"`

	// Origin identifies the principal that owns the storage bucket.
	// It is mangled into a directory name beneath BaseDirectory.
	Origin string `yaml:"origin"`

	// MaxSize is the storage quota for the origin in bytes. A value of
	// 0 means unlimited, -1 disables all writes.
	MaxSize int64 `yaml:"max_size"`

	// DiskCheckInterval is the number of seconds that may elapse
	// between usage recalculations. A value of 0 disables usage
	// tracking entirely.
	DiskCheckInterval int64 `default:"150" yaml:"disk_check_interval"`

	// UseOpenat2 selects openat2 with RESOLVE_BENEATH for path
	// resolution. Disable only on kernels older than 5.6.
	UseOpenat2 bool `default:"true" yaml:"use_openat2"`

	// Denylist is a set of gitignore-style patterns; entries matching
	// any of them cannot be read or written through the store.
	Denylist []string `yaml:"denylist"`

	// PermissionTTL is the number of seconds a permission decision is
	// cached before the handler is consulted again.
	PermissionTTL int64 `default:"300" yaml:"permission_ttl"`

	// PermissionHandler decides permission states for handles. When
	// nil every request is granted; the origin owns its private root.
	PermissionHandler PermissionFunc `yaml:"-"`

	Export ExportConfig `yaml:"export"`
}

// ExportConfig tunes archive exports of an origin's tree.
type ExportConfig struct {
	// WriteLimit is the maximum write rate for exports in MiB/s. A
	// value of 0 disables rate limiting.
	WriteLimit int `yaml:"write_limit"`

	// CompressionLevel is one of "none", "best_speed", or
	// "best_compression".
	CompressionLevel string `default:"best_speed" yaml:"compression_level"`
}

// NewConfigFromFile reads a YAML config from path and fills in
// defaults for any unset fields.
func NewConfigFromFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "originfs: could not read configuration file")
	}
	cfg := new(Config)
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, errors.Wrap(err, "originfs: could not decode configuration")
	}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.Wrap(err, "originfs: failed to apply configuration defaults")
	}
	return cfg, nil
}

// bucketName converts an origin identifier into a directory name that
// is safe to create beneath the base directory.
func (c *Config) bucketName() string {
	r := strings.NewReplacer("://", "_", "/", "_", ":", "_")
	return r.Replace(strings.TrimSpace(c.Origin))
}
