package testsupport

import (
	"path/filepath"
	"testing"

	"shelf/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.LibraryDir = filepath.Join(base, "library")
	cfg.Paths.ImportDirs = []string{filepath.Join(base, "import")}
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithImportDirs overrides the import directories on the test config.
func WithImportDirs(dirs ...string) ConfigOption {
	return func(c *config.Config) {
		c.Paths.ImportDirs = dirs
	}
}

// WithMaxPending overrides the pending queue bound on the test config.
func WithMaxPending(n int) ConfigOption {
	return func(c *config.Config) {
		c.Operations.MaxPending = n
	}
}
