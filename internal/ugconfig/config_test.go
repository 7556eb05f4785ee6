package ugconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ugoite/ieapp/internal/ugconfig"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	cfg, err := ugconfig.Load("")
	require.NoError(t, err)
	require.Equal(t, "memory://default", cfg.StoreURI)
	require.Equal(t, "", cfg.DefaultSpace)
	require.EqualValues(t, 10_000_000, cfg.SandboxFuelBudget)
	require.Equal(t, 900, cfg.SQLSessionTTLSeconds)
}

func TestLoadFromExplicitConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store_uri: file:///data\ndefault_space: team\n"), 0o644))

	cfg, err := ugconfig.Load(path)
	require.NoError(t, err)
	require.Equal(t, "file:///data", cfg.StoreURI)
	require.Equal(t, "team", cfg.DefaultSpace)
}

func TestLoadEnvOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store_uri: file:///data\n"), 0o644))

	t.Setenv("UGOITE_STORE_URI", "memory://from-env")
	cfg, err := ugconfig.Load(path)
	require.NoError(t, err)
	require.Equal(t, "memory://from-env", cfg.StoreURI)
}
