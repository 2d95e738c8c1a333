package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiln/internal/relocate"
)

func writeConf(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kiln.conf")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConf(t, `# site settings
KILN_PATCHELF="/opt/tools/bin/patchelf"
KILN_JOBS=16
KILN_RECIPE_PATH=/site/recipes:/home/me/recipes
KILN_RPATH_VARS=SPACK_RPATH_DIRS, SPACK_STORE_RPATH_DIRS
KILN_STRICT=1
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, "/opt/tools/bin/patchelf", cfg.Patchelf)
	assert.Equal(t, 16, cfg.Jobs)
	assert.Equal(t, []string{"/site/recipes", "/home/me/recipes"}, cfg.RecipePath)
	assert.Equal(t, []string{"SPACK_RPATH_DIRS", "SPACK_STORE_RPATH_DIRS"}, cfg.RPathVars)
	assert.True(t, cfg.Strict)
	assert.Equal(t, "cmake", cfg.CMake)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConf(t, "KILN_CMAKE=/usr/bin/cmake\nKILN_DEBUG=0\n")
	t.Setenv("KILN_CMAKE", "/opt/cmake/bin/cmake")
	t.Setenv("KILN_DEBUG", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/opt/cmake/bin/cmake", cfg.CMake)
	assert.True(t, cfg.Debug)
}

func TestDefaults(t *testing.T) {
	for _, k := range []string{KeyRPathVars, KeyRecipePath, KeyAsRoot, KeyCMakeGenerator} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	cfg, err := Load(filepath.Join(t.TempDir(), "kiln.conf"))
	assert.Error(t, err, "explicit file must exist")
	assert.Nil(t, cfg)

	cfg, err = Load(writeConf(t, ""))
	require.NoError(t, err)
	assert.Equal(t, relocate.DefaultEnvVars, cfg.RPathVars)
	assert.Empty(t, cfg.RecipePath)
	assert.False(t, cfg.AsRoot)
	assert.Empty(t, cfg.CMakeGenerator)
	assert.Positive(t, cfg.Jobs)
}

func TestRejectsNegativeJobs(t *testing.T) {
	_, err := Load(writeConf(t, "KILN_JOBS=-2\n"))
	assert.Error(t, err)
}
