// Package config reads kiln's settings from a KEY=VALUE file, with every key
// overridable by the environment variable of the same name.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"kiln/internal/relocate"
)

// DefaultPath is read when no file is given explicitly.
const DefaultPath = "/etc/kiln.conf"

// Keys.
const (
	KeyDebug          = "KILN_DEBUG"
	KeyPatchelf       = "KILN_PATCHELF"
	KeyCMake          = "KILN_CMAKE"
	KeyCMakeGenerator = "KILN_CMAKE_GENERATOR"
	KeyJobs           = "KILN_JOBS"
	KeyRecipePath     = "KILN_RECIPE_PATH"
	KeyRPathVars      = "KILN_RPATH_VARS"
	KeyStrict         = "KILN_STRICT"
	KeyAsRoot         = "KILN_AS_ROOT"
	KeyTmpDir         = "TMPDIR"
)

// Config is the effective configuration.
type Config struct {
	File           string // file that was read, empty when none
	Debug          bool
	Patchelf       string
	CMake          string
	CMakeGenerator string
	Jobs           int
	RecipePath     []string
	RPathVars      []string
	Strict         bool
	AsRoot         bool
	TmpDir         string
}

// Load reads path, or DefaultPath when path is empty. A missing default
// file is not an error; a missing explicit one is.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("dotenv")
	v.AutomaticEnv()

	v.SetDefault(KeyDebug, false)
	v.SetDefault(KeyPatchelf, "patchelf")
	v.SetDefault(KeyCMake, "cmake")
	v.SetDefault(KeyCMakeGenerator, "")
	v.SetDefault(KeyJobs, runtime.NumCPU())
	v.SetDefault(KeyRecipePath, "")
	v.SetDefault(KeyRPathVars, strings.Join(relocate.DefaultEnvVars, ","))
	v.SetDefault(KeyStrict, false)
	v.SetDefault(KeyAsRoot, false)
	v.SetDefault(KeyTmpDir, "/tmp")

	file := path
	if file == "" {
		file = DefaultPath
	}
	cfg := &Config{}
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.Is(err, os.ErrNotExist) || errors.As(err, &notFound)
		if path != "" || !missing {
			return nil, fmt.Errorf("config %s: %w", file, err)
		}
	} else {
		cfg.File = file
	}

	cfg.Debug = v.GetBool(KeyDebug)
	cfg.Patchelf = v.GetString(KeyPatchelf)
	cfg.CMake = v.GetString(KeyCMake)
	cfg.CMakeGenerator = v.GetString(KeyCMakeGenerator)
	cfg.Jobs = v.GetInt(KeyJobs)
	cfg.RecipePath = splitNonEmpty(v.GetString(KeyRecipePath), string(filepath.ListSeparator))
	cfg.RPathVars = splitNonEmpty(v.GetString(KeyRPathVars), ",")
	cfg.Strict = v.GetBool(KeyStrict)
	cfg.AsRoot = v.GetBool(KeyAsRoot)
	cfg.TmpDir = v.GetString(KeyTmpDir)

	if cfg.Jobs < 0 {
		return nil, fmt.Errorf("config: %s must not be negative", KeyJobs)
	}
	return cfg, nil
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
