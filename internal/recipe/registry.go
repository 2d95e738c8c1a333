package recipe

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed builtin/*.toml
var builtinFS embed.FS

// ErrUnknownRecipe is returned by Registry.Get for names no recipe provides.
var ErrUnknownRecipe = errors.New("unknown recipe")

// Registry holds recipes by name: the built-ins first, then every *.toml
// file of each search directory in order. A later recipe of the same name
// replaces an earlier one.
type Registry struct {
	recipes map[string]*Recipe
}

// NewRegistry loads the built-in recipes and then dirs. Directories that do
// not exist are skipped.
func NewRegistry(dirs ...string) (*Registry, error) {
	reg := &Registry{recipes: make(map[string]*Recipe)}
	if err := reg.loadBuiltins(); err != nil {
		return nil, err
	}
	for _, d := range dirs {
		if d == "" {
			continue
		}
		if err := reg.loadDir(d); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (reg *Registry) loadBuiltins() error {
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return err
	}
	for _, e := range entries {
		data, err := builtinFS.ReadFile(path.Join("builtin", e.Name()))
		if err != nil {
			return err
		}
		r, err := Parse("builtin:"+e.Name(), data)
		if err != nil {
			return err
		}
		if r.Name == "" {
			r.Name = strings.TrimSuffix(e.Name(), ".toml")
		}
		reg.recipes[r.Name] = r
	}
	return nil
}

func (reg *Registry) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("recipe dir %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".toml" {
			continue
		}
		r, err := Load(filepath.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		reg.recipes[r.Name] = r
	}
	return nil
}

// Get returns the named recipe.
func (reg *Registry) Get(name string) (*Recipe, error) {
	r, ok := reg.recipes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRecipe, name)
	}
	return r, nil
}

// Names returns every recipe name, sorted.
func (reg *Registry) Names() []string {
	names := make([]string, 0, len(reg.recipes))
	for n := range reg.recipes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
