// Package recipe loads declarative package recipes. A recipe is a TOML
// document naming a package's variants, the table that maps them onto the
// build environment and build-tool arguments, how the package is built and
// whether its install prefix is relocated afterwards.
package recipe

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"kiln/internal/derive"
	"kiln/internal/variant"
)

// Build systems.
const (
	SystemCMake = "cmake"
	SystemCopy  = "copy"
)

// Recipe is one package description.
type Recipe struct {
	Name        string      `toml:"name"`
	Description string      `toml:"description"`
	Homepage    string      `toml:"homepage"`
	Version     string      `toml:"version"`
	FixedArgs   []string    `toml:"fixed_args"`
	Build       Build       `toml:"build"`
	Relocate    Relocate    `toml:"relocate"`
	Variants    []Variant   `toml:"variant"`
	Env         []EnvRow    `toml:"env"`
	Args        []Arg       `toml:"arg"`
	Requires    []Require   `toml:"requires"`
	RunEnv      []RunEnvVar `toml:"run_env"`

	// Source is where the recipe was read from.
	Source string `toml:"-"`
}

// Build says how the package's artifacts reach the install prefix.
type Build struct {
	System string   `toml:"system"` // "cmake" (default) or "copy"
	Trees  []string `toml:"trees"`  // copy: directories under the source dir
}

// Relocate controls the post-install relocation pass.
type Relocate struct {
	Enabled bool `toml:"enabled"`
}

// Variant declares one build feature. Default may be a TOML boolean or
// string.
type Variant struct {
	Name        string     `toml:"name"`
	Description string     `toml:"description"`
	Type        string     `toml:"type"` // "bool" or "enum"; inferred from Values when empty
	Values      []string   `toml:"values"`
	Default     any        `toml:"default"`
	Conflicts   []Conflict `toml:"conflicts"`
}

// Conflict is a predicate that must not hold.
type Conflict struct {
	When    string `toml:"when"`
	Message string `toml:"message"`
}

// EnvRow is one row of the environment table.
type EnvRow struct {
	Variant      string        `toml:"variant"`
	Dependency   string        `toml:"dependency"`
	Flag         string        `toml:"flag"`
	Home         string        `toml:"home"`
	Prefix       string        `toml:"prefix"`
	Discriminant *Discriminant `toml:"discriminant"`
}

// Discriminant picks a provider family value from the dependency's
// provider name or attributes.
type Discriminant struct {
	Env       string   `toml:"env"`
	Otherwise string   `toml:"otherwise"`
	Choices   []Choice `toml:"choices"`
}

// Choice maps an attribute or a provider name to a value.
type Choice struct {
	Attribute string `toml:"attribute"`
	Provider  string `toml:"provider"`
	Value     string `toml:"value"`
}

// Arg maps a variant to a build-tool define.
type Arg struct {
	Define  string `toml:"define"`
	Variant string `toml:"variant"`
}

// Require names a dependency needed whenever When is on, or always.
type Require struct {
	Name string `toml:"name"`
	When string `toml:"when"`
}

// RunEnvVar is a fixed run-time environment assignment.
type RunEnvVar struct {
	Name  string `toml:"name"`
	Value string `toml:"value"`
}

// ParseError reports a recipe document that could not be decoded.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	var de *toml.DecodeError
	if errors.As(e.Err, &de) {
		row, col := de.Position()
		return fmt.Sprintf("recipe %s:%d:%d: %v", e.Source, row, col, de)
	}
	var se *toml.StrictMissingError
	if errors.As(e.Err, &se) {
		keys := make([]string, 0, len(se.Errors))
		for _, d := range se.Errors {
			keys = append(keys, strings.Join(d.Key(), "."))
		}
		return fmt.Sprintf("recipe %s: unknown keys: %s", e.Source, strings.Join(keys, ", "))
	}
	return fmt.Sprintf("recipe %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse decodes a recipe. Unknown keys are rejected.
func Parse(source string, data []byte) (*Recipe, error) {
	var r Recipe
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&r); err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}
	r.Source = source
	if r.Build.System == "" {
		r.Build.System = SystemCMake
	}
	if err := r.check(); err != nil {
		return nil, fmt.Errorf("recipe %s: %w", source, err)
	}
	return &r, nil
}

// Load reads a recipe file. A recipe without a name takes the file's stem.
func Load(file string) (*Recipe, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	r, err := Parse(file, data)
	if err != nil {
		return nil, err
	}
	stem := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	if r.Name == "" {
		r.Name = stem
	}
	if r.Name != stem {
		return nil, fmt.Errorf("recipe %s: name %q does not match file name", file, r.Name)
	}
	return r, nil
}

func (r *Recipe) check() error {
	var errs []error
	switch r.Build.System {
	case SystemCMake:
		if len(r.Build.Trees) > 0 {
			errs = append(errs, errors.New("build.trees is only used by the copy system"))
		}
	case SystemCopy:
		if len(r.Build.Trees) == 0 {
			errs = append(errs, errors.New("copy build lists no trees"))
		}
		for _, t := range r.Build.Trees {
			if !validTree(t) {
				errs = append(errs, fmt.Errorf("tree %q must be a relative path inside the source directory", t))
			}
		}
	default:
		errs = append(errs, fmt.Errorf("unknown build system %q", r.Build.System))
	}
	return errors.Join(errs...)
}

func validTree(t string) bool {
	if t == "" || path.IsAbs(t) {
		return false
	}
	c := path.Clean(t)
	return c != "." && c != ".." && !strings.HasPrefix(c, "../")
}

// Compile builds the variant model and deriver described by the recipe.
func (r *Recipe) Compile() (*variant.Model, *derive.Deriver, error) {
	specs := make([]variant.Spec, 0, len(r.Variants))
	for _, v := range r.Variants {
		s, err := v.spec()
		if err != nil {
			return nil, nil, fmt.Errorf("recipe %s: %w", r.Name, err)
		}
		specs = append(specs, s)
	}
	model, err := variant.NewModel(specs...)
	if err != nil {
		return nil, nil, fmt.Errorf("recipe %s: %w", r.Name, err)
	}
	d, err := derive.NewDeriver(model, r.table())
	if err != nil {
		return nil, nil, fmt.Errorf("recipe %s: %w", r.Name, err)
	}
	return model, d, nil
}

func (v Variant) spec() (variant.Spec, error) {
	s := variant.Spec{Name: v.Name, Description: v.Description, Values: v.Values}
	switch v.Type {
	case "":
		if len(v.Values) > 0 {
			s.Kind = variant.KindEnum
		}
	case "bool":
	case "enum":
		s.Kind = variant.KindEnum
	default:
		return s, fmt.Errorf("variant %q: unknown type %q", v.Name, v.Type)
	}

	switch d := v.Default.(type) {
	case nil:
	case bool:
		s.Default = strconv.FormatBool(d)
	case string:
		s.Default = d
	default:
		return s, fmt.Errorf("variant %q: default must be a boolean or a string, got %T", v.Name, v.Default)
	}

	for _, c := range v.Conflicts {
		s.Conflicts = append(s.Conflicts, variant.Rule{When: c.When, Message: c.Message})
	}
	return s, nil
}

func (r *Recipe) table() derive.Table {
	t := derive.Table{FixedArgs: r.FixedArgs}
	for _, e := range r.Env {
		row := derive.EnvRule{
			Variant:    e.Variant,
			Dependency: e.Dependency,
			Flag:       e.Flag,
			Home:       e.Home,
			Prefix:     e.Prefix,
		}
		if d := e.Discriminant; d != nil {
			row.Discriminant = &derive.Discriminant{Env: d.Env, Otherwise: d.Otherwise}
			for _, c := range d.Choices {
				row.Discriminant.Choices = append(row.Discriminant.Choices, derive.Choice{Attribute: c.Attribute, Provider: c.Provider, Value: c.Value})
			}
		}
		t.Env = append(t.Env, row)
	}
	for _, a := range r.Args {
		t.Args = append(t.Args, derive.ArgRule{Define: a.Define, Variant: a.Variant})
	}
	for _, q := range r.Requires {
		t.Requires = append(t.Requires, derive.Requirement{Name: q.Name, When: q.When})
	}
	for _, a := range r.RunEnv {
		t.RunEnv = append(t.RunEnv, derive.Assignment{Name: a.Name, Value: a.Value})
	}
	return t
}
