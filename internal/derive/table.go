package derive

import (
	"kiln/internal/depctx"
)

// EnvRule is one row of the environment table. When Variant is on (or
// empty, for unconditional rows) the row emits:
//
//	Flag         = "1"
//	Home         = prefix of Dependency
//	Prefix       = install prefix of the package being built
//	Discriminant = value chosen from Dependency's attributes
//
// Rows whose variant is off emit nothing.
type EnvRule struct {
	Variant      string
	Dependency   string
	Flag         string
	Home         string
	Prefix       string
	Discriminant *Discriminant
}

// Discriminant selects a concrete member of a family of interchangeable
// providers. Choices are tried in order against the dependency: the first
// choice that matches wins, one that does not moves on to the next, and an
// attribute or provider the resolver did not set at all is an
// *AttributeError. When no choice matches, Otherwise is used; an empty
// Otherwise makes that an error too.
type Discriminant struct {
	Env       string
	Choices   []Choice
	Otherwise string
}

// Choice maps a capability attribute, or the name of the concrete provider,
// to a discriminant value. Exactly one of Attribute and Provider is set.
type Choice struct {
	Attribute string
	Provider  string
	Value     string
}

func (c Choice) matches(e depctx.Entry) (bool, *AttributeError) {
	if c.Provider != "" {
		if e.Provider == "" {
			return false, &AttributeError{Dependency: e.Name, Provider: true}
		}
		return e.Provider == c.Provider, nil
	}
	v, set := e.Attribute(c.Attribute)
	if !set {
		return false, &AttributeError{Dependency: e.Name, Attribute: c.Attribute}
	}
	return v, nil
}

func (d *Discriminant) resolve(e depctx.Entry) (string, error) {
	for _, c := range d.Choices {
		ok, aerr := c.matches(e)
		if aerr != nil {
			aerr.Env = d.Env
			return "", aerr
		}
		if ok {
			return c.Value, nil
		}
	}
	if d.Otherwise == "" {
		return "", &AttributeError{Env: d.Env, Dependency: e.Name}
	}
	return d.Otherwise, nil
}

// ArgRule maps one variant to one build-tool define.
type ArgRule struct {
	Define  string
	Variant string
}

// Requirement is a package-level dependency, needed whenever When is on.
// An empty When means always.
type Requirement struct {
	Name string
	When string
}

// Assignment is a fixed environment assignment.
type Assignment struct {
	Name  string
	Value string
}

// Table is the declarative description of how a package's variants map
// onto its build environment and build-tool arguments.
type Table struct {
	Env       []EnvRule
	Args      []ArgRule
	FixedArgs []string // appended verbatim after Args, regardless of variants
	Requires  []Requirement
	RunEnv    []Assignment
}
