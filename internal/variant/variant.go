// Package variant declares a package's optional build features and validates
// a user's selection against them.
//
// Each variant is either a boolean switch or an enumeration with a fixed set
// of allowed values. Variants may carry conflict rules: predicates over the
// realized selection that must not hold. Validation collects every problem in
// one pass so a caller can report all of them at once.
package variant

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Kind is the value domain of a variant.
type Kind int

const (
	KindBool Kind = iota
	KindEnum
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindEnum:
		return "enum"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Spec declares one variant.
type Spec struct {
	Name        string
	Description string
	Kind        Kind
	Values      []string // allowed values, KindEnum only
	Default     string   // "true"/"false" for KindBool
	Conflicts   []Rule
}

// Model is a compiled, read-only set of variant declarations.
type Model struct {
	specs []Spec
	rules [][]*compiledRule // parallel to specs
	index map[string]int
}

// NewModel compiles the given declarations. It rejects duplicate names,
// defaults outside the declared domain and conflict rules that do not parse
// or reference undeclared variants.
func NewModel(specs ...Spec) (*Model, error) {
	m := &Model{
		specs: make([]Spec, 0, len(specs)),
		index: make(map[string]int, len(specs)),
	}
	for _, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("variant: declaration with empty name")
		}
		if _, dup := m.index[s.Name]; dup {
			return nil, fmt.Errorf("variant %q: declared twice", s.Name)
		}
		switch s.Kind {
		case KindBool:
			def := s.Default
			if def == "" {
				def = "false"
			}
			b, ok := parseBool(def)
			if !ok {
				return nil, fmt.Errorf("variant %q: default %q is not a boolean", s.Name, s.Default)
			}
			s.Default = strconv.FormatBool(b)
		case KindEnum:
			if len(s.Values) == 0 {
				return nil, fmt.Errorf("variant %q: enum declares no values", s.Name)
			}
			if s.Default == "" {
				s.Default = s.Values[0]
			}
			if !slices.Contains(s.Values, s.Default) {
				return nil, fmt.Errorf("variant %q: default %q not in %v", s.Name, s.Default, s.Values)
			}
			s.Values = slices.Clone(s.Values)
		default:
			return nil, fmt.Errorf("variant %q: unknown kind %v", s.Name, s.Kind)
		}
		s.Conflicts = slices.Clone(s.Conflicts)
		m.index[s.Name] = len(m.specs)
		m.specs = append(m.specs, s)
	}

	// Rules may reference variants declared after their owner, so compile
	// them once every name is known.
	m.rules = make([][]*compiledRule, len(m.specs))
	for i, s := range m.specs {
		for _, r := range s.Conflicts {
			cr, err := compileRule(r, m.index)
			if err != nil {
				return nil, fmt.Errorf("variant %q: %w", s.Name, err)
			}
			m.rules[i] = append(m.rules[i], cr)
		}
	}
	return m, nil
}

// Lookup returns the declaration for name.
func (m *Model) Lookup(name string) (Spec, bool) {
	i, ok := m.index[name]
	if !ok {
		return Spec{}, false
	}
	return m.specs[i], true
}

// Specs returns the declarations in declaration order.
func (m *Model) Specs() []Spec {
	return slices.Clone(m.specs)
}

// Validate checks sel against the model and returns the realized selection,
// with defaults filled in for every variant the user left unset.
//
// All invalid values are reported, and when the values are valid all active
// conflicts are reported. The returned error is a *ValidationError.
func (m *Model) Validate(sel Selection) (*Realized, error) {
	var problems []error

	values := make(map[string]string, len(m.specs))
	for _, s := range m.specs {
		values[s.Name] = s.Default
	}

	for _, name := range sel.Names() {
		raw := sel[name]
		spec, ok := m.Lookup(name)
		if !ok {
			problems = append(problems, &InvalidValueError{Variant: name, Value: raw, Reason: "no such variant"})
			continue
		}
		v, err := normalize(spec, raw)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		values[name] = v
	}

	// Predicates only ever see values inside their declared domain.
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	ctx := evalContext(m, values)
	for i, s := range m.specs {
		for _, r := range m.rules[i] {
			hit, err := r.holds(ctx)
			if err != nil {
				problems = append(problems, fmt.Errorf("variant %q: %w", s.Name, err))
				continue
			}
			if hit {
				problems = append(problems, &ConflictError{
					Variant: s.Name,
					With:    slices.Clone(r.refs),
					When:    r.When,
					Message: r.Message,
				})
			}
		}
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return &Realized{model: m, values: values, explicit: sel.clone()}, nil
}

func normalize(spec Spec, raw string) (string, error) {
	switch spec.Kind {
	case KindBool:
		b, ok := parseBool(raw)
		if !ok {
			return "", &InvalidValueError{Variant: spec.Name, Value: raw, Reason: "expected a boolean"}
		}
		return strconv.FormatBool(b), nil
	default:
		if !slices.Contains(spec.Values, raw) {
			return "", &InvalidValueError{
				Variant: spec.Name,
				Value:   raw,
				Reason:  "allowed values are " + strings.Join(spec.Values, ", "),
			}
		}
		return raw, nil
	}
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "on", "yes", "1":
		return true, true
	case "false", "off", "no", "0":
		return false, true
	}
	return false, false
}

// Realized is a validated selection with defaults applied.
type Realized struct {
	model    *Model
	values   map[string]string
	explicit Selection
}

// Value returns the realized value of a variant.
func (r *Realized) Value(name string) (string, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Enabled reports whether a boolean variant is on. Unknown names and enum
// variants report false.
func (r *Realized) Enabled(name string) bool {
	spec, ok := r.model.Lookup(name)
	if !ok || spec.Kind != KindBool {
		return false
	}
	return r.values[name] == "true"
}

// Explicit reports whether the user set name rather than inheriting the default.
func (r *Realized) Explicit(name string) bool {
	_, ok := r.explicit[name]
	return ok
}

// Model returns the model the selection was validated against.
func (r *Realized) Model() *Model { return r.model }

// Names returns variant names in declaration order.
func (r *Realized) Names() []string {
	names := make([]string, 0, len(r.model.specs))
	for _, s := range r.model.specs {
		names = append(names, s.Name)
	}
	return names
}

// String renders the selection as "+a ~b c=v" in declaration order.
func (r *Realized) String() string {
	parts := make([]string, 0, len(r.model.specs))
	for _, s := range r.model.specs {
		v := r.values[s.Name]
		switch {
		case s.Kind == KindEnum:
			parts = append(parts, s.Name+"="+v)
		case v == "true":
			parts = append(parts, "+"+s.Name)
		default:
			parts = append(parts, "~"+s.Name)
		}
	}
	return strings.Join(parts, " ")
}
