// Package derive turns a validated variant selection and a resolved
// dependency context into what an external build system expects: an
// environment plan and a list of build-tool arguments.
//
// The mapping is data. A Table lists one row per (variant, dependency) pair
// and the Deriver interprets every row the same way, so adding a feature is
// adding a row.
package derive

import (
	"errors"
	"fmt"
	"slices"

	"kiln/internal/depctx"
	"kiln/internal/variant"
)

// Target describes the package being built.
type Target struct {
	Prefix string
}

// Deriver interprets a Table for one package model.
type Deriver struct {
	model *variant.Model
	table Table
}

// NewDeriver checks that every row of table refers to variants declared by
// model and is well formed.
func NewDeriver(model *variant.Model, table Table) (*Deriver, error) {
	boolVariant := func(name, where string) error {
		spec, ok := model.Lookup(name)
		if !ok {
			return &UnknownVariantError{Variant: name, Where: where}
		}
		if spec.Kind != variant.KindBool {
			return fmt.Errorf("%s: variant %q is %s, rows need a boolean", where, name, spec.Kind)
		}
		return nil
	}

	var errs []error
	for i, row := range table.Env {
		where := fmt.Sprintf("env row %d", i)
		if row.Variant != "" {
			if err := boolVariant(row.Variant, where); err != nil {
				errs = append(errs, err)
			}
		}
		if row.Flag == "" && row.Home == "" && row.Prefix == "" && row.Discriminant == nil {
			errs = append(errs, fmt.Errorf("%s: emits nothing", where))
		}
		if (row.Home != "" || row.Discriminant != nil) && row.Dependency == "" {
			errs = append(errs, fmt.Errorf("%s: home or discriminant without a dependency", where))
		}
		if d := row.Discriminant; d != nil {
			if d.Env == "" || len(d.Choices) == 0 {
				errs = append(errs, fmt.Errorf("%s: discriminant needs a name and at least one choice", where))
			}
			for j, c := range d.Choices {
				if (c.Attribute == "") == (c.Provider == "") {
					errs = append(errs, fmt.Errorf("%s: choice %d needs exactly one of attribute and provider", where, j))
				}
			}
		}
	}
	for i, a := range table.Args {
		where := fmt.Sprintf("arg row %d", i)
		if a.Define == "" {
			errs = append(errs, fmt.Errorf("%s: empty define", where))
		}
		if _, ok := model.Lookup(a.Variant); !ok {
			errs = append(errs, &UnknownVariantError{Variant: a.Variant, Where: where})
		}
	}
	for i, r := range table.Requires {
		where := fmt.Sprintf("requirement %q", r.Name)
		if r.Name == "" {
			errs = append(errs, fmt.Errorf("requirement %d: empty name", i))
		}
		if r.When != "" {
			if err := boolVariant(r.When, where); err != nil {
				errs = append(errs, err)
			}
		}
	}
	seen := make(map[string]bool, len(table.RunEnv))
	for _, a := range table.RunEnv {
		if !validName(a.Name) {
			errs = append(errs, fmt.Errorf("run env: invalid variable name %q", a.Name))
		}
		if seen[a.Name] {
			errs = append(errs, &DuplicateKeyError{Key: a.Name})
		}
		seen[a.Name] = true
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	t := Table{
		Env:       slices.Clone(table.Env),
		Args:      slices.Clone(table.Args),
		FixedArgs: slices.Clone(table.FixedArgs),
		Requires:  slices.Clone(table.Requires),
		RunEnv:    slices.Clone(table.RunEnv),
	}
	return &Deriver{model: model, table: t}, nil
}

// Model returns the variant model the deriver was built for.
func (d *Deriver) Model() *variant.Model { return d.model }

// Derive builds the environment plan for sel. Every feature that is on and
// whose dependency is missing is reported; in that case no plan is returned.
func (d *Deriver) Derive(sel *variant.Realized, deps *depctx.Context, target Target) (*Plan, error) {
	if sel == nil || sel.Model() != d.model {
		return nil, ErrForeignSelection
	}

	var errs []error
	reported := make(map[MissingDependencyError]bool)
	present := func(v, dep string) (depctx.Entry, bool) {
		e, ok := deps.Lookup(dep)
		if ok && e.Present {
			return e, true
		}
		key := MissingDependencyError{Variant: v, Dependency: dep}
		if !reported[key] {
			reported[key] = true
			errs = append(errs, &MissingDependencyError{Variant: v, Dependency: dep})
		}
		return depctx.Entry{}, false
	}

	for _, r := range d.table.Requires {
		if r.When == "" || sel.Enabled(r.When) {
			present(r.When, r.Name)
		}
	}

	plan := NewPlan()
	set := func(k, v string) {
		if err := plan.Set(k, v); err != nil {
			errs = append(errs, err)
		}
	}
	for _, row := range d.table.Env {
		if row.Variant != "" && !sel.Enabled(row.Variant) {
			continue
		}
		var dep depctx.Entry
		if row.Dependency != "" {
			e, ok := present(row.Variant, row.Dependency)
			if !ok {
				continue
			}
			dep = e
		}
		if row.Flag != "" {
			set(row.Flag, "1")
		}
		if row.Home != "" {
			set(row.Home, dep.Prefix)
		}
		if row.Prefix != "" {
			if target.Prefix == "" {
				errs = append(errs, fmt.Errorf("%s: package install prefix is not set", row.Prefix))
			} else {
				set(row.Prefix, target.Prefix)
			}
		}
		if row.Discriminant != nil {
			v, err := row.Discriminant.resolve(dep)
			if err != nil {
				errs = append(errs, err)
			} else {
				set(row.Discriminant.Env, v)
			}
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return plan, nil
}

// BuildArgs returns the build-tool defines for sel: one per Args row in
// table order, then FixedArgs verbatim. Boolean variants render as
// -DNAME:BOOL=ON|OFF and enums as -DNAME:STRING=value.
func (d *Deriver) BuildArgs(sel *variant.Realized) ([]string, error) {
	if sel == nil || sel.Model() != d.model {
		return nil, ErrForeignSelection
	}
	args := make([]string, 0, len(d.table.Args)+len(d.table.FixedArgs))
	for _, a := range d.table.Args {
		spec, _ := d.model.Lookup(a.Variant)
		if spec.Kind == variant.KindBool {
			v := "OFF"
			if sel.Enabled(a.Variant) {
				v = "ON"
			}
			args = append(args, fmt.Sprintf("-D%s:BOOL=%s", a.Define, v))
			continue
		}
		v, _ := sel.Value(a.Variant)
		args = append(args, fmt.Sprintf("-D%s:STRING=%s", a.Define, v))
	}
	return append(args, d.table.FixedArgs...), nil
}

// RunEnv returns the fixed run-time environment of the package.
func (d *Deriver) RunEnv() *Plan {
	p := NewPlan()
	for _, a := range d.table.RunEnv {
		_ = p.Set(a.Name, a.Value) // names checked unique in NewDeriver
	}
	return p
}
