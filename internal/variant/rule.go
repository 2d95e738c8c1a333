package variant

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// Rule is a conflict predicate written in HCL expression syntax over the
// realized values of the model's variants. Boolean variants are bound as
// bools and enum variants as strings, e.g.
//
//	!cuda
//	shmem && !mpi
//	transport == "ucx" && !ucx
//
// The rule fires, and the selection is rejected, when the expression is true.
type Rule struct {
	When    string
	Message string
}

type compiledRule struct {
	Rule
	expr hclsyntax.Expression
	refs []string
}

func compileRule(r Rule, declared map[string]int) (*compiledRule, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(r.When), "conflict", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, fmt.Errorf("conflict %q: %s", r.When, diags.Error())
	}

	seen := make(map[string]struct{})
	for _, t := range expr.Variables() {
		name := t.RootName()
		if _, ok := declared[name]; !ok {
			return nil, fmt.Errorf("conflict %q: references undeclared variant %q", r.When, name)
		}
		seen[name] = struct{}{}
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("conflict %q: references no variant", r.When)
	}
	refs := make([]string, 0, len(seen))
	for name := range seen {
		refs = append(refs, name)
	}
	sort.Strings(refs)

	return &compiledRule{Rule: r, expr: expr, refs: refs}, nil
}

func (r *compiledRule) holds(ctx *hcl.EvalContext) (bool, error) {
	v, diags := r.expr.Value(ctx)
	if diags.HasErrors() {
		return false, fmt.Errorf("conflict %q: %s", r.When, diags.Error())
	}
	if v.IsNull() || !v.IsKnown() || v.Type() != cty.Bool {
		return false, fmt.Errorf("conflict %q: does not evaluate to a bool", r.When)
	}
	return v.True(), nil
}

func evalContext(m *Model, values map[string]string) *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(m.specs))
	for _, s := range m.specs {
		v := values[s.Name]
		if s.Kind == KindBool {
			vars[s.Name] = cty.BoolVal(v == "true")
		} else {
			vars[s.Name] = cty.StringVal(v)
		}
	}
	return &hcl.EvalContext{Variables: vars}
}
