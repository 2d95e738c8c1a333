package derive

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Plan is an ordered set of environment assignments handed to an external
// build or run step. Order follows insertion and exists only so that logs
// and rendered output are reproducible.
type Plan struct {
	keys   []string
	values map[string]string
}

// NewPlan returns an empty plan.
func NewPlan() *Plan {
	return &Plan{values: make(map[string]string)}
}

// Set adds key. Setting a key twice is a *DuplicateKeyError; the first value
// is kept.
func (p *Plan) Set(key, value string) error {
	if !validName(key) {
		return fmt.Errorf("invalid environment variable name %q", key)
	}
	if prev, ok := p.values[key]; ok {
		return &DuplicateKeyError{Key: key, First: prev, Second: value}
	}
	p.keys = append(p.keys, key)
	p.values[key] = value
	return nil
}

func validName(key string) bool {
	return key != "" && !strings.ContainsAny(key, "= \t\n")
}

// Get returns the value assigned to key.
func (p *Plan) Get(key string) (string, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (p *Plan) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Len returns the number of assignments.
func (p *Plan) Len() int { return len(p.keys) }

// Map returns the assignments as a map.
func (p *Plan) Map() map[string]string {
	out := make(map[string]string, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// Environ renders the plan as KEY=VALUE entries in order.
func (p *Plan) Environ() []string {
	out := make([]string, 0, len(p.keys))
	for _, k := range p.keys {
		out = append(out, k+"="+p.values[k])
	}
	return out
}

// Apply merges the plan over base, an os.Environ style slice. Entries of
// base whose key the plan sets are dropped, then the plan is appended.
func (p *Plan) Apply(base []string) []string {
	out := make([]string, 0, len(base)+len(p.keys))
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if _, overridden := p.values[k]; overridden {
			continue
		}
		out = append(out, kv)
	}
	return append(out, p.Environ()...)
}

// Shell renders the plan as POSIX shell export lines, suitable for eval.
func (p *Plan) Shell() (string, error) {
	var b strings.Builder
	for _, k := range p.keys {
		q, err := syntax.Quote(p.values[k], syntax.LangPOSIX)
		if err != nil {
			return "", fmt.Errorf("quoting %s: %w", k, err)
		}
		fmt.Fprintf(&b, "export %s=%s\n", k, q)
	}
	return b.String(), nil
}
