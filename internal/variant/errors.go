package variant

import (
	"fmt"
	"strings"
)

// InvalidValueError reports a selection outside a variant's declared domain,
// including selections of variants the package does not declare.
type InvalidValueError struct {
	Variant string
	Value   string
	Reason  string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value %q for variant %q: %s", e.Value, e.Variant, e.Reason)
}

// ConflictError reports a conflict rule of Variant that holds for the
// selection. With lists every variant the rule's predicate reads, so the
// offending pair is always named.
type ConflictError struct {
	Variant string
	With    []string
	When    string
	Message string
}

func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("variant %q conflicts with %s (%s)", e.Variant, strings.Join(e.With, ", "), e.When)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// ValidationError collects every problem found by Model.Validate.
type ValidationError struct {
	Problems []error
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return e.Problems[0].Error()
	}
	lines := make([]string, 0, len(e.Problems)+1)
	lines = append(lines, fmt.Sprintf("%d variant problems:", len(e.Problems)))
	for _, p := range e.Problems {
		lines = append(lines, "  "+p.Error())
	}
	return strings.Join(lines, "\n")
}

func (e *ValidationError) Unwrap() []error { return e.Problems }

// Conflicts returns the conflict problems only.
func (e *ValidationError) Conflicts() []*ConflictError {
	var out []*ConflictError
	for _, p := range e.Problems {
		if c, ok := p.(*ConflictError); ok {
			out = append(out, c)
		}
	}
	return out
}
