package derive

import (
	"errors"
	"fmt"
)

// MissingDependencyError reports a feature whose backing dependency the
// resolver did not provide. Variant is empty for unconditional requirements.
type MissingDependencyError struct {
	Variant    string
	Dependency string
}

func (e *MissingDependencyError) Error() string {
	if e.Variant == "" {
		return fmt.Sprintf("required dependency %q is not present", e.Dependency)
	}
	return fmt.Sprintf("variant %q requires dependency %q, which is not present", e.Variant, e.Dependency)
}

// AttributeError reports a provider-family discriminant that could not be
// decided from the dependency's attributes or provider.
type AttributeError struct {
	Env        string
	Dependency string
	Attribute  string // empty when no choice matched and there is no fallback
	Provider   bool   // a provider choice met a dependency with no provider
}

func (e *AttributeError) Error() string {
	if e.Provider {
		return fmt.Sprintf("%s: dependency %q does not name its provider", e.Env, e.Dependency)
	}
	if e.Attribute == "" {
		return fmt.Sprintf("%s: dependency %q matches no known provider family", e.Env, e.Dependency)
	}
	return fmt.Sprintf("%s: dependency %q does not declare attribute %q", e.Env, e.Dependency, e.Attribute)
}

// DuplicateKeyError reports two rows assigning the same variable.
type DuplicateKeyError struct {
	Key    string
	First  string
	Second string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("environment variable %s assigned twice (%q, then %q)", e.Key, e.First, e.Second)
}

// UnknownVariantError reports a table row naming a variant the model does not declare.
type UnknownVariantError struct {
	Variant string
	Where   string
}

func (e *UnknownVariantError) Error() string {
	return fmt.Sprintf("%s: unknown variant %q", e.Where, e.Variant)
}

// ErrForeignSelection is returned when a selection was validated against a
// different model than the deriver's.
var ErrForeignSelection = errors.New("selection was not validated against this package")
