package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"kiln/internal/recipe"
	"kiln/internal/variant"
)

func (a *app) recipesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "recipes [name]",
		Short: "List the available recipes, or describe one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.registry()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				r, err := reg.Get(args[0])
				if err != nil {
					return err
				}
				return a.describe(r)
			}
			for _, name := range reg.Names() {
				r, _ := reg.Get(name)
				fmt.Fprintf(a.stdout, "%-16s %s\n", colInfo.Sprint(name), firstLine(r.Description))
			}
			return nil
		},
	}
}

func (a *app) describe(r *recipe.Recipe) error {
	model, _, err := r.Compile()
	if err != nil {
		return err
	}
	a.banner("%s %s", r.Name, r.Version)
	if r.Description != "" {
		fmt.Fprintln(a.stdout, strings.TrimSpace(r.Description))
	}
	if r.Homepage != "" {
		fmt.Fprintf(a.stdout, "homepage: %s\n", r.Homepage)
	}
	fmt.Fprintf(a.stdout, "source:   %s\n", r.Source)
	fmt.Fprintf(a.stdout, "build:    %s\n", r.Build.System)
	fmt.Fprintf(a.stdout, "relocate: %t\n", r.Relocate.Enabled)

	if specs := model.Specs(); len(specs) > 0 {
		fmt.Fprintln(a.stdout, "variants:")
		for _, s := range specs {
			fmt.Fprintf(a.stdout, "  %-28s %s\n", variantDefault(s), s.Description)
		}
	}
	if len(r.Requires) > 0 {
		fmt.Fprintln(a.stdout, "requires:")
		for _, q := range r.Requires {
			if q.When != "" {
				fmt.Fprintf(a.stdout, "  %s (when +%s)\n", q.Name, q.When)
			} else {
				fmt.Fprintf(a.stdout, "  %s\n", q.Name)
			}
		}
	}
	return nil
}

func variantDefault(s variant.Spec) string {
	if s.Kind == variant.KindEnum {
		return fmt.Sprintf("%s=%s [%s]", s.Name, s.Default, strings.Join(s.Values, "|"))
	}
	if s.Default == "true" {
		return "+" + s.Name
	}
	return "~" + s.Name
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
