package variant

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Selection is a raw request: variant name to requested value. Boolean
// variants use "true"/"false".
type Selection map[string]string

// Names returns the selected names, sorted.
func (s Selection) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s Selection) clone() Selection {
	out := make(Selection, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Merge returns a copy of s with every entry of o applied over it.
func (s Selection) Merge(o Selection) Selection {
	out := s.clone()
	for k, v := range o {
		out[k] = v
	}
	return out
}

// ParseSelection parses variant tokens:
//
//	+name        turn a boolean variant on
//	~name -name  turn it off
//	name=value   set any variant
//
// A token may hold several space separated entries. Contradicting entries
// for the same variant are an error.
func ParseSelection(tokens []string) (Selection, error) {
	sel := make(Selection)
	for _, tok := range tokens {
		for _, f := range strings.Fields(tok) {
			name, value, err := parseToken(f)
			if err != nil {
				return nil, err
			}
			if prev, ok := sel[name]; ok && prev != value {
				return nil, fmt.Errorf("variant %q selected as both %q and %q", name, prev, value)
			}
			sel[name] = value
		}
	}
	return sel, nil
}

func parseToken(f string) (string, string, error) {
	switch {
	case strings.HasPrefix(f, "+"):
		return checkName(f[1:], f, "true")
	case strings.HasPrefix(f, "~"), strings.HasPrefix(f, "-"):
		return checkName(f[1:], f, "false")
	case strings.Contains(f, "="):
		name, value, _ := strings.Cut(f, "=")
		if value == "" {
			return "", "", fmt.Errorf("variant token %q: empty value", f)
		}
		return checkName(name, f, value)
	default:
		return "", "", fmt.Errorf("variant token %q: expected +name, ~name or name=value", f)
	}
}

func checkName(name, tok, value string) (string, string, error) {
	if name == "" {
		return "", "", fmt.Errorf("variant token %q: empty name", tok)
	}
	return name, value, nil
}

// LoadOptionsFile reads a package options file: whitespace separated
// variant tokens, blank lines and '#' comments ignored. A missing file is
// an empty selection.
func LoadOptionsFile(path string) (Selection, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Selection{}, nil
		}
		return nil, err
	}
	defer f.Close()

	var tokens []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}
		tokens = append(tokens, strings.Fields(line)...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	sel, err := ParseSelection(tokens)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sel, nil
}
