// Package depctx holds the resolved view of a package's dependencies: for
// each declared dependency whether the resolver found it, where it is
// installed and which capability flags it carries.
//
// A Context is produced by the external resolver and never mutated here.
package depctx

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"
)

// Entry describes one resolved dependency.
type Entry struct {
	Name       string
	Present    bool
	Prefix     string // install prefix, meaningful only when Present
	Provider   string // concrete implementation, e.g. "openmpi" for "mpi"
	Attributes map[string]bool
}

// Attribute returns the value of a capability flag and whether the resolver
// set it at all.
func (e Entry) Attribute(key string) (value, set bool) {
	value, set = e.Attributes[key]
	return value, set
}

// Context maps dependency names to entries.
type Context struct {
	entries map[string]Entry
}

// New builds a context from entries. Later entries with the same name
// replace earlier ones.
func New(entries ...Entry) *Context {
	c := &Context{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		c.entries[e.Name] = copyEntry(e)
	}
	return c
}

// Lookup returns a copy of the named entry.
func (c *Context) Lookup(name string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	e, ok := c.entries[name]
	if !ok {
		return Entry{}, false
	}
	return copyEntry(e), true
}

// Names returns the dependency names, sorted.
func (c *Context) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.entries))
	for n := range c.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of entries.
func (c *Context) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

func copyEntry(e Entry) Entry {
	if e.Attributes != nil {
		e.Attributes = maps.Clone(e.Attributes)
	}
	return e
}

// ErrNoPrefix is returned when a present dependency has no install prefix.
var ErrNoPrefix = errors.New("present dependency has no prefix")

type document struct {
	Dependencies map[string]struct {
		Present    *bool           `yaml:"present"`
		Prefix     string          `yaml:"prefix"`
		Provider   string          `yaml:"provider"`
		Attributes map[string]bool `yaml:"attributes"`
	} `yaml:"dependencies"`
}

// Decode reads a resolver document:
//
//	dependencies:
//	  mpi:
//	    present: true
//	    prefix: /opt/mpi
//	    provider: openmpi
//	    attributes: {is_open_mpi_family: true}
//
// present defaults to true when a prefix is given.
func Decode(r io.Reader) (*Context, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return New(), nil
		}
		return nil, fmt.Errorf("decoding dependency context: %w", err)
	}

	entries := make([]Entry, 0, len(doc.Dependencies))
	for _, name := range slices.Sorted(maps.Keys(doc.Dependencies)) {
		d := doc.Dependencies[name]
		present := d.Prefix != ""
		if d.Present != nil {
			present = *d.Present
		}
		if present && d.Prefix == "" {
			return nil, fmt.Errorf("dependency %q: %w", name, ErrNoPrefix)
		}
		entries = append(entries, Entry{
			Name:       name,
			Present:    present,
			Prefix:     d.Prefix,
			Provider:   d.Provider,
			Attributes: d.Attributes,
		})
	}
	return New(entries...), nil
}

// Load reads a resolver document from path.
func Load(path string) (*Context, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}
