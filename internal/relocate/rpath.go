package relocate

import (
	"strings"
)

// DefaultEnvVars are the build-environment variables the RPATH set is
// assembled from, in order: link-time dependency dirs, implicit compiler
// runtime dirs, store dirs.
var DefaultEnvVars = []string{
	"SPACK_RPATH_DIRS",
	"SPACK_COMPILER_IMPLICIT_RPATHS",
	"SPACK_STORE_RPATH_DIRS",
}

// RPathSet is an ordered, de-duplicated list of runtime library search
// directories. The zero value is empty.
type RPathSet struct {
	dirs []string
}

// NewRPathSet concatenates lists, dropping blank and repeated entries while
// keeping the first occurrence's position.
func NewRPathSet(lists ...[]string) RPathSet {
	seen := make(map[string]bool)
	var dirs []string
	for _, l := range lists {
		for _, d := range l {
			d = strings.TrimSpace(d)
			if d == "" || seen[d] {
				continue
			}
			seen[d] = true
			dirs = append(dirs, d)
		}
	}
	return RPathSet{dirs: dirs}
}

// FromEnv builds the set from path-list variables read through getenv.
// Lists may be separated by ':' or ';'. Unset variables contribute nothing.
func FromEnv(getenv func(string) string, vars ...string) RPathSet {
	if len(vars) == 0 {
		vars = DefaultEnvVars
	}
	lists := make([][]string, 0, len(vars))
	for _, v := range vars {
		lists = append(lists, splitList(getenv(v)))
	}
	return NewRPathSet(lists...)
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == ';' })
}

// With returns a new set with extra appended.
func (r RPathSet) With(extra ...string) RPathSet {
	return NewRPathSet(r.dirs, extra)
}

// Dirs returns a copy of the directories.
func (r RPathSet) Dirs() []string {
	out := make([]string, len(r.dirs))
	copy(out, r.dirs)
	return out
}

// Len returns the number of directories.
func (r RPathSet) Len() int { return len(r.dirs) }

// String joins the directories the way they are written into an ELF
// RUNPATH/RPATH entry.
func (r RPathSet) String() string {
	return strings.Join(r.dirs, ":")
}
