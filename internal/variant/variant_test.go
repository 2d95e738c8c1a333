package variant

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testModel(t *testing.T) *Model {
	t.Helper()
	m, err := NewModel(
		Spec{Name: "cuda", Kind: KindBool, Default: "true", Conflicts: []Rule{
			{When: "!cuda", Message: "CUDA is required"},
		}},
		Spec{Name: "mpi", Kind: KindBool, Default: "true"},
		Spec{Name: "shmem", Kind: KindBool, Conflicts: []Rule{
			{When: "shmem && !mpi", Message: "shmem uses the MPI prefix"},
		}},
		Spec{Name: "transport", Kind: KindEnum, Values: []string{"libfabric", "ucx"}, Conflicts: []Rule{
			{When: `transport == "ucx" && !ucx`},
		}},
		Spec{Name: "ucx", Kind: KindBool},
	)
	require.NoError(t, err)
	return m
}

func TestValidateDefaults(t *testing.T) {
	m := testModel(t)

	r, err := m.Validate(nil)
	require.NoError(t, err)

	assert.True(t, r.Enabled("cuda"))
	assert.True(t, r.Enabled("mpi"))
	assert.False(t, r.Enabled("shmem"))
	v, ok := r.Value("transport")
	require.True(t, ok)
	assert.Equal(t, "libfabric", v)
	assert.False(t, r.Explicit("mpi"))
	assert.Equal(t, "+cuda +mpi ~shmem transport=libfabric ~ucx", r.String())
}

func TestValidateAcceptsCompatibleSelection(t *testing.T) {
	m := testModel(t)

	r, err := m.Validate(Selection{"shmem": "on", "transport": "ucx", "ucx": "true"})
	require.NoError(t, err)
	assert.True(t, r.Enabled("shmem"))
	assert.True(t, r.Explicit("shmem"))
	assert.Equal(t, "+cuda +mpi +shmem transport=ucx +ucx", r.String())
}

func TestValidateConflictNamesBothParticipants(t *testing.T) {
	m := testModel(t)

	_, err := m.Validate(Selection{"shmem": "true", "mpi": "false"})
	require.Error(t, err)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "shmem", conflict.Variant)
	assert.Equal(t, []string{"mpi", "shmem"}, conflict.With)
	assert.Contains(t, err.Error(), "mpi")
	assert.Contains(t, err.Error(), "shmem")
}

func TestValidateReportsAllConflicts(t *testing.T) {
	m := testModel(t)

	_, err := m.Validate(Selection{
		"cuda":      "false",
		"shmem":     "true",
		"mpi":       "false",
		"transport": "ucx",
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	conflicts := verr.Conflicts()
	require.Len(t, conflicts, 3)
	assert.Equal(t, "cuda", conflicts[0].Variant)
	assert.Equal(t, "shmem", conflicts[1].Variant)
	assert.Equal(t, "transport", conflicts[2].Variant)
	assert.Equal(t, []string{"transport", "ucx"}, conflicts[2].With)
}

func TestValidateReportsAllInvalidValues(t *testing.T) {
	m := testModel(t)

	_, err := m.Validate(Selection{
		"mpi":       "maybe",
		"transport": "tcp",
		"nope":      "true",
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Problems, 3)

	var names []string
	for _, p := range verr.Problems {
		var inv *InvalidValueError
		require.True(t, errors.As(p, &inv), "unexpected problem %v", p)
		names = append(names, inv.Variant)
	}
	assert.Equal(t, []string{"mpi", "nope", "transport"}, names)
	assert.Empty(t, verr.Conflicts())
}

func TestNewModelRejectsBadDeclarations(t *testing.T) {
	cases := []struct {
		name  string
		specs []Spec
	}{
		{"duplicate", []Spec{{Name: "a"}, {Name: "a"}}},
		{"empty name", []Spec{{}}},
		{"bool default", []Spec{{Name: "a", Default: "sometimes"}}},
		{"enum without values", []Spec{{Name: "a", Kind: KindEnum}}},
		{"enum default", []Spec{{Name: "a", Kind: KindEnum, Values: []string{"x"}, Default: "y"}}},
		{"unknown reference", []Spec{{Name: "a", Conflicts: []Rule{{When: "a && b"}}}}},
		{"syntax", []Spec{{Name: "a", Conflicts: []Rule{{When: "a &&"}}}}},
		{"constant", []Spec{{Name: "a", Conflicts: []Rule{{When: "true"}}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewModel(tc.specs...)
			assert.Error(t, err)
		})
	}
}

func TestRuleMustEvaluateToBool(t *testing.T) {
	m, err := NewModel(
		Spec{Name: "mode", Kind: KindEnum, Values: []string{"a", "b"}, Conflicts: []Rule{{When: "mode"}}},
	)
	require.NoError(t, err)

	_, err = m.Validate(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not evaluate to a bool")
}

func TestParseSelection(t *testing.T) {
	sel, err := ParseSelection([]string{"+mpi", "~ofi -ucx", "transport=ucx"})
	require.NoError(t, err)
	assert.Equal(t, Selection{"mpi": "true", "ofi": "false", "ucx": "false", "transport": "ucx"}, sel)

	_, err = ParseSelection([]string{"+mpi", "~mpi"})
	assert.Error(t, err)

	for _, bad := range []string{"mpi", "+", "x="} {
		_, err = ParseSelection([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestLoadOptionsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "options")
	require.NoError(t, os.WriteFile(path, []byte("# site defaults\n+nccl ~ofi\n\ngdrcopy=true # cluster has it\n"), 0o644))

	sel, err := LoadOptionsFile(path)
	require.NoError(t, err)
	assert.Equal(t, Selection{"nccl": "true", "ofi": "false", "gdrcopy": "true"}, sel)

	sel, err = LoadOptionsFile(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, sel)
}

func TestSelectionMerge(t *testing.T) {
	base := Selection{"mpi": "true", "ofi": "true"}
	out := base.Merge(Selection{"ofi": "false"})
	assert.Equal(t, Selection{"mpi": "true", "ofi": "false"}, out)
	assert.Equal(t, "true", base["ofi"])
}
