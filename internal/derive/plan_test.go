package derive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanKeepsInsertionOrder(t *testing.T) {
	p := NewPlan()
	require.NoError(t, p.Set("B", "2"))
	require.NoError(t, p.Set("A", "1"))
	require.NoError(t, p.Set("C", ""))

	assert.Equal(t, []string{"B", "A", "C"}, p.Keys())
	assert.Equal(t, []string{"B=2", "A=1", "C="}, p.Environ())
	assert.Equal(t, map[string]string{"A": "1", "B": "2", "C": ""}, p.Map())
	assert.Equal(t, 3, p.Len())
}

func TestPlanSetRejectsDuplicatesAndBadNames(t *testing.T) {
	p := NewPlan()
	require.NoError(t, p.Set("A", "1"))

	var dup *DuplicateKeyError
	require.ErrorAs(t, p.Set("A", "2"), &dup)
	v, _ := p.Get("A")
	assert.Equal(t, "1", v)

	assert.Error(t, p.Set("", "x"))
	assert.Error(t, p.Set("A=B", "x"))
	assert.Error(t, p.Set("A B", "x"))
}

func TestPlanApply(t *testing.T) {
	p := NewPlan()
	require.NoError(t, p.Set("MPI_HOME", "/opt/mpi"))
	require.NoError(t, p.Set("NEW", "1"))

	got := p.Apply([]string{"PATH=/usr/bin", "MPI_HOME=/old", "MPI_HOME=/older", "HOME=/root"})
	assert.Equal(t, []string{"PATH=/usr/bin", "HOME=/root", "MPI_HOME=/opt/mpi", "NEW=1"}, got)
}

func TestPlanShell(t *testing.T) {
	p := NewPlan()
	require.NoError(t, p.Set("MPI_HOME", "/opt/mpi"))
	require.NoError(t, p.Set("ODD", "it's a path"))
	require.NoError(t, p.Set("EMPTY", ""))

	out, err := p.Shell()
	require.NoError(t, err)
	assert.Contains(t, out, "export MPI_HOME=/opt/mpi\n")
	assert.Contains(t, out, "export EMPTY=''\n")
	assert.NotContains(t, out, "export ODD=it's a path")
	assert.Contains(t, out, "export ODD=")
}
