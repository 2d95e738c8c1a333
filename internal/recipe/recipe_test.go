package recipe

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiln/internal/depctx"
	"kiln/internal/derive"
	"kiln/internal/variant"
)

func builtin(t *testing.T, name string) (*Recipe, *variant.Model, *derive.Deriver) {
	t.Helper()
	reg, err := NewRegistry()
	require.NoError(t, err)
	r, err := reg.Get(name)
	require.NoError(t, err)
	m, d, err := r.Compile()
	require.NoError(t, err)
	return r, m, d
}

func nvshmemDeps(mpiAttrs map[string]bool) *depctx.Context {
	return depctx.New(
		depctx.Entry{Name: "cuda", Present: true, Prefix: "/store/cuda"},
		depctx.Entry{Name: "libfabric", Present: true, Prefix: "/store/libfabric"},
		depctx.Entry{Name: "nccl", Present: true, Prefix: "/store/nccl"},
		depctx.Entry{Name: "mpi", Present: true, Prefix: "/store/cray-mpich", Provider: "cray-mpich", Attributes: mpiAttrs},
	)
}

func TestBuiltinNames(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	assert.Equal(t, []string{"cufftmp", "nvshmem"}, reg.Names())

	_, err = reg.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownRecipe)
}

func TestNvshmemDefaults(t *testing.T) {
	r, m, d := builtin(t, "nvshmem")
	assert.Equal(t, SystemCMake, r.Build.System)
	assert.False(t, r.Relocate.Enabled)

	sel, err := m.Validate(nil)
	require.NoError(t, err)
	assert.Equal(t, "+cuda ~ucx +ofi +nccl ~gdrcopy +mpi ~shmem ~gpu_initiated_support", sel.String())

	plan, err := d.Derive(sel, nvshmemDeps(map[string]bool{"openmpi": false, "spectrum-mpi": false}), derive.Target{Prefix: "/opt/nvshmem"})
	require.NoError(t, err)
	want := []string{
		"CUDA_HOME=/store/cuda",
		"NVSHMEM_PREFIX=/opt/nvshmem",
		"NVSHMEM_LIBFABRIC_SUPPORT=1",
		"LIBFABRIC_HOME=/store/libfabric",
		"NVSHMEM_USE_NCCL=1",
		"NCCL_HOME=/store/nccl",
		"NVSHMEM_MPI_SUPPORT=1",
		"MPI_HOME=/store/cray-mpich",
		"NVSHMEM_MPI_IS_OMPI=0",
	}
	if diff := cmp.Diff(want, plan.Environ()); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}

	args, err := d.BuildArgs(sel)
	require.NoError(t, err)
	wantArgs := []string{
		"-DNVSHMEM_MPI_SUPPORT:BOOL=ON",
		"-DNVSHMEM_LIBFABRIC_SUPPORT:BOOL=ON",
		"-DNVSHMEM_UCX_SUPPORT:BOOL=OFF",
		"-DNVSHMEM_USE_NCCL:BOOL=ON",
		"-DNVSHMEM_USE_GDRCOPY:BOOL=OFF",
		"-DNVSHMEM_NVTX=ON",
		"-DNVSHMEM_IBGDA_SUPPORT=OFF",
		"-DNVSHMEM_IBDEVX_SUPPORT=OFF",
		"-DNVSHMEM_IBRC_SUPPORT=OFF",
	}
	if diff := cmp.Diff(wantArgs, args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []string{
		"NVSHMEM_REMOTE_TRANSPORT=libfabric",
		"NVSHMEM_LIBFABRIC_PROVIDER=cxi",
		"NVSHMEM_DISABLE_CUDA_VMM=1",
	}, d.RunEnv().Environ())
}

func TestNvshmemOpenMPIFamily(t *testing.T) {
	_, m, d := builtin(t, "nvshmem")
	sel, err := m.Validate(variant.Selection{"shmem": "true"})
	require.NoError(t, err)

	plan, err := d.Derive(sel, nvshmemDeps(map[string]bool{"openmpi": true}), derive.Target{Prefix: "/opt/nvshmem"})
	require.NoError(t, err)
	v, _ := plan.Get("NVSHMEM_MPI_IS_OMPI")
	assert.Equal(t, "1", v)
	v, _ = plan.Get("SHMEM_HOME")
	assert.Equal(t, "/store/cray-mpich", v)
}

func TestNvshmemRejectsNoCUDA(t *testing.T) {
	_, m, _ := builtin(t, "nvshmem")
	_, err := m.Validate(variant.Selection{"cuda": "false", "mpi": "false", "shmem": "true"})
	var verr *variant.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Conflicts(), 2)
}

func TestNvshmemMissingFeatureDependency(t *testing.T) {
	_, m, d := builtin(t, "nvshmem")
	sel, err := m.Validate(variant.Selection{"ucx": "true"})
	require.NoError(t, err)

	_, err = d.Derive(sel, nvshmemDeps(map[string]bool{"openmpi": true}), derive.Target{Prefix: "/p"})
	var missing *derive.MissingDependencyError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "ucx", missing.Dependency)
}

func TestCufftmp(t *testing.T) {
	r, m, d := builtin(t, "cufftmp")
	assert.Equal(t, SystemCopy, r.Build.System)
	assert.Equal(t, []string{"include", "lib"}, r.Build.Trees)
	assert.True(t, r.Relocate.Enabled)

	sel, err := m.Validate(nil)
	require.NoError(t, err)

	_, err = d.Derive(sel, depctx.New(depctx.Entry{Name: "cuda", Present: true, Prefix: "/c"}), derive.Target{Prefix: "/p"})
	require.Error(t, err)
	var got []string
	for _, e := range err.(interface{ Unwrap() []error }).Unwrap() {
		var missing *derive.MissingDependencyError
		if errors.As(e, &missing) {
			got = append(got, missing.Dependency)
		}
	}
	assert.Equal(t, []string{"nccl", "nvshmem", "cray-mpich", "libfabric"}, got)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse("x.toml", []byte("name = \"x\"\nbogus = 1\n"))
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Error(), "bogus")
}

func TestParseReportsPosition(t *testing.T) {
	_, err := Parse("x.toml", []byte("name = \"x\"\n[build\n"))
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Error(), "x.toml:2:")
}

func TestParseChecksBuild(t *testing.T) {
	cases := map[string]string{
		"unknown system": "[build]\nsystem = \"meson\"\n",
		"copy no trees":  "[build]\nsystem = \"copy\"\n",
		"escaping tree":  "[build]\nsystem = \"copy\"\ntrees = [\"../etc\"]\n",
		"absolute tree":  "[build]\nsystem = \"copy\"\ntrees = [\"/lib\"]\n",
		"cmake trees":    "[build]\ntrees = [\"lib\"]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse("x.toml", []byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestCompileVariantTypes(t *testing.T) {
	doc := `
[[variant]]
name = "transport"
values = ["ucx", "ofi"]
default = "ofi"

[[variant]]
name = "debug"
default = "off"

[[arg]]
define = "TRANSPORT"
variant = "transport"
`
	r, err := Parse("x.toml", []byte(doc))
	require.NoError(t, err)
	m, d, err := r.Compile()
	require.NoError(t, err)

	spec, ok := m.Lookup("transport")
	require.True(t, ok)
	assert.Equal(t, variant.KindEnum, spec.Kind)

	sel, err := m.Validate(variant.Selection{"transport": "ucx"})
	require.NoError(t, err)
	args, err := d.BuildArgs(sel)
	require.NoError(t, err)
	assert.Equal(t, []string{"-DTRANSPORT:STRING=ucx"}, args)

	bad, err := Parse("x.toml", []byte("[[variant]]\nname = \"a\"\ndefault = 3\n"))
	require.NoError(t, err)
	_, _, err = bad.Compile()
	assert.ErrorContains(t, err, "default must be")
}

func TestCompileProviderDiscriminant(t *testing.T) {
	doc := `
[[variant]]
name = "mpi"
default = true

[[env]]
variant = "mpi"
dependency = "mpi"
home = "MPI_HOME"

[env.discriminant]
env = "MPI_FLAVOR"
otherwise = "generic"
choices = [
  { provider = "openmpi", value = "ompi" },
  { provider = "cray-mpich", value = "cray" },
]
`
	r, err := Parse("x.toml", []byte(doc))
	require.NoError(t, err)
	m, d, err := r.Compile()
	require.NoError(t, err)
	sel, err := m.Validate(nil)
	require.NoError(t, err)

	for provider, want := range map[string]string{"openmpi": "ompi", "cray-mpich": "cray", "mvapich": "generic"} {
		deps := depctx.New(depctx.Entry{Name: "mpi", Present: true, Prefix: "/store/mpi", Provider: provider})
		plan, err := d.Derive(sel, deps, derive.Target{})
		require.NoError(t, err, provider)
		v, _ := plan.Get("MPI_FLAVOR")
		assert.Equal(t, want, v, provider)
	}
}

func TestRegistryDirsOverride(t *testing.T) {
	dir := t.TempDir()
	local := "description = \"site build\"\n[build]\nsystem = \"copy\"\ntrees = [\"lib\"]\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nvshmem.toml"), []byte(local), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("ignored"), 0o644))

	reg, err := NewRegistry(filepath.Join(dir, "missing"), dir)
	require.NoError(t, err)
	r, err := reg.Get("nvshmem")
	require.NoError(t, err)
	assert.Equal(t, "site build", r.Description)
	assert.Equal(t, filepath.Join(dir, "nvshmem.toml"), r.Source)
}

func TestLoadNameMustMatchFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "foo.toml")
	require.NoError(t, os.WriteFile(file, []byte("name = \"bar\"\n"), 0o644))
	_, err := Load(file)
	assert.ErrorContains(t, err, "does not match")
}
