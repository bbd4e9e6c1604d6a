package cluster

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpecRoundTrip(t *testing.T) {
	repo := NewRepository(t.TempDir())
	spec := validSpec()

	require.NoError(t, repo.SaveSpec(spec))

	loaded, err := repo.LoadSpec("staging")
	require.NoError(t, err)
	assert.Equal(t, spec, loaded)
}

func TestSaveVars(t *testing.T) {
	repo := NewRepository(t.TempDir())
	spec := validSpec()

	require.NoError(t, repo.SaveSpec(spec))
	require.NoError(t, repo.SaveVars(spec))

	data, err := os.ReadFile(repo.VarsPath("staging"))
	require.NoError(t, err)

	vars := string(data)
	assert.Contains(t, vars, `cluster = "staging"`)
	assert.Contains(t, vars, `coreos_ami = "ami-1234abcd"`)
	assert.Contains(t, vars, `etcd_01_initial_cluster_state = "new"`)
	assert.Contains(t, vars, `etcd_03_initial_cluster_state = "new"`)
	assert.Contains(t, vars, "masters_max_size = 3")
	assert.Contains(t, vars, "nodes_min_size = 1")
	assert.Contains(t, vars, `zone_id = "Z111111QQQQQQQ"`)
}

func TestInitialized(t *testing.T) {
	repo := NewRepository(t.TempDir())

	assert.False(t, repo.Initialized("staging"))

	require.NoError(t, repo.MkPKIDir("staging"))
	require.NoError(t, WriteFileAtomic(repo.CertPath("staging", "ca"), []byte("cert"), 0644))

	assert.True(t, repo.Initialized("staging"))
}

func TestEncryptedKeys(t *testing.T) {
	repo := NewRepository(t.TempDir())
	require.NoError(t, repo.MkPKIDir("staging"))

	require.NoError(t, WriteFileAtomic(repo.KeyPath("staging", "ca"), []byte("x"), 0600))
	require.NoError(t, WriteFileAtomic(repo.KeyPath("staging", "node"), []byte("x"), 0600))
	require.NoError(t, WriteFileAtomic(repo.CertPath("staging", "ca"), []byte("x"), 0644))

	paths, err := repo.EncryptedKeys("staging")
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, "ca-key.pem.enc", filepath.Base(paths[0]))
	assert.Equal(t, "node-key.pem.enc", filepath.Base(paths[1]))
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	require.NoError(t, WriteFileAtomic(path, []byte("one"), 0600))
	require.NoError(t, WriteFileAtomic(path, []byte("two"), 0600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// no temporary leftovers
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestScaffold(t *testing.T) {
	root := filepath.Join(t.TempDir(), "example-infrastructure")

	require.NoError(t, Scaffold(root, ""))

	assert.DirExists(t, filepath.Join(root, "clusters"))

	data, err := os.ReadFile(filepath.Join(root, "terraform", "kaws", "main.tf"))
	require.NoError(t, err)
	assert.Contains(t, string(data), DefaultTerraformSource)
	assert.Contains(t, string(data), `variable "zone_id"`)

	ignore, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, ".terraform\n", string(ignore))
}
