package storagepolicy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPolicyReadsVolumesWithLiveDiskUsage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "storage_policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: default
volumes:
  - name: hot
    path: `+dir+`
`), 0o644))

	policy, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, "default", policy.Name)
	require.Len(t, policy.Volumes, 1)
	assert.Equal(t, "hot", policy.Volumes[0].Name)

	free, err := policy.Volumes[0].DiskUsage(nil) //nolint:staticcheck // test exercises the real syscall path, no context needed
	require.NoError(t, err)
	assert.Positive(t, free)
}

func TestLoadPolicyRejectsEmptyVolumeList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "storage_policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: default\nvolumes: []\n"), 0o644))

	_, err := LoadPolicy(path)
	require.Error(t, err)
}
