package storagepolicy

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"gopkg.in/yaml.v3"
)

// yamlPolicyFile is the on-disk declarative storage-policy definition,
// following the same narrow-declarative-YAML shape as the catalog's own
// table-schema file (see internal/catalog/yaml_schema.go): one policy,
// an ordered list of named volumes backed by real mount points.
type yamlPolicyFile struct {
	Name    string       `yaml:"name"`
	Volumes []yamlVolume `yaml:"volumes"`
}

type yamlVolume struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// LoadPolicy reads a storage policy from path, wiring each volume's
// DiskUsage to a live syscall.Statfs reading on its configured path.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read storage policy %s: %w", path, err)
	}
	var file yamlPolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Policy{}, fmt.Errorf("parse storage policy %s: %w", path, err)
	}
	if len(file.Volumes) == 0 {
		return Policy{}, fmt.Errorf("storage policy %s declares no volumes", path)
	}

	volumes := make([]Volume, len(file.Volumes))
	for i, v := range file.Volumes {
		volumes[i] = Volume{Name: v.Name, Path: v.Path, DiskUsage: diskUsage(v.Path)}
	}
	return Policy{Name: file.Name, Volumes: volumes}, nil
}

// diskUsage returns a DiskUsage func reading path's free space via
// statfs, the same live-filesystem-reading approach a storage policy
// needs to reserve a volume correctly (the writer must never trust a
// cached or configured capacity when real free space is cheap to ask
// the kernel for).
func diskUsage(path string) func(ctx context.Context) (int64, error) {
	return func(ctx context.Context) (int64, error) {
		var stat syscall.Statfs_t
		if err := syscall.Statfs(path, &stat); err != nil {
			return 0, fmt.Errorf("statfs %s: %w", path, err)
		}
		return int64(stat.Bavail) * int64(stat.Bsize), nil //nolint:gosec // Bsize is always small and positive
	}
}
