package storagepolicy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mergetree-writer/internal/logging"
	"mergetree-writer/pkg/types"
)

func volumeWithFreeSpace(name string, free int64) Volume {
	return Volume{
		Name: name,
		Path: "/data/" + name,
		DiskUsage: func(context.Context) (int64, error) {
			return free, nil
		},
	}
}

func TestReservePicksFirstQualifyingVolume(t *testing.T) {
	policy := Policy{Name: "default", Volumes: []Volume{
		volumeWithFreeSpace("hot", 100),
		volumeWithFreeSpace("cold", 10_000),
	}}
	r, err := NewReserver(policy, NoCache{}, &logging.NoOpLogger{})
	require.NoError(t, err)

	res, err := r.Reserve(context.Background(), 500, nil, time.Now(), nil)
	require.NoError(t, err)
	assert.Equal(t, "cold", res.Volume.Name)
}

func TestReserveFallsBackToVolumeZero(t *testing.T) {
	policy := Policy{Name: "default", Volumes: []Volume{
		volumeWithFreeSpace("hot", 10),
		volumeWithFreeSpace("cold", 20),
	}}
	r, err := NewReserver(policy, NoCache{}, &logging.NoOpLogger{})
	require.NoError(t, err)

	// No volume has 1000 bytes free; Reserve falls back to volume 0 and
	// since volume 0 also lacks space, it must fail.
	_, err = r.Reserve(context.Background(), 1000, nil, time.Now(), nil)
	assert.Error(t, err)
}

func TestReserveHonoursMoveAllowed(t *testing.T) {
	policy := Policy{Name: "default", Volumes: []Volume{
		volumeWithFreeSpace("hot", 10_000),
		volumeWithFreeSpace("cold", 10_000),
	}}
	r, err := NewReserver(policy, NoCache{}, &logging.NoOpLogger{})
	require.NoError(t, err)

	moveAllowed := func(vol Volume, _ map[string]types.TTLInfo, _ time.Time) bool {
		return vol.Name != "hot"
	}
	res, err := r.Reserve(context.Background(), 500, nil, time.Now(), moveAllowed)
	require.NoError(t, err)
	assert.Equal(t, "cold", res.Volume.Name)
}

func TestDefaultMoveAllowedExcludesAfterDelay(t *testing.T) {
	now := time.Now()
	infos := map[string]types.TTLInfo{}
	var info types.TTLInfo
	info.Update(now.Add(-2 * time.Hour))
	infos["hot"] = info

	allowed := DefaultMoveAllowed(map[string]time.Duration{"hot": time.Hour})
	vol := Volume{Name: "hot"}
	assert.False(t, allowed(vol, infos, now))
}

func TestDefaultMoveAllowedWithNoInfoAlwaysAllows(t *testing.T) {
	allowed := DefaultMoveAllowed(map[string]time.Duration{"hot": time.Hour})
	vol := Volume{Name: "hot"}
	assert.True(t, allowed(vol, map[string]types.TTLInfo{}, time.Now()))
}
