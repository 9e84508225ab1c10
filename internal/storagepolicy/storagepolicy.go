// Package storagepolicy implements the Space Reserver: it picks a
// volume for a newly written part honouring move-TTL preferences and
// expected byte size.
package storagepolicy

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"mergetree-writer/internal/errors"
	"mergetree-writer/internal/logging"
	"mergetree-writer/pkg/types"
)

var byteCountPrinter = message.NewPrinter(language.English)

// formatBytes renders a byte count with thousands separators, e.g.
// "1,048,576", so a ReservationFailure message reads like an operator
// wrote it rather than a raw integer dump.
func formatBytes(n int64) string {
	return byteCountPrinter.Sprintf("%v", number.Decimal(n))
}

// Volume is one disk/mount point in a storage policy, with a free-space
// figure that is read either live (DiskUsage) or through the cache in
// Policy.
type Volume struct {
	Name      string
	Path      string
	DiskUsage func(ctx context.Context) (freeBytes int64, err error)
}

// Policy is an ordered list of volumes. Volume 0 is the fallback when no
// volume's move-TTL preference and free space both qualify.
type Policy struct {
	Name    string
	Volumes []Volume
}

// Reservation is the handle returned for a successful reservation.
type Reservation struct {
	Volume Volume
}

// Reserver implements the Space Reserver collaborator.
type Reserver struct {
	policy Policy
	cache  freeSpaceCache
	logger logging.Logger
}

// NewReserver builds a Reserver over policy, optionally backed by cache
// for free-space lookups (see NewRedisFreeSpaceCache / NoCache).
func NewReserver(policy Policy, cache freeSpaceCache, logger logging.Logger) (*Reserver, error) {
	if len(policy.Volumes) == 0 {
		return nil, fmt.Errorf("storage policy %q has no volumes", policy.Name)
	}
	return &Reserver{policy: policy, cache: cache, logger: logger}, nil
}

// Reserve picks a volume for a part of expectedBytes, given its move-TTL
// summary and the current wall clock. It walks the policy's volumes in
// order, skipping any whose move-TTL rule excludes the part at now or
// that lack enough free space, falling back to volume 0 if none
// qualify. A failure to reserve any volume (including volume 0 itself
// lacking space) is a ReservationFailure: the write fails entirely
// rather than writing to an unreserved location.
func (r *Reserver) Reserve(ctx context.Context, expectedBytes int64, moveInfos map[string]types.TTLInfo, now time.Time, moveAllowed func(vol Volume, infos map[string]types.TTLInfo, now time.Time) bool) (Reservation, error) {
	for _, vol := range r.policy.Volumes {
		if moveAllowed != nil && !moveAllowed(vol, moveInfos, now) {
			continue
		}
		free, err := r.freeSpace(ctx, vol)
		if err != nil {
			r.logger.Warn("free space lookup failed", "volume", vol.Name, "error", err.Error())
			continue
		}
		if free >= expectedBytes {
			return Reservation{Volume: vol}, nil
		}
	}

	fallback := r.policy.Volumes[0]
	free, err := r.freeSpace(ctx, fallback)
	if err != nil {
		return Reservation{}, errors.Reservation("storagepolicy", "Reserve",
			fmt.Errorf("fallback volume %q free space lookup failed: %w", fallback.Name, err))
	}
	if free < expectedBytes {
		return Reservation{}, errors.Reservation("storagepolicy", "Reserve",
			fmt.Errorf("fallback volume %q has %s bytes free, need %s", fallback.Name, formatBytes(free), formatBytes(expectedBytes))).
			WithMetadata("volume", fallback.Name)
	}
	return Reservation{Volume: fallback}, nil
}

func (r *Reserver) freeSpace(ctx context.Context, vol Volume) (int64, error) {
	if r.cache != nil {
		if free, ok := r.cache.Get(ctx, vol.Name); ok {
			return free, nil
		}
	}
	free, err := vol.DiskUsage(ctx)
	if err != nil {
		return 0, err
	}
	if r.cache != nil {
		r.cache.Set(ctx, vol.Name, free)
	}
	return free, nil
}

// DefaultMoveAllowed implements the usual move-TTL rule: a part is
// excluded from a volume once its move-TTL summary's max timestamp plus
// the volume's configured delay has passed relative to now. With no
// entry for a volume in moveInfos, the volume is always allowed.
func DefaultMoveAllowed(volumeDelay map[string]time.Duration) func(Volume, map[string]types.TTLInfo, time.Time) bool {
	return func(vol Volume, infos map[string]types.TTLInfo, now time.Time) bool {
		info, ok := infos[vol.Name]
		if !ok || !info.IsSet() {
			return true
		}
		delay, ok := volumeDelay[vol.Name]
		if !ok {
			return true
		}
		return now.Before(info.Max.Add(delay))
	}
}
