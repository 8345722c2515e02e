package buildconfig

import (
	"fmt"
	"math"
	"time"
)

// ResolveEpoch returns the build epoch: sourceDateEpoch if the caller
// supplied one, otherwise the current wall-clock time.
func ResolveEpoch(sourceDateEpoch *uint64) uint64 {
	if sourceDateEpoch != nil {
		return *sourceDateEpoch
	}
	return uint64(time.Now().Unix())
}

// ResolveCreated validates epoch fits in an i64 (the range every OCI/Unix
// timestamp API outside Go actually uses) and returns the corresponding
// UTC time, ready for RFC-3339 formatting in the image config.
func ResolveCreated(epoch uint64) (time.Time, error) {
	if epoch > math.MaxInt64 {
		return time.Time{}, fmt.Errorf("created timestamp overflows i64: %d", epoch)
	}
	return time.Unix(int64(epoch), 0).UTC(), nil
}
