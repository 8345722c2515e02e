package buildconfig

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveEpochUsesExplicitValue(t *testing.T) {
	epoch := uint64(1)
	require.Equal(t, uint64(1), ResolveEpoch(&epoch))
}

func TestResolveEpochFallsBackToNow(t *testing.T) {
	epoch := ResolveEpoch(nil)
	require.Greater(t, epoch, uint64(0))
}

func TestResolveCreatedFormatsRFC3339(t *testing.T) {
	created, err := ResolveCreated(1)
	require.NoError(t, err)
	require.Equal(t, "1970-01-01T00:00:01Z", created.Format("2006-01-02T15:04:05Z07:00"))
}

func TestResolveCreatedOverflow(t *testing.T) {
	_, err := ResolveCreated(uint64(math.MaxInt64) + 1)
	require.ErrorContains(t, err, "overflows i64")
}
