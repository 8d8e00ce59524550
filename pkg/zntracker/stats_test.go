package zntracker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatsSnapshotAccumulatesPerTracker(t *testing.T) {
	stats := NewStats()
	stats.RecordSuccess("udp://tracker.example:80", 3)
	stats.RecordSuccess("udp://tracker.example:80", 5)
	stats.RecordFailure("http://other.example/announce")

	snap := stats.Snapshot()
	require.Equal(t, TrackerStat{Success: 2, Failure: 0, Peers: 5}, snap["udp://tracker.example:80"])
	require.Equal(t, TrackerStat{Success: 0, Failure: 1, Peers: 0}, snap["http://other.example/announce"])
}

func TestResolverRecordsStatsOnAnnounce(t *testing.T) {
	r := NewResolver()
	stats := NewStats()
	r.SetStats(stats)

	var hash, peerID [20]byte
	_, err := r.Announce("ftp://unsupported.example", hash, peerID, 15441)
	require.Error(t, err)

	snap := stats.Snapshot()
	st, ok := snap["ftp://unsupported.example"]
	require.True(t, ok)
	require.Equal(t, 1, st.Failure)
}
