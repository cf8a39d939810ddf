package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/crowdheat/internal/fsutil"
	"github.com/banshee-data/crowdheat/internal/monitoring"
	"github.com/banshee-data/crowdheat/internal/storage/sqlite"
)

func init() {
	monitoring.SetLogger(nil)
}

const lobbyFeed = `[
  {"frame_number": 0, "objects": [{"name": "person", "box": {"x1": 0.1, "y1": 0.1, "x2": 0.3, "y2": 0.5}}]},
  {"frame_number": 4, "objects": [
    {"name": "person", "box": [0.2, 0.1, 0.4, 0.5]},
    {"name": "car", "box": [0.5, 0.5, 1.2, 0.9]}
  ]}
]`

func newStore(t *testing.T) *sqlite.FeedStore {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "feeds.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlite.NewFeedStore(db)
}

func TestKeyForPath(t *testing.T) {
	assert.Equal(t, "lobby", keyForPath("clips/lobby.json"))
	assert.Equal(t, "cam.2", keyForPath("/data/cam.2.json"))
	assert.Equal(t, "raw", keyForPath("raw"))
}

func TestImportFeeds(t *testing.T) {
	store := newStore(t)
	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.WriteFile("clips/lobby.json", []byte(lobbyFeed), 0644))

	results, err := importFeeds(store, fsys, []string{"clips/lobby.json"}, "", false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "lobby", results[0].Summary.VideoKey)
	assert.Equal(t, 2, results[0].Summary.FrameCount)
	assert.Equal(t, 3, results[0].Summary.DetectionCount)

	feed, err := store.Load("lobby")
	require.NoError(t, err)
	assert.Equal(t, 4, feed.MaxFrameIndex())
	assert.Equal(t, 2, feed.CountLabel("person"))
}

func TestImportFeedsExplicitKeyAndDryRun(t *testing.T) {
	store := newStore(t)
	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.WriteFile("a.json", []byte(lobbyFeed), 0644))
	require.NoError(t, fsys.WriteFile("b.json", []byte(lobbyFeed), 0644))

	_, err := importFeeds(store, fsys, []string{"a.json", "b.json"}, "entrance", false)
	assert.ErrorContains(t, err, "exactly one feed")

	results, err := importFeeds(store, fsys, []string{"a.json"}, "entrance", true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "entrance", results[0].Summary.VideoKey)
	assert.Equal(t, 3, results[0].Summary.DetectionCount)

	videos, err := store.Videos()
	require.NoError(t, err)
	assert.Empty(t, videos, "dry run must not write")
}

func TestImportFeedsContinuesPastBadFile(t *testing.T) {
	store := newStore(t)
	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.WriteFile("good.json", []byte(lobbyFeed), 0644))
	require.NoError(t, fsys.WriteFile("bad.json", []byte(`{"not": "a feed"`), 0644))

	results, err := importFeeds(store, fsys, []string{"bad.json", "missing.json", "good.json"}, "", false)
	require.Error(t, err)
	assert.ErrorContains(t, err, "bad.json")
	assert.ErrorContains(t, err, "missing.json")
	require.Len(t, results, 1)
	assert.Equal(t, "good", results[0].Summary.VideoKey)
}

func TestFormatSummary(t *testing.T) {
	s := sqlite.FeedSummary{VideoKey: "lobby", FrameCount: 2, DetectionCount: 3}
	assert.Equal(t, "lobby frames=2 detections=3", formatSummary(s))
	s.ImportedAt = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "lobby frames=2 detections=3 imported=2026-05-01T12:00:00Z", formatSummary(s))
}
