package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/crowdheat/internal/fsutil"
	"github.com/banshee-data/crowdheat/internal/heatmap/l1feed"
	"github.com/banshee-data/crowdheat/internal/monitoring"
	"github.com/banshee-data/crowdheat/internal/storage/sqlite"
)

// importResult pairs a feed file with what was (or would be) stored.
type importResult struct {
	Path    string
	Summary sqlite.FeedSummary
}

// keyForPath derives a video key from a feed file name: "clips/lobby.json"
// becomes "lobby".
func keyForPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// importFeeds parses every path and stores it under its video key. An
// explicit key only makes sense for a single feed. A failing file does not
// stop the rest; the errors are joined.
func importFeeds(store *sqlite.FeedStore, fsys fsutil.FileSystem, paths []string, key string, dry bool) ([]importResult, error) {
	if key != "" && len(paths) > 1 {
		return nil, fmt.Errorf("-key needs exactly one feed, got %d", len(paths))
	}
	var results []importResult
	var errs []error
	for _, path := range paths {
		videoKey := key
		if videoKey == "" {
			videoKey = keyForPath(path)
		}
		feed, err := l1feed.Load(fsys, path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		if n := feed.MalformedCount(); n > 0 {
			monitoring.Logf("[feed] %s: %d malformed boxes will be stored clamped", path, n)
		}
		if dry {
			results = append(results, importResult{Path: path, Summary: sqlite.FeedSummary{
				VideoKey:       videoKey,
				Source:         path,
				FrameCount:     feed.Len(),
				DetectionCount: countDetections(feed),
			}})
			continue
		}
		summary, err := store.Import(videoKey, path, feed)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		results = append(results, importResult{Path: path, Summary: *summary})
	}
	return results, errors.Join(errs...)
}

func countDetections(feed *l1feed.Feed) int {
	n := 0
	for _, rec := range feed.Records() {
		n += len(rec.Objects)
	}
	return n
}

func formatSummary(s sqlite.FeedSummary) string {
	line := fmt.Sprintf("%s frames=%d detections=%d", s.VideoKey, s.FrameCount, s.DetectionCount)
	if !s.ImportedAt.IsZero() {
		line += " imported=" + s.ImportedAt.Format(time.RFC3339)
	}
	return line
}
