package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/crowdheat/internal/heatmap/l1feed"
	"github.com/banshee-data/crowdheat/internal/monitoring"
)

// ErrFeedNotFound is returned when no feed is stored under a video key.
var ErrFeedNotFound = errors.New("feed not found")

// FeedSummary describes one imported detection feed.
type FeedSummary struct {
	VideoKey       string    `json:"video_key"`
	Source         string    `json:"source,omitempty"`
	FrameCount     int       `json:"frame_count"`
	DetectionCount int       `json:"detection_count"`
	ImportedAt     time.Time `json:"imported_at"`
}

// FeedStore keeps detection feeds keyed by video.
type FeedStore struct {
	db *DB
}

// NewFeedStore creates a FeedStore on db.
func NewFeedStore(db *DB) *FeedStore {
	return &FeedStore{db: db}
}

// Import replaces the stored feed for videoKey with feed. Boxes are stored
// as held by the feed, i.e. already clamped.
func (s *FeedStore) Import(videoKey, source string, feed *l1feed.Feed) (*FeedSummary, error) {
	if videoKey == "" {
		return nil, fmt.Errorf("import feed: empty video key")
	}
	records := feed.Records()
	sum := &FeedSummary{
		VideoKey:   videoKey,
		Source:     source,
		FrameCount: len(records),
		ImportedAt: time.Now().UTC(),
	}
	for _, rec := range records {
		sum.DetectionCount += len(rec.Objects)
	}

	err := retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.Exec(`DELETE FROM feeds WHERE video_key = ?`, videoKey); err != nil {
			return err
		}
		if _, err := tx.Exec(`
			INSERT INTO feeds (video_key, source, frame_count, detection_count, imported_at)
			VALUES (?, ?, ?, ?, ?)`,
			videoKey, nullStr(source), sum.FrameCount, sum.DetectionCount, sum.ImportedAt.UnixNano(),
		); err != nil {
			return err
		}

		frameStmt, err := tx.Prepare(`INSERT INTO feed_frames (video_key, frame_index) VALUES (?, ?)`)
		if err != nil {
			return err
		}
		defer frameStmt.Close()
		detStmt, err := tx.Prepare(`
			INSERT INTO feed_detections (
				video_key, frame_index, object_index, label, class_id, confidence,
				x1, y1, x2, y2, track_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer detStmt.Close()

		for _, rec := range records {
			if _, err := frameStmt.Exec(videoKey, rec.FrameIndex); err != nil {
				return fmt.Errorf("frame %d: %w", rec.FrameIndex, err)
			}
			for i, d := range rec.Objects {
				var track interface{}
				if d.TrackID != nil {
					track = *d.TrackID
				}
				if _, err := detStmt.Exec(
					videoKey, rec.FrameIndex, i, d.Label, d.ClassID, d.Confidence,
					d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2, track,
				); err != nil {
					return fmt.Errorf("frame %d object %d: %w", rec.FrameIndex, i, err)
				}
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, fmt.Errorf("importing feed %s: %w", videoKey, err)
	}
	monitoring.Logf("[store] imported feed %s: %d frames, %d detections", videoKey, sum.FrameCount, sum.DetectionCount)
	return sum, nil
}

// Load rebuilds the feed stored for videoKey.
func (s *FeedStore) Load(videoKey string) (*l1feed.Feed, error) {
	var exists int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM feeds WHERE video_key = ?`, videoKey).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("query feed %s: %w", videoKey, err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("load %s: %w", videoKey, ErrFeedNotFound)
	}

	frameRows, err := s.db.Query(`
		SELECT frame_index FROM feed_frames
		WHERE video_key = ?
		ORDER BY frame_index`, videoKey)
	if err != nil {
		return nil, fmt.Errorf("query feed frames: %w", err)
	}
	var records []l1feed.Record
	pos := make(map[int]int)
	for frameRows.Next() {
		var idx int
		if err := frameRows.Scan(&idx); err != nil {
			frameRows.Close()
			return nil, fmt.Errorf("scan feed frame: %w", err)
		}
		pos[idx] = len(records)
		records = append(records, l1feed.Record{FrameIndex: idx})
	}
	frameRows.Close()
	if err := frameRows.Err(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT frame_index, label, class_id, confidence, x1, y1, x2, y2, track_id
		FROM feed_detections
		WHERE video_key = ?
		ORDER BY frame_index, object_index`, videoKey)
	if err != nil {
		return nil, fmt.Errorf("query feed detections: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			idx   int
			d     l1feed.Detection
			track sql.NullInt64
		)
		if err := rows.Scan(&idx, &d.Label, &d.ClassID, &d.Confidence,
			&d.Box.X1, &d.Box.Y1, &d.Box.X2, &d.Box.Y2, &track); err != nil {
			return nil, fmt.Errorf("scan feed detection: %w", err)
		}
		if track.Valid {
			id := track.Int64
			d.TrackID = &id
		}
		p, ok := pos[idx]
		if !ok {
			return nil, fmt.Errorf("detection references unknown frame %d", idx)
		}
		records[p].Objects = append(records[p].Objects, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return l1feed.NewFeed(records)
}

// Videos lists imported feeds, most recent first.
func (s *FeedStore) Videos() ([]FeedSummary, error) {
	rows, err := s.db.Query(`
		SELECT video_key, source, frame_count, detection_count, imported_at
		FROM feeds
		ORDER BY imported_at DESC, video_key`)
	if err != nil {
		return nil, fmt.Errorf("query feeds: %w", err)
	}
	defer rows.Close()

	var out []FeedSummary
	for rows.Next() {
		var (
			f        FeedSummary
			source   sql.NullString
			imported int64
		)
		if err := rows.Scan(&f.VideoKey, &source, &f.FrameCount, &f.DetectionCount, &imported); err != nil {
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		f.Source = source.String
		f.ImportedAt = time.Unix(0, imported).UTC()
		out = append(out, f)
	}
	return out, rows.Err()
}

// Delete removes the feed for videoKey and its frames.
func (s *FeedStore) Delete(videoKey string) error {
	return retryOnBusy(func() error {
		res, err := s.db.Exec(`DELETE FROM feeds WHERE video_key = ?`, videoKey)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("delete %s: %w", videoKey, ErrFeedNotFound)
		}
		return nil
	})
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
