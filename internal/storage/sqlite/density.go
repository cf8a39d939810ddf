package sqlite

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/banshee-data/crowdheat/internal/heatmap/l3heat"
)

// DensitySnapshot is a persisted session density field.
type DensitySnapshot struct {
	SnapshotID  int64         `json:"snapshot_id"`
	RunID       string        `json:"run_id"`
	VideoKey    string        `json:"video_key"`
	Evaluations int           `json:"evaluations"`
	CreatedAt   time.Time     `json:"created_at"`
	Field       *l3heat.Field `json:"-"`
}

// DensityStore persists session density fields as compressed grid blobs.
type DensityStore struct {
	db *DB
}

// NewDensityStore creates a DensityStore on db.
func NewDensityStore(db *DB) *DensityStore {
	return &DensityStore{db: db}
}

// Save stores field for runID. evaluations is the number of kernel
// evaluations summed into it.
func (s *DensityStore) Save(runID, videoKey string, field *l3heat.Field, evaluations int) (int64, error) {
	blob, err := encodeField(field)
	if err != nil {
		return 0, fmt.Errorf("encoding density for run %s: %w", runID, err)
	}
	var id int64
	err = retryOnBusy(func() error {
		res, err := s.db.Exec(`
			INSERT INTO density_snapshots (run_id, video_key, width, height, evaluations, grid_blob, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, videoKey, field.Width(), field.Height(), evaluations, blob, time.Now().UTC().UnixNano(),
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("inserting density for run %s: %w", runID, err)
	}
	return id, nil
}

// Latest returns the newest snapshot for videoKey, or nil when none exist.
func (s *DensityStore) Latest(videoKey string) (*DensitySnapshot, error) {
	row := s.db.QueryRow(`
		SELECT snapshot_id, run_id, video_key, width, height, evaluations, grid_blob, created_at
		FROM density_snapshots
		WHERE video_key = ?
		ORDER BY created_at DESC, snapshot_id DESC
		LIMIT 1`, videoKey)

	var (
		snap          DensitySnapshot
		width, height int
		blob          []byte
		created       int64
	)
	err := row.Scan(&snap.SnapshotID, &snap.RunID, &snap.VideoKey, &width, &height, &snap.Evaluations, &blob, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan density snapshot: %w", err)
	}
	snap.CreatedAt = time.Unix(0, created).UTC()
	snap.Field, err = decodeField(blob, width, height)
	if err != nil {
		return nil, fmt.Errorf("decode density snapshot %d: %w", snap.SnapshotID, err)
	}
	return &snap, nil
}

// encodeField writes the field as little-endian float32 cells in row-major
// order, gzip-compressed.
func encodeField(f *l3heat.Field) ([]byte, error) {
	data := f.Data()
	raw := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(float32(v)))
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeField(blob []byte, width, height int) (*l3heat.Field, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("empty grid blob")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid grid size %dx%d", width, height)
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()
	raw, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress grid: %w", err)
	}
	if len(raw) != 4*width*height {
		return nil, fmt.Errorf("grid blob holds %d bytes, want %d for %dx%d", len(raw), 4*width*height, width, height)
	}
	f := l3heat.NewField(width, height)
	data := f.Data()
	for i := range data {
		data[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:])))
	}
	return f, nil
}
