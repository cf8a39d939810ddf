package l1feed

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/crowdheat/internal/fsutil"
	"github.com/banshee-data/crowdheat/internal/heatmap"
	"github.com/banshee-data/crowdheat/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

const producerFeed = `[
  {"frame_number": 0, "objects": [
    {"name": "person", "class": 0, "confidence": 0.91,
     "box": {"x1": 0.4, "y1": 0.4, "x2": 0.6, "y2": 0.6}, "track_id": 7},
    {"name": "car", "class": 2, "confidence": 0.55,
     "box": {"x1": 0.1, "y1": 0.1, "x2": 0.2, "y2": 0.3}}
  ]},
  {"frame_number": 1, "objects": []},
  {"frame_number": 2, "objects": [
    {"name": "person", "class": 0, "confidence": 0.8,
     "box": {"x1": 1.2, "y1": -0.1, "x2": 0.9, "y2": 0.5}, "track_id": 7}
  ]}
]`

func TestParse_ProducerArray(t *testing.T) {
	feed, err := Parse([]byte(producerFeed))
	require.NoError(t, err)

	assert.Equal(t, 3, feed.Len())
	assert.Equal(t, 2, feed.MaxFrameIndex())

	objs := feed.Objects(0)
	require.Len(t, objs, 2)
	assert.Equal(t, "person", objs[0].Label)
	assert.Equal(t, 0.91, objs[0].Confidence)
	assert.Equal(t, Box{X1: 0.4, Y1: 0.4, X2: 0.6, Y2: 0.6}, objs[0].Box)
	require.NotNil(t, objs[0].TrackID)
	assert.Equal(t, int64(7), *objs[0].TrackID)
	assert.Equal(t, "car", objs[1].Label)
	assert.Equal(t, 2, objs[1].ClassID)
	assert.Nil(t, objs[1].TrackID)

	assert.Empty(t, feed.Objects(1))
	assert.Nil(t, feed.Objects(99), "frames past the feed have zero objects")
}

func TestParse_MalformedBoxesAreClamped(t *testing.T) {
	feed, err := Parse([]byte(producerFeed))
	require.NoError(t, err)

	objs := feed.Objects(2)
	require.Len(t, objs, 1)
	assert.Equal(t, Box{X1: 0.9, Y1: 0, X2: 1, Y2: 0.5}, objs[0].Box)
	assert.True(t, objs[0].Box.Valid())

	bad := feed.Malformed(2)
	require.Len(t, bad, 1)
	assert.Equal(t, 2, bad[0].FrameIndex)
	assert.Equal(t, 0, bad[0].ObjectIndex)
	assert.Equal(t, 1.2, bad[0].X1)
	assert.Equal(t, 1, feed.MalformedCount())
	assert.False(t, heatmap.IsFatal(bad[0]))
}

func TestParse_PositionFallbackAndKeyedObject(t *testing.T) {
	positional := `[{"objects": [{"name": "person", "box": [0.1, 0.1, 0.2, 0.2]}]}, {"objects": []}]`
	feed, err := Parse([]byte(positional))
	require.NoError(t, err)
	assert.Equal(t, 1, feed.MaxFrameIndex())
	require.Len(t, feed.Objects(0), 1)
	assert.Equal(t, Box{X1: 0.1, Y1: 0.1, X2: 0.2, Y2: 0.2}, feed.Objects(0)[0].Box)

	keyed := `{"5": {"objects": [{"label": "person", "box": {"x1": 0, "y1": 0, "x2": 1, "y2": 1}}]},
	           "3": [{"class_name": "bicycle", "box": {"x1": 0, "y1": 0, "x2": 0.5, "y2": 0.5}}]}`
	feed, err = Parse([]byte(keyed))
	require.NoError(t, err)
	assert.Equal(t, 2, feed.Len())
	assert.Equal(t, 5, feed.MaxFrameIndex())
	assert.Equal(t, "person", feed.Objects(5)[0].Label)
	assert.Equal(t, "bicycle", feed.Objects(3)[0].Label)

	recs := feed.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, 3, recs[0].FrameIndex)
	assert.Equal(t, 5, recs[1].FrameIndex)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{"frame_number": `},
		{"scalar root", `42`},
		{"bad key", `{"first": []}`},
		{"objects not array", `[{"frame_number": 0, "objects": 3}]`},
		{"duplicate frames", `[{"frame_number": 1, "objects": []}, {"frame_number": 1, "objects": []}]`},
		{"negative frame", `[{"frame_number": -1, "objects": []}]`},
		{"string frame number", `[{"frame_number": "0", "objects": []}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestCheckCoverage(t *testing.T) {
	feed, err := Parse([]byte(producerFeed))
	require.NoError(t, err)

	assert.NoError(t, feed.CheckCoverage(0), "unknown frame count is never a mismatch")
	assert.NoError(t, feed.CheckCoverage(3))

	err = feed.CheckCoverage(10)
	var fm *heatmap.FeedMismatchError
	require.True(t, errors.As(err, &fm))
	assert.Equal(t, 3, fm.FeedFrames)
	assert.Equal(t, 10, fm.VideoFrames)
	assert.False(t, heatmap.IsFatal(err))
}

func TestCountLabel(t *testing.T) {
	feed, err := Parse([]byte(producerFeed))
	require.NoError(t, err)
	assert.Equal(t, 2, feed.CountLabel("person"))
	assert.Equal(t, 1, feed.CountLabel("car"))
	assert.Equal(t, 0, feed.CountLabel("giraffe"))
}

func TestNilFeed(t *testing.T) {
	var f *Feed
	assert.Nil(t, f.Objects(0))
	assert.Equal(t, 0, f.Len())
	assert.Equal(t, -1, f.MaxFrameIndex())
	assert.Equal(t, 0, f.MalformedCount())
}

func TestLoad(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/data/video.mp4.json", []byte(producerFeed), 0644))

	feed, err := Load(mfs, "/data/video.mp4.json")
	require.NoError(t, err)
	assert.Equal(t, 3, feed.Len())

	_, err = Load(mfs, "/data/missing.json")
	var ce *heatmap.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "detections_path", ce.Field)

	require.NoError(t, mfs.WriteFile("/data/broken.json", []byte("[{"), 0644))
	_, err = Load(mfs, "/data/broken.json")
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, ce.Error(), "cannot parse")

	require.NoError(t, mfs.MkdirAll("/data/dir.json", 0755))
	_, err = Load(mfs, "/data/dir.json")
	require.True(t, errors.As(err, &ce))
}

func TestBox_Clamped(t *testing.T) {
	nan := func() float64 { var z float64; return z / z }()
	tests := []struct {
		name string
		in   Box
		want Box
	}{
		{"valid untouched", Box{0.1, 0.2, 0.3, 0.4}, Box{0.1, 0.2, 0.3, 0.4}},
		{"inverted", Box{0.6, 0.7, 0.4, 0.5}, Box{0.4, 0.5, 0.6, 0.7}},
		{"out of range", Box{-0.5, -1, 1.5, 2}, Box{0, 0, 1, 1}},
		{"nan", Box{nan, 0.1, 0.2, 0.3}, Box{0, 0.1, 0.2, 0.3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Clamped()
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Valid())
		})
	}
}
