package l1feed

import (
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/banshee-data/crowdheat/internal/fsutil"
	"github.com/banshee-data/crowdheat/internal/heatmap"
	"github.com/banshee-data/crowdheat/internal/monitoring"
)

// maxFeedSize caps the document read by Load.
const maxFeedSize = 512 * 1024 * 1024

// Load reads and parses a detection document. Missing or unreadable files
// are configuration errors since nothing can run without the feed.
func Load(fsys fsutil.FileSystem, path string) (*Feed, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		return nil, &heatmap.ConfigurationError{Field: "detections_path", Value: path, Reason: "cannot stat detection feed", Err: err}
	}
	if info.IsDir() {
		return nil, heatmap.NewConfigurationError("detections_path", path, "is a directory")
	}
	if info.Size() > maxFeedSize {
		return nil, heatmap.NewConfigurationError("detections_path", path, fmt.Sprintf("feed too large: %d bytes", info.Size()))
	}

	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, &heatmap.ConfigurationError{Field: "detections_path", Value: path, Reason: "cannot read detection feed", Err: err}
	}

	feed, err := Parse(data)
	if err != nil {
		return nil, &heatmap.ConfigurationError{Field: "detections_path", Value: path, Reason: "cannot parse detection feed", Err: err}
	}

	monitoring.Logf("[feed] loaded %s: %d frames (max index %d), %d malformed boxes clamped",
		path, feed.Len(), feed.MaxFrameIndex(), feed.MalformedCount())
	return feed, nil
}

// Parse accepts either the producer's array form
//
//	[{"frame_number": 0, "objects": [{"name": "person", "box": {...}, "track_id": 1}]}]
//
// where a missing frame_number falls back to the array position, or an
// object keyed by frame index whose values are records or bare object lists.
func Parse(data []byte) (*Feed, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("detection feed is not valid JSON")
	}

	root := gjson.ParseBytes(data)
	var records []Record
	var parseErr error

	switch {
	case root.IsArray():
		pos := 0
		root.ForEach(func(_, value gjson.Result) bool {
			rec, err := parseRecord(value, pos)
			if err != nil {
				parseErr = fmt.Errorf("record %d: %w", pos, err)
				return false
			}
			records = append(records, rec)
			pos++
			return true
		})
	case root.IsObject():
		root.ForEach(func(key, value gjson.Result) bool {
			idx, err := strconv.Atoi(key.String())
			if err != nil {
				parseErr = fmt.Errorf("frame key %q is not an integer", key.String())
				return false
			}
			rec, err := parseRecord(value, idx)
			if err != nil {
				parseErr = fmt.Errorf("frame %d: %w", idx, err)
				return false
			}
			records = append(records, rec)
			return true
		})
	default:
		return nil, fmt.Errorf("detection feed must be a JSON array or object, got %s", root.Type)
	}
	if parseErr != nil {
		return nil, parseErr
	}

	return NewFeed(records)
}

func parseRecord(value gjson.Result, fallbackIndex int) (Record, error) {
	rec := Record{FrameIndex: fallbackIndex}

	objects := value
	if value.IsObject() {
		if fn := value.Get("frame_number"); fn.Exists() {
			if fn.Type != gjson.Number {
				return rec, fmt.Errorf("frame_number must be a number")
			}
			rec.FrameIndex = int(fn.Int())
		}
		objects = value.Get("objects")
		if !objects.Exists() {
			return rec, nil
		}
	}
	if !objects.IsArray() {
		return rec, fmt.Errorf("objects must be an array")
	}

	objects.ForEach(func(_, obj gjson.Result) bool {
		rec.Objects = append(rec.Objects, parseDetection(obj))
		return true
	})
	return rec, nil
}

func parseDetection(obj gjson.Result) Detection {
	d := Detection{
		Label:      firstString(obj, "name", "label", "class_name"),
		ClassID:    int(obj.Get("class").Int()),
		Confidence: obj.Get("confidence").Float(),
	}

	box := obj.Get("box")
	if box.IsArray() {
		c := box.Array()
		for len(c) < 4 {
			c = append(c, gjson.Result{})
		}
		d.Box = Box{X1: c[0].Float(), Y1: c[1].Float(), X2: c[2].Float(), Y2: c[3].Float()}
	} else {
		d.Box = Box{
			X1: box.Get("x1").Float(),
			Y1: box.Get("y1").Float(),
			X2: box.Get("x2").Float(),
			Y2: box.Get("y2").Float(),
		}
	}

	if tid := obj.Get("track_id"); tid.Type == gjson.Number {
		id := tid.Int()
		d.TrackID = &id
	}
	return d
}

func firstString(obj gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := obj.Get(k); v.Type == gjson.String {
			return v.String()
		}
	}
	return ""
}
