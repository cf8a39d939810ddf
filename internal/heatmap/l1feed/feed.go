package l1feed

import (
	"fmt"
	"sort"

	"github.com/banshee-data/crowdheat/internal/heatmap"
)

// Feed is an immutable, frame-indexed view of a detection document.
// A frame without a record has zero objects.
type Feed struct {
	records  map[int]Record
	frames   []int // sorted frame indices
	maxFrame int

	malformed map[int][]*heatmap.MalformedDetectionError
}

// NewFeed indexes records by frame. Boxes that are out of range or inverted
// are clamped in place and remembered as MalformedDetectionErrors; duplicate
// frame indices and negative indices are rejected.
func NewFeed(records []Record) (*Feed, error) {
	f := &Feed{
		records:   make(map[int]Record, len(records)),
		frames:    make([]int, 0, len(records)),
		maxFrame:  -1,
		malformed: make(map[int][]*heatmap.MalformedDetectionError),
	}

	for _, rec := range records {
		if rec.FrameIndex < 0 {
			return nil, fmt.Errorf("negative frame index %d in detection feed", rec.FrameIndex)
		}
		if _, dup := f.records[rec.FrameIndex]; dup {
			return nil, fmt.Errorf("duplicate frame index %d in detection feed", rec.FrameIndex)
		}

		objs := make([]Detection, len(rec.Objects))
		copy(objs, rec.Objects)
		for i := range objs {
			b := objs[i].Box
			if b.Valid() {
				continue
			}
			f.malformed[rec.FrameIndex] = append(f.malformed[rec.FrameIndex], &heatmap.MalformedDetectionError{
				FrameIndex:  rec.FrameIndex,
				ObjectIndex: i,
				X1:          b.X1, Y1: b.Y1, X2: b.X2, Y2: b.Y2,
			})
			objs[i].Box = b.Clamped()
		}

		f.records[rec.FrameIndex] = Record{FrameIndex: rec.FrameIndex, Objects: objs}
		f.frames = append(f.frames, rec.FrameIndex)
		if rec.FrameIndex > f.maxFrame {
			f.maxFrame = rec.FrameIndex
		}
	}
	sort.Ints(f.frames)
	return f, nil
}

// Objects returns the detections of frame i, or nil when the feed has no
// record for it. The returned slice must not be modified.
func (f *Feed) Objects(i int) []Detection {
	if f == nil {
		return nil
	}
	return f.records[i].Objects
}

// Len returns the number of frame records.
func (f *Feed) Len() int {
	if f == nil {
		return 0
	}
	return len(f.frames)
}

// MaxFrameIndex returns the highest frame index in the feed, or -1 if empty.
func (f *Feed) MaxFrameIndex() int {
	if f == nil {
		return -1
	}
	return f.maxFrame
}

// Records returns all records in frame order.
func (f *Feed) Records() []Record {
	if f == nil {
		return nil
	}
	out := make([]Record, 0, len(f.frames))
	for _, idx := range f.frames {
		out = append(out, f.records[idx])
	}
	return out
}

// Malformed returns the boxes that were clamped in frame i.
func (f *Feed) Malformed(i int) []*heatmap.MalformedDetectionError {
	if f == nil {
		return nil
	}
	return f.malformed[i]
}

// MalformedCount returns the total number of clamped boxes.
func (f *Feed) MalformedCount() int {
	if f == nil {
		return 0
	}
	n := 0
	for _, errs := range f.malformed {
		n += len(errs)
	}
	return n
}

// CheckCoverage compares the feed range against a video frame count. It
// returns a *heatmap.FeedMismatchError when the feed ends before the video
// does; videoFrames <= 0 means the count is unknown and nothing is checked.
func (f *Feed) CheckCoverage(videoFrames int) error {
	if videoFrames <= 0 {
		return nil
	}
	covered := f.MaxFrameIndex() + 1
	if covered < videoFrames {
		return &heatmap.FeedMismatchError{FeedFrames: covered, VideoFrames: videoFrames}
	}
	return nil
}

// CountLabel returns how many detections carry the given label across the
// whole feed.
func (f *Feed) CountLabel(label string) int {
	if f == nil {
		return 0
	}
	n := 0
	for _, rec := range f.records {
		for _, d := range rec.Objects {
			if d.Label == label {
				n++
			}
		}
	}
	return n
}
