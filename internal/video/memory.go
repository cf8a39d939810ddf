package video

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"

	"github.com/banshee-data/crowdheat/internal/heatmap/pipeline"
)

// MemorySource replays a fixed list of frames. The frame size is the size of
// the first frame.
type MemorySource struct {
	frames []image.Image
	next   int
	closed bool
}

var _ pipeline.FrameSource = (*MemorySource)(nil)

// NewMemorySource returns a source over frames. At least one frame is
// required.
func NewMemorySource(frames ...image.Image) (*MemorySource, error) {
	if len(frames) == 0 {
		return nil, errors.New("video: memory source needs at least one frame")
	}
	return &MemorySource{frames: frames}, nil
}

func (m *MemorySource) Width() int      { return m.frames[0].Bounds().Dx() }
func (m *MemorySource) Height() int     { return m.frames[0].Bounds().Dy() }
func (m *MemorySource) FrameCount() int { return len(m.frames) }

func (m *MemorySource) Next(ctx context.Context) (image.Image, error) {
	if m.closed {
		return nil, errors.New("video: memory source closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.next >= len(m.frames) {
		return nil, io.EOF
	}
	img := m.frames[m.next]
	m.next++
	return img, nil
}

// Closed reports whether Close has been called.
func (m *MemorySource) Closed() bool { return m.closed }

func (m *MemorySource) Close() error {
	m.closed = true
	return nil
}

// MemorySink collects every frame it is given. It is safe for concurrent
// readers while a run is writing.
type MemorySink struct {
	mu     sync.Mutex
	frames []pipeline.Frame
	closed bool
}

var _ pipeline.FrameSink = (*MemorySink)(nil)

func (m *MemorySink) WriteFrame(_ context.Context, f pipeline.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("video: memory sink closed")
	}
	m.frames = append(m.frames, f)
	return nil
}

// Frames returns a copy of the collected frames.
func (m *MemorySink) Frames() []pipeline.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]pipeline.Frame, len(m.frames))
	copy(out, m.frames)
	return out
}

// Closed reports whether Close has been called.
func (m *MemorySink) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MemorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
