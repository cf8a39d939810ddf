package monitor

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/banshee-data/crowdheat/internal/heatmap/l3heat"
	"github.com/banshee-data/crowdheat/internal/heatmap/pipeline"
)

// State is the live view of one render run. The driver feeds it through
// WriteFrame, ObserveEvaluation and ObserveProgress; the web server reads
// snapshots. All methods are safe for concurrent use.
type State struct {
	mu sync.RWMutex

	runID     string
	videoKey  string
	startedAt time.Time

	frame      image.Image
	frameIndex int
	total      *l3heat.Field
	evalFrame  int
	stats      pipeline.Stats
	done       bool
	runErr     string
}

var _ pipeline.FrameSink = (*State)(nil)

// NewState creates the live state for a run.
func NewState(runID, videoKey string) *State {
	return &State{runID: runID, videoKey: videoKey, startedAt: time.Now(), frameIndex: -1, evalFrame: -1}
}

// WriteFrame keeps the latest composited frame. Frames are not copied; the
// driver allocates a fresh image per frame.
func (s *State) WriteFrame(_ context.Context, f pipeline.Frame) error {
	s.mu.Lock()
	s.frame = f.Image
	s.frameIndex = f.Index
	s.mu.Unlock()
	return nil
}

func (s *State) Close() error { return nil }

// ObserveEvaluation matches pipeline.DriverConfig.OnEvaluate.
func (s *State) ObserveEvaluation(frameIndex int, _, total *l3heat.Field) {
	snap := total.Clone()
	s.mu.Lock()
	s.total = snap
	s.evalFrame = frameIndex
	s.mu.Unlock()
}

// ObserveProgress matches pipeline.DriverConfig.OnProgress.
func (s *State) ObserveProgress(st pipeline.Stats) {
	s.mu.Lock()
	s.stats = st
	s.mu.Unlock()
}

// Finish marks the run as ended.
func (s *State) Finish(st pipeline.Stats, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = st
	s.done = true
	if err != nil {
		s.runErr = err.Error()
	}
}

// Status is the JSON shape of /api/status.
type Status struct {
	RunID          string         `json:"run_id,omitempty"`
	VideoKey       string         `json:"video_key,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	Running        bool           `json:"running"`
	Error          string         `json:"error,omitempty"`
	LastFrame      int            `json:"last_frame"`
	LastEvaluation int            `json:"last_evaluation"`
	FPS            float64        `json:"fps"`
	Stats          pipeline.Stats `json:"stats"`
	DensityWidth   int            `json:"density_width,omitempty"`
	DensityHeight  int            `json:"density_height,omitempty"`
}

// Status returns a snapshot of the run.
func (s *State) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		RunID:          s.runID,
		VideoKey:       s.videoKey,
		StartedAt:      s.startedAt,
		Running:        !s.done,
		Error:          s.runErr,
		LastFrame:      s.frameIndex,
		LastEvaluation: s.evalFrame,
		FPS:            s.stats.FPS(),
		Stats:          s.stats,
	}
	if s.total != nil {
		st.DensityWidth = s.total.Width()
		st.DensityHeight = s.total.Height()
	}
	return st
}

// Frame returns the latest composited frame, or nil before the first one.
func (s *State) Frame() image.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame
}

// Density returns the session density as of the last evaluation, or nil.
// The returned field is shared and must not be modified.
func (s *State) Density() *l3heat.Field {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// VideoKey returns the key of the video being rendered.
func (s *State) VideoKey() string {
	return s.videoKey
}
