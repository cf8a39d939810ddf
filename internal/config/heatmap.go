package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/crowdheat/internal/fsutil"
	"github.com/banshee-data/crowdheat/internal/heatmap"
)

// DefaultConfigPath is the path to the canonical heatmap defaults file.
const DefaultConfigPath = "config/heatmap.defaults.json"

// Built-in defaults, mirrored by DefaultConfigPath.
const (
	DefaultGridScale         = 0.1
	DefaultOutputScale       = 0.5
	DefaultSampleRate        = 2
	DefaultDistanceBias      = 100.0
	DefaultTargetClass       = "person"
	DefaultBlendSourceWeight = 0.6
	DefaultBlendHeatWeight   = 0.4
	DefaultAccumulationMode  = "fresh"
	DefaultDecayFactor       = 1.0
	DefaultKernelWorkers     = 1
	DefaultDisplayWait       = 10 * time.Millisecond
)

const maxConfigSize = 1 * 1024 * 1024 // 1MB

// HeatmapConfig is the run configuration. Every field is optional in JSON;
// the Get* methods supply defaults for anything left unset, so partial
// files and flag-only runs behave the same.
type HeatmapConfig struct {
	// Inputs
	VideoPath      *string `json:"video_path,omitempty"`
	DetectionsPath *string `json:"detections_path,omitempty"`
	VideoKey       *string `json:"video_key,omitempty"` // feed key when detections come from the store

	// Engine
	GridScale        *float64 `json:"grid_scale,omitempty"`
	OutputScale      *float64 `json:"output_scale,omitempty"`
	SampleRate       *int     `json:"sample_rate,omitempty"`
	DistanceBias     *float64 `json:"distance_bias,omitempty"`
	TargetClass      *string  `json:"target_class,omitempty"`
	AccumulationMode *string  `json:"accumulation_mode,omitempty"`
	DecayFactor      *float64 `json:"decay_factor,omitempty"`
	KernelWorkers    *int     `json:"kernel_workers,omitempty"`

	// Compositing
	BlendSourceWeight *float64 `json:"blend_source_weight,omitempty"`
	BlendHeatWeight   *float64 `json:"blend_heat_weight,omitempty"`

	// Display
	DisplayWait *string `json:"display_wait,omitempty"` // duration string like "10ms"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// Float64 returns a pointer to v, for callers overriding a config field.
func Float64(v float64) *float64 { return ptrFloat64(v) }

// String returns a pointer to v.
func String(v string) *string { return ptrString(v) }

// Int returns a pointer to v.
func Int(v int) *int { return ptrInt(v) }

// EmptyHeatmapConfig returns a config with every field unset.
func EmptyHeatmapConfig() *HeatmapConfig {
	return &HeatmapConfig{}
}

// DefaultHeatmapConfig returns a config with every engine field set to its
// built-in default. Inputs are left unset.
func DefaultHeatmapConfig() *HeatmapConfig {
	return &HeatmapConfig{
		GridScale:         ptrFloat64(DefaultGridScale),
		OutputScale:       ptrFloat64(DefaultOutputScale),
		SampleRate:        ptrInt(DefaultSampleRate),
		DistanceBias:      ptrFloat64(DefaultDistanceBias),
		TargetClass:       ptrString(DefaultTargetClass),
		AccumulationMode:  ptrString(DefaultAccumulationMode),
		DecayFactor:       ptrFloat64(DefaultDecayFactor),
		KernelWorkers:     ptrInt(DefaultKernelWorkers),
		BlendSourceWeight: ptrFloat64(DefaultBlendSourceWeight),
		BlendHeatWeight:   ptrFloat64(DefaultBlendHeatWeight),
		DisplayWait:       ptrString(DefaultDisplayWait.String()),
	}
}

// LoadHeatmapConfig loads a HeatmapConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file stay nil and fall back to defaults.
func LoadHeatmapConfig(path string) (*HeatmapConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyHeatmapConfig()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Merge copies every field set in o over c.
func (c *HeatmapConfig) Merge(o *HeatmapConfig) {
	if o == nil {
		return
	}
	if o.VideoPath != nil {
		c.VideoPath = o.VideoPath
	}
	if o.DetectionsPath != nil {
		c.DetectionsPath = o.DetectionsPath
	}
	if o.VideoKey != nil {
		c.VideoKey = o.VideoKey
	}
	if o.GridScale != nil {
		c.GridScale = o.GridScale
	}
	if o.OutputScale != nil {
		c.OutputScale = o.OutputScale
	}
	if o.SampleRate != nil {
		c.SampleRate = o.SampleRate
	}
	if o.DistanceBias != nil {
		c.DistanceBias = o.DistanceBias
	}
	if o.TargetClass != nil {
		c.TargetClass = o.TargetClass
	}
	if o.AccumulationMode != nil {
		c.AccumulationMode = o.AccumulationMode
	}
	if o.DecayFactor != nil {
		c.DecayFactor = o.DecayFactor
	}
	if o.KernelWorkers != nil {
		c.KernelWorkers = o.KernelWorkers
	}
	if o.BlendSourceWeight != nil {
		c.BlendSourceWeight = o.BlendSourceWeight
	}
	if o.BlendHeatWeight != nil {
		c.BlendHeatWeight = o.BlendHeatWeight
	}
	if o.DisplayWait != nil {
		c.DisplayWait = o.DisplayWait
	}
}

// Validate checks every field that is set. It returns a
// *heatmap.ConfigurationError naming the first offending field.
func (c *HeatmapConfig) Validate() error {
	inUnit := func(field string, v *float64) error {
		if v != nil && (math.IsNaN(*v) || *v <= 0 || *v > 1) {
			return heatmap.NewConfigurationError(field, *v, "must be in (0,1]")
		}
		return nil
	}
	if err := inUnit("grid_scale", c.GridScale); err != nil {
		return err
	}
	if err := inUnit("output_scale", c.OutputScale); err != nil {
		return err
	}
	if c.SampleRate != nil && *c.SampleRate < 1 {
		return heatmap.NewConfigurationError("sample_rate", *c.SampleRate, "must be a positive integer")
	}
	if c.DistanceBias != nil && (math.IsNaN(*c.DistanceBias) || *c.DistanceBias <= 0) {
		return heatmap.NewConfigurationError("distance_bias", *c.DistanceBias, "must be positive")
	}
	if c.TargetClass != nil && strings.TrimSpace(*c.TargetClass) == "" {
		return heatmap.NewConfigurationError("target_class", *c.TargetClass, "must not be empty")
	}
	if c.AccumulationMode != nil {
		switch *c.AccumulationMode {
		case "", "fresh", "cumulative":
		default:
			return heatmap.NewConfigurationError("accumulation_mode", *c.AccumulationMode, `must be "fresh" or "cumulative"`)
		}
	}
	if err := inUnit("decay_factor", c.DecayFactor); err != nil {
		return err
	}
	if c.KernelWorkers != nil && *c.KernelWorkers < 1 {
		return heatmap.NewConfigurationError("kernel_workers", *c.KernelWorkers, "must be at least 1")
	}
	nonNegative := func(field string, v *float64) error {
		if v != nil && (math.IsNaN(*v) || *v < 0) {
			return heatmap.NewConfigurationError(field, *v, "must be non-negative")
		}
		return nil
	}
	if err := nonNegative("blend_source_weight", c.BlendSourceWeight); err != nil {
		return err
	}
	if err := nonNegative("blend_heat_weight", c.BlendHeatWeight); err != nil {
		return err
	}
	if c.DisplayWait != nil && *c.DisplayWait != "" {
		if d, err := time.ParseDuration(*c.DisplayWait); err != nil || d < 0 {
			ce := heatmap.NewConfigurationError("display_wait", *c.DisplayWait, "must be a non-negative duration")
			ce.Err = err
			return ce
		}
	}
	return nil
}

// ValidateInputs checks the two required inputs are set and, for local
// paths, exist. Stream URLs (anything with "://") are not checked.
func (c *HeatmapConfig) ValidateInputs(fsys fsutil.FileSystem) error {
	video := c.GetVideoPath()
	if video == "" {
		return heatmap.NewConfigurationError("video_path", video, "is required")
	}
	if !strings.Contains(video, "://") && !fsys.Exists(video) {
		return heatmap.NewConfigurationError("video_path", video, "does not exist")
	}
	dets := c.GetDetectionsPath()
	if dets == "" {
		return heatmap.NewConfigurationError("detections_path", dets, "is required")
	}
	if !fsys.Exists(dets) {
		return heatmap.NewConfigurationError("detections_path", dets, "does not exist")
	}
	return nil
}

// IsStorePath reports whether path names a SQLite feed store rather than a
// JSON document.
func IsStorePath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}

// GetVideoPath returns the video path or "".
func (c *HeatmapConfig) GetVideoPath() string {
	if c.VideoPath == nil {
		return ""
	}
	return *c.VideoPath
}

// GetDetectionsPath returns the detections path or "".
func (c *HeatmapConfig) GetDetectionsPath() string {
	if c.DetectionsPath == nil {
		return ""
	}
	return *c.DetectionsPath
}

// GetVideoKey returns the store key for the feed, defaulting to the base
// name of the video path.
func (c *HeatmapConfig) GetVideoKey() string {
	if c.VideoKey != nil && *c.VideoKey != "" {
		return *c.VideoKey
	}
	if v := c.GetVideoPath(); v != "" {
		return filepath.Base(v)
	}
	return ""
}

// GetGridScale returns the grid_scale value or the default.
func (c *HeatmapConfig) GetGridScale() float64 {
	if c.GridScale == nil {
		return DefaultGridScale
	}
	return *c.GridScale
}

// GetOutputScale returns the output_scale value or the default.
func (c *HeatmapConfig) GetOutputScale() float64 {
	if c.OutputScale == nil {
		return DefaultOutputScale
	}
	return *c.OutputScale
}

// GetSampleRate returns the sample_rate value or the default.
func (c *HeatmapConfig) GetSampleRate() int {
	if c.SampleRate == nil {
		return DefaultSampleRate
	}
	return *c.SampleRate
}

// GetDistanceBias returns the distance_bias value or the default.
func (c *HeatmapConfig) GetDistanceBias() float64 {
	if c.DistanceBias == nil {
		return DefaultDistanceBias
	}
	return *c.DistanceBias
}

// GetTargetClass returns the target_class value or the default.
func (c *HeatmapConfig) GetTargetClass() string {
	if c.TargetClass == nil || *c.TargetClass == "" {
		return DefaultTargetClass
	}
	return *c.TargetClass
}

// GetAccumulationMode returns the accumulation_mode value or the default.
func (c *HeatmapConfig) GetAccumulationMode() string {
	if c.AccumulationMode == nil || *c.AccumulationMode == "" {
		return DefaultAccumulationMode
	}
	return *c.AccumulationMode
}

// GetDecayFactor returns the decay_factor value or the default.
func (c *HeatmapConfig) GetDecayFactor() float64 {
	if c.DecayFactor == nil {
		return DefaultDecayFactor
	}
	return *c.DecayFactor
}

// GetKernelWorkers returns the kernel_workers value or the default.
func (c *HeatmapConfig) GetKernelWorkers() int {
	if c.KernelWorkers == nil {
		return DefaultKernelWorkers
	}
	return *c.KernelWorkers
}

// GetBlendSourceWeight returns the blend_source_weight value or the default.
func (c *HeatmapConfig) GetBlendSourceWeight() float64 {
	if c.BlendSourceWeight == nil {
		return DefaultBlendSourceWeight
	}
	return *c.BlendSourceWeight
}

// GetBlendHeatWeight returns the blend_heat_weight value or the default.
func (c *HeatmapConfig) GetBlendHeatWeight() float64 {
	if c.BlendHeatWeight == nil {
		return DefaultBlendHeatWeight
	}
	return *c.BlendHeatWeight
}

// GetDisplayWait parses and returns DisplayWait as a time.Duration.
func (c *HeatmapConfig) GetDisplayWait() time.Duration {
	if c.DisplayWait == nil || *c.DisplayWait == "" {
		return DefaultDisplayWait
	}
	d, err := time.ParseDuration(*c.DisplayWait)
	if err != nil {
		return DefaultDisplayWait // default on parse error
	}
	return d
}
