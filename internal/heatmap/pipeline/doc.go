// Package pipeline drives one heatmap session: it pulls decoded frames from
// a FrameSource, looks up the detections for each frame, evaluates the heat
// kernel on the sampled frames, composites the heat layer over every frame
// and hands the result to a FrameSink.
//
// Dependency rule: pipeline sits on top of l1feed..l4render and is the only
// package that owns session state (the accumulator, the source, the sinks).
// Video codecs and display surfaces live behind the FrameSource and
// FrameSink interfaces in internal/video.
package pipeline
