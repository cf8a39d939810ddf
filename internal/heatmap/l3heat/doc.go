// Package l3heat owns Layer 3 (Heat) of the heatmap engine.
//
// Responsibilities: the inverse-square decay kernel, the per-session
// accumulator (fresh or cumulative) and the frame sampling policy that bounds
// how often the kernel runs.
// Key types: Field, Accumulator, Stride.
//
// The kernel is the hot path of the whole pipeline: O(width*height*k) per
// evaluated frame for k qualifying detections. Compute is a pure function so
// it can be split across goroutines by ComputeParallel without touching the
// accumulator.
//
// Dependency rule: L3 may depend on L1-L2, never on L4+.
package l3heat
