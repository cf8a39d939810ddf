// Package heatmap is the root of the temporal heatmap synthesis engine.
//
// The engine is split into layers, each in its own package:
//
//	l1feed   detection records (read-only, frame indexed)
//	l2grid   working-grid mapping of normalized boxes
//	l3heat   decay kernel, accumulator and sampling policy
//	l4render normalization, colour ramp and compositing
//	pipeline frame driver (composition root)
//
// Dependency rule: a layer may import lower layers and this package, never a
// higher one. This package only holds the shared error taxonomy.
package heatmap
