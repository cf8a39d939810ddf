// Package l4render turns heat fields into pixels.
//
// Layer 4 of the heatmap pipeline: min-max normalisation of an l3heat.Field
// to an 8-bit intensity image, the fixed Jet colour ramp, and the weighted
// blend of a heat layer over a source frame.
//
// Dependency rule: L4 may depend on L3 (field) but not on the frame driver.
// Everything here is pure and stateless; the same inputs always produce
// the same pixels.
package l4render
