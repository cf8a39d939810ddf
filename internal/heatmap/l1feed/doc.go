// Package l1feed owns Layer 1 (Feed) of the heatmap engine.
//
// Responsibilities: parsing the detector/tracker output into frame-indexed
// records, answering "which objects are in frame i", and sanitising boxes
// that fall outside [0,1] or are inverted.
// Key types: Box, Detection, Record, Feed.
//
// Dependency rule: L1 depends only on the heatmap root package.
// No SQL/database code is allowed in this package.
package l1feed
