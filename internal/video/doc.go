// Package video holds the pure-Go frame sources and sinks for the heatmap
// pipeline: numbered image files on a fsutil.FileSystem and in-memory frame
// lists. The OpenCV-backed capture, display and encoder live in the gocvio
// subpackage so this one builds without cgo.
package video
