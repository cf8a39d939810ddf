// Package monitor exposes a running render over HTTP and produces summary
// plots when it ends.
//
// State is a pipeline.FrameSink plus driver callbacks; WebServer serves it
// alongside the run history held in the SQLite store. DensityPlotter writes
// gonum/plot PNGs of the session density.
package monitor
