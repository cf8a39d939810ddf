// Package sqlite persists detection feeds, render runs and session density
// snapshots in a single SQLite file.
//
// The schema is versioned with golang-migrate; migrations are embedded in the
// binary and applied by Open. All writes go through retryOnBusy so a monitor
// reading the run table never fails a render that is writing to it.
package sqlite
