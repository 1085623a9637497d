// Package transcript records every activity the harness sends or
// receives, independent of any single exchange.
//
// The Recorder is an append-only sink: Record always succeeds, never
// blocks, and earlier entries are never touched. Snapshot returns an
// immutable copy, so the transcript is usable for diagnostics even when
// an exchange ultimately times out.
//
// Rendering (markdown, HTML via goldmark, colored console) and the
// optional SQLite archive are post-run conveniences layered on top of
// Snapshot; none of them participate in correlation.
package transcript
