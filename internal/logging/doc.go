// Package logging provides opt-in file-based logging with rotation for the
// codectx indexer and server. When debug logging is enabled, structured logs
// are written to ~/.codectx/logs/ for troubleshooting the pool, store, and
// selector.
//
// By default, logging is minimal and goes to stderr only.
package logging
