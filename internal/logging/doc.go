// Package logging configures structured logging for searchsync.
// Records are written as JSON to a size-rotated file under
// ~/.searchsync/logs/ and optionally mirrored to stderr.
package logging
