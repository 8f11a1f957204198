// Package memory is the disk-persisted long-term store: conversation
// history, a preference map, and session summaries, serialized as JSON and
// sealed into one encrypted blob under a key domain separate from the
// protocol vault's.
//
// Every access requires a verified creator session. Entries older than the
// retention window are dropped and both lists are capped on every load and
// before every write; saves go through a temp file and rename so a crash
// never leaves a half-written blob.
package memory
