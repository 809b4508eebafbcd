// Package session implements streaming session lifecycle and per-session
// sensor buffers. A Registry owns the id-to-session map and evicts idle
// sessions on a sweep interval; each Session carries its own bounded
// Buffer so chunk ingestion and turn completion on different sessions
// never contend on a shared lock.
package session
