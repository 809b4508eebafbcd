// Package server exposes the bridge API over HTTP and a persistent
// WebSocket stream: session lifecycle, chunk ingestion, turn completion
// and the operational endpoints (health, session listing, stats,
// Prometheus metrics).
package server
