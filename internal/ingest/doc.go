// Package ingest validates and routes incoming sensor chunks into
// session buffers. Validation is all-or-nothing: a rejected chunk
// leaves the session buffer exactly as it was.
package ingest
