// Package metrics defines the Prometheus metrics exposed by the bridge
// service: session lifecycle, chunk ingestion, buffer pressure, transcript
// gate behavior, turn outcomes and Recognizer client activity.
package metrics
