// Package protocol defines the JSON wire messages exchanged with the
// smart-glass bridge device: session initialization, chunk streaming,
// turn completion, and the structured error envelope. It also defines
// the tagged chunk variant (audio/frame/imu) with its per-variant
// metadata and the validation rules applied before ingestion.
package protocol
