// Package media implements the format-aware payload codecs for the three
// chunk variants: PCM-16 audio decode, JPEG/PNG/WebP frame validation,
// packed three-axis IMU sample decode, and WAV encoding of drained audio
// for Recognizer requests. Decode failures surface to the caller so the
// ingestion layer can reject the chunk as invalid.
package media
