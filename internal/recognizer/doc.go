// Package recognizer provides the client for the external Recognizer
// service that turns a finalized turn context (transcript, audio,
// latest frame, motion summary) into a response and device actions.
package recognizer
