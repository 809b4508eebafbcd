// Package turn orchestrates turn completion: it drains the session's
// sensor buffers into a turn context, resolves the transcript through
// the stability gate, calls the Recognizer and maps its output onto
// wire actions.
package turn
