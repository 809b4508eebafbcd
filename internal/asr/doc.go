// Package asr turns streams of partial speech hypotheses into stable
// final transcripts. The Gate compares consecutive hypotheses with a
// token-level similarity score and finalizes after K consecutive
// agreements within delta, with forced finalization on end-of-utterance
// silence or recognizer stall. The Manager owns one gate, voice
// activity detector and transcription pump per session.
package asr
