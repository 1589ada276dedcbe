package publisher

import "errors"

// Failure classes for a publishing pass. Transcription, extraction and
// decode failures abandon one file; I/O failures abandon the pass.
var (
	ErrTranscription = errors.New("transcription failed")
	ErrExtraction    = errors.New("metadata extraction failed")
	ErrDecode        = errors.New("audio decode failed")
	ErrIO            = errors.New("feed i/o failed")
)

// IsFatal reports whether err must stop the run rather than a single file.
func IsFatal(err error) bool {
	return errors.Is(err, ErrIO)
}
