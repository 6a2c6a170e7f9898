package dedup

import "fmt"

// CorruptFileError marks a file that could not be read or decoded during
// fingerprinting. It is recovered by exclusion: the scan continues and the
// file is reported in the run summary, never silently dropped.
type CorruptFileError struct {
	Path string
	Err  error
}

func (e *CorruptFileError) Error() string {
	return fmt.Sprintf("corrupt file %q: %v", e.Path, e.Err)
}

func (e *CorruptFileError) Unwrap() error { return e.Err }
