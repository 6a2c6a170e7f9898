package fetcher

import "fmt"

// NetworkError is a transient transport failure that exhausted its retry
// budget. It is fatal for the affected source but does not abort other
// sources.
type NetworkError struct {
	Source string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error fetching source %q: %v", e.Source, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DownloadError is an integrity failure: the downloaded archive does not
// match its declared checksum or byte size. Not retryable.
type DownloadError struct {
	Source string
	Err    error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download integrity error for source %q: %v", e.Source, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }
