// Package fetcher downloads source archives into per-source staging
// directories, verifying integrity and unpacking them for normalization.
package fetcher

import (
	"context"
	"io"
)

// Downloader defines the transport-level interface for retrieving remote
// archives. HTTPDownloader and FTPDownloader implement it; the Stager picks
// one per origin scheme.
type Downloader interface {
	// DownloadToFile fetches the URL and writes it to the given path.
	// Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)

	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}
