package fetcher

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/plantset-cli/internal/model"
)

// Stager acquires source archives into isolated per-source staging
// directories: staging/{source}/archive.<ext> plus staging/{source}/raw/
// holding the unpacked tree. Partial failures never touch other sources'
// subtrees, and a staged, integrity-valid archive is reused on re-runs.
type Stager struct {
	root    string
	http    *HTTPDownloader
	ftp     *FTPDownloader
	workers int
}

// NewStager creates a Stager rooted at dataRoot (archives land under
// dataRoot/staging).
func NewStager(dataRoot string, httpDL *HTTPDownloader, ftpDL *FTPDownloader, workers int) *Stager {
	if workers <= 0 {
		workers = 3
	}
	return &Stager{root: dataRoot, http: httpDL, ftp: ftpDL, workers: workers}
}

// FetchResult reports the outcome of staging one source.
type FetchResult struct {
	Source      string
	StagingPath string
	Err         error
}

// Fetch stages a single source and returns the directory holding its
// unpacked files. Checksum mismatches surface as *DownloadError; transport
// failures that exhausted retries surface as *NetworkError.
func (s *Stager) Fetch(ctx context.Context, sd model.SourceDescriptor) (string, error) {
	dir := filepath.Join(s.root, "staging", sd.Name)
	rawDir := filepath.Join(dir, "raw")
	archivePath := filepath.Join(dir, "archive."+archiveExt(sd.Format))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "fetcher: create staging dir for %s", sd.Name)
	}

	log := zap.L().With(zap.String("source", sd.Name))

	if reusable, err := s.stagedArchiveValid(ctx, sd, archivePath); err == nil && reusable {
		if dirExists(rawDir) {
			log.Info("staged archive valid, reusing")
			return rawDir, nil
		}
		log.Info("staged archive valid, re-extracting")
		return rawDir, s.extract(sd, archivePath, rawDir)
	}

	bytes, err := s.download(ctx, sd, archivePath)
	if err != nil {
		return "", err
	}
	log.Info("downloaded archive", zap.String("size", humanize.IBytes(uint64(bytes))))

	if err := s.verify(sd, archivePath, bytes); err != nil {
		_ = os.Remove(archivePath)
		return "", &DownloadError{Source: sd.Name, Err: err}
	}

	return rawDir, s.extract(sd, archivePath, rawDir)
}

// FetchAll stages all sources with a bounded worker pool. A failed source
// is reported in its FetchResult; it does not abort the others.
func (s *Stager) FetchAll(ctx context.Context, sources []model.SourceDescriptor) []FetchResult {
	results := make([]FetchResult, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i, sd := range sources {
		g.Go(func() error {
			path, err := s.Fetch(gctx, sd)
			results[i] = FetchResult{Source: sd.Name, StagingPath: path, Err: err}
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// stagedArchiveValid reports whether an already-downloaded archive can be
// reused. With a declared checksum the file is re-hashed; without one, the
// origin is revalidated via conditional GET when possible.
func (s *Stager) stagedArchiveValid(ctx context.Context, sd model.SourceDescriptor, archivePath string) (bool, error) {
	info, err := os.Stat(archivePath)
	if err != nil {
		return false, err
	}

	if sd.Checksum != "" {
		if err := VerifyChecksum(archivePath, sd.Checksum); err != nil {
			zap.L().Warn("staged archive failed checksum, re-downloading",
				zap.String("source", sd.Name), zap.Error(err))
			return false, nil
		}
		return true, nil
	}

	if strings.HasPrefix(sd.Origin, "http") {
		etag, err := os.ReadFile(s.etagPath(sd))
		if err != nil {
			return false, nil
		}
		body, _, changed, err := s.http.DownloadIfChanged(ctx, sd.Origin, string(etag))
		if err != nil {
			// Revalidation failure is not fatal; fall back to the staged copy.
			zap.L().Warn("etag revalidation failed, reusing staged archive",
				zap.String("source", sd.Name), zap.Error(err))
			return true, nil
		}
		if body != nil {
			_ = body.Close()
		}
		return !changed, nil
	}

	if sd.ByteSize > 0 && info.Size() != sd.ByteSize {
		zap.L().Warn("staged archive has unexpected size, re-downloading",
			zap.String("source", sd.Name),
			zap.Int64("got", info.Size()),
			zap.Int64("want", sd.ByteSize))
		return false, nil
	}
	return true, nil
}

func (s *Stager) download(ctx context.Context, sd model.SourceDescriptor, archivePath string) (int64, error) {
	dl, err := s.downloaderFor(sd.Origin)
	if err != nil {
		return 0, err
	}

	partPath := archivePath + ".part"
	n, err := dl.DownloadToFile(ctx, sd.Origin, partPath)
	if err != nil {
		_ = os.Remove(partPath)
		return 0, &NetworkError{Source: sd.Name, Err: err}
	}
	if err := os.Rename(partPath, archivePath); err != nil {
		return 0, eris.Wrapf(err, "fetcher: finalize archive for %s", sd.Name)
	}

	if sd.Checksum == "" && strings.HasPrefix(sd.Origin, "http") {
		if etag, etagErr := s.http.HeadETag(ctx, sd.Origin); etagErr == nil && etag != "" {
			_ = os.WriteFile(s.etagPath(sd), []byte(etag), 0o644)
		}
	}

	return n, nil
}

func (s *Stager) verify(sd model.SourceDescriptor, archivePath string, bytes int64) error {
	if sd.Checksum != "" {
		return VerifyChecksum(archivePath, sd.Checksum)
	}
	if sd.ByteSize > 0 && bytes != sd.ByteSize {
		return eris.Errorf("fetcher: size mismatch for %s: got %d bytes, want %d", sd.Name, bytes, sd.ByteSize)
	}
	return nil
}

func (s *Stager) extract(sd model.SourceDescriptor, archivePath, rawDir string) error {
	// A stale partial extraction must not leak files into the new tree.
	if err := os.RemoveAll(rawDir); err != nil {
		return eris.Wrapf(err, "fetcher: clear raw dir for %s", sd.Name)
	}
	if err := os.MkdirAll(rawDir, 0o755); err != nil {
		return eris.Wrapf(err, "fetcher: create raw dir for %s", sd.Name)
	}

	count, err := ExtractArchive(archivePath, rawDir, sd.Format)
	if err != nil {
		return eris.Wrapf(err, "fetcher: extract archive for %s", sd.Name)
	}
	zap.L().Info("extracted archive", zap.String("source", sd.Name), zap.Int("files", count))
	return nil
}

func (s *Stager) downloaderFor(origin string) (Downloader, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse origin %s", origin)
	}
	switch u.Scheme {
	case "http", "https":
		return s.http, nil
	case "ftp":
		return s.ftp, nil
	}
	return nil, eris.Errorf("fetcher: unsupported origin scheme %q", u.Scheme)
}

func (s *Stager) etagPath(sd model.SourceDescriptor) string {
	return filepath.Join(s.root, "staging", sd.Name, ".etag")
}

func archiveExt(format model.ArchiveFormat) string {
	if format == model.ArchiveTarGz {
		return "tar.gz"
	}
	return "zip"
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
