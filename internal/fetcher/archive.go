package fetcher

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/plantset-cli/internal/model"
)

// ExtractArchive unpacks archivePath into destDir according to format.
// Returns the number of files extracted.
func ExtractArchive(archivePath, destDir string, format model.ArchiveFormat) (int, error) {
	switch format {
	case model.ArchiveZip:
		return extractZIP(archivePath, destDir)
	case model.ArchiveTarGz:
		return extractTarGz(archivePath, destDir)
	}
	return 0, eris.Errorf("fetcher: unsupported archive format %q", format)
}

func extractZIP(zipPath, destDir string) (int, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: open zip archive")
	}
	defer r.Close() //nolint:errcheck

	count := 0
	for _, f := range r.File {
		destPath, err := sanitizeEntryPath(destDir, f.Name)
		if err != nil {
			return count, err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return count, eris.Wrap(err, "fetcher: create directory")
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return count, eris.Wrap(err, "fetcher: create parent directory")
		}

		rc, err := f.Open()
		if err != nil {
			return count, eris.Wrap(err, "fetcher: open zip entry")
		}
		if err := writeEntry(destPath, rc); err != nil {
			_ = rc.Close()
			return count, err
		}
		_ = rc.Close()
		count++
	}

	return count, nil
}

func extractTarGz(tarPath, destDir string) (int, error) {
	f, err := os.Open(tarPath)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: open tar archive")
	}
	defer f.Close() //nolint:errcheck

	gz, err := gzip.NewReader(f)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: open gzip stream")
	}
	defer gz.Close() //nolint:errcheck

	tr := tar.NewReader(gz)
	count := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, eris.Wrap(err, "fetcher: read tar entry")
		}

		destPath, err := sanitizeEntryPath(destDir, hdr.Name)
		if err != nil {
			return count, err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return count, eris.Wrap(err, "fetcher: create directory")
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
				return count, eris.Wrap(err, "fetcher: create parent directory")
			}
			if err := writeEntry(destPath, tr); err != nil {
				return count, err
			}
			count++
		default:
			// Symlinks and special files are skipped; archives are data-only.
		}
	}

	return count, nil
}

// sanitizeEntryPath guards against path traversal (zip slip) in archive
// entry names.
func sanitizeEntryPath(destDir, name string) (string, error) {
	destPath := filepath.Join(destDir, name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("fetcher: illegal archive path %q", name)
	}
	return destPath, nil
}

func writeEntry(destPath string, r io.Reader) error {
	out, err := os.Create(destPath)
	if err != nil {
		return eris.Wrap(err, "fetcher: create file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, r); err != nil {
		return eris.Wrap(err, "fetcher: write file")
	}
	return nil
}
