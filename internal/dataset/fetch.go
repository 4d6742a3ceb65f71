package dataset

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/banshee-data/pointnet/internal/monitoring"
	"github.com/banshee-data/pointnet/internal/security"
)

// logf is the package diagnostic logger, scoped so every line carries the
// dataset prefix.
var logf = monitoring.Scope("dataset")

// Fetch downloads the dataset archive at url and extracts it under baseDir.
// If baseDir already contains an extracted dataset the download is skipped.
// The archive file itself is removed after extraction.
func Fetch(ctx context.Context, url, baseDir string) error {
	if entries, err := os.ReadDir(baseDir); err == nil && len(entries) > 0 {
		logf("%s already populated, skipping download", baseDir)
		return nil
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return fmt.Errorf("create dataset dir: %w", err)
	}

	archivePath := filepath.Join(baseDir, "dataset.zip")
	if err := download(ctx, url, archivePath); err != nil {
		return err
	}
	defer os.Remove(archivePath)

	logf("extracting %s", archivePath)
	if err := Unzip(archivePath, baseDir); err != nil {
		return fmt.Errorf("extract archive: %w", err)
	}
	return nil
}

// download streams url to path, logging progress as it goes.
func download(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	logf("downloading %s", url)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download: unexpected status %s", resp.Status)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	defer f.Close()

	written := int64(0)
	buf := make([]byte, 1<<20)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := f.Write(buf[:n]); err != nil {
				return fmt.Errorf("write archive: %w", err)
			}
			before := written / (100 << 20)
			written += int64(n)
			if written/(100<<20) != before {
				logf("downloaded %d MB", written>>20)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("read response: %w", readErr)
		}
	}
	logf("download complete (%d MB)", written>>20)
	return nil
}

// Unzip extracts a zip archive into destDir, rejecting entries that would
// escape it.
func Unzip(zipPath, destDir string) error {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		target := filepath.Join(destDir, filepath.FromSlash(f.Name))
		if err := security.ValidatePathWithinDirectory(target, destDir); err != nil {
			return fmt.Errorf("zip entry %q: %w", f.Name, err)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := extractFile(f, target); err != nil {
			return fmt.Errorf("extract %s: %w", f.Name, err)
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}
