// Package export packs a run's artifact directory into a portable
// compressed archive.
package export

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/pwlabs/pwrunner/internal/artifacts"
)

// Archive writes a .tar.zst archive of the run directory to destPath and
// returns the written path. An empty destPath defaults to
// <run_id>.tar.zst in the current directory. Entries inside the archive
// are rooted at the run ID so extraction yields a single directory.
func Archive(root artifacts.Root, runID, destPath string) (string, error) {
	runDir := root.RunDir(runID)
	if info, err := os.Stat(runDir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("run %s has no artifact directory", runID)
	}

	if destPath == "" {
		destPath = runID + ".tar.zst"
	}

	out, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("creating archive: %w", err)
	}
	defer out.Close()

	zw, err := zstd.NewWriter(out)
	if err != nil {
		return "", fmt.Errorf("initializing zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	err = filepath.WalkDir(runDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(runDir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(filepath.Join(runID, rel))

		info, err := d.Info()
		if err != nil {
			return err
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = name
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("archiving run %s: %w", runID, err)
	}

	if err := tw.Close(); err != nil {
		return "", fmt.Errorf("finishing archive: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("finishing compression: %w", err)
	}
	return destPath, nil
}
