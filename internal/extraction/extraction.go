package extraction

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"
)

// shouldIgnoreEntry filters archive junk: macOS resource forks, hidden
// files and Windows thumbnails never belong to a dataset.
func shouldIgnoreEntry(path string) bool {
	if strings.HasPrefix(path, "__MACOSX") {
		return true
	}
	name := filepath.Base(path)
	if strings.HasPrefix(name, "._") || strings.HasPrefix(name, ".") {
		return true
	}
	if strings.ToLower(name) == "thumbs.db" {
		return true
	}
	return false
}

// ExtractArchive extracts a dataset archive to a fresh temporary directory
// and returns the extracted file paths plus the directory. The caller owns
// cleanup of the returned directory.
func ExtractArchive(ctx context.Context, archivePath string) ([]string, string, error) {
	destDir, err := os.MkdirTemp("", "extract-*")
	if err != nil {
		return nil, "", err
	}

	fsys, err := archives.FileSystem(ctx, archivePath, nil)
	if err != nil {
		os.RemoveAll(destDir)
		return nil, "", err
	}

	var files []string
	err = fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if shouldIgnoreEntry(path) {
			return nil
		}
		reader, err := fsys.Open(path)
		if err != nil {
			return err
		}
		defer reader.Close()

		destPath := filepath.Join(destDir, path)
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return err
		}

		outFile, err := os.Create(destPath)
		if err != nil {
			return err
		}
		defer outFile.Close()

		if _, err := io.Copy(outFile, reader); err != nil {
			return err
		}

		files = append(files, destPath)
		return nil
	})
	if err != nil {
		os.RemoveAll(destDir)
		return nil, "", err
	}

	return files, destDir, nil
}

// DatasetRoot returns the directory that actually holds the dataset inside
// an extracted tree: if destDir contains a single subdirectory and no
// regular files, the archive carried a wrapping root folder and that
// subdirectory is the root.
func DatasetRoot(destDir string) string {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return destDir
	}
	var onlyDir string
	for _, e := range entries {
		if !e.IsDir() {
			return destDir
		}
		if onlyDir != "" {
			return destDir
		}
		onlyDir = e.Name()
	}
	if onlyDir == "" {
		return destDir
	}
	return filepath.Join(destDir, onlyDir)
}
