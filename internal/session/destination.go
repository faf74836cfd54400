package session

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// resolveDestination builds the on-disk path for an incoming file and
// ensures its parent directories exist. relativePath carries the folder
// structure for multi-file transfers (e.g. "Photos/2024/img.jpg"); for a
// lone file it is just the file name (spec §4.3, §9).
//
// Grounded on original_source/src/network/TransferSession.cpp's
// handleFileHeader: build destDir/relativePath, mkpath any intermediate
// directories, then resolve name collisions by appending " (N)" before the
// extension, trying N=1,2,... until a free name is found.
func resolveDestination(baseDir, relativePath, fileName string) (string, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		baseDir = filepath.Join(home, "Downloads", "Witra")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", err
	}

	rel := relativePath
	if rel == "" {
		rel = fileName
	}
	rel = filepath.FromSlash(rel)

	var path string
	if dir := filepath.Dir(rel); dir != "." && dir != "" {
		if err := os.MkdirAll(filepath.Join(baseDir, dir), 0o755); err != nil {
			return "", err
		}
		path = filepath.Join(baseDir, rel)
	} else {
		path = filepath.Join(baseDir, fileName)
	}

	return suffixUntilFree(path), nil
}

// suffixUntilFree appends " (N)" before the file extension until the
// resulting path does not exist, starting at N=1. Each call resolves
// independently: two files racing to claim the same name may both pick
// the same suffix if they check concurrently (spec §9, an accepted race
// inherited from the original implementation).
func suffixUntilFree(path string) string {
	if _, err := os.Stat(path); err != nil {
		return path
	}
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for n := 1; ; n++ {
		candidate := filepath.Join(dir, stem+" ("+strconv.Itoa(n)+")"+ext)
		if _, err := os.Stat(candidate); err != nil {
			return candidate
		}
	}
}
