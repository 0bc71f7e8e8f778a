package file

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Collect resolves the files named in paths and sums their sizes. Folders
// are rejected: the caller picks files, nothing is traversed.
func Collect(paths []string) ([]string, int64, error) {
	seen := make(map[string]bool, len(paths))
	files := make([]string, 0, len(paths))
	var total int64

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, 0, err
		}
		if seen[abs] {
			continue
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, 0, err
		}
		if info.IsDir() {
			return nil, 0, fmt.Errorf("%s is a folder, list its files instead", p)
		}
		if !info.Mode().IsRegular() {
			return nil, 0, fmt.Errorf("%s is not a regular file", p)
		}
		seen[abs] = true
		files = append(files, abs)
		total += info.Size()
	}

	if len(files) == 0 {
		return nil, 0, fmt.Errorf("no files given")
	}
	sort.Strings(files)
	return files, total, nil
}
