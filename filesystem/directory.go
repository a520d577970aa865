// Package filesystem collects small filesystem primitives shared across
// the core packages: atomic writes, directory listing, and exclusive
// locking.
package filesystem

import (
	"os"
	"sort"

	"github.com/pkg/errors"
)

// DirectoryContents lists the immediate entry names of the directory at
// path, sorted lexicographically so that, for a repository directory,
// iteration order equals chronological snapshot order.
func DirectoryContents(path string) ([]string, error) {
	directory, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open directory")
	}
	defer directory.Close()

	names, err := directory.Readdirnames(0)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read directory names")
	}

	sort.Strings(names)

	return names, nil
}
