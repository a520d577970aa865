package main

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/xlrth/backup/config"
	"github.com/xlrth/backup/fspath"
	"github.com/xlrth/backup/logging"
)

// rootLogger constructs the command's root logger at debug level if verbose
// is set, error level otherwise.
func rootLogger(verbose bool) *logging.Logger {
	if verbose {
		return logging.NewRoot(logging.LevelDebug)
	}
	return logging.NewRoot(logging.LevelError)
}

// resolveSources merges the sources and excludes named by an optional
// configuration file with those given directly on the command line.
func resolveSources(configPath string, extraSources []string) ([]fspath.Path, []string, error) {
	var sources []fspath.Path
	var excludes []string

	if configPath != "" {
		c, err := config.Load(configPath)
		if err != nil {
			return nil, nil, errors.Wrap(err, "unable to load configuration file")
		}
		sources = append(sources, c.Sources...)
		excludes = append(excludes, c.Excludes...)
	}

	for _, s := range extraSources {
		normalized, err := fspath.Normalize(s)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "unable to resolve source: %s", s)
		}
		sources = append(sources, normalized)
	}

	if len(sources) == 0 {
		return nil, nil, errors.New("no sources specified")
	}

	return sources, excludes, nil
}

// printSummary prints the final statistics line, per spec.md §7's session
// summary requirement.
func printSummary(summary string) {
	fmt.Println(summary)
}
