// Package config loads the sectioned, INI-like configuration file that
// names a backup's sources and exclude patterns, per spec.md §6.
package config

import (
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/xlrth/backup/fspath"
)

// Config is the parsed contents of a configuration file.
type Config struct {
	Sources  []fspath.Path
	Excludes []string
}

type section int

const (
	sectionNone section = iota
	sectionSources
	sectionExcludes
)

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read configuration file")
	}
	return Parse(string(contents))
}

// Parse scans the line-oriented grammar of spec.md §6: lines starting with
// '*' are comments, a line matching "[sources]" or "[excludes]" begins a
// section, and any other non-blank line within a section names a member.
func Parse(contents string) (*Config, error) {
	lines := splitLines(contents)

	config := &Config{}
	current := sectionNone

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "*") {
			continue
		}

		switch strings.ToLower(line) {
		case "[sources]":
			current = sectionSources
			continue
		case "[excludes]":
			current = sectionExcludes
			continue
		}
		if strings.HasPrefix(line, "[") {
			return nil, errors.Errorf("unrecognized section header: %s", line)
		}

		switch current {
		case sectionSources:
			config.Sources = append(config.Sources, fspath.New(line))
		case sectionExcludes:
			config.Excludes = append(config.Excludes, line)
		default:
			return nil, errors.Errorf("member outside of a section: %s", line)
		}
	}

	return config, nil
}

// splitLines normalizes line endings and splits contents into lines,
// mirroring the teacher's environment-block scanning idiom.
func splitLines(contents string) []string {
	contents = strings.ReplaceAll(contents, "\r\n", "\n")
	return strings.Split(contents, "\n")
}
