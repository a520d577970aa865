package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/xlrth/backup/cmd"
	"github.com/xlrth/backup/fspath"
	"github.com/xlrth/backup/maintenance"
	"github.com/xlrth/backup/repofile"
	"github.com/xlrth/backup/repository"
)

func cloneMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 2 {
		return errors.New("a source and target repository path are required")
	}
	sourcePath, err := fspath.Normalize(arguments[0])
	if err != nil {
		return errors.Wrap(err, "unable to resolve source repository path")
	}
	targetPath, err := fspath.Normalize(arguments[1])
	if err != nil {
		return errors.Wrap(err, "unable to resolve target repository path")
	}

	logger := rootLogger(cloneConfiguration.verbose)

	sourceRepo, err := repository.Open(sourcePath, false, logger.Sublogger("source"))
	if err != nil {
		return errors.Wrap(err, "unable to open source repository")
	}
	defer sourceRepo.Close()

	targetRepo, err := repository.Open(targetPath, true, logger.Sublogger("target"))
	if err != nil {
		return errors.Wrap(err, "unable to open target repository")
	}
	defer targetRepo.Close()

	var stats repofile.Stats
	if err := maintenance.Clone(sourceRepo, targetRepo, &stats, logger.Sublogger("maintenance")); err != nil {
		return errors.Wrap(err, "clone failed")
	}

	printSummary(stats.Summary())
	if stats.Errors > 0 {
		return errors.Errorf("clone completed with %d errors", stats.Errors)
	}
	return nil
}

var cloneCommand = &cobra.Command{
	Use:   "clone <source-repository> <target-repository>",
	Short: "Re-materialize every snapshot of a repository into a fresh one",
	Run:   cmd.Mainify(cloneMain),
}

var cloneConfiguration struct {
	help    bool
	verbose bool
}

func init() {
	flags := cloneCommand.Flags()
	flags.SortFlags = false

	flags.BoolVarP(&cloneConfiguration.help, "help", "h", false, "Show help information")
	flags.BoolVar(&cloneConfiguration.verbose, "verbose", false, "Enable debug logging")
}
