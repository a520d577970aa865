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

func distillMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 1 {
		return errors.New("exactly one repository path is required")
	}
	repoPath, err := fspath.Normalize(arguments[0])
	if err != nil {
		return errors.Wrap(err, "unable to resolve repository path")
	}

	logger := rootLogger(distillConfiguration.verbose)

	repo, err := repository.Open(repoPath, false, logger.Sublogger("repository"))
	if err != nil {
		return errors.Wrap(err, "unable to open repository")
	}
	defer repo.Close()

	target, err := selectSnapshot(repo, distillConfiguration.snapshot)
	if err != nil {
		return err
	}

	var stats repofile.Stats
	if err := maintenance.Distill(repo, target, &stats, logger.Sublogger("maintenance")); err != nil {
		return errors.Wrap(err, "distill failed")
	}

	if distillConfiguration.compactDB {
		if err := target.Index().Compact(); err != nil {
			return errors.Wrap(err, "unable to compact index")
		}
	}

	printSummary(stats.Summary())
	return nil
}

var distillCommand = &cobra.Command{
	Use:   "distill <repository>",
	Short: "Shed files from a snapshot whose content exists elsewhere in the repository",
	Run:   cmd.Mainify(distillMain),
}

var distillConfiguration struct {
	help      bool
	verbose   bool
	snapshot  string
	compactDB bool
}

func init() {
	flags := distillCommand.Flags()
	flags.SortFlags = false

	flags.BoolVarP(&distillConfiguration.help, "help", "h", false, "Show help information")
	flags.BoolVar(&distillConfiguration.verbose, "verbose", false, "Enable debug logging")
	flags.StringVar(&distillConfiguration.snapshot, "snapshot", "", "Snapshot to distill (defaults to the newest)")
	flags.BoolVar(&distillConfiguration.compactDB, "compact_db", false, "Compact the index after distilling")
}
