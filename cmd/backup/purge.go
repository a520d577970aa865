package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/xlrth/backup/cmd"
	"github.com/xlrth/backup/fspath"
	"github.com/xlrth/backup/maintenance"
	"github.com/xlrth/backup/repofile"
	"github.com/xlrth/backup/repository"
	"github.com/xlrth/backup/snapshot"
)

// selectSnapshot returns the attached snapshot named name, or the newest
// attached snapshot if name is empty.
func selectSnapshot(repo *repository.Repository, name string) (*snapshot.Snapshot, error) {
	snapshots := repo.Snapshots()
	if len(snapshots) == 0 {
		return nil, errors.New("repository has no snapshots")
	}
	if name == "" {
		newest := snapshots[len(snapshots)-1]
		cmd.Warning("no --snapshot given, defaulting to " + newest.Path().Base())
		return newest, nil
	}
	for _, s := range snapshots {
		if s.Path().Base() == name {
			return s, nil
		}
	}
	return nil, errors.Errorf("no such snapshot: %s", name)
}

func purgeMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 1 {
		return errors.New("exactly one repository path is required")
	}
	repoPath, err := fspath.Normalize(arguments[0])
	if err != nil {
		return errors.Wrap(err, "unable to resolve repository path")
	}

	logger := rootLogger(purgeConfiguration.verbose)

	repo, err := repository.Open(repoPath, false, logger.Sublogger("repository"))
	if err != nil {
		return errors.Wrap(err, "unable to open repository")
	}
	defer repo.Close()

	target, err := selectSnapshot(repo, purgeConfiguration.snapshot)
	if err != nil {
		return err
	}

	var stats repofile.Stats
	if err := maintenance.Purge(target, &stats, logger.Sublogger("maintenance")); err != nil {
		return errors.Wrap(err, "purge failed")
	}

	if purgeConfiguration.compactDB {
		if err := target.Index().Compact(); err != nil {
			return errors.Wrap(err, "unable to compact index")
		}
	}

	printSummary(stats.Summary())
	return nil
}

var purgeCommand = &cobra.Command{
	Use:   "purge <repository>",
	Short: "Remove index rows whose file no longer exists from a snapshot",
	Run:   cmd.Mainify(purgeMain),
}

var purgeConfiguration struct {
	help      bool
	verbose   bool
	snapshot  string
	compactDB bool
}

func init() {
	flags := purgeCommand.Flags()
	flags.SortFlags = false

	flags.BoolVarP(&purgeConfiguration.help, "help", "h", false, "Show help information")
	flags.BoolVar(&purgeConfiguration.verbose, "verbose", false, "Enable debug logging")
	flags.StringVar(&purgeConfiguration.snapshot, "snapshot", "", "Snapshot to purge (defaults to the newest)")
	flags.BoolVar(&purgeConfiguration.compactDB, "compact_db", false, "Compact the index after purging")
}
