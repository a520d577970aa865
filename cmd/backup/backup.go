package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/xlrth/backup/cmd"
	"github.com/xlrth/backup/engine"
	"github.com/xlrth/backup/fspath"
	"github.com/xlrth/backup/repofile"
	"github.com/xlrth/backup/repository"
)

func backupMain(command *cobra.Command, arguments []string) error {
	if len(arguments) < 1 {
		return errors.New("a repository path is required")
	}
	repoPath, err := fspath.Normalize(arguments[0])
	if err != nil {
		return errors.Wrap(err, "unable to resolve repository path")
	}

	sources, configExcludes, err := resolveSources(backupConfiguration.config, arguments[1:])
	if err != nil {
		return err
	}
	excludes := append(configExcludes, backupConfiguration.excludes...)

	logger := rootLogger(backupConfiguration.verbose)

	repo, err := repository.Open(repoPath, true, logger.Sublogger("repository"))
	if err != nil {
		return errors.Wrap(err, "unable to open repository")
	}
	defer repo.Close()

	opts := engine.Options{
		AlwaysHash:  backupConfiguration.alwaysHash,
		Incremental: backupConfiguration.incremental,
		Suffix:      backupConfiguration.suffix,
		Excludes:    excludes,
	}

	var stats repofile.Stats
	if _, err := engine.Backup(repo, sources, opts, &stats, logger.Sublogger("engine")); err != nil {
		return errors.Wrap(err, "backup failed")
	}

	printSummary(stats.Summary())
	if stats.Errors > 0 {
		return errors.Errorf("backup completed with %d errors", stats.Errors)
	}
	return nil
}

var backupCommand = &cobra.Command{
	Use:   "backup <repository> [<source>...]",
	Short: "Back up one or more source trees into a repository",
	Run:   cmd.Mainify(backupMain),
}

var backupConfiguration struct {
	help        bool
	verbose     bool
	config      string
	alwaysHash  bool
	incremental bool
	suffix      string
	excludes    []string
}

func init() {
	flags := backupCommand.Flags()
	flags.SortFlags = false

	flags.BoolVarP(&backupConfiguration.help, "help", "h", false, "Show help information")
	flags.BoolVar(&backupConfiguration.verbose, "verbose", false, "Enable debug logging")
	flags.StringVar(&backupConfiguration.config, "config", "", "Configuration file naming additional sources and excludes")
	flags.BoolVar(&backupConfiguration.alwaysHash, "always_hash", false, "Always hash sources, never trust a matching signature")
	flags.BoolVar(&backupConfiguration.incremental, "incremental", false, "Skip files whose signature already exists in the repository")
	flags.StringVar(&backupConfiguration.suffix, "suffix", "", "Append _<suffix> to the newly created snapshot's name")
	flags.StringSliceVar(&backupConfiguration.excludes, "exclude", nil, "Exclude a case-insensitive path suffix (repeatable)")
}
