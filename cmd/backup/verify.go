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

func verifyMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 1 {
		return errors.New("exactly one repository path is required")
	}
	repoPath, err := fspath.Normalize(arguments[0])
	if err != nil {
		return errors.Wrap(err, "unable to resolve repository path")
	}

	logger := rootLogger(verifyConfiguration.verbose)

	repo, err := repository.Open(repoPath, false, logger.Sublogger("repository"))
	if err != nil {
		return errors.Wrap(err, "unable to open repository")
	}
	defer repo.Close()

	opts := maintenance.VerifyOptions{
		RehashFiles:    verifyConfiguration.verifyHash,
		WriteFileTable: verifyConfiguration.writeFileTable,
	}

	var stats repofile.Stats
	if err := maintenance.Verify(repo, opts, &stats, logger.Sublogger("maintenance")); err != nil {
		return errors.Wrap(err, "verify failed")
	}

	printSummary(stats.Summary())
	if stats.Errors > 0 {
		return errors.Errorf("verify found %d errors", stats.Errors)
	}
	return nil
}

var verifyCommand = &cobra.Command{
	Use:   "verify <repository>",
	Short: "Check the integrity and consistency of a repository",
	Run:   cmd.Mainify(verifyMain),
}

var verifyConfiguration struct {
	help           bool
	verbose        bool
	verifyHash     bool
	writeFileTable bool
}

func init() {
	flags := verifyCommand.Flags()
	flags.SortFlags = false

	flags.BoolVarP(&verifyConfiguration.help, "help", "h", false, "Show help information")
	flags.BoolVar(&verifyConfiguration.verbose, "verbose", false, "Enable debug logging")
	flags.BoolVar(&verifyConfiguration.verifyHash, "verify_hash", false, "Rehash each file and compare against its stored hash")
	flags.BoolVar(&verifyConfiguration.writeFileTable, "write_file_table", false, "Emit a CSV file table to the working directory")
}
