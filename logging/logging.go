package logging

import (
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

func init() {
	// Strip the standard logger's own timestamp/file prefix; our own
	// prefixing scheme (component name in brackets) takes its place.
	log.SetFlags(0)
	log.SetOutput(os.Stderr)

	// Disable color output when stderr isn't a terminal, e.g. when logs are
	// redirected to a file or piped.
	if !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		color.NoColor = true
	}
}
