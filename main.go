package main

import (
	"fmt"
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"
)

var log = logging.Logger("peerlink")

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "peerlink",
		Short:         "Peer presence and peer-link server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(), newUserCommand())
	return root
}

func setLogLevel(level string, debug bool) error {
	if debug {
		level = "debug"
	}
	lvl, err := logging.LevelFromString(level)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}
	logging.SetAllLoggers(lvl)
	return nil
}
