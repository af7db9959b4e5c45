package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configFile string
	logLevel   string
	storeRoot  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "nimbus",
		Short:         "Nimbus - offline-capable data access core",
		Long:          "Read-through cache and pass-through writes in front of a PostgREST-style backend, usable offline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&opts.storeRoot, "store-root", "", "Directory holding cached entries")

	rootCmd.AddCommand(
		cacheCmd(opts),
		onlineCmd(opts),
		fetchCmd(opts),
		writeCmd(opts),
		configCmd(opts),
		daemonCmd(opts),
	)
	return rootCmd
}
