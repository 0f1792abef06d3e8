// FILE: lixenwraith/iniconf/cmd/iniconf/main.go
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "iniconf",
		Short:         "Resolve extension options from defaults, static directives and the environment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	fs := cmd.PersistentFlags()
	fs.StringVar(&opts.declPath, "decl", "options.toml", "option declarations file (toml, json or yaml)")
	fs.StringVar(&opts.staticPath, "static", "", "static configuration file; discovered when empty")
	fs.StringVar(&opts.prefix, "prefix", "", "directive name prefix for the alias mapper")
	fs.StringVar(&opts.sapi, "sapi", "", "front end name reported by the host, e.g. fpm-fcgi")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.BoolVar(&opts.passThrough, "pass-through", false, "do not create directives, resolve from the environment only")
	fs.BoolVar(&opts.threads, "threads", false, "give the worker a private directive table")

	cmd.AddCommand(
		newResolveCmd(opts),
		newNamesCmd(opts),
		newExportCmd(opts),
		newWatchCmd(opts),
	)
	return cmd
}
