package main

import (
	"errors"

	"github.com/alvmarrod/link-weaver/internal/config"
	"github.com/alvmarrod/link-weaver/internal/input"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// app carries the state shared by every subcommand
type app struct {
	configPath  string
	envFile     string
	verbose     bool
	metricsPath string

	cfg *config.Config
	log *logrus.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "linkweaver",
		Short: "Link Weaver - Wikipedia link graph pipeline",
		Long: `Link Weaver turns the page, redirect, and pagelinks tables of a Wikipedia
dump into a redirect-free adjacency graph.

Stages:
  prune-pages  drop redirect pages that have no redirect entry
  redirects    resolve every redirect to its canonical page
  links        rewrite raw links into canonical id edges
  targets      resolve the target column of key/target records
  group        sort and group edges by source or target
  combine      merge outgoing and incoming groups per page
  load         load pages, redirects, and combined links into SQLite
  dumps        list the table dumps of a wiki

Records are read from files (.gz is decompressed, "-" is stdin) and written
to stdout. Diagnostics go to stderr.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	pflags := root.PersistentFlags()
	pflags.StringVar(&a.configPath, "config", "", "path to a JSON or YAML config file")
	pflags.StringVar(&a.envFile, "env-file", ".env", "environment file with LINKWEAVER_* overrides")
	pflags.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	pflags.StringVar(&a.metricsPath, "metrics", "", "path of the JSON run summary (default from config)")

	root.AddCommand(
		newPruneCmd(a),
		newRedirectsCmd(a),
		newLinksCmd(a),
		newTargetsCmd(a),
		newGroupCmd(a),
		newCombineCmd(a),
		newLoadCmd(a),
		newDumpsCmd(a),
		newVersionCmd(),
	)

	// Flag errors print usage, runtime errors only the message
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		cmd.PrintErrln(cmd.UsageString())
		return err
	})

	return root
}

// setup loads configuration and configures logging before any stage runs
func (a *app) setup(cmd *cobra.Command) error {
	a.log = logrus.New()
	a.log.SetOutput(cmd.ErrOrStderr())
	a.log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if err := config.LoadEnvFile(a.envFile); err != nil {
		return err
	}

	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.log.SetLevel(cfg.Level())
	if a.verbose {
		a.log.SetLevel(logrus.DebugLevel)
	}
	if a.metricsPath == "" {
		a.metricsPath = cfg.MetricsPath
	}
	return nil
}

// inputOptions returns how stage inputs are opened
func (a *app) inputOptions(cmd *cobra.Command) input.Options {
	return input.Options{
		RequireGzip: a.cfg.RequireGzip,
		Stdin:       cmd.InOrStdin(),
	}
}

// checkInputs rejects unusable input paths before a stage produces output
func (a *app) checkInputs(cmd *cobra.Command, paths []string) error {
	opts := a.inputOptions(cmd)
	stdin := 0
	for _, path := range paths {
		if err := input.Check(path, opts); err != nil {
			return err
		}
		if path == "-" {
			stdin++
		}
	}
	if stdin > 1 {
		return errors.New("standard input can be used by one argument only")
	}
	return nil
}
