package main

import (
	"fmt"

	"github.com/alvmarrod/link-weaver/internal/dumps"
	"github.com/alvmarrod/link-weaver/internal/record"
	"github.com/alvmarrod/link-weaver/internal/version"
	"github.com/spf13/cobra"
)

func newDumpsCmd(a *app) *cobra.Command {
	var (
		baseURL   string
		showDates bool
	)
	cmd := &cobra.Command{
		Use:   "dumps <wiki> [date]",
		Short: "List the table dumps of a wiki",
		Long: `List the page, redirect, and pagelinks table dumps of a wiki as
"table <TAB> url" lines. The date is YYYYMMDD and defaults to the latest
dump. With --dates, list the available dump dates instead, newest first.`,
		Args: withUsage(cobra.RangeArgs(1, 2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			lister := dumps.NewLister(pick(cmd, "base-url", baseURL, a.cfg.DumpsBaseURL), a.cfg.RequestTimeout(), a.log)
			out := record.NewWriter(cmd.OutOrStdout())

			if showDates {
				dates, err := lister.Dates(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				for _, date := range dates {
					if err := out.WriteFields(date); err != nil {
						return err
					}
				}
				return out.Flush()
			}

			date := ""
			if len(args) == 2 {
				date = args[1]
			}
			dump, err := lister.List(cmd.Context(), args[0], date)
			if err != nil {
				return err
			}
			for _, table := range dumps.Tables {
				if err := out.WriteFields(string(table), dump.URL(table)); err != nil {
					return err
				}
			}
			return out.Flush()
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "dumps mirror base URL (default from config)")
	cmd.Flags().BoolVar(&showDates, "dates", false, "list available dump dates")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  exactArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "linkweaver %s\n", version.String())
		},
	}
}
