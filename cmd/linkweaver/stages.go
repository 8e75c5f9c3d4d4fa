package main

import (
	"context"
	"strconv"

	"github.com/alvmarrod/link-weaver/internal/catalog"
	"github.com/alvmarrod/link-weaver/internal/links"
	"github.com/alvmarrod/link-weaver/internal/metrics"
	"github.com/alvmarrod/link-weaver/internal/record"
	"github.com/alvmarrod/link-weaver/internal/redirect"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// resolveFlags override the reference and hop settings of the config
type resolveFlags struct {
	maxHops       int
	redirectRef   string
	sourceRef     string
	targetRef     string
	resolveSource bool
}

// registerRedirect adds the redirect resolution flags
func (f *resolveFlags) registerRedirect(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.IntVar(&f.maxHops, "max-hops", redirect.DefaultMaxHops, "maximum redirects followed past the first edge")
	flags.StringVar(&f.redirectRef, "redirect-ref", "title", "redirect target column kind (id|title)")
}

// registerTarget adds the target column flag
func (f *resolveFlags) registerTarget(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.targetRef, "target-ref", "title", "target column kind (id|title)")
}

// registerSource adds the link source flags
func (f *resolveFlags) registerSource(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.sourceRef, "source-ref", "id", "link source column kind (id|title)")
	flags.BoolVar(&f.resolveSource, "resolve-source", true, "collapse redirecting link sources to their canonical page")
}

// pick returns the flag value when it was set, otherwise the config value
func pick[T any](cmd *cobra.Command, name string, flag, cfg T) T {
	if cmd.Flags().Changed(name) {
		return flag
	}
	return cfg
}

func parseRef(name, value string) (record.RefKind, error) {
	kind, err := record.ParseRefKind(value)
	if err != nil {
		return 0, errors.Wrapf(err, "--%s", name)
	}
	return kind, nil
}

func (a *app) redirectOptions(cmd *cobra.Command, f *resolveFlags, tracker *metrics.Tracker) (redirect.Options, error) {
	maxHops := pick(cmd, "max-hops", f.maxHops, a.cfg.MaxRedirectHops)
	if maxHops < 1 {
		return redirect.Options{}, errors.New("--max-hops must be >= 1")
	}
	kind, err := parseRef("redirect-ref", pick(cmd, "redirect-ref", f.redirectRef, a.cfg.RedirectRef))
	if err != nil {
		return redirect.Options{}, err
	}
	return redirect.Options{
		TargetRef: kind,
		MaxHops:   maxHops,
		Log:       a.log,
		Observer:  tracker,
	}, nil
}

func (a *app) linkOptions(cmd *cobra.Command, f *resolveFlags, tracker *metrics.Tracker) (links.Options, error) {
	sourceKind, err := parseRef("source-ref", pick(cmd, "source-ref", f.sourceRef, a.cfg.LinkSourceRef))
	if err != nil {
		return links.Options{}, err
	}
	targetKind, err := parseRef("target-ref", pick(cmd, "target-ref", f.targetRef, a.cfg.LinkTargetRef))
	if err != nil {
		return links.Options{}, err
	}
	return links.Options{
		SourceRef:     sourceKind,
		TargetRef:     targetKind,
		ResolveSource: pick(cmd, "resolve-source", f.resolveSource, a.cfg.ShouldResolveSource()),
		Log:           a.log,
		Observer:      tracker,
	}, nil
}

// buildCatalog reads the pages dataset
func (a *app) buildCatalog(cmd *cobra.Command, path string, tracker *metrics.Tracker) (*catalog.Catalog, error) {
	src, closer, err := a.open(cmd, path)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	return catalog.Build(src, catalog.Options{Log: a.log, Observer: tracker})
}

// buildResolver reads the pages and redirects datasets
func (a *app) buildResolver(cmd *cobra.Command, pagesPath, redirectsPath string, f *resolveFlags, tracker *metrics.Tracker) (*catalog.Catalog, *redirect.Resolver, error) {
	opts, err := a.redirectOptions(cmd, f, tracker)
	if err != nil {
		return nil, nil, err
	}

	cat, err := a.buildCatalog(cmd, pagesPath, tracker)
	if err != nil {
		return nil, nil, err
	}

	src, closer, err := a.open(cmd, redirectsPath)
	if err != nil {
		return nil, nil, err
	}
	defer closer.Close()

	res, err := redirect.Build(cat, src, opts)
	if err != nil {
		return nil, nil, err
	}
	return cat, res, nil
}

func newPruneCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "prune-pages <pages> <redirects>",
		Short: "Drop redirect pages that have no redirect entry",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.stream(cmd, catalog.PruneStage, args, output, func(ctx context.Context, tracker *metrics.Tracker, out *record.Writer) error {
				redirects, closer, err := a.open(cmd, args[1])
				if err != nil {
					return err
				}
				opts := catalog.Options{Log: a.log, Observer: tracker}
				sources, err := catalog.RedirectSources(redirects, opts)
				closer.Close()
				if err != nil {
					return err
				}

				pages, closer, err := a.open(cmd, args[0])
				if err != nil {
					return err
				}
				defer closer.Close()

				pruner := catalog.NewPruner(pages, sources, opts)
				for pruner.Next() {
					if err := ctx.Err(); err != nil {
						return err
					}
					if err := out.WritePage(pruner.Page()); err != nil {
						return err
					}
				}
				return pruner.Err()
			})
		},
	}
	addOutputFlag(cmd, &output)
	return cmd
}

func newRedirectsCmd(a *app) *cobra.Command {
	var (
		output string
		flags  resolveFlags
	)
	cmd := &cobra.Command{
		Use:   "redirects <pages> <redirects>",
		Short: "Resolve every redirect to its canonical page",
		Long: `Resolve every redirect to its canonical page and write one
"source_id <TAB> canonical_id" line per resolved redirect, in ascending
source id order. Cycles, chains over --max-hops, and chains ending on a
redirect with no entry are left out.`,
		Args: exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.stream(cmd, redirect.Stage, args, output, func(ctx context.Context, tracker *metrics.Tracker, out *record.Writer) error {
				_, res, err := a.buildResolver(cmd, args[0], args[1], &flags, tracker)
				if err != nil {
					return err
				}
				return res.Each(func(source, canonical int64) error {
					if err := ctx.Err(); err != nil {
						return err
					}
					tracker.Observe(redirect.Stage, metrics.Emitted)
					return out.WriteEdge(record.Edge{SourceID: source, TargetID: canonical})
				})
			})
		},
	}
	flags.registerRedirect(cmd)
	addOutputFlag(cmd, &output)
	return cmd
}

func newLinksCmd(a *app) *cobra.Command {
	var (
		output string
		flags  resolveFlags
	)
	cmd := &cobra.Command{
		Use:   "links <pages> <redirects> <links>",
		Short: "Rewrite raw links into canonical id edges",
		Args:  exactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.stream(cmd, links.Stage, args, output, func(ctx context.Context, tracker *metrics.Tracker, out *record.Writer) error {
				linkOpts, err := a.linkOptions(cmd, &flags, tracker)
				if err != nil {
					return err
				}
				cat, res, err := a.buildResolver(cmd, args[0], args[1], &flags, tracker)
				if err != nil {
					return err
				}

				src, closer, err := a.open(cmd, args[2])
				if err != nil {
					return err
				}
				defer closer.Close()

				n := links.NewNormalizer(src, cat, res, linkOpts)
				for n.Next() {
					if err := ctx.Err(); err != nil {
						return err
					}
					if err := out.WriteEdge(n.Edge()); err != nil {
						return err
					}
				}
				if err := n.Err(); err != nil {
					return err
				}

				stats := n.Stats()
				a.log.Infof("Links normalized: %d read, %d emitted, %d malformed, drops %v",
					stats.Lines, stats.Emitted, stats.Malformed, stats.Dropped)
				return nil
			})
		},
	}
	flags.registerRedirect(cmd)
	flags.registerSource(cmd)
	flags.registerTarget(cmd)
	addOutputFlag(cmd, &output)
	return cmd
}

func newTargetsCmd(a *app) *cobra.Command {
	var (
		output string
		flags  resolveFlags
	)
	cmd := &cobra.Command{
		Use:   "targets <pages> <redirects> <targets>",
		Short: "Resolve the target column of key/target records",
		Long: `Rewrite "key <TAB> target_ref" records into "key <TAB> target_id", where
the target is resolved through redirects. The key column is passed through
unchanged.`,
		Args: exactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.stream(cmd, links.TargetStage, args, output, func(ctx context.Context, tracker *metrics.Tracker, out *record.Writer) error {
				linkOpts, err := a.linkOptions(cmd, &flags, tracker)
				if err != nil {
					return err
				}
				cat, res, err := a.buildResolver(cmd, args[0], args[1], &flags, tracker)
				if err != nil {
					return err
				}

				src, closer, err := a.open(cmd, args[2])
				if err != nil {
					return err
				}
				defer closer.Close()

				t := links.NewTargetNormalizer(src, cat, res, linkOpts)
				for t.Next() {
					if err := ctx.Err(); err != nil {
						return err
					}
					key, target := t.Target()
					if err := out.WriteFields(key, strconv.FormatInt(target, 10)); err != nil {
						return err
					}
				}
				return t.Err()
			})
		},
	}
	flags.registerRedirect(cmd)
	flags.registerTarget(cmd)
	addOutputFlag(cmd, &output)
	return cmd
}
