package main

import (
	"context"

	"github.com/alvmarrod/link-weaver/internal/adjacency"
	"github.com/alvmarrod/link-weaver/internal/catalog"
	"github.com/alvmarrod/link-weaver/internal/metrics"
	"github.com/alvmarrod/link-weaver/internal/record"
	"github.com/alvmarrod/link-weaver/internal/storage"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const (
	groupStage   = "group"
	combineStage = "combine"
	loadStage    = "load"
)

func newGroupCmd(a *app) *cobra.Command {
	var (
		output    string
		by        string
		chunkSize int
		tempDir   string
	)
	cmd := &cobra.Command{
		Use:   "group --by source|target <edges>",
		Short: "Sort and group edges by source or target",
		Long: `Sort "source_id <TAB> target_id" edges by the chosen column and write one
"page_id <TAB> id|id|..." line per page. Grouping by source yields outgoing
links, grouping by target yields incoming links. Inputs larger than
--chunk-size edges are sorted through temporary files.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := adjacency.ParseKey(by)
			if err != nil {
				cmd.PrintErrln(cmd.UsageString())
				return err
			}

			return a.stream(cmd, groupStage, args, output, func(ctx context.Context, tracker *metrics.Tracker, out *record.Writer) error {
				src, closer, err := a.open(cmd, args[0])
				if err != nil {
					return err
				}
				defer closer.Close()

				sorted := adjacency.SortEdges(ctx, adjacency.NewLineEdgeStream(src, groupStage, a.log, tracker), key, adjacency.SortConfig{
					ChunkSize:  pick(cmd, "chunk-size", chunkSize, a.cfg.SortChunkSize),
					NumWorkers: a.cfg.SortWorkers,
					TempDir:    pick(cmd, "temp-dir", tempDir, a.cfg.TempDir),
				})
				defer sorted.Close()

				groups := adjacency.NewGrouper(sorted, key)
				for groups.Next() {
					if err := out.WriteGroup(groups.Group()); err != nil {
						return err
					}
					tracker.Observe(groupStage, metrics.Emitted)
				}
				return groups.Err()
			})
		},
	}
	cmd.Flags().StringVar(&by, "by", "", "grouping column (source|target), required")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "edges sorted in memory per chunk (default from config)")
	cmd.Flags().StringVar(&tempDir, "temp-dir", "", "directory for sort chunks (default from config)")
	addOutputFlag(cmd, &output)
	return cmd
}

func newCombineCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "combine <outgoing> <incoming>",
		Short: "Merge outgoing and incoming groups per page",
		Long: `Merge-join two "page_id <TAB> id|id|..." streams sorted by page id into
"page_id <TAB> out_count <TAB> in_count <TAB> out <TAB> in" records.
Pages present in only one input get an empty list on the other side.`,
		Args: exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.stream(cmd, combineStage, args, output, func(ctx context.Context, tracker *metrics.Tracker, out *record.Writer) error {
				outgoing, closeOut, err := a.open(cmd, args[0])
				if err != nil {
					return err
				}
				defer closeOut.Close()

				incoming, closeIn, err := a.open(cmd, args[1])
				if err != nil {
					return err
				}
				defer closeIn.Close()

				m := adjacency.NewMerger(
					adjacency.NewLineStream(outgoing, "outgoing", a.log, tracker),
					adjacency.NewLineStream(incoming, "incoming", a.log, tracker),
				)
				for m.Next() {
					if err := ctx.Err(); err != nil {
						return err
					}
					if err := out.WriteAdjacency(m.Adjacency()); err != nil {
						return err
					}
					tracker.Observe(combineStage, metrics.Emitted)
				}
				return m.Err()
			})
		},
	}
	addOutputFlag(cmd, &output)
	return cmd
}

func newLoadCmd(a *app) *cobra.Command {
	var (
		dbPath    string
		batchSize int
	)
	cmd := &cobra.Command{
		Use:   "load <pages> <redirects> <combined>",
		Short: "Load pages, redirects, and combined links into SQLite",
		Args:  exactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.checkInputs(cmd, args); err != nil {
				return err
			}

			return a.run(cmd, loadStage, func(ctx context.Context, tracker *metrics.Tracker) error {
				path := pick(cmd, "db", dbPath, a.cfg.DBPath)
				store, err := storage.NewStorage(path)
				if err != nil {
					return err
				}
				defer store.Close()
				if batchSize > 0 {
					store.SetBatchSize(batchSize)
				}

				a.log.Infof("Database initialized: %s", path)

				if err := a.loadFile(cmd, args[0], "pages", tracker, func(src record.LineSource) (int, error) {
					return store.InsertPages(catalog.NewPageReader(src, a.log))
				}); err != nil {
					return err
				}
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := a.loadFile(cmd, args[1], "redirects", tracker, func(src record.LineSource) (int, error) {
					return store.InsertRedirects(adjacency.NewLineEdgeStream(src, loadStage, a.log, nil))
				}); err != nil {
					return err
				}
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := a.loadFile(cmd, args[2], "links", tracker, func(src record.LineSource) (int, error) {
					return store.InsertAdjacency(adjacency.NewLineAdjacencyStream(src, a.log))
				}); err != nil {
					return err
				}

				pages, redirects, linked, err := store.Counts()
				if err != nil {
					return err
				}
				a.log.Infof("Database holds %d pages, %d redirects, %d linked pages", pages, redirects, linked)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (default from config)")
	cmd.Flags().IntVar(&batchSize, "batch-size", storage.DefaultBatchSize, "rows per insert transaction")
	return cmd
}

// loadFile opens one input and hands it to an insert function
func (a *app) loadFile(cmd *cobra.Command, path, table string, tracker *metrics.Tracker, insert func(record.LineSource) (int, error)) error {
	src, closer, err := a.open(cmd, path)
	if err != nil {
		return err
	}
	defer closer.Close()

	n, err := insert(src)
	if err != nil {
		return errors.Wrapf(err, "load %s", table)
	}
	tracker.Add(loadStage+"_"+table, metrics.Emitted, int64(n))
	a.log.Infof("Loaded %d rows into %s", n, table)
	return nil
}
