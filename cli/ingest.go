package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"contractlens/llm"
	"contractlens/storage"
	"contractlens/tui"
	"contractlens/worker"
)

var (
	ingestWorkers  int
	ingestProgress bool

	watchDebounce time.Duration
	watchExisting bool
	watchWorkers  int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <glob>...",
	Short: "Ingest and process documents",
	Long: `Copy each matching file into the store and run parsing, indexing and
field extraction on it. Arguments are doublestar globs ("inbox/**/*.pdf") or
directories, which are walked recursively.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			paths, err := expandArgs(a.service, args)
			if err != nil {
				return err
			}

			var docs []*storage.Document
			for _, p := range paths {
				doc, err := a.service.Ingest(ctx, p)
				if errors.Is(err, llm.ErrUnsupportedFile) {
					a.logger.Warn("ingest.skip", "path", p, "err", err)
					continue
				}
				if err != nil {
					return err
				}
				docs = append(docs, doc)
			}
			if len(docs) == 0 {
				return fmt.Errorf("no supported files in %v", args)
			}

			workers := ingestWorkers
			if workers <= 0 {
				workers = a.cfg.Workers
			}
			failed, err := processAll(ctx, cmd, a, docs, workers, ingestProgress)
			if err != nil {
				return err
			}
			if !ingestProgress {
				if err := printProcessed(ctx, cmd, a, docs); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed", failed, len(docs))
			}
			return nil
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Ingest files dropped into a directory until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			workers := watchWorkers
			if workers <= 0 {
				workers = a.cfg.Workers
			}
			// documents in flight finish after the watcher stops
			d := worker.NewDispatcher(context.WithoutCancel(ctx), workers, a.logger)

			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s, press ctrl+c to stop\n", args[0])
			werr := a.service.Watch(ctx, args[0], d, worker.WatchOptions{
				Debounce:    watchDebounce,
				InitialScan: watchExisting,
			})
			errs := d.Wait()
			if werr != nil {
				return werr
			}
			if len(errs) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%d documents failed while watching\n", len(errs))
			}
			return nil
		})
	},
}

func init() {
	ingestCmd.Flags().IntVarP(&ingestWorkers, "workers", "w", 0, "documents processed concurrently (default from config)")
	ingestCmd.Flags().BoolVar(&ingestProgress, "progress", false, "show an interactive progress view")

	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", worker.DefaultDebounce, "quiet period before a new file is ingested")
	watchCmd.Flags().BoolVar(&watchExisting, "existing", false, "also ingest files already in the directory")
	watchCmd.Flags().IntVarP(&watchWorkers, "workers", "w", 0, "documents processed concurrently (default from config)")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(watchCmd)
}

// expandArgs resolves globs and directories into a deduplicated file list
// in argument order
func expandArgs(svc *worker.Service, args []string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	for _, arg := range args {
		if info, err := os.Stat(arg); err == nil && info.IsDir() {
			entries, err := svc.ExpandEntries(arg)
			if err != nil {
				return nil, err
			}
			for _, p := range entries {
				add(p)
			}
			continue
		}

		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", arg)
		}
		for _, p := range matches {
			add(p)
		}
	}
	return paths, nil
}

// processAll runs every document through the dispatcher and returns the
// number that failed
func processAll(ctx context.Context, cmd *cobra.Command, a *app, docs []*storage.Document, workers int, progress bool) (int, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	d := worker.NewDispatcher(runCtx, workers, a.logger)
	submit := func() {
		for _, doc := range docs {
			id := doc.ID
			if err := d.Submit(id, func(ctx context.Context) error {
				_, err := a.service.ProcessDocument(ctx, id)
				return err
			}); err != nil {
				return
			}
		}
	}

	if !progress {
		submit()
		return len(d.Wait()), nil
	}

	subCtx, unsubscribe := context.WithCancel(runCtx)
	events := a.broker.Subscribe(subCtx)
	done := make(chan int, 1)
	go func() {
		submit()
		n := len(d.Wait())
		// closing the subscription ends the view if a terminal event was dropped
		unsubscribe()
		done <- n
	}()

	p := tea.NewProgram(tui.NewProgressModel(events, len(docs)),
		tea.WithContext(runCtx),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	final, err := p.Run()
	if m, ok := final.(tui.ProgressModel); ok && m.Aborted() {
		cancel()
	}
	failed := <-done
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return failed, fmt.Errorf("failed to run progress view: %w", err)
	}
	return failed, nil
}

func printProcessed(ctx context.Context, cmd *cobra.Command, a *app, docs []*storage.Document) error {
	list := make([]storage.Document, 0, len(docs))
	for _, doc := range docs {
		current, err := a.service.Document(ctx, doc.ID)
		if err != nil {
			return err
		}
		list = append(list, *current)
	}
	printDocuments(cmd, list)
	return nil
}
