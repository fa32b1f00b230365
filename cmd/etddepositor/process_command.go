package main

import (
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/cu-library/etddepositor/internal/catalog"
	"github.com/cu-library/etddepositor/internal/config"
	"github.com/cu-library/etddepositor/internal/logging"
	"github.com/cu-library/etddepositor/internal/mappings"
	"github.com/cu-library/etddepositor/internal/queue"
	"github.com/cu-library/etddepositor/internal/workflow"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var doiStart int64
	var invalidOK bool

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run the deposit pipeline over the ready packages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				lock := flock.New(filepath.Join(cfg.LogDir(), "etddepositor.lock"))
				locked, err := lock.TryLock()
				if err != nil {
					return fmt.Errorf("acquire lock: %w", err)
				}
				if !locked {
					return fmt.Errorf("another etddepositor instance is already running")
				}
				defer lock.Unlock()

				logger, closeLogger, err := logging.NewFromConfig(cfg)
				if err != nil {
					return err
				}
				defer closeLogger()

				tables, err := mappings.Load(cfg.Paths.MappingsFile, logger)
				if err != nil {
					return err
				}

				resolver := catalog.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.Token, nil, logger)
				manager := workflow.NewManager(cfg, store, tables, resolver, logger)

				runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				result, err := manager.Run(runCtx, workflow.Options{
					DOIStart:  doiStart,
					InvalidOK: invalidOK,
				})
				if err != nil {
					return err
				}

				printRunResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&doiStart, "doi-start", 0, "DOI sequence number for the first package of the run")
	cmd.Flags().BoolVar(&invalidOK, "invalid-ok", false, "Process packages even when bag verification fails")
	return cmd
}

func printRunResult(out io.Writer, result *workflow.Result) {
	fmt.Fprintf(out, "Run %s: %d completed, %d failed, %d skipped\n",
		result.RunID, len(result.Completed), len(result.Failures), len(result.Skipped))

	if len(result.Completed) > 0 {
		rows := make([][]string, 0, len(result.Completed))
		for _, data := range result.Completed {
			rows = append(rows, []string{data.Name, data.Creator, data.DOI, data.URL})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"Package", "Creator", "DOI", "URL"},
			rows,
			[]text.Align{text.AlignLeft, text.AlignLeft, text.AlignLeft, text.AlignLeft},
		))
	}

	for _, failure := range result.Failures {
		fmt.Fprintf(out, "failed: %s: %s\n", failure.Name, failure.Reason)
	}
	for _, skipped := range result.Skipped {
		fmt.Fprintf(out, "skipped: %s: %s\n", skipped.Name, skipped.Reason)
	}

	if result.ManifestPath != "" {
		fmt.Fprintf(out, "Manifest: %s\n", result.ManifestPath)
	}
	if result.CrossrefPath != "" {
		fmt.Fprintf(out, "Crossref batch: %s\n", result.CrossrefPath)
	}
	if result.MARCArchivePath != "" {
		fmt.Fprintf(out, "MARC records: %s\n", result.MARCArchivePath)
	}
	if result.IngestListPath != "" {
		fmt.Fprintf(out, "Ingest list: %s\n", result.IngestListPath)
	}
}
