package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/cu-library/etddepositor/internal/config"
	"github.com/cu-library/etddepositor/internal/queue"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the deposit queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				summary, err := store.Summary(cmd.Context())
				if err != nil {
					return err
				}
				items, err := store.AllItems(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				fmt.Fprintf(out, "Queue: %d total, %d ready, %d processing, %s, %s, %d skipped\n",
					summary.Total, summary.Ready, summary.Processing,
					colorCount(summary.Completed, "completed", ansiGreen, colorize),
					colorCount(summary.Failed, "failed", ansiRed, colorize),
					summary.Skipped)

				if len(items) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}

				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						strconv.FormatInt(item.ID, 10),
						item.Name,
						statusCell(item.Status, colorize),
						doiSequenceCell(item.DOISequence),
						item.UpdatedAt.Format("2006-01-02 15:04"),
						item.ErrorMessage,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Package", "Status", "DOI Seq", "Updated", "Error"},
					rows,
					[]text.Align{text.AlignRight, text.AlignLeft, text.AlignLeft, text.AlignRight, text.AlignLeft, text.AlignLeft},
				))
				return nil
			})
		},
	}
}

func statusCell(status queue.Status, colorize bool) string {
	if !colorize {
		return string(status)
	}
	switch status {
	case queue.StatusCompleted:
		return ansiGreen + string(status) + ansiReset
	case queue.StatusFailed:
		return ansiRed + string(status) + ansiReset
	case queue.StatusSkipped:
		return ansiYellow + string(status) + ansiReset
	default:
		return string(status)
	}
}

func doiSequenceCell(sequence int64) string {
	if sequence == 0 {
		return ""
	}
	return strconv.FormatInt(sequence, 10)
}

func colorCount(count int, label, color string, colorize bool) string {
	cell := fmt.Sprintf("%d %s", count, label)
	if colorize && count > 0 {
		return color + cell + ansiReset
	}
	return cell
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
