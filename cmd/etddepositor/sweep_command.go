package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/cu-library/etddepositor/internal/config"
	"github.com/cu-library/etddepositor/internal/files"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Move new packages from the inbox to the ready directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			lock := flock.New(filepath.Join(cfg.LogDir(), "etddepositor.lock"))
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !locked {
				return fmt.Errorf("another etddepositor instance is already running")
			}
			defer lock.Unlock()

			entries, err := os.ReadDir(cfg.Paths.InboxDir)
			if err != nil {
				return fmt.Errorf("read inbox: %w", err)
			}

			out := cmd.OutOrStdout()
			moved := 0
			for _, entry := range entries {
				name := entry.Name()
				if strings.HasPrefix(name, ".") {
					continue
				}
				source := filepath.Join(cfg.Paths.InboxDir, name)
				stem := name
				if !entry.IsDir() {
					stem = strings.TrimSuffix(name, filepath.Ext(name))
				}
				if existing := packageLocation(cfg, stem); existing != "" {
					fmt.Fprintf(out, "skipped %s: already present in %s\n", name, existing)
					continue
				}
				switch {
				case entry.IsDir():
					dest := filepath.Join(cfg.ReadyDir(), name)
					if err := os.Rename(source, dest); err != nil {
						return fmt.Errorf("move %s: %w", name, err)
					}
					fmt.Fprintf(out, "moved %s\n", name)
					moved++
				case strings.EqualFold(filepath.Ext(name), ".zip"):
					dest := filepath.Join(cfg.ReadyDir(), stem)
					if err := files.Unzip(source, dest); err != nil {
						return fmt.Errorf("extract %s: %w", name, err)
					}
					if err := flattenSingleDir(dest); err != nil {
						return fmt.Errorf("extract %s: %w", name, err)
					}
					if err := os.Remove(source); err != nil {
						return fmt.Errorf("remove %s: %w", name, err)
					}
					fmt.Fprintf(out, "extracted %s\n", name)
					moved++
				}
			}

			if moved == 0 {
				fmt.Fprintln(out, "Inbox is empty")
			}
			return nil
		},
	}
}

// packageLocation reports which processing subdirectory already holds
// a package with this name, or "" when it is new.
func packageLocation(cfg *config.Config, name string) string {
	for _, dir := range []string{cfg.ReadyDir(), cfg.DoneDir(), cfg.NotCompleteDir()} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return filepath.Base(dir)
		}
	}
	return ""
}

// flattenSingleDir lifts the contents of an archive that wrapped the
// bag in one top-level directory.
func flattenSingleDir(dest string) error {
	entries, err := os.ReadDir(dest)
	if err != nil {
		return err
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return nil
	}
	inner := filepath.Join(dest, entries[0].Name())
	innerEntries, err := os.ReadDir(inner)
	if err != nil {
		return err
	}
	for _, entry := range innerEntries {
		if err := os.Rename(filepath.Join(inner, entry.Name()), filepath.Join(dest, entry.Name())); err != nil {
			return err
		}
	}
	return os.Remove(inner)
}
