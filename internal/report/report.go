// Package report produces the end-of-run artifacts for library staff:
// the ingest-list CSV flagging records that need manual review, and
// the per-package postback files consumed by the student records
// system.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cu-library/etddepositor/internal/etd"
)

// ingestListColumns is the fixed header of the review CSV.
var ingestListColumns = []string{
	"Author Name",
	"Package File Name",
	"Date Processed",
	"Link to Thesis",
	"PDF File",
	"Supplemental File",
	"Flagged Content",
}

// WriteIngestList writes the review CSV for the run's completed
// packages.
func WriteIngestList(path string, packages []etd.PackageData, now time.Time) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create ingest list: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(ingestListColumns); err != nil {
		return err
	}

	processed := now.Format("2006-01-02 15:04:05")
	for _, data := range packages {
		var pdfFiles, zipFiles []string
		for _, name := range data.PackageFiles {
			switch {
			case strings.HasSuffix(name, ".pdf"):
				pdfFiles = append(pdfFiles, name)
			case strings.HasSuffix(name, ".zip"):
				zipFiles = append(zipFiles, name)
			}
		}
		if err := writer.Write([]string{
			data.Creator,
			data.Name,
			processed,
			data.URL,
			strings.Join(pdfFiles, ", "),
			strings.Join(zipFiles, ", "),
			FlaggedContent(data),
		}); err != nil {
			return err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Close()
}

// FlaggedContent lists the conditions in a completed record that need
// a cataloguer's eye.
func FlaggedContent(data etd.PackageData) string {
	var contents strings.Builder
	if !data.Degree.Known {
		contents.WriteString(" Degree is flagged.")
	}
	if !data.Abbreviation.Known {
		contents.WriteString(" Degree abbreviation is flagged.")
	}
	if !data.Discipline.Known {
		contents.WriteString(" Degree discipline is flagged.")
	}
	if strings.Contains(data.Abstract, "$") {
		contents.WriteString(" Abstract contains '$', LaTeX codes?")
	}
	if strings.Contains(data.Abstract, `\`) {
		contents.WriteString(` Abstract contains '\', LaTeX codes?`)
	}
	if strings.ContainsRune(data.Title, '�') {
		contents.WriteString(" Title contains replacement character.")
	}
	if strings.ContainsRune(data.Creator, '�') {
		contents.WriteString(" Creator contains replacement character.")
	}
	if strings.ContainsRune(data.Abstract, '�') {
		contents.WriteString(" Abstract contains replacement character.")
	}
	if strings.ContainsRune(strings.Join(data.Contributors, " "), '�') {
		contents.WriteString(" Contributors contains replacement character.")
	}
	return contents.String()
}

// WritePostback records a completed deposit for the student records
// system: package name, a minute-resolution timestamp, a success flag
// and the public URL.
func WritePostback(dir string, data etd.PackageData, now time.Time) error {
	content := fmt.Sprintf("%s||%s||1||%s",
		data.Name,
		now.Truncate(time.Minute).Format("2006-01-02T15:04:05"),
		data.URL,
	)
	path := filepath.Join(dir, data.Name+"_postback.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write postback for %s: %w", data.Name, err)
	}
	return nil
}

// Failure is one (package, reason) pair accumulated during a run.
type Failure struct {
	Name   string
	Reason string
}
