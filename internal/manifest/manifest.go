// Package manifest writes the import manifest CSV, one row per
// package accepted for deposit.
package manifest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/cu-library/etddepositor/internal/etd"
)

// multiValueDelimiter separates repeated values inside one CSV cell.
// A plain comma would collide with natural text in titles and names.
const multiValueDelimiter = "|||"

// subjectDelimiter separates flattened subject headings.
const subjectDelimiter = "|"

const (
	modelValue        = "Etd"
	resourceTypeValue = "Thesis"
)

// Columns is the fixed manifest header.
var Columns = []string{
	"source_identifier",
	"model",
	"title",
	"creator",
	"identifier",
	"subject",
	"abstract",
	"publisher",
	"contributor",
	"date_created",
	"language",
	"agreement",
	"degree",
	"degree_discipline",
	"degree_level",
	"resource_type",
	"parents",
	"file",
	"rights_notes",
}

// Writer appends package rows to a manifest document.
type Writer struct {
	csv          *csv.Writer
	collectionID string
}

// NewWriter wraps w and writes the manifest header.
func NewWriter(w io.Writer, collectionID string) (*Writer, error) {
	writer := &Writer{csv: csv.NewWriter(w), collectionID: collectionID}
	if err := writer.csv.Write(Columns); err != nil {
		return nil, fmt.Errorf("write manifest header: %w", err)
	}
	return writer, nil
}

// Add writes one package row. The file list must already be staged,
// primary document first.
func (w *Writer) Add(data etd.PackageData) error {
	row := []string{
		data.SourceIdentifier,
		modelValue,
		data.Title,
		data.Creator,
		"DOI: " + etd.DOIURLPrefix + data.DOI,
		SubjectString(data.Subjects),
		data.Abstract,
		data.Publisher,
		strings.Join(data.Contributors, multiValueDelimiter),
		data.Year,
		data.Language,
		strings.Join(data.Agreements, multiValueDelimiter),
		fmt.Sprintf("%s (%s)", data.Degree.OrFlag(), data.Abbreviation.OrFlag()),
		data.Discipline.OrFlag(),
		data.Level,
		resourceTypeValue,
		w.collectionID,
		strings.Join(data.PackageFiles, multiValueDelimiter),
		data.RightsNotes,
	}
	if err := w.csv.Write(row); err != nil {
		return fmt.Errorf("write manifest row for %s: %w", data.Name, err)
	}
	return nil
}

// Flush writes any buffered rows to the underlying writer.
func (w *Writer) Flush() error {
	w.csv.Flush()
	return w.csv.Error()
}

// SubjectString flattens classification tuples into the manifest
// subject cell: the primary heading with its trailing period stripped,
// plus " -- " and the secondary heading for 4-element tuples.
func SubjectString(subjects [][]string) string {
	var headings []string
	for _, tuple := range subjects {
		if len(tuple) < 2 {
			continue
		}
		heading := strings.TrimSuffix(tuple[1], ".")
		if len(tuple) == 4 {
			heading += " -- " + strings.TrimSuffix(tuple[3], ".")
		}
		headings = append(headings, heading)
	}
	return strings.Join(headings, subjectDelimiter)
}
