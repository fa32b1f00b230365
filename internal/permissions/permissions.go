// Package permissions validates the line-oriented compliance document
// included with each package: embargo expiry and the signed-agreement
// lines. It fails closed, any line it does not recognize aborts the
// package.
package permissions

import (
	"strconv"
	"strings"
	"time"

	"github.com/cu-library/etddepositor/internal/etd"
	"github.com/cu-library/etddepositor/internal/mappings"
)

// Kind classifies one line of the compliance document.
type Kind int

const (
	// Informational lines carry student and thesis identifiers and are
	// skipped.
	Informational Kind = iota
	// Embargo lines carry an expiry date which must have passed.
	Embargo
	// Agreement lines record whether a recognized agreement was signed.
	Agreement
	// Unrecognized covers everything else and always fails validation.
	Unrecognized
)

// Line is the classified form of one document line.
type Line struct {
	Kind Kind
	Raw  string

	// DateToken is the raw expiry token for Embargo lines.
	DateToken string

	// Name, Details and Signed are set for Agreement lines.
	Name    string
	Details mappings.Agreement
	Signed  bool
}

const fieldDelimiter = "||"

var monthNumbers = map[string]time.Month{
	"JAN": time.January,
	"FEB": time.February,
	"MAR": time.March,
	"APR": time.April,
	"MAY": time.May,
	"JUN": time.June,
	"JUL": time.July,
	"AUG": time.August,
	"SEP": time.September,
	"OCT": time.October,
	"NOV": time.November,
	"DEC": time.December,
}

// Classify maps a document line onto its Line variant using the
// agreement table. It never fails, malformed content is surfaced by
// Validate when the variant is consumed.
func Classify(raw string, tables *mappings.Tables) Line {
	switch {
	case strings.HasPrefix(raw, "Student ID"), strings.HasPrefix(raw, "Thesis ID"):
		return Line{Kind: Informational, Raw: raw}
	case strings.HasPrefix(raw, "Embargo Expiry"):
		line := Line{Kind: Embargo, Raw: raw}
		if fields := strings.Split(raw, " "); len(fields) >= 3 {
			line.DateToken = fields[2]
		}
		return line
	}
	if name, details, ok := tables.AgreementFor(raw); ok {
		line := Line{Kind: Agreement, Raw: raw, Name: name, Details: details}
		if fields := strings.Split(raw, fieldDelimiter); len(fields) >= 3 {
			line.Signed = fields[2] == "Y"
		}
		return line
	}
	return Line{Kind: Unrecognized, Raw: raw}
}

// Validate scans the compliance document and returns the identifiers of
// the signed agreements, in document order. The today argument anchors
// the embargo comparison so callers and tests share one clock.
func Validate(content string, tables *mappings.Tables, today time.Time) ([]string, error) {
	var signed []string
	for _, raw := range strings.Split(strings.TrimSpace(content), "\n") {
		line := Classify(strings.TrimSpace(raw), tables)
		switch line.Kind {
		case Informational:
			continue
		case Embargo:
			expiry, err := parseEmbargoDate(line.DateToken)
			if err != nil {
				return nil, etd.Metadataf("the embargo date %q could not be processed", line.DateToken)
			}
			if todayDate(today).Before(expiry) {
				return nil, etd.Metadataf("the embargo date of %s has not passed", expiry.Format("2006-01-02"))
			}
		case Agreement:
			if !line.Signed {
				if line.Details.Required {
					return nil, etd.Metadataf("%s is required but not signed", line.Name)
				}
				continue
			}
			signed = append(signed, line.Details.Identifier)
		default:
			return nil, etd.Metadataf("%s was not expected in the permissions document", line.Raw)
		}
	}
	return signed, nil
}

// parseEmbargoDate parses the DD-MMM-YY expiry token. Two-digit years
// are placed in the 2000s.
func parseEmbargoDate(token string) (time.Time, error) {
	parts := strings.Split(token, "-")
	if len(parts) != 3 {
		return time.Time{}, etd.Metadataf("embargo date %q is not in DD-MMM-YY form", token)
	}
	day, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, err
	}
	month, ok := monthNumbers[strings.ToUpper(parts[1])]
	if !ok {
		return time.Time{}, etd.Metadataf("unknown month %q", parts[1])
	}
	year, err := strconv.Atoi(parts[2])
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(2000+year, month, day, 0, 0, 0, 0, time.UTC), nil
}

func todayDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
