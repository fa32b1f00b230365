// Package metadata parses the descriptive XML shipped with each
// package and normalizes it into an etd.PackageData record. Every
// field rule is independent, the first failing rule aborts the
// package with a metadata error.
package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/cu-library/etddepositor/internal/etd"
	"github.com/cu-library/etddepositor/internal/mappings"
)

// Extractor turns descriptive XML documents into package records.
type Extractor struct {
	Tables      *mappings.Tables
	Institution string
	DOIPrefix   string
}

// thesis mirrors the ETD-MS 1.1 document structure, dc elements plus
// the degree block.
type thesis struct {
	Title        []string      `xml:"http://purl.org/dc/elements/1.1/ title"`
	Creator      []string      `xml:"http://purl.org/dc/elements/1.1/ creator"`
	Subjects     []string      `xml:"http://purl.org/dc/elements/1.1/ subject"`
	Description  []string      `xml:"http://purl.org/dc/elements/1.1/ description"`
	Publisher    []string      `xml:"http://purl.org/dc/elements/1.1/ publisher"`
	Contributors []Contributor `xml:"http://purl.org/dc/elements/1.1/ contributor"`
	Date         []string      `xml:"http://purl.org/dc/elements/1.1/ date"`
	Language     []string      `xml:"http://purl.org/dc/elements/1.1/ language"`
	Degree       degree        `xml:"http://www.ndltd.org/standards/metadata/etdms/1.1/ degree"`
}

// Contributor is one dc:contributor element, an optional role
// attribute and the contributor's name.
type Contributor struct {
	Role string `xml:"role,attr"`
	Name string `xml:",chardata"`
}

type degree struct {
	Name       string `xml:"http://www.ndltd.org/standards/metadata/etdms/1.1/ name"`
	Level      string `xml:"http://www.ndltd.org/standards/metadata/etdms/1.1/ level"`
	Discipline string `xml:"http://www.ndltd.org/standards/metadata/etdms/1.1/ discipline"`
}

// SourceIdentifier derives the stable external lookup key for a
// package name.
func SourceIdentifier(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:])
}

// CreatePackageData parses the metadata document and builds the
// normalized record. The sequence number becomes the DOI suffix for
// the document's publication year.
func (e *Extractor) CreatePackageData(document io.Reader, name string, sequence int, agreements []string, path string) (etd.PackageData, error) {
	var parsed thesis
	if err := xml.NewDecoder(document).Decode(&parsed); err != nil {
		return etd.PackageData{}, etd.Metadataf("could not parse metadata document: %v", err)
	}

	title, err := requiredText(parsed.Title, "title")
	if err != nil {
		return etd.PackageData{}, err
	}
	creator, err := requiredText(parsed.Creator, "creator")
	if err != nil {
		return etd.PackageData{}, err
	}

	date := firstText(parsed.Date)
	year, err := ProcessDate(date)
	if err != nil {
		return etd.PackageData{}, err
	}
	language, err := ProcessLanguage(firstText(parsed.Language))
	if err != nil {
		return etd.PackageData{}, err
	}
	level, err := ProcessDegreeLevel(strings.TrimSpace(parsed.Degree.Level))
	if err != nil {
		return etd.PackageData{}, err
	}

	degreeName := ProcessDegree(parsed.Degree.Name)
	abbreviation := etd.Mapped{}
	if degreeName.Known {
		abbreviation = e.Tables.AbbreviationFor(degreeName.Value)
	}

	data := etd.PackageData{
		Name:             name,
		SourceIdentifier: SourceIdentifier(name),
		Title:            title,
		Creator:          creator,
		Subjects:         ProcessSubjects(parsed.Subjects, e.Tables),
		Abstract:         ProcessDescription(firstText(parsed.Description), e.Tables),
		Publisher:        e.processPublisher(firstText(parsed.Publisher)),
		Contributors:     ProcessContributors(parsed.Contributors),
		Degree:           degreeName,
		Abbreviation:     abbreviation,
		Discipline:       e.Tables.DisciplineFor(parsed.Degree.Discipline),
		Level:            level,
		Date:             date,
		Year:             year,
		Language:         language,
		DOI:              fmt.Sprintf("%s/etd/%s-%d", e.DOIPrefix, year, sequence),
		Agreements:       slices.Clone(agreements),
		RightsNotes:      RightsNotes(time.Now().Year()),
		Path:             path,
	}
	return data, nil
}

func firstText(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func requiredText(values []string, tag string) (string, error) {
	text := firstText(values)
	if text == "" {
		return "", etd.Metadataf("%s tag is missing", tag)
	}
	return text, nil
}

// ProcessSubjects resolves each subject code to its classification
// tuples. Unmapped codes are dropped, repeated tuples keep their
// first-seen position.
func ProcessSubjects(codes []string, tables *mappings.Tables) [][]string {
	var subjects [][]string
	for _, code := range codes {
		for _, tuple := range tables.SubjectTuples(strings.TrimSpace(code)) {
			if !slices.ContainsFunc(subjects, func(seen []string) bool {
				return slices.Equal(seen, tuple)
			}) {
				subjects = append(subjects, tuple)
			}
		}
	}
	return subjects
}

// ProcessDescription normalizes an abstract: trims, collapses newline
// and carriage-return characters, applies the substitution table, and
// produces NFC form.
func ProcessDescription(text string, tables *mappings.Tables) string {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "\r", "")
	text = strings.ReplaceAll(text, "\n", " ")
	text = tables.Substitute(text)
	return norm.NFC.String(text)
}

func (e *Extractor) processPublisher(publisher string) string {
	if publisher == "" {
		return e.Institution
	}
	return publisher
}

// ProcessContributors renders contributors as "Name (Role)" with the
// role's first letter capitalized, or bare "Name" when no role
// attribute is present.
func ProcessContributors(contributors []Contributor) []string {
	var processed []string
	for _, c := range contributors {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		role := strings.TrimSpace(c.Role)
		if role == "" {
			processed = append(processed, name)
			continue
		}
		runes := []rune(role)
		runes[0] = unicode.ToUpper(runes[0])
		processed = append(processed, fmt.Sprintf("%s (%s)", name, string(runes)))
	}
	return processed
}

// ProcessDate validates the YYYY-MM-DD date and returns its year.
func ProcessDate(date string) (string, error) {
	if date == "" {
		return "", etd.Metadataf("date tag is missing")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return "", etd.Metadataf("date %q is not properly formatted", date)
	}
	return date[:4], nil
}

// ProcessLanguage normalizes the language code. Only English, French,
// German and Spanish variants are accepted; an empty tag defaults to
// English.
func ProcessLanguage(language string) (string, error) {
	switch language {
	case "fre", "fra":
		return "fra", nil
	case "ger", "deu":
		return "deu", nil
	case "spa":
		return "spa", nil
	case "eng", "":
		return "eng", nil
	}
	return "", etd.Metadataf("unexpected language %q", language)
}

// ProcessDegree trims the degree name and expands two truncated forms
// found in older submissions. An empty name is tagged unmapped rather
// than failing the package.
func ProcessDegree(name string) etd.Mapped {
	name = strings.TrimSpace(name)
	switch name {
	case "":
		return etd.Mapped{}
	case "Master of Architectural Stud":
		name = "Master of Architectural Studies"
	case "Master of Information Tech":
		name = "Master of Information Technology"
	}
	return etd.MappedValue(name)
}

// ProcessDegreeLevel accepts only the graduate levels "1" and "2".
func ProcessDegreeLevel(level string) (string, error) {
	switch level {
	case "1", "2":
		return level, nil
	case "":
		return "", etd.Metadataf("degree level is missing")
	case "0":
		return "", etd.Metadataf("degree level %q is flagged as undergraduate work", level)
	}
	return "", etd.Metadataf("invalid degree level %q", level)
}

// RightsNotes renders the fixed usage statement with the given
// copyright year.
func RightsNotes(year int) string {
	return fmt.Sprintf("Copyright © %d the author(s). Theses may be used for "+
		"non-commercial research, educational, or related academic "+
		"purposes only. Such uses include personal study, distribution to "+
		"students, research and scholarship. Theses may only be shared by "+
		"linking to Carleton University Digital Library and no part may "+
		"be copied without proper attribution to the author; no part may "+
		"be used for commercial purposes directly or indirectly via a "+
		"for-profit platform; no adaptation or derivative works are "+
		"permitted without consent from the copyright owner.", year)
}
