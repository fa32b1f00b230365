package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/cu-library/etddepositor/internal/etd"
)

var testNow = time.Date(2021, time.July, 5, 9, 30, 45, 0, time.UTC)

func TestWriteIngestList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingest.csv")
	packages := []etd.PackageData{
		{
			Name:         "100000000_1234",
			Creator:      "Creator, Test",
			Degree:       etd.MappedValue("Doctor of Philosophy"),
			Abbreviation: etd.MappedValue("Ph.D."),
			Discipline:   etd.MappedValue("Physics"),
			URL:          "https://repository.example.com/concern/etds/abc",
			PackageFiles: []string{"creator--test--title.pdf", "creator--test--title-supplemental.zip"},
		},
		{
			Name:     "100000001_5678",
			Creator:  "Other, Person",
			Abstract: "Uses $\\LaTeX$ markup",
			URL:      "https://repository.example.com/concern/etds/def",
		},
	}

	if err := WriteIngestList(path, packages, testNow); err != nil {
		t.Fatalf("WriteIngestList failed: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if !slices.Equal(rows[0], ingestListColumns) {
		t.Errorf("unexpected header: %v", rows[0])
	}

	clean := rows[1]
	if clean[4] != "creator--test--title.pdf" {
		t.Errorf("unexpected pdf cell %q", clean[4])
	}
	if clean[5] != "creator--test--title-supplemental.zip" {
		t.Errorf("unexpected zip cell %q", clean[5])
	}
	if clean[6] != "" {
		t.Errorf("clean record should have no flags, got %q", clean[6])
	}

	flagged := rows[2]
	if flagged[2] != "2021-07-05 09:30:45" {
		t.Errorf("unexpected processed date %q", flagged[2])
	}
	for _, want := range []string{
		"Degree is flagged.",
		"Degree abbreviation is flagged.",
		"Degree discipline is flagged.",
		"Abstract contains '$', LaTeX codes?",
		`Abstract contains '\', LaTeX codes?`,
	} {
		if !strings.Contains(flagged[6], want) {
			t.Errorf("flags %q are missing %q", flagged[6], want)
		}
	}
}

func TestFlaggedContentReplacementCharacters(t *testing.T) {
	flags := FlaggedContent(etd.PackageData{
		Title:        "Broken � Title",
		Creator:      "Fine",
		Degree:       etd.MappedValue("D"),
		Abbreviation: etd.MappedValue("A"),
		Discipline:   etd.MappedValue("X"),
		Contributors: []string{"Bad � Name"},
	})
	if !strings.Contains(flags, "Title contains replacement character.") {
		t.Errorf("missing title flag in %q", flags)
	}
	if !strings.Contains(flags, "Contributors contains replacement character.") {
		t.Errorf("missing contributors flag in %q", flags)
	}
	if strings.Contains(flags, "Creator contains") {
		t.Errorf("unexpected creator flag in %q", flags)
	}
}

func TestWritePostback(t *testing.T) {
	dir := t.TempDir()
	data := etd.PackageData{
		Name: "100000000_1234",
		URL:  "https://repository.example.com/concern/etds/abc",
	}
	if err := WritePostback(dir, data, testNow); err != nil {
		t.Fatalf("WritePostback failed: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, "100000000_1234_postback.txt"))
	if err != nil {
		t.Fatal(err)
	}
	want := "100000000_1234||2021-07-05T09:30:00||1||https://repository.example.com/concern/etds/abc"
	if string(content) != want {
		t.Errorf("postback content %q, want %q", content, want)
	}
}
