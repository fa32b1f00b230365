package marc

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cu-library/etddepositor/internal/etd"
	"github.com/cu-library/etddepositor/internal/logging"
)

// leaderTemplate marks the record as a monographic language-material
// record in UTF-8, RDA-era cataloging.
const leaderTemplate = "     nam a22     4i 4500"

// BuildRecord assembles the catalog record for a deposited thesis.
// Subject tuples with an odd element count cannot form subfield pairs
// and are skipped with a warning.
func BuildRecord(data etd.PackageData, today time.Time, logger *slog.Logger) *Record {
	if logger == nil {
		logger = logging.NewNop()
	}

	record := &Record{Leader: leaderTemplate}
	record.AddField(ControlField("006", "m     o  d        "))
	record.AddField(ControlField("007", "cr || ||||||||"))
	record.AddField(ControlField("008", fmt.Sprintf(
		"%ss%s    onca||||omb|| 000|0 eng d",
		today.Format("060102"), data.Year,
	)))
	record.AddField(DataField("040", ' ', ' ',
		Sub('a', "CaOOCC"),
		Sub('b', "eng"),
		Sub('e', "rda"),
		Sub('c', "CaOOCC"),
	))
	record.AddField(DataField("100", '1', ' ',
		Sub('a', authorHeading(data.Creator)),
		Sub('e', "author."),
	))
	record.AddField(titleField(data.Title))
	record.AddField(DataField("264", ' ', '1',
		Sub('a', "Ottawa,"),
		Sub('c', data.Year),
	))
	record.AddField(DataField("264", ' ', '4',
		Sub('c', "©"+data.Year),
	))
	record.AddField(DataField("300", ' ', ' ',
		Sub('a', "1 online resource :"),
		Sub('b', "illustrations"),
	))
	record.AddField(DataField("336", ' ', ' ',
		Sub('a', "text"), Sub('b', "txt"), Sub('2', "rdacontent"),
	))
	record.AddField(DataField("337", ' ', ' ',
		Sub('a', "computer"), Sub('b', "c"), Sub('2', "rdamedia"),
	))
	record.AddField(DataField("338", ' ', ' ',
		Sub('a', "online resource"), Sub('b', "cr"), Sub('2', "rdacarrier"),
	))
	if data.Abstract != "" {
		record.AddField(DataField("500", ' ', ' ',
			Sub('a', data.Abstract),
		))
	}
	record.AddField(DataField("502", ' ', ' ',
		Sub('a', fmt.Sprintf("Thesis (%s) - Carleton University, %s.", data.Abbreviation.OrFlag(), data.Year)),
	))
	record.AddField(DataField("504", ' ', ' ',
		Sub('a', "Includes bibliographical references."),
	))
	record.AddField(DataField("540", ' ', ' ',
		Sub('a', "Licensed through author open access agreement. Commercial use prohibited without author's consent."),
	))
	record.AddField(DataField("591", ' ', ' ',
		Sub('a', "e-thesis deposit"), Sub('9', "LOCAL"),
	))

	for _, tuple := range data.Subjects {
		if len(tuple)%2 != 0 {
			logger.Warn("skipping malformed subject tuple",
				logging.String("package", data.Name),
				logging.Any("tuple", tuple),
			)
			continue
		}
		subfields := make([]Subfield, 0, len(tuple)/2)
		for i := 0; i+1 < len(tuple); i += 2 {
			if len(tuple[i]) != 1 {
				subfields = nil
				break
			}
			subfields = append(subfields, Sub(tuple[i][0], tuple[i+1]))
		}
		if subfields == nil {
			logger.Warn("skipping malformed subject tuple",
				logging.String("package", data.Name),
				logging.Any("tuple", tuple),
			)
			continue
		}
		record.AddField(DataField("650", ' ', '0', subfields...))
	}

	record.AddField(DataField("710", '2', ' ',
		Sub('a', "Carleton University."),
		Sub('k', "Theses and Dissertations."),
		Sub('g', data.Discipline.OrFlag()+"."),
	))
	record.AddField(DataField("856", '4', '0',
		Sub('u', etd.DOIURLPrefix+data.DOI),
		Sub('z', "Free Access (Carleton University Institutional Repository Full Text)"),
	))
	record.AddField(DataField("979", ' ', ' ',
		Sub('a', fmt.Sprintf("MARC file generated %s on ETD Depositor", today.Format("2006-01-02"))),
		Sub('9', "LOCAL"),
	))

	return record
}

// WriteRecord serializes the package's record into the MARC output
// directory as <name>_marc.mrc.
func WriteRecord(data etd.PackageData, marcDir string, today time.Time, logger *slog.Logger) (string, error) {
	encoded, err := BuildRecord(data, today, logger).Bytes()
	if err != nil {
		return "", fmt.Errorf("serialize record for %s: %w", data.Name, err)
	}
	path := filepath.Join(marcDir, data.Name+"_marc.mrc")
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// authorHeading renders the 100 $a form of the creator. A trailing
// comma marks the open-ended heading unless the name already ends with
// a hyphen.
func authorHeading(creator string) string {
	creator = strings.TrimSpace(creator)
	if !strings.HasSuffix(creator, "-") {
		creator += ","
	}
	return creator
}

// titleField splits on the first colon into 245 $a/$b. The main title
// carries " :" before a subtitle; otherwise a terminal period is
// ensured.
func titleField(title string) Field {
	if main, subtitle, found := strings.Cut(title, ":"); found {
		subtitle = strings.TrimSpace(subtitle)
		if !strings.HasSuffix(subtitle, ".") {
			subtitle += "."
		}
		return DataField("245", '1', '0',
			Sub('a', strings.TrimSpace(main)+" :"),
			Sub('b', subtitle),
		)
	}
	title = strings.TrimSpace(title)
	if !strings.HasSuffix(title, ".") {
		title += "."
	}
	return DataField("245", '1', '0', Sub('a', title))
}
