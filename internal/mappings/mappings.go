package mappings

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/cu-library/etddepositor/internal/etd"
	"github.com/cu-library/etddepositor/internal/logging"
)

// Agreement describes one recognized agreement line in the permissions
// document.
type Agreement struct {
	// Identifier is the term recorded in the manifest when the
	// agreement is signed.
	Identifier string `toml:"identifier"`
	// Required marks agreements that must be signed for the package to
	// be processed.
	Required bool `toml:"required"`
}

// Tables holds the code-to-value dictionaries loaded once per run.
// All maps are read-only after Load returns.
type Tables struct {
	Agreements    map[string]Agreement  `toml:"agreements"`
	Abbreviation  map[string]string     `toml:"abbreviation"`
	Discipline    map[string]string     `toml:"discipline"`
	LCSubject     map[string][][]string `toml:"lc_subject"`
	Substitutions map[string]string     `toml:"substitutions"`
}

// Load parses the mapping tables document. Subject tuples with an
// arity other than 2 or 4 are logged as warnings, never a failure;
// missing top-level tables are an error.
func Load(path string, logger *slog.Logger) (*Tables, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mappings: %w", err)
	}
	defer file.Close()

	tables := &Tables{}
	decoder := toml.NewDecoder(file)
	if err := decoder.Decode(tables); err != nil {
		return nil, fmt.Errorf("parse mappings: %w", err)
	}

	if err := tables.checkRequired(); err != nil {
		return nil, err
	}

	for code, tuples := range tables.LCSubject {
		for _, tuple := range tuples {
			if len(tuple) != 2 && len(tuple) != 4 {
				logger.Warn("subject mapping is not formatted correctly",
					logging.String("code", code),
					logging.Int("arity", len(tuple)),
				)
			}
		}
	}

	return tables, nil
}

func (t *Tables) checkRequired() error {
	missing := []string{}
	if t.Agreements == nil {
		missing = append(missing, "agreements")
	}
	if t.Abbreviation == nil {
		missing = append(missing, "abbreviation")
	}
	if t.Discipline == nil {
		missing = append(missing, "discipline")
	}
	if t.LCSubject == nil {
		missing = append(missing, "lc_subject")
	}
	if t.Substitutions == nil {
		missing = append(missing, "substitutions")
	}
	if len(missing) > 0 {
		return fmt.Errorf("mappings document is missing required tables: %s", strings.Join(missing, ", "))
	}
	return nil
}

// AbbreviationFor looks up the abbreviation for a full degree name.
func (t *Tables) AbbreviationFor(degree string) etd.Mapped {
	if value, ok := t.Abbreviation[degree]; ok {
		return etd.MappedValue(value)
	}
	return etd.Mapped{}
}

// DisciplineFor looks up the discipline text for a discipline code.
func (t *Tables) DisciplineFor(code string) etd.Mapped {
	if value, ok := t.Discipline[strings.TrimSpace(code)]; ok {
		return etd.MappedValue(value)
	}
	return etd.Mapped{}
}

// SubjectTuples returns the classification tuples for a subject code,
// or nil when the code is unmapped. Codes arrive from the metadata
// document with stray whitespace and a trailing period.
func (t *Tables) SubjectTuples(code string) [][]string {
	code = strings.TrimSuffix(strings.TrimSpace(code), ".")
	return t.LCSubject[code]
}

// AgreementFor returns the agreement whose name prefixes the given
// permissions line.
func (t *Tables) AgreementFor(line string) (string, Agreement, bool) {
	for name, agreement := range t.Agreements {
		if strings.HasPrefix(line, name) {
			return name, agreement, true
		}
	}
	return "", Agreement{}, false
}

// Substitute applies the character-substitution table to text.
// Replacements run in sorted key order so overlapping keys always
// resolve the same way.
func (t *Tables) Substitute(text string) string {
	keys := make([]string, 0, len(t.Substitutions))
	for from := range t.Substitutions {
		keys = append(keys, from)
	}
	slices.Sort(keys)
	for _, from := range keys {
		text = strings.ReplaceAll(text, from, t.Substitutions[from])
	}
	return text
}
