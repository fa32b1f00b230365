package etd

// DOIURLPrefix is the resolver prefix prepended to minted DOIs when a
// resolvable link is needed.
const DOIURLPrefix = "https://doi.org/"

// FlagText is rendered into artifacts for controlled-vocabulary
// lookups that had no mapped result, so cataloguers can spot records
// needing manual review.
const FlagText = "FLAG"

// Mapped is the result of a controlled-vocabulary lookup. A zero
// Mapped is "not mapped"; callers must check Known (or render via
// OrFlag) instead of treating the value as usable text.
type Mapped struct {
	Value string
	Known bool
}

// MappedValue wraps a successful lookup result.
func MappedValue(value string) Mapped {
	return Mapped{Value: value, Known: true}
}

// OrFlag returns the mapped value, or FlagText when the lookup missed.
func (m Mapped) OrFlag() string {
	if !m.Known {
		return FlagText
	}
	return m.Value
}

// PackageData is the extracted, normalized description of one ETD
// submission. Instances are value types: stages derive updated copies
// through the With* methods rather than mutating shared state, so a
// partially-updated record can never leak into artifact generation.
type PackageData struct {
	Name             string
	SourceIdentifier string

	Title        string
	Creator      string
	Subjects     [][]string
	Abstract     string
	Publisher    string
	Contributors []string

	Degree       Mapped
	Abbreviation Mapped
	Discipline   Mapped
	Level        string

	Date     string
	Year     string
	Language string
	DOI      string

	Agreements  []string
	RightsNotes string

	Path         string
	PackageFiles []string
	URL          string
}

// WithFiles returns a copy of the record with the staged file list set,
// primary document first.
func (p PackageData) WithFiles(files []string) PackageData {
	p.PackageFiles = append([]string(nil), files...)
	return p
}

// WithURL returns a copy of the record with the resolved catalog URL set.
func (p PackageData) WithURL(url string) PackageData {
	p.URL = url
	return p
}
