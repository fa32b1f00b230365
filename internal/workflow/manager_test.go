package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cu-library/etddepositor/internal/catalog"
	"github.com/cu-library/etddepositor/internal/config"
	"github.com/cu-library/etddepositor/internal/etd"
	"github.com/cu-library/etddepositor/internal/logging"
	"github.com/cu-library/etddepositor/internal/mappings"
	"github.com/cu-library/etddepositor/internal/metadata"
	"github.com/cu-library/etddepositor/internal/queue"
)

// stubResolver maps source identifiers to URLs without touching the
// network.
type stubResolver struct {
	urls map[string]string
}

func (s *stubResolver) Resolve(_ context.Context, sourceIdentifier string, _ catalog.Policy) (string, error) {
	if url, ok := s.urls[sourceIdentifier]; ok {
		return url, nil
	}
	return "", fmt.Errorf("%w: no catalog record", etd.ErrGetURLFailed)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.ProcessingDir = t.TempDir()
	cfg.Catalog.MaxAttempts = 2
	return &cfg
}

func testTables() *mappings.Tables {
	return &mappings.Tables{
		Agreements: map[string]mappings.Agreement{
			"Carleton University Thesis License Agreement": {Identifier: "cutla", Required: true},
			"FIPPA":                        {Identifier: "fs", Required: true},
			"Academic Integrity Statement": {Identifier: "ais", Required: true},
			"LAC Non-Exclusive License":    {Identifier: "lnel", Required: false},
		},
		Abbreviation: map[string]string{"Doctor of Philosophy": "Ph.D."},
		Discipline:   map[string]string{"PHD-01": "Physics"},
		LCSubject: map[string][][]string{
			"CODE1": {{"a", "Physics."}},
		},
		Substitutions: map[string]string{},
	}
}

const permissionsDocument = `Student ID: 100000000
Thesis ID: 1234
Carleton University Thesis License Agreement||1||Y||06-AUG-15
FIPPA||1||Y||06-AUG-15
Academic Integrity Statement||1||Y||06-AUG-15
`

const metadataDocument = `<thesis
xmlns="http://www.ndltd.org/standards/metadata/etdms/1.1/"
xmlns:dc="http://purl.org/dc/elements/1.1/">
  <dc:title xml:lang="en">A Study of Things</dc:title>
  <dc:creator>Creator, Test</dc:creator>
  <dc:subject>CODE1</dc:subject>
  <dc:description role="abstract" xml:lang="en">Abstract text.</dc:description>
  <dc:date>2021-01-01</dc:date>
  <dc:language>eng</dc:language>
  <degree>
    <name>Doctor of Philosophy</name>
    <level>2</level>
    <discipline>PHD-01</discipline>
  </degree>
</thesis>`

// writeTestPackage lays out a bag-structured package in the ready
// area.
func writeTestPackage(t *testing.T, cfg *config.Config, name, permissions, metadata string) {
	t.Helper()
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	packagePath := filepath.Join(cfg.ReadyDir(), name)
	metaPath := filepath.Join(packagePath, "data", "meta")
	if err := os.MkdirAll(metaPath, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile := func(path, content string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	writeFile(filepath.Join(packagePath, "bagit.txt"), "BagIt-Version: 0.97\n")
	writeFile(filepath.Join(packagePath, "data", "thesis.pdf"), strings.Repeat("x", 100))
	writeFile(filepath.Join(metaPath, name+"_permissions_meta.txt"), permissions)
	writeFile(filepath.Join(metaPath, name+"_etdms_meta.xml"), metadata)
}

func openTestStore(t *testing.T) *queue.Store {
	t.Helper()
	store, err := queue.OpenPath(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestManager(t *testing.T, cfg *config.Config, store *queue.Store, resolver Resolver) *Manager {
	t.Helper()
	manager := NewManager(cfg, store, testTables(), resolver, logging.NewNop())
	manager.now = func() time.Time {
		return time.Date(2021, time.July, 5, 9, 0, 0, 0, time.UTC)
	}
	return manager
}

func TestRunCompletesPackage(t *testing.T) {
	cfg := testConfig(t)
	store := openTestStore(t)
	writeTestPackage(t, cfg, "100000000_1234", permissionsDocument, metadataDocument)

	sha := metadata.SourceIdentifier("100000000_1234")
	resolver := &stubResolver{urls: map[string]string{
		sha: "https://repository.example.com/concern/etds/abc123",
	}}

	manager := newTestManager(t, cfg, store, resolver)
	result, err := manager.Run(context.Background(), Options{DOIStart: 50})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Completed) != 1 || len(result.Failures) != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	data := result.Completed[0]
	if data.DOI != "10.22215/etd/2021-50" {
		t.Errorf("unexpected DOI %q", data.DOI)
	}
	if data.URL != "https://repository.example.com/concern/etds/abc123" {
		t.Errorf("unexpected URL %q", data.URL)
	}
	if len(data.PackageFiles) != 1 {
		t.Errorf("unexpected staged files %v", data.PackageFiles)
	}

	// The package directory moved to done.
	if _, err := os.Stat(filepath.Join(cfg.DoneDir(), "100000000_1234")); err != nil {
		t.Error("package was not moved to the done area")
	}
	// Run artifacts exist.
	for _, path := range []string{
		result.ManifestPath,
		result.CrossrefPath,
		result.MARCArchivePath,
		result.IngestListPath,
		filepath.Join(cfg.MARCDir(), "100000000_1234_marc.mrc"),
		filepath.Join(cfg.PostbackDir(), "100000000_1234_postback.txt"),
	} {
		if path == "" {
			t.Error("expected artifact path to be set")
			continue
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing artifact %s: %v", path, err)
		}
	}

	item, err := store.GetByName(context.Background(), "100000000_1234")
	if err != nil {
		t.Fatal(err)
	}
	if item.Status != queue.StatusCompleted || item.DOISequence != 50 {
		t.Errorf("unexpected item state: %+v", item)
	}
}

func TestRunFailedValidationDoesNotConsumeDOI(t *testing.T) {
	cfg := testConfig(t)
	store := openTestStore(t)

	unsigned := strings.ReplaceAll(permissionsDocument, "FIPPA||1||Y", "FIPPA||1||N")
	writeTestPackage(t, cfg, "bad_0001", unsigned, metadataDocument)
	writeTestPackage(t, cfg, "good_0002", permissionsDocument, metadataDocument)

	resolver := &stubResolver{urls: map[string]string{
		metadata.SourceIdentifier("good_0002"): "https://repository.example.com/concern/etds/def",
	}}
	manager := newTestManager(t, cfg, store, resolver)
	result, err := manager.Run(context.Background(), Options{DOIStart: 50})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Failures) != 1 || result.Failures[0].Name != "bad_0001" {
		t.Fatalf("unexpected failures: %+v", result.Failures)
	}
	if !strings.Contains(result.Failures[0].Reason, "required but not signed") {
		t.Errorf("unexpected reason %q", result.Failures[0].Reason)
	}
	if len(result.Completed) != 1 {
		t.Fatalf("unexpected completions: %+v", result.Completed)
	}
	// The failed package did not consume sequence 50.
	if got := result.Completed[0].DOI; got != "10.22215/etd/2021-50" {
		t.Errorf("unexpected DOI %q", got)
	}

	if _, err := os.Stat(filepath.Join(cfg.NotCompleteDir(), "bad_0001")); err != nil {
		t.Error("failed package was not moved to the not complete area")
	}
}

func TestRunResolutionFailure(t *testing.T) {
	cfg := testConfig(t)
	store := openTestStore(t)
	writeTestPackage(t, cfg, "100000000_1234", permissionsDocument, metadataDocument)

	manager := newTestManager(t, cfg, store, &stubResolver{urls: map[string]string{}})
	result, err := manager.Run(context.Background(), Options{DOIStart: 50})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Completed) != 0 || len(result.Failures) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.CrossrefPath != "" {
		t.Error("no crossref document should be written for an empty batch")
	}
}

func TestRunSkipsConfiguredPackages(t *testing.T) {
	cfg := testConfig(t)
	cfg.Import.SkipPackages = []string{"skipme_0001"}
	store := openTestStore(t)
	writeTestPackage(t, cfg, "skipme_0001", permissionsDocument, metadataDocument)

	manager := newTestManager(t, cfg, store, &stubResolver{})
	result, err := manager.Run(context.Background(), Options{DOIStart: 50})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Skipped) != 1 || result.Skipped[0].Name != "skipme_0001" {
		t.Errorf("unexpected skips: %+v", result.Skipped)
	}

	item, err := store.GetByName(context.Background(), "skipme_0001")
	if err != nil {
		t.Fatal(err)
	}
	if item.Status != queue.StatusSkipped || item.DOISequence != 0 {
		t.Errorf("unexpected item state: %+v", item)
	}
}

func TestRunInvalidBag(t *testing.T) {
	cfg := testConfig(t)
	store := openTestStore(t)
	writeTestPackage(t, cfg, "100000000_1234", permissionsDocument, metadataDocument)
	if err := os.Remove(filepath.Join(cfg.ReadyDir(), "100000000_1234", "bagit.txt")); err != nil {
		t.Fatal(err)
	}

	manager := newTestManager(t, cfg, store, &stubResolver{})
	result, err := manager.Run(context.Background(), Options{DOIStart: 50})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Failures) != 1 || !strings.Contains(result.Failures[0].Reason, "not a valid bag") {
		t.Errorf("unexpected failures: %+v", result.Failures)
	}
}

func TestRunRequiresDOIStartOnEmptyQueue(t *testing.T) {
	cfg := testConfig(t)
	store := openTestStore(t)
	writeTestPackage(t, cfg, "100000000_1234", permissionsDocument, metadataDocument)

	manager := newTestManager(t, cfg, store, &stubResolver{})
	if _, err := manager.Run(context.Background(), Options{}); err == nil {
		t.Fatal("expected an error when no DOI history exists")
	}
}
