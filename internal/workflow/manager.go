// Package workflow drives the per-package deposit state machine:
// validation, extraction, file staging, manifest generation, catalog
// resolution, and the end-of-run artifacts.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/cu-library/etddepositor/internal/catalog"
	"github.com/cu-library/etddepositor/internal/config"
	"github.com/cu-library/etddepositor/internal/crossref"
	"github.com/cu-library/etddepositor/internal/etd"
	"github.com/cu-library/etddepositor/internal/files"
	"github.com/cu-library/etddepositor/internal/logging"
	"github.com/cu-library/etddepositor/internal/manifest"
	"github.com/cu-library/etddepositor/internal/mappings"
	"github.com/cu-library/etddepositor/internal/marc"
	"github.com/cu-library/etddepositor/internal/metadata"
	"github.com/cu-library/etddepositor/internal/permissions"
	"github.com/cu-library/etddepositor/internal/queue"
	"github.com/cu-library/etddepositor/internal/report"
)

// Resolver is the part of the catalog client the workflow depends on.
type Resolver interface {
	Resolve(ctx context.Context, sourceIdentifier string, policy catalog.Policy) (string, error)
}

// Options tune a single run.
type Options struct {
	// DOIStart overrides the next DOI sequence number. Zero means
	// continue from the highest sequence the queue has recorded.
	DOIStart int64
	// InvalidOK processes packages whose bag structure fails
	// verification.
	InvalidOK bool
}

// Result summarizes one run for reporting.
type Result struct {
	RunID     string
	Completed []etd.PackageData
	Failures  []report.Failure
	Skipped   []report.Failure

	ManifestPath    string
	CrossrefPath    string
	MARCArchivePath string
	IngestListPath  string
}

// Manager owns a deposit run.
type Manager struct {
	cfg      *config.Config
	store    *queue.Store
	tables   *mappings.Tables
	resolver Resolver
	policy   catalog.Policy
	logger   *slog.Logger

	// now is the run clock, replaced in tests.
	now func() time.Time
}

// NewManager wires a run manager from its dependencies.
func NewManager(cfg *config.Config, store *queue.Store, tables *mappings.Tables, resolver Resolver, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:      cfg,
		store:    store,
		tables:   tables,
		resolver: resolver,
		policy:   catalog.DefaultPolicy(cfg.Catalog.MaxAttempts),
		logger:   logger,
		now:      time.Now,
	}
}

// Run processes every ready package through the state machine and
// writes the end-of-run artifacts. Package-scoped errors fail single
// packages; anything else aborts the run.
func (m *Manager) Run(ctx context.Context, opts Options) (*Result, error) {
	if err := m.cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	result := &Result{RunID: uuid.NewString()}
	m.logger.Info("starting deposit run", logging.String("run_id", result.RunID))

	if reset, err := m.store.ResetStale(ctx); err != nil {
		return nil, err
	} else if reset > 0 {
		m.logger.Warn("reset in-flight packages from a previous run", logging.Int64("count", reset))
	}

	if err := m.enqueueReady(ctx); err != nil {
		return nil, err
	}
	if err := m.markSkipped(ctx, result); err != nil {
		return nil, err
	}

	nextSequence, err := m.firstSequence(ctx, opts)
	if err != nil {
		return nil, err
	}

	extractor := &metadata.Extractor{
		Tables:      m.tables,
		Institution: m.cfg.Institution.Name,
		DOIPrefix:   m.cfg.DOI.Prefix,
	}

	runDate := m.now().Format("2006-01-02")
	result.ManifestPath = filepath.Join(m.cfg.CSVReportDir(), runDate+"-metadata.csv")
	manifestFile, err := os.Create(result.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("create manifest: %w", err)
	}
	defer manifestFile.Close()
	manifestWriter, err := manifest.NewWriter(manifestFile, m.cfg.Import.CollectionID)
	if err != nil {
		return nil, err
	}

	ready, err := m.store.ItemsByStatus(ctx, queue.StatusReady)
	if err != nil {
		return nil, err
	}

	for _, item := range ready {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := m.preparePackage(ctx, item, extractor, nextSequence, opts)
		if err != nil {
			if !etd.IsPackageError(err) {
				return nil, err
			}
			m.failPackage(ctx, item, err, result)
			continue
		}

		if err := manifestWriter.Add(data); err != nil {
			return nil, err
		}
		if err := manifestWriter.Flush(); err != nil {
			return nil, err
		}

		// The sequence is consumed only when the package reaches the
		// manifest, so failed packages never burn a DOI suffix.
		item.DOISequence = nextSequence
		nextSequence++
		item.Status = queue.StatusManifested
		item.RunID = result.RunID
		if err := item.SetPackageData(data); err != nil {
			return nil, err
		}
		if err := m.store.Update(ctx, item); err != nil {
			return nil, err
		}
		m.logger.Info("package manifested",
			logging.String("package", item.Name),
			logging.String("doi", data.DOI),
		)
	}

	batch := crossref.NewBatch(
		crossref.Depositor{
			Name:       m.cfg.Crossref.DepositorName,
			Email:      m.cfg.Crossref.DepositorEmail,
			Registrant: m.cfg.Crossref.Registrant,
		},
		crossref.Institution{
			Name:  m.cfg.Institution.Name,
			Place: m.cfg.Institution.Place,
		},
		m.now(),
	)

	manifested, err := m.store.ItemsByStatus(ctx, queue.StatusManifested)
	if err != nil {
		return nil, err
	}
	for _, item := range manifested {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := m.completePackage(ctx, item, batch)
		if err != nil {
			if !etd.IsPackageError(err) {
				return nil, err
			}
			m.failPackage(ctx, item, err, result)
			continue
		}
		result.Completed = append(result.Completed, data)
	}

	if err := m.writeRunArtifacts(batch, result, runDate); err != nil {
		return nil, err
	}

	m.logger.Info("deposit run finished",
		logging.String("run_id", result.RunID),
		logging.Int("completed", len(result.Completed)),
		logging.Int("failed", len(result.Failures)),
		logging.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

// enqueueReady registers every package directory in the ready area.
func (m *Manager) enqueueReady(ctx context.Context) error {
	entries, err := os.ReadDir(m.cfg.ReadyDir())
	if err != nil {
		return fmt.Errorf("read ready directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := m.store.Enqueue(ctx, entry.Name(), filepath.Join(m.cfg.ReadyDir(), entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// markSkipped excludes configured packages before any DOI allocation.
func (m *Manager) markSkipped(ctx context.Context, result *Result) error {
	for _, name := range m.cfg.Import.SkipPackages {
		item, err := m.store.GetByName(ctx, name)
		if err != nil {
			return err
		}
		if item == nil || item.Status != queue.StatusReady {
			continue
		}
		item.Status = queue.StatusSkipped
		item.ErrorMessage = "excluded by configuration"
		if err := m.store.Update(ctx, item); err != nil {
			return err
		}
		result.Skipped = append(result.Skipped, report.Failure{Name: name, Reason: "excluded by configuration"})
		m.logger.Info("package skipped", logging.String("package", name))
	}
	return nil
}

func (m *Manager) firstSequence(ctx context.Context, opts Options) (int64, error) {
	if opts.DOIStart > 0 {
		return opts.DOIStart, nil
	}
	max, err := m.store.MaxDOISequence(ctx)
	if err != nil {
		return 0, err
	}
	if max == 0 {
		return 0, fmt.Errorf("queue has no DOI history, provide a starting sequence with --doi-start")
	}
	return max + 1, nil
}

// preparePackage runs a single package through validation, extraction
// and file staging and returns the manifest-ready record.
func (m *Manager) preparePackage(ctx context.Context, item *queue.Item, extractor *metadata.Extractor, sequence int64, opts Options) (etd.PackageData, error) {
	if err := m.transition(ctx, item, queue.StatusValidating); err != nil {
		return etd.PackageData{}, err
	}
	if err := verifyBag(item.Path); err != nil {
		if !opts.InvalidOK {
			return etd.PackageData{}, err
		}
		m.logger.Warn("processing invalid bag", logging.String("package", item.Name), logging.Error(err))
	}

	permissionsPath := filepath.Join(item.Path, "data", "meta", item.Name+"_permissions_meta.txt")
	content, err := os.ReadFile(permissionsPath)
	if err != nil {
		return etd.PackageData{}, etd.MissingFilef("permissions document: %v", err)
	}
	agreements, err := permissions.Validate(string(content), m.tables, m.now())
	if err != nil {
		return etd.PackageData{}, err
	}

	if err := m.transition(ctx, item, queue.StatusExtracting); err != nil {
		return etd.PackageData{}, err
	}
	metadataPath := filepath.Join(item.Path, "data", "meta", item.Name+"_etdms_meta.xml")
	document, err := os.Open(metadataPath)
	if err != nil {
		return etd.PackageData{}, etd.MissingFilef("metadata document: %v", err)
	}
	defer document.Close()
	data, err := extractor.CreatePackageData(document, item.Name, int(sequence), agreements, item.Path)
	if err != nil {
		return etd.PackageData{}, err
	}

	if err := m.transition(ctx, item, queue.StatusStaging); err != nil {
		return etd.PackageData{}, err
	}
	staged, err := files.CopyPackageFiles(data, item.Path, m.cfg.FilesDir())
	if err != nil {
		return etd.PackageData{}, err
	}
	return data.WithFiles(staged), nil
}

// completePackage resolves the catalog URL for a manifested package,
// writes its MARC record and postback, adds it to the Crossref batch,
// and moves it to the done area.
func (m *Manager) completePackage(ctx context.Context, item *queue.Item, batch *crossref.Batch) (etd.PackageData, error) {
	if err := m.transition(ctx, item, queue.StatusResolving); err != nil {
		return etd.PackageData{}, err
	}

	data, err := item.PackageData()
	if err != nil {
		return etd.PackageData{}, err
	}

	url, err := m.resolver.Resolve(ctx, data.SourceIdentifier, m.policy)
	if err != nil {
		return etd.PackageData{}, err
	}
	data = data.WithURL(url)

	if _, err := marc.WriteRecord(data, m.cfg.MARCDir(), m.now(), m.logger); err != nil {
		return etd.PackageData{}, err
	}
	batch.Add(data)
	if err := report.WritePostback(m.cfg.PostbackDir(), data, m.now()); err != nil {
		return etd.PackageData{}, err
	}

	if err := movePackage(item.Path, filepath.Join(m.cfg.DoneDir(), item.Name)); err != nil {
		return etd.PackageData{}, err
	}
	item.Path = filepath.Join(m.cfg.DoneDir(), item.Name)

	item.Status = queue.StatusCompleted
	if err := item.SetPackageData(data); err != nil {
		return etd.PackageData{}, err
	}
	if err := m.store.Update(ctx, item); err != nil {
		return etd.PackageData{}, err
	}
	m.logger.Info("package completed",
		logging.String("package", item.Name),
		logging.String("url", url),
	)
	return data, nil
}

// failPackage records a package-scoped failure and moves the package
// out of the processing flow.
func (m *Manager) failPackage(ctx context.Context, item *queue.Item, failure error, result *Result) {
	m.logger.Error("package failed",
		logging.String("package", item.Name),
		logging.Error(failure),
	)
	result.Failures = append(result.Failures, report.Failure{Name: item.Name, Reason: failure.Error()})

	if _, err := os.Stat(item.Path); err == nil {
		dest := filepath.Join(m.cfg.NotCompleteDir(), item.Name)
		if err := movePackage(item.Path, dest); err != nil {
			m.logger.Error("could not move failed package",
				logging.String("package", item.Name),
				logging.Error(err),
			)
		} else {
			item.Path = dest
		}
	}

	item.SetFailed(failure.Error())
	if err := m.store.Update(ctx, item); err != nil {
		m.logger.Error("could not persist failure",
			logging.String("package", item.Name),
			logging.Error(err),
		)
	}
}

func (m *Manager) transition(ctx context.Context, item *queue.Item, status queue.Status) error {
	item.Status = status
	return m.store.Update(ctx, item)
}

// writeRunArtifacts produces the Crossref batch document, the MARC
// archive and the ingest list once all packages have settled.
func (m *Manager) writeRunArtifacts(batch *crossref.Batch, result *Result, runDate string) error {
	if batch.Size() > 0 {
		encoded, err := batch.Bytes()
		if err != nil {
			return err
		}
		result.CrossrefPath = filepath.Join(m.cfg.CrossrefDir(), runDate+"-crossref.xml")
		if err := os.WriteFile(result.CrossrefPath, encoded, 0o644); err != nil {
			return fmt.Errorf("write crossref batch: %w", err)
		}
	}

	if len(result.Completed) > 0 {
		result.MARCArchivePath = filepath.Join(m.cfg.CSVReportDir(), runDate+"-marc-records.zip")
		if err := files.ZipDirectory(m.cfg.MARCDir(), result.MARCArchivePath); err != nil {
			return fmt.Errorf("archive marc records: %w", err)
		}

		result.IngestListPath = filepath.Join(m.cfg.CSVReportDir(), runDate+"-ingest-list.csv")
		if err := report.WriteIngestList(result.IngestListPath, result.Completed, m.now()); err != nil {
			return err
		}
	}
	return nil
}

// verifyBag checks the package's self-describing container structure.
func verifyBag(packagePath string) error {
	for _, required := range []string{"bagit.txt", "data"} {
		if _, err := os.Stat(filepath.Join(packagePath, required)); err != nil {
			return etd.Metadataf("package %s is not a valid bag: missing %s", filepath.Base(packagePath), required)
		}
	}
	return nil
}

// movePackage renames a package directory. The processing areas live
// on one filesystem.
func movePackage(src, dest string) error {
	if err := os.Rename(src, dest); err != nil {
		return fmt.Errorf("move package: %w", err)
	}
	return nil
}
