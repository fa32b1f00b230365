package queue

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cu-library/etddepositor/internal/etd"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenPath(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestEnqueueAndGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	item, err := store.Enqueue(ctx, "100000000_1234", "/processing/ready/100000000_1234")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if item.Status != StatusReady {
		t.Errorf("new item status = %q, want %q", item.Status, StatusReady)
	}
	if item.ID == 0 {
		t.Error("expected a rowid to be assigned")
	}

	// A second enqueue of the same package is a no-op.
	again, err := store.Enqueue(ctx, "100000000_1234", "/elsewhere")
	if err != nil {
		t.Fatalf("re-Enqueue failed: %v", err)
	}
	if again.ID != item.ID {
		t.Errorf("re-enqueue created a new item: %d vs %d", again.ID, item.ID)
	}
	if again.Path != item.Path {
		t.Errorf("re-enqueue changed the path to %q", again.Path)
	}

	byName, err := store.GetByName(ctx, "100000000_1234")
	if err != nil {
		t.Fatal(err)
	}
	if byName == nil || byName.ID != item.ID {
		t.Errorf("GetByName returned %+v", byName)
	}

	missing, err := store.GetByName(ctx, "nope")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Errorf("expected nil for an unknown package, got %+v", missing)
	}
}

func TestUpdateRoundTripsPackageData(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	item, err := store.Enqueue(ctx, "pkg", "/processing/ready/pkg")
	if err != nil {
		t.Fatal(err)
	}

	data := etd.PackageData{
		Name:         "pkg",
		Title:        "Title",
		Creator:      "Creator, Test",
		Degree:       etd.MappedValue("Doctor of Philosophy"),
		Year:         "2021",
		DOI:          "10.22215/etd/2021-77",
		PackageFiles: []string{"a.pdf"},
	}
	if err := item.SetPackageData(data); err != nil {
		t.Fatal(err)
	}
	item.Status = StatusManifested
	item.DOISequence = 77
	item.RunID = "run-1"
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	loaded, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Status != StatusManifested || loaded.DOISequence != 77 || loaded.RunID != "run-1" {
		t.Errorf("unexpected item: %+v", loaded)
	}
	roundTripped, err := loaded.PackageData()
	if err != nil {
		t.Fatal(err)
	}
	if roundTripped.DOI != data.DOI || roundTripped.Degree != data.Degree {
		t.Errorf("package data mismatch: %+v", roundTripped)
	}
}

func TestItemsByStatus(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		if _, err := store.Enqueue(ctx, name, "/ready/"+name); err != nil {
			t.Fatal(err)
		}
	}
	itemB, err := store.GetByName(ctx, "b")
	if err != nil {
		t.Fatal(err)
	}
	itemB.SetFailed("boom")
	if err := store.Update(ctx, itemB); err != nil {
		t.Fatal(err)
	}

	ready, err := store.ItemsByStatus(ctx, StatusReady)
	if err != nil {
		t.Fatal(err)
	}
	if len(ready) != 2 {
		t.Errorf("expected 2 ready items, got %d", len(ready))
	}

	failed, err := store.ItemsByStatus(ctx, StatusFailed)
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0].ErrorMessage != "boom" {
		t.Errorf("unexpected failed items: %+v", failed)
	}
}

func TestResetStale(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	item, err := store.Enqueue(ctx, "stuck", "/ready/stuck")
	if err != nil {
		t.Fatal(err)
	}
	item.Status = StatusExtracting
	if err := store.Update(ctx, item); err != nil {
		t.Fatal(err)
	}

	reset, err := store.ResetStale(ctx)
	if err != nil {
		t.Fatalf("ResetStale failed: %v", err)
	}
	if reset != 1 {
		t.Errorf("expected 1 reset item, got %d", reset)
	}
	reloaded, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Status != StatusReady {
		t.Errorf("status = %q, want ready", reloaded.Status)
	}
}

func TestResetStaleKeepsMintedDOI(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	item, err := store.Enqueue(ctx, "interrupted", "/ready/interrupted")
	if err != nil {
		t.Fatal(err)
	}
	item.Status = StatusResolving
	item.DOISequence = 42
	if err := store.Update(ctx, item); err != nil {
		t.Fatal(err)
	}

	reset, err := store.ResetStale(ctx)
	if err != nil {
		t.Fatalf("ResetStale failed: %v", err)
	}
	if reset != 1 {
		t.Errorf("expected 1 reset item, got %d", reset)
	}
	reloaded, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	// A package interrupted mid-resolution already consumed its DOI
	// sequence; resuming from ready would mint a second one.
	if reloaded.Status != StatusManifested {
		t.Errorf("status = %q, want manifested", reloaded.Status)
	}
	if reloaded.DOISequence != 42 {
		t.Errorf("doi sequence = %d, want 42", reloaded.DOISequence)
	}
}

func TestRetryFailed(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	item, err := store.Enqueue(ctx, "pkg", "/ready/pkg")
	if err != nil {
		t.Fatal(err)
	}
	item.SetFailed("metadata error: title tag is missing")
	if err := store.Update(ctx, item); err != nil {
		t.Fatal(err)
	}

	retried, err := store.RetryFailed(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if retried != 1 {
		t.Errorf("expected 1 retried item, got %d", retried)
	}
	reloaded, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Status != StatusReady || reloaded.ErrorMessage != "" {
		t.Errorf("unexpected item after retry: %+v", reloaded)
	}
}

func TestMaxDOISequence(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	max, err := store.MaxDOISequence(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if max != 0 {
		t.Errorf("empty queue max = %d, want 0", max)
	}

	for i, name := range []string{"a", "b"} {
		item, err := store.Enqueue(ctx, name, "/ready/"+name)
		if err != nil {
			t.Fatal(err)
		}
		item.DOISequence = int64(40 + i)
		if err := store.Update(ctx, item); err != nil {
			t.Fatal(err)
		}
	}

	max, err = store.MaxDOISequence(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if max != 41 {
		t.Errorf("max = %d, want 41", max)
	}
}

func TestSummaryAndClear(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	states := map[string]Status{
		"a": StatusReady,
		"b": StatusCompleted,
		"c": StatusFailed,
		"d": StatusSkipped,
		"e": StatusResolving,
	}
	for name, status := range states {
		item, err := store.Enqueue(ctx, name, "/ready/"+name)
		if err != nil {
			t.Fatal(err)
		}
		item.Status = status
		if err := store.Update(ctx, item); err != nil {
			t.Fatal(err)
		}
	}

	summary, err := store.Summary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := HealthSummary{Total: 5, Ready: 1, Processing: 1, Completed: 1, Failed: 1, Skipped: 1}
	if summary != want {
		t.Errorf("summary = %+v, want %+v", summary, want)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	summary, err = store.Summary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Total != 0 {
		t.Errorf("expected an empty queue, got %+v", summary)
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := ParseStatus("  Ready "); !ok || status != StatusReady {
		t.Errorf("ParseStatus(\"  Ready \") = %q, %v", status, ok)
	}
	if _, ok := ParseStatus("bogus"); ok {
		t.Error("expected bogus status to be rejected")
	}
}
