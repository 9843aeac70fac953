package logsync

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sarfflow/bridgectl/pkg/models"
)

func newTestStore(t *testing.T) *JobStore {
	t.Helper()
	return OpenJobStore(filepath.Join(t.TempDir(), "jobs.json"))
}

func TestJobStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	s := OpenJobStore(path)

	if err := s.Add(&models.JobRecord{JobID: "j1", Name: "train", Status: "RUNNING"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	reloaded := OpenJobStore(path)
	rec := reloaded.Get("j1")
	if rec == nil {
		t.Fatal("Get(j1) = nil after reload")
	}
	if rec.Name != "train" || rec.Status != "RUNNING" {
		t.Errorf("reloaded record = %+v", rec)
	}
	if rec.JobID != "j1" {
		t.Errorf("JobID not restored from map key: %q", rec.JobID)
	}
}

func TestJobStoreCorruptFileYieldsEmptyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	os.WriteFile(path, []byte("{not json"), 0600)

	s := OpenJobStore(path)
	if got := len(s.List()); got != 0 {
		t.Errorf("List() length = %d, want 0 for corrupt file", got)
	}
}

func TestJobStoreUpdateStatus(t *testing.T) {
	s := newTestStore(t)
	s.Add(&models.JobRecord{JobID: "j1", Status: "RUNNING"})

	if err := s.UpdateStatus("j1", "SUCCEEDED"); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	if got := s.Get("j1").Status; got != "SUCCEEDED" {
		t.Errorf("status = %q, want SUCCEEDED", got)
	}
	if err := s.UpdateStatus("nope", "FAILED"); err == nil {
		t.Error("UpdateStatus(unknown) should fail")
	}
}

func TestReloadPicksUpExternalWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	writer := OpenJobStore(path)
	writer.Add(&models.JobRecord{JobID: "j1", Status: "RUNNING"})

	// A second handle, as a follow loop started in another process
	// would hold.
	reader := OpenJobStore(path)
	if got := reader.Get("j1").Status; got != "RUNNING" {
		t.Fatalf("initial status = %q", got)
	}

	if err := writer.UpdateStatus("j1", "SUCCEEDED"); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	if got := reader.Get("j1").Status; got != "RUNNING" {
		t.Fatalf("status changed without Reload: %q", got)
	}

	reader.Reload()
	rec := reader.Get("j1")
	if rec == nil || rec.Status != "SUCCEEDED" {
		t.Errorf("status after Reload = %+v, want SUCCEEDED", rec)
	}
	if rec != nil && rec.JobID != "j1" {
		t.Errorf("JobID not restored from map key: %q", rec.JobID)
	}
}

func TestReloadKeepsStateOnMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	s := OpenJobStore(path)
	s.Add(&models.JobRecord{JobID: "j1", Status: "RUNNING"})

	os.Remove(path)
	s.Reload()
	if s.Get("j1") == nil {
		t.Error("Reload() dropped state when the file was unreadable")
	}
}

func TestJobStoreListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	s.Add(&models.JobRecord{JobID: "old"})
	s.jobs["old"].CreatedAt = time.Now().Add(-time.Hour)
	s.Add(&models.JobRecord{JobID: "new"})

	list := s.List()
	if len(list) != 2 || list[0].JobID != "new" {
		t.Errorf("List() order wrong: %v, %v", list[0].JobID, list[1].JobID)
	}
}

func TestJobStorePruneDropsStaleRecords(t *testing.T) {
	s := newTestStore(t)
	s.Add(&models.JobRecord{JobID: "stale"})
	s.jobs["stale"].UpdatedAt = time.Now().Add(-31 * 24 * time.Hour)
	s.Add(&models.JobRecord{JobID: "fresh"})

	removed, err := s.Prune()
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if s.Get("stale") != nil {
		t.Error("stale record survived prune")
	}
	if s.Get("fresh") == nil {
		t.Error("fresh record was pruned")
	}
}

func TestGetOffsetRequiresMatchingFileSize(t *testing.T) {
	s := newTestStore(t)
	s.Add(&models.JobRecord{JobID: "j1"})

	logPath := filepath.Join(t.TempDir(), "j1.log")
	os.WriteFile(logPath, []byte("0123456789"), 0644)

	if err := s.SetOffset("j1", logPath, 10); err != nil {
		t.Fatalf("SetOffset() error = %v", err)
	}
	if got := s.GetOffset("j1"); got != 10 {
		t.Errorf("GetOffset() = %d, want 10", got)
	}

	// Truncated cache file invalidates the offset.
	os.WriteFile(logPath, []byte("0123"), 0644)
	if got := s.GetOffset("j1"); got != 0 {
		t.Errorf("GetOffset() after truncation = %d, want 0", got)
	}

	// Deleted cache file invalidates the offset.
	os.Remove(logPath)
	if got := s.GetOffset("j1"); got != 0 {
		t.Errorf("GetOffset() after deletion = %d, want 0", got)
	}
}

func TestResetOffset(t *testing.T) {
	s := newTestStore(t)
	s.Add(&models.JobRecord{JobID: "j1"})

	logPath := filepath.Join(t.TempDir(), "j1.log")
	os.WriteFile(logPath, []byte("abc"), 0644)
	s.SetOffset("j1", logPath, 3)

	if err := s.ResetOffset("j1"); err != nil {
		t.Fatalf("ResetOffset() error = %v", err)
	}
	if got := s.GetOffset("j1"); got != 0 {
		t.Errorf("GetOffset() after reset = %d, want 0", got)
	}
	if err := s.ResetOffset("unknown"); err != nil {
		t.Errorf("ResetOffset(unknown) error = %v, want nil", err)
	}
}
