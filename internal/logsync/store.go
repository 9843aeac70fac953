// Package logsync maintains the local mirror of remote job logs: a
// JSON store of job records with byte offsets, plus the incremental
// fetch logic that keeps cached files append-consistent.
package logsync

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Sarfflow/bridgectl/pkg/models"
)

// jobRetention is how long finished job records stay listed before
// Prune drops them.
const jobRetention = 30 * 24 * time.Hour

// JobStore persists job records in a single JSON document keyed by job
// id. All mutations rewrite the whole file; records are small and the
// CLI is single-user, so no locking is needed.
type JobStore struct {
	path string
	jobs map[string]*models.JobRecord
}

// OpenJobStore loads the store at path, creating an empty one when the
// file does not exist. A corrupt file is treated as empty rather than
// blocking every command.
func OpenJobStore(path string) *JobStore {
	s := &JobStore{path: path, jobs: map[string]*models.JobRecord{}}

	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	if err := json.Unmarshal(data, &s.jobs); err != nil {
		s.jobs = map[string]*models.JobRecord{}
	}
	for id, rec := range s.jobs {
		rec.JobID = id
	}
	return s
}

func (s *JobStore) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	data, err := json.MarshalIndent(s.jobs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, append(data, '\n'), 0600)
}

// Add records a new job. Timestamps are stamped here.
func (s *JobStore) Add(rec *models.JobRecord) error {
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	s.jobs[rec.JobID] = rec
	return s.save()
}

// Get returns the record for a job id, or nil.
func (s *JobStore) Get(jobID string) *models.JobRecord {
	return s.jobs[jobID]
}

// Reload re-reads the store file, picking up writes made by other
// processes since this store was opened. Follow loops poll it so a
// terminal status recorded by a separate invocation ends the loop. A
// read or parse failure keeps the in-memory state.
func (s *JobStore) Reload() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	jobs := map[string]*models.JobRecord{}
	if err := json.Unmarshal(data, &jobs); err != nil {
		return
	}
	for id, rec := range jobs {
		rec.JobID = id
	}
	s.jobs = jobs
}

// UpdateStatus changes a job's status and bumps its update time.
func (s *JobStore) UpdateStatus(jobID, status string) error {
	rec, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("unknown job: %s", jobID)
	}
	rec.Status = status
	rec.UpdatedAt = time.Now().UTC()
	return s.save()
}

// List returns all records, newest first.
func (s *JobStore) List() []*models.JobRecord {
	out := make([]*models.JobRecord, 0, len(s.jobs))
	for _, rec := range s.jobs {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Remove deletes one record. Reports whether it existed.
func (s *JobStore) Remove(jobID string) (bool, error) {
	if _, ok := s.jobs[jobID]; !ok {
		return false, nil
	}
	delete(s.jobs, jobID)
	return true, s.save()
}

// Clear drops every record.
func (s *JobStore) Clear() error {
	s.jobs = map[string]*models.JobRecord{}
	return s.save()
}

// Prune removes records not updated within the retention window and
// returns how many were dropped.
func (s *JobStore) Prune() (int, error) {
	cutoff := time.Now().UTC().Add(-jobRetention)
	removed := 0
	for id, rec := range s.jobs {
		if rec.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, s.save()
}

// GetOffset returns the cached byte offset for a job. The offset is
// only trusted when it matches the cache file's actual size; any
// mismatch (truncated, deleted, or externally modified file) resets to
// a full re-fetch.
func (s *JobStore) GetOffset(jobID string) int64 {
	rec, ok := s.jobs[jobID]
	if !ok || rec.LogPath == "" {
		return 0
	}
	info, err := os.Stat(rec.LogPath)
	if err != nil || info.Size() != rec.LogByteOffset {
		return 0
	}
	return rec.LogByteOffset
}

// SetOffset records the new offset and cache location after a fetch.
func (s *JobStore) SetOffset(jobID, logPath string, offset int64) error {
	rec, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("unknown job: %s", jobID)
	}
	rec.LogPath = logPath
	rec.LogByteOffset = offset
	rec.LogCachedAt = time.Now().UTC()
	rec.UpdatedAt = rec.LogCachedAt
	return s.save()
}

// ResetOffset forgets the cached log state for a job.
func (s *JobStore) ResetOffset(jobID string) error {
	rec, ok := s.jobs[jobID]
	if !ok {
		return nil
	}
	rec.LogByteOffset = 0
	rec.LogCachedAt = time.Time{}
	return s.save()
}
