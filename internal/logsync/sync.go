package logsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Sarfflow/bridgectl/internal/config"
	"github.com/Sarfflow/bridgectl/internal/forge"
)

// logRetention is how long cached log files survive without a fetch.
const logRetention = 7 * 24 * time.Hour

// ErrLogNotFound reports that a job has no cached log to display.
var ErrLogNotFound = errors.New("no cached log for this job; try --refresh")

// Syncer performs incremental log retrieval through the forge: it asks
// the remote reader to start at the cached offset, so each round trip
// carries only the bytes written since the last fetch.
type Syncer struct {
	Client   *forge.Client
	Config   *config.Config
	Store    *JobStore
	CacheDir string

	// Pid feeds request-id generation; overridable in tests.
	Pid int
}

// FetchResult describes one completed fetch.
type FetchResult struct {
	Path       string
	Offset     int64
	BytesAdded int64
	FullFetch  bool
}

// NewSyncer wires a syncer with the process pid as correlation seed.
func NewSyncer(client *forge.Client, cfg *config.Config, store *JobStore, cacheDir string) *Syncer {
	return &Syncer{Client: client, Config: cfg, Store: store, CacheDir: cacheDir, Pid: os.Getpid()}
}

// CacheFile returns the local cache path for a job's log. Job ids come
// from user input, so path separators and other unsafe characters are
// replaced before they reach the filesystem.
func (s *Syncer) CacheFile(jobID string) string {
	return filepath.Join(s.CacheDir, sanitizeForFilename(jobID)+".log")
}

func sanitizeForFilename(s string) string {
	for _, c := range []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"} {
		s = strings.ReplaceAll(s, c, "_")
	}
	return s
}

// Fetch retrieves new log content for a job. With a valid cached
// offset only the delta is transferred and appended; otherwise the
// whole log is fetched and the cache file replaced. The stored offset
// is always recomputed from the cache file's real size, never from
// arithmetic, so a crash mid-append self-heals on the next fetch.
func (s *Syncer) Fetch(ctx context.Context, jobID, remoteLogPath string) (*FetchResult, error) {
	offset := s.Store.GetOffset(jobID)
	destPath := s.CacheFile(jobID)

	requestID := forge.NewRequestID(s.Pid)
	if err := forge.TriggerLogRetrieval(ctx, s.Client, s.Config, jobID, remoteLogPath, requestID, offset); err != nil {
		return nil, err
	}

	timeout := time.Duration(s.Config.RemoteTimeout) * time.Second
	deltaPath := destPath + "." + uuid.NewString() + ".part"
	defer os.Remove(deltaPath)

	if err := s.Client.WaitForLogArtifact(ctx, jobID, requestID, deltaPath, timeout); err != nil {
		return nil, err
	}

	result, err := s.applyDelta(jobID, destPath, deltaPath, offset)
	if err != nil {
		return nil, err
	}

	if n, err := s.PruneLogs(); err != nil {
		slog.Debug("log cache prune failed", "error", err)
	} else if n > 0 {
		slog.Debug("pruned stale cached logs", "count", n)
	}
	return result, nil
}

// FetchFull ignores any cached offset and replaces the cache file.
func (s *Syncer) FetchFull(ctx context.Context, jobID, remoteLogPath string) (*FetchResult, error) {
	if err := s.Store.ResetOffset(jobID); err != nil {
		return nil, err
	}
	return s.Fetch(ctx, jobID, remoteLogPath)
}

// applyDelta merges the downloaded content into the cache file:
// append past a trusted offset, replace from scratch otherwise.
func (s *Syncer) applyDelta(jobID, destPath, deltaPath string, offset int64) (*FetchResult, error) {
	delta, err := os.ReadFile(deltaPath)
	if err != nil {
		return nil, fmt.Errorf("read fetched log: %w", err)
	}

	if offset > 0 {
		if len(delta) > 0 {
			f, err := os.OpenFile(destPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
			if err != nil {
				return nil, err
			}
			if _, err := f.Write(delta); err != nil {
				f.Close()
				return nil, err
			}
			if err := f.Close(); err != nil {
				return nil, err
			}
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
			return nil, err
		}
		if err := copyFile(deltaPath, destPath); err != nil {
			return nil, err
		}
	}

	info, err := os.Stat(destPath)
	if err != nil {
		return nil, err
	}
	newOffset := info.Size()

	if err := s.Store.SetOffset(jobID, destPath, newOffset); err != nil {
		return nil, err
	}

	return &FetchResult{
		Path:       destPath,
		Offset:     newOffset,
		BytesAdded: int64(len(delta)),
		FullFetch:  offset == 0,
	}, nil
}

// PruneLogs removes cached .log files older than the retention window.
func (s *Syncer) PruneLogs() (int, error) {
	entries, err := os.ReadDir(s.CacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := time.Now().Add(-logRetention)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".log" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.CacheDir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
