package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sarfflow/bridgectl/internal/config"
	"github.com/Sarfflow/bridgectl/internal/follow"
	"github.com/Sarfflow/bridgectl/internal/logsync"
	"github.com/Sarfflow/bridgectl/internal/tunnel"
	"github.com/Sarfflow/bridgectl/pkg/models"
)

var (
	logsPath     string
	logsTail     int
	logsHead     int
	logsRefresh  bool
	logsFull     bool
	logsFollow   bool
	logsInterval int

	logsCmd = &cobra.Command{
		Use:   "logs <job-id>",
		Short: "Show a job's log from the local cache",
		Long: `Show the locally cached log of a job.

With --refresh the cache is updated first: only the bytes written since
the last fetch are transferred (the remote reader starts at the cached
byte offset). --full forces a complete re-fetch. --follow streams the
log live: over the tunnel it runs tail -f on the remote file, otherwise
it re-fetches through the mediated path on an interval.`,
		Args: cobra.ExactArgs(1),
		RunE: runLogs,
	}
)

func init() {
	logsCmd.Flags().StringVar(&logsPath, "path", "", "Remote log file path (remembered per job)")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 0, "Show only the last N lines")
	logsCmd.Flags().IntVar(&logsHead, "head", 0, "Show only the first N lines")
	logsCmd.Flags().BoolVarP(&logsRefresh, "refresh", "r", false, "Fetch new log content before displaying")
	logsCmd.Flags().BoolVar(&logsFull, "full", false, "Re-fetch the whole log, ignoring the cached offset")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Stream the log until the job finishes")
	logsCmd.Flags().IntVar(&logsInterval, "interval", 0, "Seconds between mediated re-fetches when following (default 30)")

	rootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	jobID := args[0]

	ctx, cancel := signalContext()
	defer cancel()

	rec := rt.jobs.Get(jobID)
	if rec == nil {
		if logsPath == "" {
			return fmt.Errorf("unknown job %q; pass --path on first use to register its remote log file", jobID)
		}
		rec = &models.JobRecord{JobID: jobID, Status: "UNKNOWN", RemoteLogPath: logsPath}
		if err := rt.jobs.Add(rec); err != nil {
			return err
		}
	} else if logsPath != "" && logsPath != rec.RemoteLogPath {
		rec.RemoteLogPath = logsPath
		if err := rt.jobs.SetOffset(jobID, rec.LogPath, 0); err != nil {
			return err
		}
	}
	if rec.RemoteLogPath == "" {
		return fmt.Errorf("job %q has no remote log path recorded; pass --path", jobID)
	}

	if logsFollow {
		return followLogs(ctx, rt, rec)
	}

	if logsRefresh || logsFull {
		client, err := rt.forgeClient()
		if err != nil {
			return err
		}
		syncer := rt.syncer(client)

		fetch := syncer.Fetch
		if logsFull {
			fetch = syncer.FetchFull
		}
		result, err := fetch(ctx, rec.JobID, rec.RemoteLogPath)
		if err != nil {
			return err
		}
		if !jsonOut {
			if result.BytesAdded == 0 && !result.FullFetch {
				fmt.Fprintln(os.Stderr, "No new log content.")
			} else {
				fmt.Fprintf(os.Stderr, "Fetched %d bytes (offset now %d).\n", result.BytesAdded, result.Offset)
			}
		}
	}

	return displayCachedLog(rt, rec.JobID)
}

func displayCachedLog(rt *runtime, jobID string) error {
	rec := rt.jobs.Get(jobID)
	if rec == nil || rec.LogPath == "" {
		return logsync.ErrLogNotFound
	}
	data, err := os.ReadFile(rec.LogPath)
	if err != nil {
		if os.IsNotExist(err) {
			return logsync.ErrLogNotFound
		}
		return err
	}

	content := string(data)
	if logsHead > 0 || logsTail > 0 {
		lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
		if logsHead > 0 && logsHead < len(lines) {
			lines = lines[:logsHead]
		}
		if logsTail > 0 && logsTail < len(lines) {
			lines = lines[len(lines)-logsTail:]
		}
		content = strings.Join(lines, "\n") + "\n"
	}

	if jsonOut {
		printJSON(map[string]any{
			"job_id":    jobID,
			"log_path":  rec.LogPath,
			"offset":    rec.LogByteOffset,
			"cached_at": rec.LogCachedAt,
			"content":   content,
		})
		return nil
	}
	fmt.Print(content)
	return nil
}

func followLogs(ctx context.Context, rt *runtime, rec *models.JobRecord) error {
	// The status source is the job store on disk: another invocation
	// (or an external tool) records the terminal status there, so each
	// tick re-reads the file instead of trusting the in-memory copy
	// loaded at process start.
	statusFn := func(ctx context.Context) (string, bool, error) {
		rt.jobs.Reload()
		current := rt.jobs.Get(rec.JobID)
		if current == nil {
			return "", false, fmt.Errorf("job record disappeared")
		}
		return current.Status, models.TerminalJobStatus(current.Status), nil
	}

	// Direct path: live tail over the tunnel.
	if !noTunnel && rt.transport.TestConnectivity(ctx, bridgeName) {
		tailLines := logsTail
		if tailLines == 0 {
			tailLines = 50
		}
		tunnelStatus := func(ctx context.Context) (bool, error) {
			_, terminal, err := statusFn(ctx)
			return terminal, err
		}
		err := rt.transport.FollowFile(ctx, bridgeName, rec.RemoteLogPath, tailLines, tunnelStatus, os.Stdout)
		var unavailable *tunnel.NotAvailableError
		if err == nil || !errors.As(err, &unavailable) {
			return err
		}
		fmt.Fprintln(os.Stderr, "Tunnel lost, switching to mediated follow.")
	}

	// Mediated path: periodic full re-fetch through the forge.
	client, err := rt.forgeClient()
	if err != nil {
		return err
	}
	syncer := rt.syncer(client)

	fetchFn := func(ctx context.Context) (string, error) {
		result, err := syncer.FetchFull(ctx, rec.JobID, rec.RemoteLogPath)
		if err != nil {
			return "", err
		}
		data, err := os.ReadFile(result.Path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	interval := time.Duration(logsInterval) * time.Second
	if logsInterval == 0 {
		interval = time.Duration(rt.cfg.FollowInterval) * time.Second
	}
	loop := follow.New(fetchFn, statusFn, interval, os.Stdout)

	// An explicit flag wins; otherwise a config edit mid-session can
	// retune the cadence without restarting the follow.
	if logsInterval == 0 {
		var liveInterval atomic.Int64
		config.WatchConfig(rt.viper, func(c *config.Config) {
			if c.FollowInterval > 0 {
				liveInterval.Store(int64(time.Duration(c.FollowInterval) * time.Second))
			}
		})
		loop.IntervalFunc = func() time.Duration {
			return time.Duration(liveInterval.Load())
		}
	}

	finalStatus, err := loop.Run(ctx)
	if err != nil {
		return err
	}
	if finalStatus != "" && !jsonOut {
		fmt.Fprintf(os.Stderr, "Job finished with status %s.\n", finalStatus)
	}
	return nil
}
