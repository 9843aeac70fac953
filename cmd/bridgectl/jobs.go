package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sarfflow/bridgectl/internal/logsync"
)

var (
	jobsCmd = &cobra.Command{
		Use:   "jobs",
		Short: "Manage the local job store",
	}

	jobsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List tracked jobs",
		RunE:  runJobsList,
	}

	jobsPruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Drop stale job records and old cached logs",
		RunE:  runJobsPrune,
	}

	jobsRemoveCmd = &cobra.Command{
		Use:   "remove <job-id>",
		Short: "Forget one job",
		Args:  cobra.ExactArgs(1),
		RunE:  runJobsRemove,
	}

	jobsRefreshCmd = &cobra.Command{
		Use:   "refresh",
		Short: "Refresh cached logs of every tracked job",
		Long: `Fetch new log content for every job that has a remote log path
recorded. Individual failures are reported but do not abort the batch.`,
		RunE: runJobsRefresh,
	}
)

func init() {
	jobsCmd.AddCommand(jobsListCmd, jobsPruneCmd, jobsRemoveCmd, jobsRefreshCmd)
	rootCmd.AddCommand(jobsCmd)
}

func runJobsList(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	records := rt.jobs.List()
	if jsonOut {
		printJSON(records)
		return nil
	}

	if len(records) == 0 {
		fmt.Println("No jobs tracked yet.")
		return nil
	}
	for _, rec := range records {
		cached := "not cached"
		if !rec.LogCachedAt.IsZero() {
			cached = fmt.Sprintf("log cached %s (%d bytes)",
				rec.LogCachedAt.Local().Format(time.DateTime), rec.LogByteOffset)
		}
		fmt.Printf("%s  %-14s %s\n", rec.JobID, rec.Status, dimStyle.Render(cached))
	}
	return nil
}

func runJobsPrune(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	removed, err := rt.jobs.Prune()
	if err != nil {
		return err
	}

	syncer := logsync.NewSyncer(nil, rt.cfg, rt.jobs, rt.paths.LogCacheDir())
	logsRemoved, err := syncer.PruneLogs()
	if err != nil {
		return err
	}

	if jsonOut {
		printJSON(map[string]int{"jobs_removed": removed, "logs_removed": logsRemoved})
		return nil
	}
	fmt.Printf("Pruned %d job record(s) and %d cached log(s).\n", removed, logsRemoved)
	return nil
}

func runJobsRemove(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	removed, err := rt.jobs.Remove(args[0])
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("unknown job: %s", args[0])
	}
	fmt.Printf("Job '%s' removed.\n", args[0])
	return nil
}

func runJobsRefresh(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	client, err := rt.forgeClient()
	if err != nil {
		return err
	}
	syncer := rt.syncer(client)

	ctx, cancel := signalContext()
	defer cancel()

	var failures int
	for _, rec := range rt.jobs.List() {
		if rec.RemoteLogPath == "" {
			continue
		}
		result, err := syncer.Fetch(ctx, rec.JobID, rec.RemoteLogPath)
		if err != nil {
			failures++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", rec.JobID, err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		fmt.Printf("✓ %s: +%d bytes\n", rec.JobID, result.BytesAdded)
	}

	if failures > 0 {
		return fmt.Errorf("%d job(s) failed to refresh", failures)
	}
	return nil
}
