package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sarfflow/bridgectl/internal/forge"
	"github.com/Sarfflow/bridgectl/internal/git"
	"github.com/Sarfflow/bridgectl/internal/wizard"
	"github.com/Sarfflow/bridgectl/pkg/models"
)

var (
	syncBranch string
	syncForce  bool

	syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Sync the Bridge host's working copy to the current branch",
		Long: `Bring the working copy on the Bridge host up to date with the branch
checked out locally.

Over the tunnel this runs git fetch/checkout/pull directly on the host.
Without a tunnel it dispatches the sync workflow on the configured
repository and waits for it to finish. --force discards local changes
on the Bridge host with a hard reset.`,
		RunE: runSync,
	}
)

func init() {
	syncCmd.Flags().StringVar(&syncBranch, "branch", "", "Branch to sync (default: the locally checked-out branch)")
	syncCmd.Flags().BoolVarP(&syncForce, "force", "f", false, "Hard-reset the Bridge working copy to the remote branch")

	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	targetDir, err := rt.cfg.RequireTargetDir()
	if err != nil {
		return err
	}

	branch := syncBranch
	if branch == "" {
		branch, err = git.CurrentBranch()
		if err != nil {
			return err
		}
	}
	commitSHA, err := git.HeadSHA()
	if err != nil {
		// Branch-only sync still works; the SHA is informational for
		// correlation and display.
		commitSHA = ""
	}

	ctx, cancel := signalContext()
	defer cancel()

	r := rt.router()
	timeout := time.Duration(rt.cfg.RemoteTimeout) * time.Second

	var syncedSHA string
	mode, err := r.Run(ctx,
		func(ctx context.Context) error {
			sha, err := rt.transport.SyncViaSSH(ctx, bridgeName, targetDir, branch, syncForce, timeout)
			if err != nil {
				return err
			}
			syncedSHA = sha
			return nil
		},
		func(ctx context.Context) error {
			sha, err := syncMediated(ctx, rt, branch, commitSHA, timeout)
			if err != nil {
				return err
			}
			syncedSHA = sha
			return nil
		},
	)
	if err != nil {
		return err
	}

	if jsonOut {
		printJSON(map[string]string{
			"branch":    branch,
			"commit":    syncedSHA,
			"transport": string(mode),
		})
	} else {
		fmt.Printf("Synced %s to %s", branch, shortSHA(syncedSHA))
		fmt.Printf(" (%s)\n", mode)
	}
	return nil
}

func syncMediated(ctx context.Context, rt *runtime, branch, commitSHA string, timeout time.Duration) (string, error) {
	client, err := rt.forgeClient()
	if err != nil {
		return "", err
	}

	runID, inputs, err := forge.TriggerSync(ctx, client, rt.cfg, branch, commitSHA, syncForce)
	if err != nil {
		return "", err
	}

	res, err := wizard.RunWithSpinner(ctx, "Waiting for sync workflow", func() (any, error) {
		if runID != "" {
			return client.WaitForRun(ctx, runID, timeout)
		}
		// Correlation failed; fall back to searching by the inputs we
		// dispatched with.
		return client.WaitForInputs(ctx, inputs, timeout)
	})
	if err != nil {
		return "", err
	}
	result := res.(*models.RunResult)
	if !result.Succeeded() {
		return "", fmt.Errorf("sync workflow finished with conclusion %q (run %s)", result.Conclusion, result.RunID)
	}
	return commitSHA, nil
}

func shortSHA(sha string) string {
	if len(sha) > 10 {
		return sha[:10]
	}
	if sha == "" {
		return "HEAD"
	}
	return sha
}
