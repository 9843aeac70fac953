package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sarfflow/bridgectl/internal/config"
	"github.com/Sarfflow/bridgectl/internal/forge"
	"github.com/Sarfflow/bridgectl/internal/wizard"
	"github.com/Sarfflow/bridgectl/pkg/models"
)

var (
	execTimeout   int
	execArtifacts []string
	execDownload  string
	execNoWait    bool

	execCmd = &cobra.Command{
		Use:   "exec -- <command> [args...]",
		Short: "Run a command on the Bridge host",
		Long: `Run a shell command on the Bridge host.

With a working tunnel the command runs over SSH and its output streams
back immediately. Otherwise (or with --no-tunnel) it is dispatched as a
workflow on the configured repository and the output is retrieved from
the run's artifact bundle.

Artifact collection (--artifact) always uses the mediated path, since
SSH has no file-transfer channel in this setup.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runExec,
	}
)

func init() {
	execCmd.Flags().IntVarP(&execTimeout, "timeout", "t", 0, "Seconds to wait for completion (default: bridge.action_timeout)")
	execCmd.Flags().StringArrayVarP(&execArtifacts, "artifact", "a", nil, "Remote path to collect into the result bundle (repeatable)")
	execCmd.Flags().StringVar(&execDownload, "download", "", "Directory to download the result bundle into")
	execCmd.Flags().BoolVar(&execNoWait, "no-wait", false, "Dispatch and return without waiting for completion")

	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	command := strings.Join(args, " ")
	remoteCommand := config.BuildEnvExports(rt.cfg.RemoteEnv) + command

	timeout := time.Duration(execTimeout) * time.Second
	if execTimeout == 0 {
		timeout = time.Duration(rt.cfg.Bridge.ActionTimeout) * time.Second
	}

	r := rt.router()

	// Artifact collection and downloads only exist on the mediated path.
	if len(execArtifacts) > 0 || execDownload != "" {
		_, err := r.RunMediated(ctx, func(ctx context.Context) error {
			return execMediated(ctx, rt, remoteCommand, timeout)
		})
		return err
	}

	_, err = r.Run(ctx,
		func(ctx context.Context) error {
			return execDirect(ctx, rt, remoteCommand, timeout)
		},
		func(ctx context.Context) error {
			return execMediated(ctx, rt, remoteCommand, timeout)
		},
	)
	return err
}

func execDirect(ctx context.Context, rt *runtime, command string, timeout time.Duration) error {
	result, err := rt.transport.RunCommand(ctx, bridgeName, command, timeout)
	if err != nil {
		return err
	}

	if jsonOut {
		printJSON(map[string]any{
			"transport": "direct",
			"exit_code": result.ExitCode,
			"stdout":    result.Stdout,
			"stderr":    result.Stderr,
		})
	} else {
		fmt.Print(result.Stdout)
		fmt.Fprint(os.Stderr, result.Stderr)
	}

	if result.ExitCode != 0 {
		return fmt.Errorf("remote command exited with code %d", result.ExitCode)
	}
	return nil
}

func execMediated(ctx context.Context, rt *runtime, command string, timeout time.Duration) error {
	client, err := rt.forgeClient()
	if err != nil {
		return err
	}

	requestID := forge.NewRequestID(os.Getpid())
	if err := forge.TriggerBridgeAction(ctx, client, rt.cfg, command, requestID,
		execArtifacts, rt.cfg.Bridge.Denylist); err != nil {
		return err
	}

	if execNoWait {
		if jsonOut {
			printJSON(map[string]string{"request_id": requestID, "status": "dispatched"})
		} else {
			fmt.Printf("Dispatched. Request ID: %s\n", requestID)
		}
		return nil
	}

	res, err := wizard.RunWithSpinner(ctx, "Waiting for remote execution", func() (any, error) {
		return client.WaitForRequest(ctx, requestID, timeout)
	})
	if err != nil {
		return err
	}
	result := res.(*models.RunResult)

	output := client.FetchBridgeOutput(ctx, requestID)

	if execDownload != "" {
		if err := client.DownloadBridgeArtifact(ctx, requestID, execDownload); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: artifact download failed: %v\n", err)
		} else if !jsonOut {
			fmt.Printf("Artifacts downloaded to %s\n", execDownload)
		}
	}

	if jsonOut {
		printJSON(map[string]any{
			"transport":  "mediated",
			"request_id": requestID,
			"run_id":     result.RunID,
			"status":     result.Status,
			"conclusion": result.Conclusion,
			"output":     output,
		})
	} else {
		if output != "" {
			fmt.Print(output)
			if !strings.HasSuffix(output, "\n") {
				fmt.Println()
			}
		}
	}

	if !result.Succeeded() {
		return fmt.Errorf("remote execution finished with conclusion %q (run %s)", result.Conclusion, result.RunID)
	}
	return nil
}
