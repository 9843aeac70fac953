package forge

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/Sarfflow/bridgectl/internal/config"
	"github.com/Sarfflow/bridgectl/pkg/models"
)

// TriggerLogRetrieval dispatches the workflow that reads a job log on
// the Bridge host's shared filesystem and uploads it as an artifact.
// startOffset > 0 asks the remote reader to seek before reading.
func TriggerLogRetrieval(ctx context.Context, c *Client, cfg *config.Config, jobID, remoteLogPath, requestID string, startOffset int64) error {
	return c.TriggerWorkflow(ctx, &models.DispatchRequest{
		WorkflowFile: cfg.WorkflowFile(config.WorkflowLog),
		Inputs: map[string]string{
			"job_id":          jobID,
			"remote_log_path": remoteLogPath,
			"request_id":      requestID,
			"start_offset":    strconv.FormatInt(startOffset, 10),
		},
	})
}

// TriggerSync dispatches the code-sync workflow and tries to resolve
// the resulting run id by correlating on the full input set. An empty
// run id is not an error: the dispatch already happened and the caller
// can still babysit the run through WaitForInputs with the returned
// input set.
func TriggerSync(ctx context.Context, c *Client, cfg *config.Config, branch, commitSHA string, force bool) (string, map[string]string, error) {
	inputs := map[string]string{
		"branch":     branch,
		"commit_sha": commitSHA,
		"force":      strconv.FormatBool(force),
		"target_dir": cfg.TargetDir,
	}
	if err := c.TriggerWorkflow(ctx, &models.DispatchRequest{
		WorkflowFile: cfg.WorkflowFile(config.WorkflowSync),
		Inputs:       inputs,
	}); err != nil {
		return "", nil, err
	}

	// Give the forge a moment before searching run history.
	c.sleep(2 * time.Second)

	runID, err := c.CorrelateRun(ctx, inputs)
	return runID, inputs, err
}

// TriggerBridgeAction dispatches the workflow that executes an
// arbitrary command on the Bridge runner. Results are correlated later
// via the embedded request_id.
func TriggerBridgeAction(ctx context.Context, c *Client, cfg *config.Config, rawCommand, requestID string, artifactPaths, denylist []string) error {
	return c.TriggerWorkflow(ctx, &models.DispatchRequest{
		WorkflowFile: cfg.WorkflowFile(config.WorkflowBridge),
		Inputs: map[string]string{
			"raw_command":    rawCommand,
			"denylist":       strings.Join(denylist, "\n"),
			"target_dir":     cfg.TargetDir,
			"artifact_paths": strings.Join(artifactPaths, "\n"),
			"request_id":     requestID,
		},
	})
}
