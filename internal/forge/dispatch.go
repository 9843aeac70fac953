package forge

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Sarfflow/bridgectl/pkg/models"
)

const (
	// runPageSize is the page size used when searching run history.
	runPageSize = 20

	// pollInterval paces status polls. CI runs resolve within tens of
	// seconds to a few minutes, so there is no backoff.
	pollInterval = 3 * time.Second

	// correlateAttempts bounds the dispatch-to-listable propagation
	// delay retries.
	correlateAttempts = 3
)

// NewRequestID produces the correlation key embedded in dispatch
// inputs: <unix_epoch>-<pid>. Practically unique per logical
// operation, and the only way to pair a dispatch with its run.
func NewRequestID(pid int) string {
	return fmt.Sprintf("%d-%d", time.Now().Unix(), pid)
}

// TriggerWorkflow POSTs a workflow_dispatch. Most forges answer HTTP
// 204 with no body; the absence of a run identifier is expected, not
// an error.
func (c *Client) TriggerWorkflow(ctx context.Context, req *models.DispatchRequest) error {
	ref := req.Ref
	if ref == "" {
		ref = "main"
	}
	url := fmt.Sprintf("%s/workflows/%s/dispatches", c.Forge.APIBase(c.Repo), req.WorkflowFile)
	body := map[string]any{
		"ref":    ref,
		"inputs": req.Inputs,
	}
	if err := c.RequestJSON(ctx, "POST", url, body, nil); err != nil {
		return fmt.Errorf("failed to trigger workflow %s: %w", req.WorkflowFile, err)
	}
	return nil
}

// ListRuns fetches one page of recent workflow runs.
func (c *Client) ListRuns(ctx context.Context, limit, page int) (*models.RunList, error) {
	url := fmt.Sprintf("%s/runs?%s", c.Forge.APIBase(c.Repo), c.Forge.PaginationParams(limit, page))
	var list models.RunList
	if err := c.RequestJSON(ctx, "GET", url, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetRun fetches a single workflow run by id.
func (c *Client) GetRun(ctx context.Context, runID string) (*models.WorkflowRun, error) {
	url := fmt.Sprintf("%s/runs/%s", c.Forge.APIBase(c.Repo), runID)
	var run models.WorkflowRun
	if err := c.RequestJSON(ctx, "GET", url, nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// matchesInputs reports whether the run's decoded dispatch inputs
// carry every non-empty expected key with exactly the expected value.
func matchesInputs(inputs, expected map[string]string) bool {
	for key, value := range expected {
		if value == "" {
			continue
		}
		if inputs[key] != value {
			return false
		}
	}
	return true
}

// findRunByInputs scans runs for one whose embedded dispatch inputs
// match the expected values.
func findRunByInputs(runs []*models.WorkflowRun, expected map[string]string) *models.WorkflowRun {
	for _, run := range runs {
		inputs := run.DispatchInputs()
		if len(inputs) == 0 {
			continue
		}
		if matchesInputs(inputs, expected) {
			return run
		}
	}
	return nil
}

// searchRuns scans page 1 of the run history for a matching run, and
// when the total count exceeds one page also scans the last page:
// some forges return runs in ascending-chronological order, which puts
// the newest run last. The filter narrows candidates before matching.
func (c *Client) searchRuns(ctx context.Context, expected map[string]string, filter func(*models.WorkflowRun) bool) (*models.WorkflowRun, error) {
	scan := func(list *models.RunList) *models.WorkflowRun {
		runs := list.Runs
		if filter != nil {
			kept := runs[:0:0]
			for _, run := range runs {
				if filter(run) {
					kept = append(kept, run)
				}
			}
			runs = kept
		}
		return findRunByInputs(runs, expected)
	}

	list, err := c.ListRuns(ctx, runPageSize, 1)
	if err != nil {
		return nil, err
	}
	if run := scan(list); run != nil {
		return run, nil
	}

	total := list.ResolvedTotal()
	if total > runPageSize {
		lastPage := int((total + runPageSize - 1) / runPageSize)
		list, err = c.ListRuns(ctx, runPageSize, lastPage)
		if err != nil {
			return nil, err
		}
		if run := scan(list); run != nil {
			return run, nil
		}
	}
	return nil, nil
}

// CorrelateRun locates the run produced by a dispatch whose inputs
// match expected. There is an unavoidable propagation delay between
// dispatching and the run becoming listable, so the whole search is
// retried a few times with short sleeps. Returns the run id as a
// string, or "" when no run could be resolved within the retry budget;
// the caller must treat that as non-fatal, since the dispatch side
// effect already happened.
func (c *Client) CorrelateRun(ctx context.Context, expected map[string]string) (string, error) {
	for attempt := 0; attempt < correlateAttempts; attempt++ {
		run, err := c.searchRuns(ctx, expected, nil)
		if err != nil {
			slog.Debug("run search failed", "attempt", attempt+1, "error", err)
		} else if run != nil {
			return strconv.FormatInt(run.ID, 10), nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.sleep(time.Second)
	}
	return "", nil
}

// WaitForRun polls a known run until it reaches a terminal status or
// the timeout elapses.
func (c *Client) WaitForRun(ctx context.Context, runID string, timeout time.Duration) (*models.RunResult, error) {
	deadline := c.now().Add(minWait(timeout))

	for {
		if c.now().After(deadline) {
			return nil, &TimeoutError{Message: fmt.Sprintf(
				"workflow timed out after %v.\n"+
					"To increase the timeout, set: export INSP_REMOTE_TIMEOUT=<seconds>", timeout)}
		}

		run, err := c.GetRun(ctx, runID)
		if err != nil {
			return nil, err
		}
		if run.IsTerminal() {
			return terminalResult(run), nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.sleep(pollInterval)
	}
}

// WaitForRequest polls for a terminal run correlated by request_id.
// Used when the run id from dispatch was never captured: the run
// search is re-run on every tick until a terminal matching run appears
// or the deadline elapses.
func (c *Client) WaitForRequest(ctx context.Context, requestID string, timeout time.Duration) (*models.RunResult, error) {
	return c.WaitForInputs(ctx, map[string]string{"request_id": requestID}, timeout)
}

// WaitForInputs polls for a terminal run whose dispatch inputs match
// expected. The generalization of WaitForRequest for workflows that
// carry no request_id but a unique input combination.
func (c *Client) WaitForInputs(ctx context.Context, expected map[string]string, timeout time.Duration) (*models.RunResult, error) {
	deadline := c.now().Add(minWait(timeout))

	for {
		if c.now().After(deadline) {
			return nil, &TimeoutError{Message: fmt.Sprintf(
				"workflow did not finish within %v", timeout)}
		}

		run, err := c.searchRuns(ctx, expected, func(r *models.WorkflowRun) bool {
			return r.IsTerminal()
		})
		if err != nil {
			slog.Debug("run search failed while waiting", "error", err)
		} else if run != nil {
			slog.Debug("found matching run", "status", run.Status, "conclusion", run.Conclusion)
			return terminalResult(run), nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.sleep(pollInterval)
	}
}

func terminalResult(run *models.WorkflowRun) *models.RunResult {
	conclusion := run.Conclusion
	if conclusion == "" {
		conclusion = run.Status
	}
	return &models.RunResult{
		Status:     run.Status,
		Conclusion: conclusion,
		RunID:      strconv.FormatInt(run.ID, 10),
		HTMLURL:    run.HTMLURL,
	}
}

// minWait gives every wait at least a few seconds of budget so a zero
// or tiny configured timeout still allows one poll.
func minWait(timeout time.Duration) time.Duration {
	if timeout < 5*time.Second {
		return 5 * time.Second
	}
	return timeout
}
