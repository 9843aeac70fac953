package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// WorkflowRun represents a single Actions workflow run as returned by
// the Gitea or GitHub runs API. EventPayload carries the original
// dispatch inputs as embedded JSON and is the only way to recover
// which dispatch produced a given run.
type WorkflowRun struct {
	ID           int64  `json:"id"`
	Status       string `json:"status"`
	Conclusion   string `json:"conclusion"`
	HTMLURL      string `json:"html_url"`
	EventPayload string `json:"event_payload"`
}

// IsTerminal reports whether the run has reached a terminal state.
// Gitea reports "success"/"failure" directly as status values while
// GitHub uses "completed" plus a conclusion.
func (r *WorkflowRun) IsTerminal() bool {
	switch r.Status {
	case "completed", "success", "failure":
		return true
	}
	return false
}

// DispatchInputs decodes the inputs map embedded in the run's event
// payload. A missing or malformed payload yields an empty map.
func (r *WorkflowRun) DispatchInputs() map[string]string {
	if r.EventPayload == "" {
		return map[string]string{}
	}
	var payload struct {
		Inputs map[string]json.RawMessage `json:"inputs"`
	}
	if err := json.Unmarshal([]byte(r.EventPayload), &payload); err != nil {
		return map[string]string{}
	}
	inputs := make(map[string]string, len(payload.Inputs))
	for k, raw := range payload.Inputs {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			inputs[k] = s
			continue
		}
		// Non-string inputs are matched by their stringified form.
		inputs[k] = string(raw)
	}
	return inputs
}

// RunList is the envelope returned by the runs listing endpoint. Forges
// disagree on the name of the count field.
type RunList struct {
	TotalCount int64          `json:"total_count"`
	Total      int64          `json:"total"`
	Count      int64          `json:"count"`
	Runs       []*WorkflowRun `json:"workflow_runs"`
}

// ResolvedTotal returns the total run count regardless of which field
// the forge populated. Zero means the forge did not report one.
func (l *RunList) ResolvedTotal() int64 {
	if l.TotalCount > 0 {
		return l.TotalCount
	}
	if l.Total > 0 {
		return l.Total
	}
	return l.Count
}

// Artifact represents one entry from the repository artifacts API.
type Artifact struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Expired bool   `json:"expired"`
}

// ArtifactList is the envelope returned by the artifacts endpoint.
type ArtifactList struct {
	Artifacts []*Artifact `json:"artifacts"`
}

// DispatchRequest describes a workflow_dispatch trigger. Inputs must
// carry a request_id (or an equivalent unique key combination) since
// the dispatch endpoint returns no run identifier.
type DispatchRequest struct {
	WorkflowFile string
	Ref          string
	Inputs       map[string]string
}

// RunResult is the terminal outcome of a dispatched workflow run.
type RunResult struct {
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
	RunID      string `json:"run_id"`
	HTMLURL    string `json:"html_url"`
}

// Succeeded reports whether the run concluded successfully.
func (r *RunResult) Succeeded() bool {
	return r.Conclusion == "success"
}

// ExecResult captures the outcome of a command executed on the Bridge
// host over the direct transport.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// JobRecord is one entry in the local job store.
type JobRecord struct {
	JobID         string    `json:"-"`
	Name          string    `json:"name"`
	Resource      string    `json:"resource,omitempty"`
	Command       string    `json:"command,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	RemoteLogPath string    `json:"remote_log_path,omitempty"`
	LogPath       string    `json:"log_path,omitempty"`
	LogByteOffset int64     `json:"log_byte_offset,omitempty"`
	LogCachedAt   time.Time `json:"log_cached_at,omitzero"`
}

// TerminalJobStatus reports whether a job status string is terminal.
// The job API emits both uppercase and snake_case forms.
func TerminalJobStatus(status string) bool {
	switch status {
	case "SUCCEEDED", "FAILED", "CANCELLED",
		"job_succeeded", "job_failed", "job_cancelled":
		return true
	}
	return false
}

// LogArtifactName is the deterministic identity shared by the artifact
// API lookup and the raw-branch filename for a job log upload.
func LogArtifactName(jobID, requestID string) string {
	return fmt.Sprintf("job-%s-log-%s", jobID, requestID)
}

// BridgeArtifactName is the identity of a bridge-exec output bundle.
func BridgeArtifactName(requestID string) string {
	return fmt.Sprintf("bridge-action-%s", requestID)
}
