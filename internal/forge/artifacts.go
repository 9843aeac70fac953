package forge

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sarfflow/bridgectl/pkg/models"
)

// logsBranch is the branch the Bridge workflows commit result files to
// when the artifact API is unavailable. The artifact name doubles as
// the filename there, which makes the two retrieval methods
// interchangeable fallbacks for the same logical object.
const logsBranch = "logs"

// findArtifact searches repository artifacts for a non-expired one
// with the given name. A lookup failure is treated as "not found";
// the caller polls.
func (c *Client) findArtifact(ctx context.Context, name string) *models.Artifact {
	url := fmt.Sprintf("%s/artifacts?limit=100", c.Forge.APIBase(c.Repo))
	var list models.ArtifactList
	if err := c.RequestJSON(ctx, "GET", url, nil, &list); err != nil {
		slog.Debug("artifact listing failed", "error", err)
		return nil
	}
	for _, art := range list.Artifacts {
		if art.Name == name && !art.Expired {
			return art
		}
	}
	return nil
}

// WaitForLogArtifact polls for a job-log upload and writes it to
// destPath. Two retrieval strategies are tried per tick, first success
// wins:
//
//  1. the artifact API (Gitea 1.24+ and GitHub): download the zip and
//     extract its first non-directory member;
//  2. the raw file <name>.log on the logs branch, accepted verbatim.
//
// A 404 or empty body just means "not ready yet". On deadline expiry a
// TimeoutError identifies the missing artifact.
func (c *Client) WaitForLogArtifact(ctx context.Context, jobID, requestID, destPath string, timeout time.Duration) error {
	name := models.LogArtifactName(jobID, requestID)
	deadline := c.now().Add(minWait(timeout))

	for {
		if c.now().After(deadline) {
			return &TimeoutError{Message: fmt.Sprintf(
				"remote log retrieval timed out after %v waiting for artifact %s", timeout, name)}
		}

		if art := c.findArtifact(ctx, name); art != nil && art.ID != 0 {
			url := fmt.Sprintf("%s/artifacts/%d/zip", c.Forge.APIBase(c.Repo), art.ID)
			data, err := c.RequestBytes(ctx, "GET", url)
			if err == nil {
				if err := writeFirstZipMember(data, destPath); err == nil {
					return nil
				}
			}
			// Fall through to the raw file method.
		}

		rawURL := c.Forge.RawFileURL(c.Repo, logsBranch, name+".log")
		data, err := c.RequestBytes(ctx, "GET", rawURL)
		if err == nil && len(data) > 0 {
			if err := writeFile(destPath, data); err != nil {
				return err
			}
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.sleep(pollInterval)
	}
}

// DownloadBridgeArtifact fetches the output bundle of a bridge-exec
// run from the logs branch and unpacks it into destDir.
func (c *Client) DownloadBridgeArtifact(ctx context.Context, requestID, destDir string) error {
	name := models.BridgeArtifactName(requestID)
	rawURL := c.Forge.RawFileURL(c.Repo, logsBranch, name+".zip")

	data, err := c.RequestBytes(ctx, "GET", rawURL)
	if err != nil || len(data) == 0 {
		return &Error{Message: fmt.Sprintf("artifact not found: %s", name)}
	}
	if err := extractZipTo(data, destDir); err != nil {
		return &Error{Message: fmt.Sprintf("artifact %s is not a valid zip: %v", name, err)}
	}
	return nil
}

// FetchBridgeOutput returns the output.log member of a bridge-exec
// bundle, or "" when the bundle or the member is absent. Output
// display is best-effort, so this never fails hard.
func (c *Client) FetchBridgeOutput(ctx context.Context, requestID string) string {
	name := models.BridgeArtifactName(requestID)
	rawURL := c.Forge.RawFileURL(c.Repo, logsBranch, name+".zip")

	data, err := c.RequestBytes(ctx, "GET", rawURL)
	if err != nil || len(data) == 0 {
		return ""
	}

	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ""
	}
	for _, member := range r.File {
		if member.Name == "output.log" || strings.HasSuffix(member.Name, "/output.log") {
			f, err := member.Open()
			if err != nil {
				return ""
			}
			defer f.Close()
			content, err := io.ReadAll(f)
			if err != nil {
				return ""
			}
			return string(content)
		}
	}
	return ""
}

// writeFirstZipMember extracts the first non-directory zip member to
// destPath.
func writeFirstZipMember(data []byte, destPath string) error {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	for _, member := range r.File {
		if member.FileInfo().IsDir() {
			continue
		}
		src, err := member.Open()
		if err != nil {
			return err
		}
		defer src.Close()
		content, err := io.ReadAll(src)
		if err != nil {
			return err
		}
		return writeFile(destPath, content)
	}
	return fmt.Errorf("zip archive has no file members")
}

// extractZipTo unpacks every member of the archive into destDir,
// rejecting members that would escape it.
func extractZipTo(data []byte, destDir string) error {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	for _, member := range r.File {
		target := filepath.Join(destDir, filepath.Clean(member.Name))
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("zip member %q escapes destination", member.Name)
		}
		if member.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		src, err := member.Open()
		if err != nil {
			return err
		}
		content, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			return err
		}
		if err := writeFile(target, content); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
