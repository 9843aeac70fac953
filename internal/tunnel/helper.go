package tunnel

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultHelperURL points at the nightly build of the WebSocket-to-stdio
// helper. Overridable via bridge.helper_download_url for air-gapped or
// pinned setups.
const DefaultHelperURL = "https://github.com/Sarfflow/rtunnel/releases/download/nightly/rtunnel-linux-amd64.tar.gz"

const downloadTimeout = 60 * time.Second

// EnsureHelper makes sure the helper binary exists at HelperPath,
// downloading and unpacking it on first use. Presence is the only
// idempotency check; upgrades are done by deleting the binary.
func (t *Transport) EnsureHelper(ctx context.Context) (string, error) {
	if info, err := os.Stat(t.HelperPath); err == nil && !info.IsDir() {
		return t.HelperPath, nil
	}

	url := t.HelperURL
	if url == "" {
		url = DefaultHelperURL
	}
	slog.Info("downloading tunnel helper", "url", url, "dest", t.HelperPath)

	if err := downloadHelper(ctx, url, t.HelperPath); err != nil {
		return "", &NotAvailableError{Message: fmt.Sprintf("failed to install tunnel helper: %v", err)}
	}
	return t.HelperPath, nil
}

// downloadHelper fetches a .tar.gz release archive and extracts the
// member whose name contains "rtunnel" to destPath, executable.
func downloadHelper(ctx context.Context, url, destPath string) error {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: HTTP %d", url, resp.StatusCode)
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return fmt.Errorf("archive is not gzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if !strings.Contains(filepath.Base(hdr.Name), "rtunnel") {
			continue
		}

		if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
			return err
		}
		out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			os.Remove(destPath)
			return err
		}
		return out.Close()
	}
	return fmt.Errorf("archive has no rtunnel binary")
}
