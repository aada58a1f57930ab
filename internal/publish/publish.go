// Package publish writes the built calendar document to disk and
// optionally pushes it to a remote host over scp.
package publish

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	appLog "adecal/internal/log"
)

const deployTimeout = 60 * time.Second

// WriteFile writes the document atomically: temp file in the target
// directory, sync, chmod, rename. Clients polling the file over HTTP
// or WebDAV never see a half-written calendar.
func WriteFile(path, doc string) error {
	if path == "" {
		return fmt.Errorf("publish: output path is empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("publish: create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".adecal-ics-*.tmp")
	if err != nil {
		return fmt.Errorf("publish: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(doc); err != nil {
		tmp.Close()
		return fmt.Errorf("publish: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("publish: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("publish: close: %w", err)
	}

	// The calendar is world-readable on purpose; it is served as-is.
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("publish: chmod: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("publish: rename: %w", err)
	}

	appLog.Info("calendar written", "path", path, "bytes", len(doc))
	return nil
}

// Deploy copies the written file to an scp target ("host:path" or
// "user@host:path"). A no-op when target is empty. scp rather than an
// SDK: the box serving the calendar only speaks SSH, and key setup is
// the operator's problem, not this program's.
func Deploy(ctx context.Context, path, target string) error {
	if target == "" {
		return nil
	}
	if !strings.Contains(target, ":") {
		return fmt.Errorf("publish: deploy target %q is not host:path", target)
	}

	ctx, cancel := context.WithTimeout(ctx, deployTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "scp", "-q", path, target)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("publish: scp to %q: %w: %s", target, err, strings.TrimSpace(string(out)))
	}

	appLog.Info("calendar deployed", "target", target)
	return nil
}
