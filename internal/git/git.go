package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Diff runs `git diff -U0` against baseRef inside dir and returns the raw
// unified diff. An empty baseRef diffs the working tree against the index.
func Diff(ctx context.Context, dir, baseRef string) ([]byte, error) {
	args := []string{"diff", "-U0", "--no-color"}
	if baseRef != "" {
		args = append(args, baseRef)
	}
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("git diff failed: %s: %w", msg, err)
		}
		return nil, fmt.Errorf("git diff failed: %w", err)
	}
	return out, nil
}
