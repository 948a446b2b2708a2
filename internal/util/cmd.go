package util

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
)

// CommandRunner abstracts external tool invocation so version-control and
// data-versioning steps can be exercised in tests without the real binaries.
type CommandRunner interface {
	Run(ctx context.Context, dir string, name string, args ...string) (stdout string, stderr string, err error)
}

// ExecRunner runs commands through os/exec, capturing both output streams.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir string, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return strings.TrimSpace(stdout.String()), strings.TrimSpace(stderr.String()), err
}
