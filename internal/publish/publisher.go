// Package publish stages, commits and pushes dataset changes through a
// local git working copy that the publisher exclusively owns.
package publish

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/astrodata/apod-pipeline/internal/config"
	"github.com/astrodata/apod-pipeline/internal/metrics"
	"github.com/astrodata/apod-pipeline/internal/models"
	"github.com/astrodata/apod-pipeline/internal/util"
)

// Result is the outcome of one publish cycle. A nil Commit means the staged
// diff was empty and nothing needed publishing, which is success.
type Result struct {
	Commit   *models.CommitRecord
	Pushed   bool
	Warnings []string
}

// Publisher owns the dataset working directory. All mutating git operations
// for one run hold the mutex, serializing concurrent runs that share the
// directory.
type Publisher struct {
	dir    string
	cfg    config.GitConfig
	runner util.CommandRunner
	now    func() time.Time

	mu sync.Mutex
}

// New builds a Publisher over dir with the default exec runner.
func New(dir string, cfg config.GitConfig) *Publisher {
	return NewWithRunner(dir, cfg, util.ExecRunner{})
}

// NewWithRunner allows tests to substitute the command runner.
func NewWithRunner(dir string, cfg config.GitConfig, runner util.CommandRunner) *Publisher {
	return &Publisher{dir: dir, cfg: cfg, runner: runner, now: time.Now}
}

func (p *Publisher) git(ctx context.Context, args ...string) (string, string, error) {
	return p.runner.Run(ctx, p.dir, "git", args...)
}

// ensureRepo initializes the repository, its author identity and the
// safe-directory trust mark. Idempotent.
func (p *Publisher) ensureRepo(ctx context.Context) error {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("create working dir: %w", err)
	}
	if _, err := os.Stat(filepath.Join(p.dir, ".git")); os.IsNotExist(err) {
		if _, stderr, err := p.git(ctx, "init"); err != nil {
			return fmt.Errorf("git init: %w: %s", err, stderr)
		}
	}
	if _, stderr, err := p.git(ctx, "config", "user.name", p.cfg.AuthorName); err != nil {
		return fmt.Errorf("git config user.name: %w: %s", err, stderr)
	}
	if _, stderr, err := p.git(ctx, "config", "user.email", p.cfg.AuthorEmail); err != nil {
		return fmt.Errorf("git config user.email: %w: %s", err, stderr)
	}
	// Container and shared environments often run the pipeline as a user
	// that does not own the working copy; without this git refuses to
	// operate on it.
	if _, stderr, err := p.git(ctx, "config", "--global", "--add", "safe.directory", p.dir); err != nil {
		log.Printf("publish: mark safe.directory: %v: %s", err, stderr)
	}
	return nil
}

// ensureRemote adds origin if configured. An already-present remote is a
// no-op, not an error.
func (p *Publisher) ensureRemote(ctx context.Context) error {
	if p.cfg.RemoteURL == "" {
		return nil
	}
	_, stderr, err := p.git(ctx, "remote", "add", "origin", p.cfg.RemoteURL)
	if err != nil && !strings.Contains(stderr, "already exists") {
		return fmt.Errorf("git remote add: %w: %s", err, stderr)
	}
	return nil
}

// Publish stages paths, commits when the staged diff is non-empty and
// attempts a push. Push failure never fails the publish: the commit
// persists locally and can be pushed on a later run.
func (p *Publisher) Publish(ctx context.Context, date string, paths []string) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var res Result

	if err := p.ensureRepo(ctx); err != nil {
		return res, err
	}
	if err := p.ensureRemote(ctx); err != nil {
		return res, err
	}

	staged := p.stage(ctx, paths)
	if len(staged) == 0 {
		log.Printf("publish: nothing to stage for %s", date)
		return res, nil
	}

	// Empty staged diff means the dataset did not change; that is a normal
	// terminal state.
	if _, _, err := p.git(ctx, "diff", "--cached", "--quiet"); err == nil {
		log.Printf("publish: no changes to commit for %s", date)
		return res, nil
	}

	message := fmt.Sprintf("Update APOD data version for %s", date)
	if _, stderr, err := p.git(ctx, "commit", "-m", message); err != nil {
		if strings.Contains(stderr, "nothing to commit") {
			log.Printf("publish: nothing to commit for %s", date)
			return res, nil
		}
		return res, fmt.Errorf("git commit: %w: %s", err, stderr)
	}

	hash, stderr, err := p.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return res, fmt.Errorf("git rev-parse: %w: %s", err, stderr)
	}
	res.Commit = &models.CommitRecord{
		Hash:        hash,
		Message:     message,
		Author:      fmt.Sprintf("%s <%s>", p.cfg.AuthorName, p.cfg.AuthorEmail),
		Timestamp:   p.now().UTC(),
		StagedPaths: staged,
	}
	log.Printf("publish: committed %s (%s)", shortHash(hash), message)

	res.Pushed, res.Warnings = p.push(ctx)
	return res, nil
}

// stage adds each existing path plus any ignore file, returning what was
// actually staged. Missing paths are skipped, not errors.
func (p *Publisher) stage(ctx context.Context, paths []string) []string {
	candidates := append([]string{}, paths...)
	if _, err := os.Stat(filepath.Join(p.dir, ".gitignore")); err == nil {
		candidates = append(candidates, ".gitignore")
	}

	var staged []string
	for _, path := range candidates {
		if _, err := os.Stat(filepath.Join(p.dir, path)); err != nil {
			continue
		}
		if _, stderr, err := p.git(ctx, "add", path); err != nil {
			log.Printf("publish: git add %s: %v: %s", path, err, stderr)
			continue
		}
		staged = append(staged, path)
	}
	return staged
}

// push sends the current branch to origin using token credentials embedded
// in the push URL. Any failure is a warning only.
func (p *Publisher) push(ctx context.Context) (bool, []string) {
	if p.cfg.RemoteURL == "" {
		return false, []string{"no git remote configured, commit kept local"}
	}

	target := pushURL(p.cfg.RemoteURL, p.cfg.Token)
	refspec := fmt.Sprintf("HEAD:refs/heads/%s", p.cfg.Branch)
	if _, stderr, err := p.git(ctx, "push", target, refspec); err != nil {
		metrics.Pushes.WithLabelValues("failure").Inc()
		warning := fmt.Sprintf("push failed: %v: %s", err, stderr)
		log.Printf("publish: %s", warning)
		return false, []string{warning}
	}
	metrics.Pushes.WithLabelValues("success").Inc()
	log.Printf("publish: pushed to %s", p.cfg.Branch)
	return true, nil
}

// pushURL injects the token into an https remote URL. Non-https URLs are
// returned unchanged.
func pushURL(remote, token string) string {
	if token == "" || !strings.HasPrefix(remote, "https://") {
		return remote
	}
	return "https://x-access-token:" + token + "@" + strings.TrimPrefix(remote, "https://")
}

func shortHash(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	return h
}
