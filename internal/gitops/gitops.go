package gitops

import (
	"fmt"
	"os/exec"
	"strings"
)

// GitRunner provides git command execution. Interface for testing.
type GitRunner interface {
	RunGit(dir string, args ...string) (string, error)
}

// ExecRunner implements GitRunner using exec.Command.
type ExecRunner struct{}

func (r *ExecRunner) RunGit(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Repo provides the git operations the remediation loop needs, rooted at
// one working tree.
type Repo struct {
	git GitRunner
	dir string
}

// NewRepo creates a Repo for the working tree at dir.
func NewRepo(git GitRunner, dir string) *Repo {
	return &Repo{git: git, dir: dir}
}

// Dir returns the working tree path.
func (r *Repo) Dir() string {
	return r.dir
}

// HasChanges reports whether the working tree has uncommitted changes,
// including untracked files.
func (r *Repo) HasChanges() (bool, error) {
	out, err := r.git.RunGit(r.dir, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("status: %w", err)
	}
	return strings.TrimSpace(out) != "", nil
}

// ChangedFiles lists paths with uncommitted changes.
func (r *Repo) ChangedFiles() ([]string, error) {
	out, err := r.git.RunGit(r.dir, "status", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		// porcelain format: XY <path>
		if i := strings.IndexByte(line, ' '); i >= 0 {
			files = append(files, strings.TrimSpace(line[i+1:]))
		}
	}
	return files, nil
}

// CommitAll stages everything and commits with the given message.
func (r *Repo) CommitAll(message string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("empty commit message")
	}
	if _, err := r.git.RunGit(r.dir, "add", "-A"); err != nil {
		return fmt.Errorf("stage changes: %w", err)
	}
	if _, err := r.git.RunGit(r.dir, "commit", "-m", message); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// AmendCommit folds the current working-tree changes into the HEAD commit
// without changing its message. The amended commit gets a new SHA.
func (r *Repo) AmendCommit() error {
	if _, err := r.git.RunGit(r.dir, "add", "-A"); err != nil {
		return fmt.Errorf("stage changes: %w", err)
	}
	if _, err := r.git.RunGit(r.dir, "commit", "--amend", "--no-edit"); err != nil {
		return fmt.Errorf("amend commit: %w", err)
	}
	return nil
}

// Head returns the full SHA of the current HEAD commit.
func (r *Repo) Head() (string, error) {
	out, err := r.git.RunGit(r.dir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// CurrentBranch returns the checked-out branch name.
func (r *Repo) CurrentBranch() (string, error) {
	out, err := r.git.RunGit(r.dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolve branch: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Push pushes a branch to origin.
func (r *Repo) Push(branch string) error {
	if strings.HasPrefix(branch, "-") {
		return fmt.Errorf("invalid branch name %q: must not start with -", branch)
	}
	if _, err := r.git.RunGit(r.dir, "push", "-u", "origin", branch); err != nil {
		return fmt.Errorf("push branch: %w", err)
	}
	return nil
}

// ForcePush pushes with --force-with-lease, safe after an amend that
// rewrote history already on the remote.
func (r *Repo) ForcePush(branch string) error {
	if strings.HasPrefix(branch, "-") {
		return fmt.Errorf("invalid branch name %q: must not start with -", branch)
	}
	if _, err := r.git.RunGit(r.dir, "push", "--force-with-lease", "-u", "origin", branch); err != nil {
		return fmt.Errorf("force push branch: %w", err)
	}
	return nil
}
