// Package git reads working-tree information shown alongside a run.
package git

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/ticketloop/programmator/internal/debug"
)

// Repo wraps the repository containing a working directory.
type Repo struct {
	repo    *git.Repository
	workDir string
}

// Info is a point-in-time summary of the working tree.
type Info struct {
	Branch string
	Dirty  bool
	// Changed lists paths with staged or unstaged changes, sorted.
	Changed []string
}

// NewRepo opens the repository containing workDir.
func NewRepo(workDir string) (*Repo, error) {
	r, err := git.PlainOpenWithOptions(workDir, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open git repo at %s: %w", workDir, err)
	}
	return &Repo{repo: r, workDir: workDir}, nil
}

// IsInsideRepo reports whether dir is inside a git repository.
func IsInsideRepo(dir string) bool {
	_, err := NewRepo(dir)
	return err == nil
}

// CurrentBranch returns the short name of HEAD. A detached HEAD is reported
// by its abbreviated hash; a repository without commits by its unborn branch.
func (r *Repo) CurrentBranch() (string, error) {
	head, err := r.repo.Head()
	if err == nil {
		if head.Name().IsBranch() {
			return head.Name().Short(), nil
		}
		return head.Hash().String()[:7], nil
	}
	if !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", fmt.Errorf("get HEAD: %w", err)
	}

	ref, err := r.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "", fmt.Errorf("get HEAD: %w", err)
	}
	return ref.Target().Short(), nil
}

// ChangedFiles returns paths with staged or unstaged changes, sorted.
func (r *Repo) ChangedFiles() ([]string, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("get worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("git status: %w", err)
	}

	files := make([]string, 0, len(status))
	for path, s := range status {
		if s.Staging != git.Unmodified || s.Worktree != git.Unmodified {
			files = append(files, path)
		}
	}
	sort.Strings(files)
	return files, nil
}

// HasUncommittedChanges returns true if there are uncommitted changes.
func (r *Repo) HasUncommittedChanges() (bool, error) {
	files, err := r.ChangedFiles()
	if err != nil {
		return false, err
	}
	return len(files) > 0, nil
}

// WorkDir returns the directory the repo was opened from.
func (r *Repo) WorkDir() string {
	return r.workDir
}

// Info collects branch and change state.
func (r *Repo) Info() (Info, error) {
	branch, err := r.CurrentBranch()
	if err != nil {
		return Info{}, err
	}
	changed, err := r.ChangedFiles()
	if err != nil {
		return Info{}, err
	}
	return Info{Branch: branch, Dirty: len(changed) > 0, Changed: changed}, nil
}

// Describe returns Info for workDir, or false when it is not in a repository
// or the state cannot be read.
func Describe(workDir string) (Info, bool) {
	r, err := NewRepo(workDir)
	if err != nil {
		return Info{}, false
	}
	info, err := r.Info()
	if err != nil {
		debug.Logf("git: %v", err)
		return Info{}, false
	}
	return info, true
}

// String renders "branch" or "branch*" when dirty.
func (i Info) String() string {
	if i.Dirty {
		return i.Branch + "*"
	}
	return i.Branch
}
