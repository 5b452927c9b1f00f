package resolver

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/mmr-tortoise/portmux/internal/model"
)

// groupWorktree is one entry of `git worktree list --porcelain`, trimmed to the fields the
// resolver needs to match a worktree's location to a registered repository and to label its
// checked-out branch. The porcelain format also carries HEAD SHAs and "bare" markers, but nothing
// a ResolvedGroup or SelectableCandidate exposes needs them.
type groupWorktree struct {
	path   string
	branch string
}

// branchLabel is the display form ResolvedGroup.BranchLabel and SelectableCandidate.BranchLabel
// use: "detached" when the worktree has no branch ref checked out.
func (w groupWorktree) branchLabel() string {
	if w.branch == "" {
		return "detached"
	}
	return strings.TrimPrefix(w.branch, "refs/heads/")
}

// listGroupWorktrees enumerates every worktree of the repository containing repoPath. ResolveAuto
// uses it to find which worktree the caller's cwd sits inside; BuildSelectable uses it to turn
// each registered repository into one candidate row per worktree.
func listGroupWorktrees(repoPath string) ([]groupWorktree, error) {
	output, err := runGit(repoPath, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parseWorktreeList(output), nil
}

// repoRoot returns the absolute path to the top-level directory of the Git working tree
// containing path. ResolveAuto anchors its worktree search here; select's candidate sort uses it
// to find the caller's own repo root.
func repoRoot(path string) (string, error) {
	output, err := runGit(path, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// currentBranch returns the short name of the branch checked out at path ("HEAD" when detached).
// ResolveByName, ResolveAuto and the first-group fallback all use it to populate
// ResolvedGroup.BranchLabel.
func currentBranch(path string) (string, error) {
	output, err := runGit(path, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

func runGit(repoPath string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", repoPath}, args...)
	// #nosec G204 — args are constructed internally, never from raw user input
	cmd := exec.Command("git", fullArgs...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		stderrStr := strings.TrimSpace(stderr.String())
		message := fmt.Sprintf("git %s failed", strings.Join(args, " "))
		if stderrStr != "" {
			message = fmt.Sprintf("%s: %s", message, stderrStr)
		}
		return "", model.WrapCLIError(model.ExitGroupResolution, message, err)
	}
	return stdout.String(), nil
}

// parseWorktreeList parses `git worktree list --porcelain` blocks into groupWorktree values. Only
// "worktree" and "branch" keys are kept — "bare"/"detached" markers don't affect how the resolver
// matches or labels a worktree, so they're dropped rather than carried as unused fields.
func parseWorktreeList(output string) []groupWorktree {
	var worktrees []groupWorktree
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	var current *groupWorktree
	for _, line := range lines {
		if line == "" {
			if current != nil {
				worktrees = append(worktrees, *current)
				current = nil
			}
			continue
		}
		key, value, _ := strings.Cut(line, " ")
		switch key {
		case "worktree":
			current = &groupWorktree{path: value}
		case "branch":
			if current != nil {
				current.branch = value
			}
		}
	}
	if current != nil {
		worktrees = append(worktrees, *current)
	}
	return worktrees
}

// CallerRepoRoot returns the Git root containing cwd, or "" when cwd isn't inside a Git working
// tree. select uses it to prioritize BuildSelectable candidates that live under the invoking
// shell's own repository.
func CallerRepoRoot(cwd string) string {
	root, err := repoRoot(cwd)
	if err != nil {
		return ""
	}
	return root
}
