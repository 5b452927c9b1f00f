package resolver

import (
	"fmt"
	"path/filepath"

	"github.com/cespare/xxhash/v2"

	"github.com/mmr-tortoise/portmux/internal/slug"
)

// GroupInstanceId assembles the identity a ResolvedGroup is keyed under: a stable slug of
// repositoryName, a stable slug of groupDefinitionName, and an 8-hex-digit hash (the low 32 bits
// of xxhash) of the absolute, cleaned worktree path. Symlinks in the path are not resolved, so two
// spellings of one directory through different symlinks hash differently. The worktree hash is what lets the same repository checked out at
// two different worktrees produce two distinct, non-colliding instance IDs.
func GroupInstanceId(repositoryName, groupDefinitionName, worktreePath string) (string, error) {
	canonical, err := filepath.Abs(worktreePath)
	if err != nil {
		return "", err
	}
	canonical = filepath.Clean(canonical)

	hash := xxhash.Sum64String(canonical)
	return fmt.Sprintf("%s::%s::%08x", slug.Slug(repositoryName), slug.Slug(groupDefinitionName), uint32(hash)), nil
}
