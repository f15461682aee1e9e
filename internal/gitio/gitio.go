// Package gitio fetches remote projects and reads repository state using go-git.
package gitio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-git/go-git/v5"
)

// Fetcher materializes a remote repository in a local directory.
type Fetcher interface {
	// Fetch clones url into dest and returns the checked-out revision.
	Fetch(ctx context.Context, url, dest string, progress io.Writer) (string, error)
}

// ShallowCloner clones with a history depth of one.
type ShallowCloner struct{}

// Fetch replaces dest with a fresh shallow clone of url.
func (ShallowCloner) Fetch(ctx context.Context, url, dest string, progress io.Writer) (string, error) {
	if err := os.RemoveAll(dest); err != nil {
		return "", fmt.Errorf("removing %s: %w", dest, err)
	}
	repo, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
		URL:          url,
		Depth:        1,
		SingleBranch: true,
		Tags:         git.NoTags,
		Progress:     progress,
	})
	if err != nil {
		return "", fmt.Errorf("cloning %s: %w", url, err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// HeadRevision returns the HEAD commit of the repository at path. It returns
// "" without error when path is not a Git repository or has no commits.
func HeadRevision(path string) (string, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return "", nil
		}
		return "", fmt.Errorf("opening repository: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", nil
	}
	return head.Hash().String(), nil
}
