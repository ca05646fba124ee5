// Package git reads commit history and tags through go-git.
package git

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	rperrors "github.com/relicta-tech/releasekit/internal/errors"
)

// DefaultLocalTimeout bounds read-only repository operations.
const DefaultLocalTimeout = 30 * time.Second

// withLocalTimeout applies DefaultLocalTimeout unless ctx already has a
// shorter deadline.
func withLocalTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok {
		if time.Until(deadline) < DefaultLocalTimeout {
			return ctx, func() {}
		}
	}
	return context.WithTimeout(ctx, DefaultLocalTimeout)
}

// errStopIteration ends a commit walk early.
var errStopIteration = errors.New("stop iteration")

// Repository is a read-only view of a local git repository.
type Repository struct {
	root string
	repo *git.Repository

	// ancestors caches the commits reachable from a cutoff hash.
	mu        sync.Mutex
	ancestors map[plumbing.Hash]map[plumbing.Hash]struct{}
}

// Open opens the repository containing dir.
func Open(dir string) (*Repository, error) {
	const op = "git.Open"

	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, rperrors.GitWrap(err, op, "failed to get absolute path")
	}

	repo, err := git.PlainOpenWithOptions(absPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, rperrors.GitWrap(err, op, "failed to open repository")
	}

	root := absPath
	if wt, err := repo.Worktree(); err == nil {
		root = wt.Filesystem.Root()
	}

	return &Repository{
		root:      root,
		repo:      repo,
		ancestors: make(map[plumbing.Hash]map[plumbing.Hash]struct{}),
	}, nil
}

// Root returns the worktree root.
func (r *Repository) Root() string {
	return r.root
}

// Log returns "sha subject" lines, newest first, for commits reachable from
// HEAD but not from since, that touch any of paths.
func (r *Repository) Log(ctx context.Context, since string, paths []string) ([]string, error) {
	const op = "git.Log"

	ctx, cancel := withLocalTimeout(ctx)
	defer cancel()

	head, err := r.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, rperrors.GitWrap(err, op, "failed to get HEAD")
	}

	var exclude map[plumbing.Hash]struct{}
	if since != "" {
		if err := ValidateGitRef(since); err != nil {
			return nil, rperrors.ValidationWrap(err, op, "invalid history cutoff")
		}
		hash, err := r.resolve(since)
		if err != nil {
			return nil, rperrors.GitWrap(err, op, fmt.Sprintf("failed to resolve %s", since))
		}
		if exclude, err = r.reachableFrom(ctx, hash); err != nil {
			return nil, err
		}
	}

	opts := &git.LogOptions{
		From:  head.Hash(),
		Order: git.LogOrderCommitterTime,
	}
	if filter := pathFilter(paths); filter != nil {
		opts.PathFilter = filter
	}

	iter, err := r.repo.Log(opts)
	if err != nil {
		return nil, rperrors.GitWrap(err, op, "failed to get log iterator")
	}
	defer iter.Close()

	var lines []string
	err = iter.ForEach(func(c *object.Commit) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if _, ok := exclude[c.Hash]; ok {
			return nil
		}
		lines = append(lines, c.Hash.String()+" "+subject(c.Message))
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, rperrors.GitWrap(ctx.Err(), op, "operation canceled")
		}
		return nil, rperrors.GitWrap(err, op, "failed to iterate commits")
	}
	return lines, nil
}

// reachableFrom returns every commit reachable from hash, including hash.
func (r *Repository) reachableFrom(ctx context.Context, hash plumbing.Hash) (map[plumbing.Hash]struct{}, error) {
	const op = "git.reachableFrom"

	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.ancestors[hash]; ok {
		return set, nil
	}

	iter, err := r.repo.Log(&git.LogOptions{From: hash})
	if err != nil {
		return nil, rperrors.GitWrap(err, op, "failed to get log iterator")
	}
	defer iter.Close()

	set := make(map[plumbing.Hash]struct{})
	err = iter.ForEach(func(c *object.Commit) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		set[c.Hash] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, rperrors.GitWrap(err, op, "failed to walk history")
	}
	r.ancestors[hash] = set
	return set, nil
}

// TagExists reports whether the tag is present.
func (r *Repository) TagExists(_ context.Context, name string) (bool, error) {
	const op = "git.TagExists"

	_, err := r.repo.Tag(name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, git.ErrTagNotFound), errors.Is(err, plumbing.ErrReferenceNotFound):
		return false, nil
	default:
		return false, rperrors.GitWrap(err, op, fmt.Sprintf("failed to look up tag %s", name))
	}
}

// ResolveTagToSha returns the commit a tag points at, peeling annotated tags.
func (r *Repository) ResolveTagToSha(_ context.Context, tag string) (string, error) {
	const op = "git.ResolveTagToSha"

	hash, err := r.peelTag(tag)
	if err != nil {
		if errors.Is(err, git.ErrTagNotFound) {
			return "", rperrors.NotFound(op, fmt.Sprintf("tag not found: %s", tag))
		}
		return "", rperrors.GitWrap(err, op, fmt.Sprintf("failed to resolve tag %s", tag))
	}
	return hash.String(), nil
}

// ListTags returns all tag names, sorted.
func (r *Repository) ListTags(ctx context.Context) ([]string, error) {
	const op = "git.ListTags"

	iter, err := r.repo.Tags()
	if err != nil {
		return nil, rperrors.GitWrap(err, op, "failed to get tags iterator")
	}
	defer iter.Close()

	var tags []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		tags = append(tags, ref.Name().Short())
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, rperrors.GitWrap(ctx.Err(), op, "operation canceled")
		}
		return nil, rperrors.GitWrap(err, op, "failed to iterate tags")
	}

	sort.Strings(tags)
	return tags, nil
}

// peelTag resolves a tag name to its commit hash.
func (r *Repository) peelTag(name string) (plumbing.Hash, error) {
	ref, err := r.repo.Tag(name)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	tagObj, err := r.repo.TagObject(ref.Hash())
	if err != nil {
		// Lightweight tag.
		return ref.Hash(), nil
	}
	commit, err := tagObj.Commit()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return commit.Hash, nil
}

// resolve turns a tag, full hash, or other revision into a commit hash.
// Tags are looked up by name first since package tags such as
// "core@1.0.0" are not valid revision syntax.
func (r *Repository) resolve(ref string) (plumbing.Hash, error) {
	if plumbing.IsHash(ref) {
		return plumbing.NewHash(ref), nil
	}
	if hash, err := r.peelTag(ref); err == nil {
		return hash, nil
	}
	resolved, err := r.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to resolve reference %s: %w", ref, err)
	}
	return *resolved, nil
}

// pathFilter matches files under any of the given directories. It returns
// nil when no filtering applies.
func pathFilter(paths []string) func(string) bool {
	var prefixes []string
	for _, p := range paths {
		p = path.Clean(filepath.ToSlash(strings.TrimSpace(p)))
		p = strings.Trim(p, "/")
		if p == "" || p == "." {
			return nil
		}
		prefixes = append(prefixes, p)
	}
	if len(prefixes) == 0 {
		return nil
	}

	return func(file string) bool {
		for _, p := range prefixes {
			if file == p || strings.HasPrefix(file, p+"/") {
				return true
			}
		}
		return false
	}
}

func subject(message string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(message), "\n")
	return strings.TrimSpace(line)
}
