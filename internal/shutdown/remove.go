package shutdown

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hashicorp/go-multierror"
)

// RemoveGlobs deletes everything under root matching any of the doublestar
// patterns (for example "tmp/**" or "*.sock"). Patterns are relative to
// root and cannot escape it.
func RemoveGlobs(root string, patterns []string) Step {
	return Step{
		Name: "remove-globs",
		Run: func(ctx context.Context, _ os.Signal) error {
			_, err := removeMatches(ctx, root, patterns)
			return err
		},
	}
}

func removeMatches(ctx context.Context, root string, patterns []string) (int, error) {
	fsys := os.DirFS(root)
	var (
		result  *multierror.Error
		removed int
	)
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			result = multierror.Append(result, fmt.Errorf("invalid pattern %q", pattern))
			continue
		}
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("glob %q: %w", pattern, err))
			continue
		}
		for _, m := range matches {
			if err := ctx.Err(); err != nil {
				return removed, multierror.Append(result, err).ErrorOrNil()
			}
			if err := os.RemoveAll(filepath.Join(root, filepath.FromSlash(m))); err != nil {
				result = multierror.Append(result, err)
				continue
			}
			removed++
		}
	}
	return removed, result.ErrorOrNil()
}
