// Package walk enumerates the files and directories of a local directory as [dzip.Entry] values.
package walk

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/moby/patternmatcher"
	"github.com/nguyengg/dzip"
)

// DefaultIncludes is the default value of [Options.Includes] which matches everything.
var DefaultIncludes = []string{"**"}

// DefaultExcludes is the default value of [Options.Excludes].
//
// These are version control directories and editor or build droppings that never belong in a package.
var DefaultExcludes = []string{
	".git",
	"CVS",
	".svn",
	".hg",
	".lock-wscript",
	".wafpickle-N",
	"*.swp",
	".DS_Store",
	"._*",
	"npm-debug.log",
}

// Options customises Dir.
type Options struct {
	// Includes are the patterns a relative path must match to be emitted.
	//
	// Default to DefaultIncludes. A nil slice uses the default, an empty non-nil slice matches nothing.
	Includes []string

	// Excludes are the patterns that remove a relative path from the result.
	//
	// A directory that is excluded is not traversed, so everything underneath is excluded as well. Default to
	// DefaultExcludes. A nil slice uses the default, an empty non-nil slice excludes nothing.
	Excludes []string

	// Base is the directory that relative paths are computed from.
	//
	// Default to the directory being walked. Base must be the walked directory or one of its ancestors.
	Base string
}

// Dir walks the given directory recursively and returns all files and directories that pass the include and exclude
// patterns.
//
// Patterns follow [patternmatcher] syntax with "/" as separator and "**" matching any number of directories. A pattern
// without a "/" matches against the base name at any depth, so "*.swp" is the same as "**/*.swp".
//
// Symlinks and other non-regular files are skipped. The directory itself is never emitted. The returned entries are in
// traversal order; [dzip.Archive] sorts them.
func Dir(ctx context.Context, dir string, optFns ...func(*Options)) ([]dzip.Entry, error) {
	opts := &Options{}
	for _, fn := range optFns {
		fn(opts)
	}

	if opts.Includes == nil {
		opts.Includes = DefaultIncludes
	}
	if opts.Excludes == nil {
		opts.Excludes = DefaultExcludes
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute path error: %w", err)
	}

	base := root
	if opts.Base != "" {
		if base, err = filepath.Abs(opts.Base); err != nil {
			return nil, fmt.Errorf("resolve absolute base path error: %w", err)
		}
	}

	includes, err := newMatcher(opts.Includes)
	if err != nil {
		return nil, fmt.Errorf("invalid include pattern: %w", err)
	}
	excludes, err := newMatcher(opts.Excludes)
	if err != nil {
		return nil, fmt.Errorf("invalid exclude pattern: %w", err)
	}

	var entries []dzip.Entry
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if err = ctx.Err(); err != nil {
			return err
		}

		if path == root {
			return nil
		}

		if !d.IsDir() && !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			return fmt.Errorf("compute relative path error: %w", err)
		}
		if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Errorf(`path "%s" is not under base "%s"`, path, base)
		}

		if excluded, err := excludes.MatchesOrParentMatches(rel); err != nil {
			return fmt.Errorf(`match exclude patterns against "%s" error: %w`, rel, err)
		} else if excluded {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		// directories are traversed even when they are not included themselves.
		if included, err := includes.MatchesOrParentMatches(rel); err != nil {
			return fmt.Errorf(`match include patterns against "%s" error: %w`, rel, err)
		} else if !included {
			return nil
		}

		e := dzip.Entry{
			RelativePath: filepath.ToSlash(rel),
			AbsolutePath: path,
			IsDir:        d.IsDir(),
			IsFile:       !d.IsDir(),
		}
		if e.IsFile {
			fi, err := d.Info()
			if err != nil {
				return fmt.Errorf(`stat "%s" error: %w`, path, err)
			}
			e.Size = fi.Size()
		}

		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// newMatcher rewrites base-name patterns to match at any depth before compiling them.
func newMatcher(patterns []string) (*patternmatcher.PatternMatcher, error) {
	rewritten := make([]string, 0, len(patterns))
	for _, p := range patterns {
		negate := strings.HasPrefix(p, "!")
		p = strings.TrimPrefix(p, "!")
		p = strings.TrimPrefix(p, "./")

		if p != "**" && !strings.Contains(p, "/") {
			p = "**/" + p
		}
		if negate {
			p = "!" + p
		}

		rewritten = append(rewritten, filepath.FromSlash(p))
	}

	return patternmatcher.New(rewritten)
}
