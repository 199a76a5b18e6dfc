// Package manifest discovers route and island files in a project tree and
// renders the import manifest the application server loads at startup.
//
// Files live under two directories of the project root:
//
//	routes/   file-system mapped HTTP endpoints
//	islands/  client-side interactive components
//
// A folder named "(_name)" inside routes/ is a private group: its files are
// not registered as routes. The one exception is "(_islands)", whose files
// are collected as islands so they can sit next to the routes that use
// them. Folders named "(name)" without the underscore are public groups;
// they organize files without contributing a URL segment.
package manifest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/buttonstudio/internal/errors"
)

const (
	RoutesDir  = "routes"
	IslandsDir = "islands"

	// IslandsGroup is the private group whose files are islands.
	IslandsGroup = "_islands"
)

// Extensions lists the source extensions picked up by the walk.
var Extensions = []string{".ts", ".tsx", ".js", ".jsx"}

var (
	testFilePattern = regexp.MustCompile(`[._]test\.(?:[tj]sx?|[mc][tj]s)$`)
	groupSegment    = regexp.MustCompile(`^\((.+)\)$`)
)

// Options tunes a Collect call.
type Options struct {
	// Ignore holds doublestar globs matched against root-relative, slash
	// separated paths such as "routes/admin/**".
	Ignore []string
}

// Manifest is the result of a Collect call. Paths are slash separated,
// relative to Root and start with "routes/" or "islands/".
type Manifest struct {
	Root    string   `json:"root" yaml:"root"`
	Routes  []string `json:"routes" yaml:"routes"`
	Islands []string `json:"islands" yaml:"islands"`
}

// RouteConflictError reports two route files that resolve to the same path.
type RouteConflictError struct {
	Dir   string
	Path  string
	Files [2]string
}

func (e *RouteConflictError) Error() string {
	return fmt.Sprintf("Route conflict detected. Multiple files have the same name: %s%s", e.Dir, e.Path)
}

// HasSourceExt reports whether name carries one of Extensions.
func HasSourceExt(name string) bool {
	ext := path.Ext(name)
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// IsTestFile reports whether a slash separated path names a test module.
func IsTestFile(rel string) bool {
	return testFilePattern.MatchString(rel)
}

// IsPrivateGroup reports whether a single path segment is a private group
// and returns the group name without parentheses.
func IsPrivateGroup(segment string) (string, bool) {
	m := groupSegment.FindStringSubmatch(segment)
	if m == nil || !strings.HasPrefix(m[1], "_") {
		return "", false
	}
	return m[1], true
}

// IsGroup reports whether a segment is any group folder, public or private.
func IsGroup(segment string) bool {
	return groupSegment.MatchString(segment)
}

// PrivateGroup returns the first private group on a slash separated path.
// The last segment is the file name and never counts as a group.
func PrivateGroup(rel string) (string, bool) {
	segments := strings.Split(rel, "/")
	for _, seg := range segments[:len(segments)-1] {
		if name, ok := IsPrivateGroup(seg); ok {
			return name, true
		}
	}
	return "", false
}

// Collect walks the routes and islands directories under root.
//
// Both walks run concurrently. Each walk owns the slices it appends to and
// the results are merged and sorted once both finish, so the output does
// not depend on which walk completes first.
func Collect(ctx context.Context, root string, opts Options) (*Manifest, error) {
	for _, pattern := range opts.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			return nil, errors.NewValidationError(errors.ErrCodeInvalidPath, "invalid ignore pattern: "+pattern)
		}
	}

	var (
		routes       []string
		groupIslands []string
		islands      []string
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		files, err := walkDir(gctx, root, RoutesDir, opts)
		if err != nil {
			return err
		}
		routes, groupIslands, err = classifyRoutes(files)
		return err
	})

	g.Go(func() error {
		files, err := walkDir(gctx, root, IslandsDir, opts)
		if err != nil {
			return err
		}
		islands = files
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	islands = append(islands, groupIslands...)
	sort.Strings(routes)
	sort.Strings(islands)

	if routes == nil {
		routes = []string{}
	}
	if islands == nil {
		islands = []string{}
	}

	return &Manifest{Root: root, Routes: routes, Islands: islands}, nil
}

// walkDir returns root-relative slash paths of source files below
// root/dir. A missing directory yields no files.
func walkDir(ctx context.Context, root, dir string, opts Options) ([]string, error) {
	base := filepath.Join(root, dir)

	info, err := os.Stat(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewIOError(errors.ErrCodeWalkFailed, "cannot read "+dir, err).WithPath(base)
	}
	if !info.IsDir() {
		return nil, errors.ErrInvalidPath(base).WithContext("reason", "not a directory")
	}

	var files []string
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if !HasSourceExt(rel) || IsTestFile(rel) || ignored(rel, opts.Ignore) {
			return nil
		}

		files = append(files, rel)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewIOError(errors.ErrCodeWalkFailed, "walking "+dir+" failed", err).WithPath(base)
	}

	return files, nil
}

func ignored(rel string, patterns []string) bool {
	for _, pattern := range patterns {
		if matched, err := doublestar.Match(pattern, rel); err == nil && matched {
			return true
		}
	}
	return false
}

// classifyRoutes splits the files found under routes/ into registered
// routes and islands living in an (_islands) group, and rejects files that
// resolve to the same route.
func classifyRoutes(files []string) (routes, islands []string, err error) {
	// The walk is lexical, so sorting here makes the reported pair stable.
	sort.Strings(files)
	seen := make(map[string]string, len(files))

	for _, rel := range files {
		if group, ok := PrivateGroup(rel); ok {
			if group == IslandsGroup {
				islands = append(islands, rel)
			}
			continue
		}

		key := conflictKey(rel)
		if first, dup := seen[key]; dup {
			conflict := &RouteConflictError{
				Dir:   RoutesDir + "/",
				Path:  strings.TrimPrefix(key, RoutesDir+"/"),
				Files: [2]string{first, rel},
			}
			return nil, nil, errors.NewManifestError(errors.ErrCodeRouteConflict, "route conflict", conflict).
				WithPath(rel).
				WithContext("path", key).
				WithContext("files", []string{first, rel})
		}
		seen[key] = rel
		routes = append(routes, rel)
	}

	return routes, islands, nil
}

// conflictKey is the route path a file claims: the extension is stripped
// and public group folders are dropped. Special files (basename starting
// with "_") keep their groups so every group can carry its own layout.
func conflictKey(rel string) string {
	trimmed := strings.TrimSuffix(rel, path.Ext(rel))
	segments := strings.Split(trimmed, "/")
	if strings.HasPrefix(segments[len(segments)-1], "_") {
		return trimmed
	}

	kept := make([]string, 0, len(segments))
	for _, seg := range segments {
		if IsGroup(seg) {
			continue
		}
		kept = append(kept, seg)
	}
	return strings.Join(kept, "/")
}
