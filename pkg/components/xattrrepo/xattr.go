// Package xattrrepo attributes paths by the user.component extended
// attribute, with directory-to-descendant inheritance.
package xattrrepo

import (
	"fmt"
	"unicode/utf8"

	"github.com/chunkah/chunkah/pkg/components"
	"github.com/chunkah/chunkah/pkg/rootfs"
)

const (
	xattrName = "user.component"
	repoName  = "xattr"
	// priority wins over every package backend: an explicit annotation
	// always overrides package-database attribution.
	priority = 0
)

type dirFrame struct {
	path string
	id   int
}

// Repo is the xattr-based attribution backend. Directory inheritance is
// precomputed once at Load time by a single forward walk.
type Repo struct {
	components        []string
	index             map[string]int
	pathToComponent   map[string]int
	defaultMtimeClamp uint64
}

// Load scans files (already cached from the rootfs scan — no second disk
// walk) for the user.component xattr and precomputes inheritance. Returns
// (nil, nil) if not a single file/directory carries the xattr, matching
// every other backend's "absent itself" contract.
//
// files must be iterated in ascending, depth-first lexicographic path order
// (the same order rootfs.Scanner produces) — the inheritance stack below
// depends on it.
func Load(files *rootfs.FileMap, defaultMtimeClamp uint64) (*Repo, error) {
	index := make(map[string]int)
	var names []string
	pathToComponent := make(map[string]int)

	var stack []dirFrame

	var walkErr error
	files.Ascend(func(path string, info rootfs.FileInfo) bool {
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			if rootfs.IsStrictAncestor(path, top.path) {
				break
			}
			stack = stack[:len(stack)-1]
		}

		ownName, err := componentXattr(info)
		if err != nil {
			walkErr = fmt.Errorf("reading xattr for %s: %w", path, err)
			return false
		}

		ownID := -1
		if ownName != "" {
			id, ok := index[ownName]
			if !ok {
				id = len(names)
				index[ownName] = id
				names = append(names, ownName)
			}
			ownID = id
		}

		if info.Type == rootfs.FileTypeDirectory && ownID >= 0 {
			stack = append(stack, dirFrame{path: path, id: ownID})
		}

		effective := ownID
		if effective < 0 && len(stack) > 0 {
			effective = stack[len(stack)-1].id
		}
		if effective >= 0 {
			pathToComponent[path] = effective
		}

		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}

	if len(names) == 0 {
		return nil, nil
	}

	return &Repo{
		components:        names,
		index:             index,
		pathToComponent:   pathToComponent,
		defaultMtimeClamp: defaultMtimeClamp,
	}, nil
}

func componentXattr(info rootfs.FileInfo) (string, error) {
	value, ok := info.Xattr(xattrName)
	if !ok {
		return "", nil
	}
	if !utf8.Valid(value) {
		return "", fmt.Errorf("invalid UTF-8 in %s xattr", xattrName)
	}
	return string(value), nil
}

// Name implements components.Repo.
func (r *Repo) Name() string { return repoName }

// DefaultPriority implements components.Repo.
func (r *Repo) DefaultPriority() int { return priority }

// ClaimsForPath implements components.Repo.
func (r *Repo) ClaimsForPath(path string, _ rootfs.FileType) []int {
	id, ok := r.pathToComponent[path]
	if !ok {
		return nil
	}
	return []int{id}
}

// ComponentInfo implements components.Repo. Stability is always the 0
// sentinel here — the xattr backend has no changelog signal to draw on —
// and gets filled in by the engine's post-hoc pass.
func (r *Repo) ComponentInfo(id int) components.Info {
	return components.Info{
		Name:       r.components[id],
		MtimeClamp: r.defaultMtimeClamp,
		Stability:  0,
	}
}
