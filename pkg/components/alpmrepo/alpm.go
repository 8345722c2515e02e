// Package alpmrepo attributes paths owned by pacman (ALPM) packages,
// grouping them by pkgbase the same way rpmrepo groups by source RPM.
package alpmrepo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/chunkah/chunkah/pkg/components"
	"github.com/chunkah/chunkah/pkg/rootfs"
)

const (
	repoName = "alpm"
	priority = 10
)

// localDBPaths lists the rootfs-relative directories known to hold a
// pacman local package database.
var localDBPaths = []string{
	"usr/lib/sysimage/lib/pacman/local",
	"var/lib/pacman/local",
}

type claimant struct {
	id       int
	fileType rootfs.FileType
}

// Repo is the ALPM attribution backend. Stability is always the 0 "unknown"
// sentinel, filled in by the engine's post-hoc pass: unlike RPM, pacman's
// local database exposes no changelog history to estimate a Poisson rate
// from, only a single build timestamp, and assuming stability from one data
// point would be unfounded.
type Repo struct {
	names []string
	clamp []uint64

	pathToClaimants map[string][]claimant
}

// Load detects a pacman local database under rootfsPath and, if found,
// loads every installed package's desc/mtree pair and groups them by
// pkgbase. Returns (nil, nil) if no known database path exists.
func Load(rootfsPath string) (*Repo, error) {
	dbPath, ok := locateLocalDB(rootfsPath)
	if !ok {
		return nil, nil
	}
	return loadFromDB(dbPath)
}

func locateLocalDB(rootfsPath string) (string, bool) {
	for _, p := range localDBPaths {
		candidate := filepath.Join(rootfsPath, p)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

// loadFromDB walks the local package database directory, where each
// subdirectory (named "pkgname-pkgver-pkgrel") holds a "desc" metadata
// file and an "mtree" manifest of every file the package installed.
func loadFromDB(dbPath string) (*Repo, error) {
	entries, err := os.ReadDir(dbPath)
	if err != nil {
		return nil, fmt.Errorf("reading alpm local db %s: %w", dbPath, err)
	}

	repo := &Repo{pathToClaimants: make(map[string][]claimant)}
	nameToID := make(map[string]int)

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pkgDir := filepath.Join(dbPath, entry.Name())

		desc, mtreeEntries, err := packageInfoFromDir(pkgDir)
		if err != nil {
			return nil, fmt.Errorf("parsing metadata of package %s: %w", entry.Name(), err)
		}

		id, ok := nameToID[desc.Base]
		if !ok {
			id = len(repo.names)
			nameToID[desc.Base] = id
			repo.names = append(repo.names, desc.Base)
			repo.clamp = append(repo.clamp, desc.BuildDate)
		}

		for _, e := range mtreeEntries {
			claims := repo.pathToClaimants[e.Path]
			already := false
			for _, c := range claims {
				if c.id == id {
					already = true
					break
				}
			}
			if !already {
				repo.pathToClaimants[e.Path] = append(claims, claimant{id: id, fileType: e.Type})
			}
		}
	}

	return repo, nil
}

func packageInfoFromDir(pkgDir string) (descInfo, []mtreeEntry, error) {
	descRaw, err := os.ReadFile(filepath.Join(pkgDir, "desc"))
	if err != nil {
		return descInfo{}, nil, fmt.Errorf("reading desc file: %w", err)
	}
	desc, err := parseDesc(string(descRaw))
	if err != nil {
		return descInfo{}, nil, err
	}

	mtreeRaw, err := os.ReadFile(filepath.Join(pkgDir, "mtree"))
	if err != nil {
		return descInfo{}, nil, fmt.Errorf("reading mtree file: %w", err)
	}
	decoded, err := decodeMtree(mtreeRaw)
	if err != nil {
		return descInfo{}, nil, err
	}
	entries, err := parseMtree(string(decoded))
	if err != nil {
		return descInfo{}, nil, err
	}

	return desc, entries, nil
}

// Name implements components.Repo.
func (r *Repo) Name() string { return repoName }

// DefaultPriority implements components.Repo.
func (r *Repo) DefaultPriority() int { return priority }

// ClaimsForPath implements components.Repo.
func (r *Repo) ClaimsForPath(path string, fileType rootfs.FileType) []int {
	var ids []int
	for _, c := range r.pathToClaimants[path] {
		if c.fileType == fileType {
			ids = append(ids, c.id)
		}
	}
	return ids
}

// ComponentInfo implements components.Repo.
func (r *Repo) ComponentInfo(id int) components.Info {
	return components.Info{
		Name:       r.names[id],
		MtimeClamp: r.clamp[id],
		Stability:  0.0,
	}
}
