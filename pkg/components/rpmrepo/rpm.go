// Package rpmrepo attributes paths owned by RPM packages, grouping them by
// source RPM rather than by binary subpackage.
package rpmrepo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	rpmdb "github.com/knqyf263/go-rpmdb/pkg"

	"github.com/chunkah/chunkah/pkg/components"
	"github.com/chunkah/chunkah/pkg/components/stability"
	"github.com/chunkah/chunkah/pkg/rootfs"
)

const (
	repoName = "rpm"
	priority = 10
)

// rpmdbCandidates lists the rootfs-relative directories known to hold an RPM
// database, along with the filename go-rpmdb expects inside each for the
// backend it implies (sqlite vs Berkeley DB vs ndb).
var rpmdbCandidates = []struct {
	dir  string
	file string
}{
	{"usr/lib/sysimage/rpm", "rpmdb.sqlite"},
	{"usr/lib/sysimage/rpm", "Packages.db"},
	{"usr/lib/sysimage/rpm", "Packages"},
	{"usr/share/rpm", "Packages"},
	{"var/lib/rpm", "Packages"},
}

// rpmdbPathPrefixes is used only to decide whether a *path in the scanned
// rootfs* belongs to the database itself — the database must always ride in
// the catch-all bucket, never inside a package's own layer.
var rpmdbPathPrefixes = []string{"usr/lib/sysimage/rpm", "usr/share/rpm", "var/lib/rpm"}

type claimant struct {
	id       int
	fileType rootfs.FileType
}

// Repo is the RPM attribution backend. It groups files by source RPM (the
// SRPM a binary package was built from) rather than by the binary package
// itself, since several subpackages from one SRPM commonly ship at the same
// build and should churn together.
type Repo struct {
	// names[i] is the component name, clamp[i]/stab[i] its mtime clamp and
	// stability, indexed by the same id ClaimsForPath hands back.
	names []string
	clamp []uint64
	stab  []float64

	pathToClaimants map[string][]claimant
}

// rpmFile is the subset of go-rpmdb's per-file metadata this backend needs.
type rpmFile struct {
	Path string
	Mode uint32
}

// rpmPackage is the subset of go-rpmdb's PackageInfo this backend needs,
// decoupled from the go-rpmdb type so the attribution logic below can be
// exercised without a real database.
type rpmPackage struct {
	Name      string
	SourceRpm string
	BuildTime int64
	Files     []rpmFile
}

// Load detects an RPM database under rootfsPath and, if found, loads it via
// go-rpmdb and groups its packages by source RPM. Returns (nil, nil) if no
// known database path exists.
func Load(rootfsPath string, now uint64) (*Repo, error) {
	dbPath, ok := locateRPMDB(rootfsPath)
	if !ok {
		return nil, nil
	}

	db, err := rpmdb.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening rpmdb at %s: %w", dbPath, err)
	}
	defer db.Close()

	pkgs, err := db.ListPackages()
	if err != nil {
		return nil, fmt.Errorf("listing rpmdb packages: %w", err)
	}

	converted := make([]rpmPackage, 0, len(pkgs))
	for _, pkg := range pkgs {
		files, err := pkg.InstalledFiles()
		if err != nil {
			return nil, fmt.Errorf("listing files for package %s: %w", pkg.Name, err)
		}
		rf := make([]rpmFile, 0, len(files))
		for _, f := range files {
			rf = append(rf, rpmFile{Path: f.Path, Mode: uint32(f.Mode)})
		}
		converted = append(converted, rpmPackage{
			Name:      pkg.Name,
			SourceRpm: pkg.SourceRpm,
			BuildTime: pkg.BuildTime,
			Files:     rf,
		})
	}

	return loadFromPackages(converted, now), nil
}

func locateRPMDB(rootfsPath string) (string, bool) {
	for _, c := range rpmdbCandidates {
		candidate := filepath.Join(rootfsPath, c.dir, c.file)
		if fileExists(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// loadFromPackages builds a Repo from already-parsed package metadata. It
// groups binary packages by source RPM (several subpackages commonly share
// a build and should churn together) and computes each group's stability
// from its build time: go-rpmdb surfaces package metadata, not the
// RPMTAG_CHANGELOGTIME series, so the build time is the only honest signal
// available, passed through the stability model's own empty-changelog
// fallback.
func loadFromPackages(pkgs []rpmPackage, now uint64) *Repo {
	repo := &Repo{pathToClaimants: make(map[string][]claimant)}
	nameToID := make(map[string]int)

	for _, pkg := range pkgs {
		componentName := pkg.Name
		if pkg.SourceRpm != "" {
			componentName = parseSRPMName(pkg.SourceRpm)
		}

		id, ok := nameToID[componentName]
		if !ok {
			id = len(repo.names)
			nameToID[componentName] = id
			buildTime := uint64(0)
			if pkg.BuildTime > 0 {
				buildTime = uint64(pkg.BuildTime)
			}
			s := stability.Calculate(now, nil, buildTime)
			repo.names = append(repo.names, componentName)
			repo.clamp = append(repo.clamp, buildTime)
			repo.stab = append(repo.stab, s)
		}

		for _, f := range pkg.Files {
			ft, ok := fileTypeFromMode(f.Mode)
			if !ok {
				continue
			}
			path := f.Path
			if !strings.HasPrefix(path, "/") {
				path = "/" + path
			}
			claims := repo.pathToClaimants[path]
			already := false
			for _, c := range claims {
				if c.id == id {
					already = true
					break
				}
			}
			if !already {
				repo.pathToClaimants[path] = append(claims, claimant{id: id, fileType: ft})
			}
		}
	}

	return repo
}

func fileTypeFromMode(mode uint32) (rootfs.FileType, bool) {
	const sIFMT = 0170000
	switch mode & sIFMT {
	case 0040000: // S_IFDIR
		return rootfs.FileTypeDirectory, true
	case 0100000: // S_IFREG
		return rootfs.FileTypeFile, true
	case 0120000: // S_IFLNK
		return rootfs.FileTypeSymlink, true
	default:
		return rootfs.FileTypeUnsupported, false
	}
}

// Name implements components.Repo.
func (r *Repo) Name() string { return repoName }

// DefaultPriority implements components.Repo.
func (r *Repo) DefaultPriority() int { return priority }

// ClaimsForPath implements components.Repo. The database's own files are
// deliberately never claimed — they always ride in the catch-all so package
// metadata churns independently of any package's own layer.
func (r *Repo) ClaimsForPath(path string, fileType rootfs.FileType) []int {
	rel := strings.TrimPrefix(path, "/")
	for _, prefix := range rpmdbPathPrefixes {
		if rel == prefix || strings.HasPrefix(rel, prefix+"/") {
			return nil
		}
	}

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
		Stability:  r.stab[id],
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
