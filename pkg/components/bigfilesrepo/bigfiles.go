// Package bigfilesrepo isolates individually oversized regular files into
// their own single-file components, so one multi-gigabyte blob dropped
// unpackaged into a rootfs (a bundled runtime, a vendored toolchain) doesn't
// drag its entire containing directory's churn rate into the catch-all
// bucket with it.
package bigfilesrepo

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chunkah/chunkah/pkg/components"
	"github.com/chunkah/chunkah/pkg/rootfs"
)

const (
	repoName = "bigfiles"

	// priority is deliberately higher than every package backend's default
	// (10): bigfiles claims near the tail of the attribution order, after
	// package databases and xattrs have had first refusal, picking up only
	// what nothing else wanted.
	priority = 100

	// DefaultThreshold is the file size, in bytes, at or above which a
	// regular file is claimed as its own component.
	DefaultThreshold = 64 * 1024 * 1024

	hashPrefixLen = 12
)

// Repo is the big-file attribution backend.
type Repo struct {
	threshold int64

	names []string
	clamp []uint64
	index map[string]int // path -> component id, regular files only
}

// Load scans files for regular files at or above threshold and assigns
// each its own component, named "bigfiles/<basename>-<content hash
// prefix>". rootfsPath is needed to read file content for the hash;
// threshold <= 0 selects DefaultThreshold.
func Load(rootfsPath string, files *rootfs.FileMap, threshold int64) (*Repo, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	repo := &Repo{threshold: threshold, index: make(map[string]int)}

	var loadErr error
	files.Ascend(func(path string, info rootfs.FileInfo) bool {
		if info.Type != rootfs.FileTypeFile || int64(info.Size) < threshold {
			return true
		}

		hash, err := hashFile(filepath.Join(rootfsPath, rootfs.StripRoot(path)))
		if err != nil {
			loadErr = fmt.Errorf("hashing big file %s: %w", path, err)
			return false
		}

		// The engine prefixes every component name with the backend name
		// (e.g. "bigfiles/"), so this is just the file's own identity.
		name := fmt.Sprintf("%s-%s", filepath.Base(path), hash)
		id := len(repo.names)
		repo.names = append(repo.names, name)
		repo.clamp = append(repo.clamp, info.Mtime)
		repo.index[path] = id
		return true
	})
	if loadErr != nil {
		return nil, loadErr
	}

	if len(repo.names) == 0 {
		return nil, nil
	}
	return repo, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil))[:hashPrefixLen], nil
}

// Name implements components.Repo.
func (r *Repo) Name() string { return repoName }

// DefaultPriority implements components.Repo.
func (r *Repo) DefaultPriority() int { return priority }

// ClaimsForPath implements components.Repo. Each big file is its own,
// single-member component.
func (r *Repo) ClaimsForPath(path string, fileType rootfs.FileType) []int {
	if fileType != rootfs.FileTypeFile {
		return nil
	}
	id, ok := r.index[path]
	if !ok {
		return nil
	}
	return []int{id}
}

// ComponentInfo implements components.Repo. Stability is left at the 0
// sentinel: a single oversized blob has no changelog signal of its own, so
// it is filled in from the engine's global default like any other backend
// with nothing to compute from.
func (r *Repo) ComponentInfo(id int) components.Info {
	return components.Info{
		Name:       r.names[id],
		MtimeClamp: r.clamp[id],
		Stability:  0.0,
	}
}
