// Package components attributes rootfs paths to named components (typically
// software packages), using an ordered set of pluggable backends.
package components

import "github.com/chunkah/chunkah/pkg/rootfs"

// UnclaimedComponent is the catch-all bucket name for paths no backend
// claimed.
const UnclaimedComponent = "chunkah/unclaimed"

// Info describes one component as reported by the backend that owns it.
type Info struct {
	Name       string
	MtimeClamp uint64
	Stability  float64
}

// Component is a named group of files sharing a churn profile.
type Component struct {
	Name       string
	MtimeClamp uint64
	Stability  float64
	Files      *rootfs.FileMap
}

// Repo is the capability every attribution backend implements: xattr, rpm,
// alpm, bigfiles, or any future package-manager integration. The engine only
// ever talks to this interface; it never learns how a backend is implemented.
type Repo interface {
	// Name identifies the backend, used as the component name prefix
	// ("rpm", "xattr", "alpm", "bigfiles").
	Name() string

	// DefaultPriority orders backends ascending; lower wins ties over
	// higher when both would claim the same path.
	DefaultPriority() int

	// ClaimsForPath returns the backend-local component ids claiming path.
	// Most paths resolve to zero or one id; directories co-owned by
	// several packages may return several.
	ClaimsForPath(path string, fileType rootfs.FileType) []int

	// ComponentInfo resolves a backend-local id (previously returned by
	// ClaimsForPath) to its name, mtime clamp, and stability.
	ComponentInfo(id int) Info
}
