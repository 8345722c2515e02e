package components

import (
	"errors"
	"fmt"
	"sort"

	"github.com/chunkah/chunkah/pkg/rootfs"
)

// ErrNoComponentRepo is returned when no backend fired for a rootfs at all —
// not even the xattr backend, which loads only when some path carries the
// user.component xattr. Emitting an image with
// every file in the catch-all defeats the entire point of this tool, so the
// pipeline treats it as fatal.
var ErrNoComponentRepo = errors.New("no supported component repo found in rootfs")

type claimKey struct {
	repoIdx int
	localID int
}

// Engine runs an ordered set of backends over a FileMap and partitions it
// into named Components.
type Engine struct {
	repos             []Repo
	defaultMtimeClamp uint64
}

// NewEngine sorts repos by ascending DefaultPriority (stable, so backends
// registered in the same priority keep their relative load order) and
// associates the mtime clamp used for the catch-all. Backend-supplied clamps
// are used as reported, including zero.
func NewEngine(repos []Repo, defaultMtimeClamp uint64) *Engine {
	sorted := make([]Repo, len(repos))
	copy(sorted, repos)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DefaultPriority() < sorted[j].DefaultPriority()
	})
	return &Engine{repos: sorted, defaultMtimeClamp: defaultMtimeClamp}
}

// RequireNonEmpty fails fast if no backend loaded at all.
func (e *Engine) RequireNonEmpty() error {
	if len(e.repos) == 0 {
		return ErrNoComponentRepo
	}
	return nil
}

// IntoComponents claims every path in files against the loaded backends in
// priority order (first claim wins), buckets unclaimed paths into
// UnclaimedComponent, and fills in the stability sentinel for any component
// that came out with exactly zero.
func (e *Engine) IntoComponents(files *rootfs.FileMap) map[string]*Component {
	claims := make(map[claimKey]*rootfs.FileMap)
	unclaimed := rootfs.NewFileMap()

	files.Ascend(func(path string, info rootfs.FileInfo) bool {
		for repoIdx, repo := range e.repos {
			ids := repo.ClaimsForPath(path, info.Type)
			if len(ids) == 0 {
				continue
			}
			for _, id := range ids {
				key := claimKey{repoIdx: repoIdx, localID: id}
				fm, ok := claims[key]
				if !ok {
					fm = rootfs.NewFileMap()
					claims[key] = fm
				}
				fm.Set(path, info)
			}
			return true // claimed; next path
		}
		unclaimed.Set(path, info)
		return true
	})

	result := make(map[string]*Component, len(claims)+1)
	for key, fm := range claims {
		repo := e.repos[key.repoIdx]
		info := repo.ComponentInfo(key.localID)
		name := fmt.Sprintf("%s/%s", repo.Name(), info.Name)
		result[name] = &Component{
			Name:       name,
			MtimeClamp: info.MtimeClamp,
			Stability:  info.Stability,
			Files:      fm,
		}
	}

	if unclaimed.Len() > 0 {
		result[UnclaimedComponent] = &Component{
			Name:       UnclaimedComponent,
			MtimeClamp: e.defaultMtimeClamp,
			Stability:  0,
			Files:      unclaimed,
		}
	}

	fillStabilitySentinel(result)
	return result
}

// fillStabilitySentinel reassigns the reserved "unknown" sentinel (exact
// 0.0) to half the minimum known-positive stability, so the packer always
// has strictly positive numbers to compare. If every component is unknown,
// everything defaults to 0.5.
func fillStabilitySentinel(components map[string]*Component) {
	minPositive := 0.0
	found := false
	for _, c := range components {
		if c.Stability > 0 && (!found || c.Stability < minPositive) {
			minPositive = c.Stability
			found = true
		}
	}
	fallback := minPositive / 2.0
	if !found {
		fallback = 0.5
	}

	for _, c := range components {
		if c.Stability == 0 {
			c.Stability = fallback
		}
	}
}
