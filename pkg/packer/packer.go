// Package packer groups attributed components into a bounded number of OCI
// layers, merging the pair that loses the least expected stability whenever
// there are more components than the layer budget allows.
package packer

import (
	"sort"
	"strings"

	"github.com/chunkah/chunkah/pkg/components"
	"github.com/chunkah/chunkah/pkg/rootfs"
)

// Group is one packed layer: a set of components merged together, carrying
// the metadata the tar/OCI writer needs to emit it.
type Group struct {
	Name       string
	MtimeClamp uint64
	Stability  float64
	Files      *rootfs.FileMap
}

type candidate struct {
	indices    []int // ascending original indices of every member, used for merge tie-breaks
	names      []string
	size       uint64
	stability  float64
	mtimeClamp uint64
	files      *rootfs.FileMap
}

// Pack partitions comps into at most maxLayers groups. Components with no
// files are dropped. When the component count already fits the budget,
// grouping is the identity (one component per layer); otherwise it
// repeatedly merges the pair with the smallest Total Expected Volatility
// loss until the budget is met.
func Pack(comps map[string]*components.Component, maxLayers int) []Group {
	names := make([]string, 0, len(comps))
	for name, c := range comps {
		if c.Files.Len() == 0 {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	candidates := make([]*candidate, 0, len(names))
	for i, name := range names {
		c := comps[name]
		candidates = append(candidates, &candidate{
			indices:    []int{i},
			names:      []string{c.Name},
			size:       componentSize(c),
			stability:  c.Stability,
			mtimeClamp: c.MtimeClamp,
			files:      c.Files,
		})
	}

	if maxLayers < 1 {
		maxLayers = 1
	}

	for len(candidates) > maxLayers {
		candidates = mergeOnce(candidates)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].indices[0] < candidates[j].indices[0]
	})

	groups := make([]Group, 0, len(candidates))
	for _, c := range candidates {
		groups = append(groups, Group{
			Name:       strings.Join(c.names, " "),
			MtimeClamp: c.mtimeClamp,
			Stability:  c.stability,
			Files:      c.files,
		})
	}
	return groups
}

func componentSize(c *components.Component) uint64 {
	var total uint64
	c.Files.Ascend(func(_ string, info rootfs.FileInfo) bool {
		total += info.Size
		return true
	})
	return total
}

// tevLoss is the additional bytes that were formerly stable but now ride
// with a less-stable neighbour once a and b are merged.
func tevLoss(a, b *candidate) float64 {
	mergedSize := float64(a.size + b.size)
	maxStability := a.stability
	if b.stability > maxStability {
		maxStability = b.stability
	}
	return mergedSize*maxStability - float64(a.size)*a.stability - float64(b.size)*b.stability
}

// indicesLess compares two merge candidates' index sets in lexicographic
// order, the deterministic final tie-break.
func indicesLess(a, b []int) bool {
	for k := 0; k < len(a) && k < len(b); k++ {
		if a[k] != b[k] {
			return a[k] < b[k]
		}
	}
	return len(a) < len(b)
}

func mergeOnce(candidates []*candidate) []*candidate {
	bestI, bestJ := -1, -1
	var bestLoss float64
	var bestSize uint64

	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			loss := tevLoss(candidates[i], candidates[j])
			mergedSize := candidates[i].size + candidates[j].size

			better := bestI < 0
			if !better {
				switch {
				case loss < bestLoss:
					better = true
				case loss > bestLoss:
					better = false
				case mergedSize < bestSize:
					better = true
				case mergedSize > bestSize:
					better = false
				default:
					better = indicesLess(candidates[i].indices, candidates[bestI].indices) ||
						(equalIndices(candidates[i].indices, candidates[bestI].indices) &&
							indicesLess(candidates[j].indices, candidates[bestJ].indices))
				}
			}
			if better {
				bestI, bestJ, bestLoss, bestSize = i, j, loss, mergedSize
			}
		}
	}

	a, b := candidates[bestI], candidates[bestJ]
	merged := &candidate{
		indices:    mergeIndices(a.indices, b.indices),
		names:      append(append([]string{}, a.names...), b.names...),
		size:       a.size + b.size,
		stability:  minFloat(a.stability, b.stability),
		mtimeClamp: maxUint64(a.mtimeClamp, b.mtimeClamp),
		files:      mergeFiles(a.files, b.files),
	}

	out := make([]*candidate, 0, len(candidates)-1)
	for k, c := range candidates {
		if k != bestI && k != bestJ {
			out = append(out, c)
		}
	}
	out = append(out, merged)
	return out
}

func mergeIndices(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	sort.Ints(out)
	return out
}

func equalIndices(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func mergeFiles(a, b *rootfs.FileMap) *rootfs.FileMap {
	out := rootfs.NewFileMap()
	a.Ascend(func(path string, info rootfs.FileInfo) bool {
		out.Set(path, info)
		return true
	})
	b.Ascend(func(path string, info rootfs.FileInfo) bool {
		out.Set(path, info)
		return true
	})
	return out
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxUint64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
