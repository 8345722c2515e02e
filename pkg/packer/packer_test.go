package packer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chunkah/chunkah/pkg/components"
	"github.com/chunkah/chunkah/pkg/packer"
	"github.com/chunkah/chunkah/pkg/rootfs"
)

func comp(name string, size uint64, stability float64, mtime uint64) *components.Component {
	files := rootfs.NewFileMap()
	files.Set("/"+name, rootfs.FileInfo{Type: rootfs.FileTypeFile, Size: size, Mtime: mtime})
	return &components.Component{Name: name, MtimeClamp: mtime, Stability: stability, Files: files}
}

func TestPackIdentityWhenUnderBudget(t *testing.T) {
	comps := map[string]*components.Component{
		"a": comp("a", 100, 0.9, 10),
		"b": comp("b", 200, 0.5, 20),
	}

	groups := packer.Pack(comps, 5)
	require.Len(t, groups, 2)
	names := []string{groups[0].Name, groups[1].Name}
	require.ElementsMatch(t, []string{"a", "b"}, names)
}

func TestPackDropsEmptyComponents(t *testing.T) {
	empty := &components.Component{Name: "empty", Files: rootfs.NewFileMap()}
	comps := map[string]*components.Component{
		"a":     comp("a", 100, 0.9, 10),
		"empty": empty,
	}

	groups := packer.Pack(comps, 5)
	require.Len(t, groups, 1)
	require.Equal(t, "a", groups[0].Name)
}

func TestPackMergesToFitBudget(t *testing.T) {
	comps := map[string]*components.Component{
		"a": comp("a", 100, 0.9, 10),
		"b": comp("b", 100, 0.9, 20),
		"c": comp("c", 100, 0.1, 5),
	}

	groups := packer.Pack(comps, 2)
	require.Len(t, groups, 2)

	var total int
	for _, g := range groups {
		total += g.Files.Len()
	}
	require.Equal(t, 3, total)
}

func TestPackMergeMetadataRules(t *testing.T) {
	// a and b are both highly stable and similarly sized, so they should
	// merge before either touches c, which is far less stable.
	comps := map[string]*components.Component{
		"a": comp("a", 50, 0.95, 100),
		"b": comp("b", 50, 0.90, 200),
		"c": comp("c", 1000, 0.01, 5),
	}

	groups := packer.Pack(comps, 2)
	require.Len(t, groups, 2)

	var merged *packer.Group
	for i := range groups {
		if groups[i].Name == "a b" || groups[i].Name == "b a" {
			merged = &groups[i]
		}
	}
	require.NotNil(t, merged, "expected a and b to merge")
	require.Equal(t, uint64(200), merged.MtimeClamp)
	require.Equal(t, 0.90, merged.Stability)
}

func TestPackDeterministicAcrossRuns(t *testing.T) {
	comps := map[string]*components.Component{
		"a": comp("a", 50, 0.95, 100),
		"b": comp("b", 60, 0.90, 200),
		"c": comp("c", 70, 0.50, 300),
		"d": comp("d", 80, 0.10, 400),
	}

	first := packer.Pack(comps, 2)
	second := packer.Pack(comps, 2)

	require.Equal(t, len(first), len(second))
	for i := range first {
		require.Equal(t, first[i].Name, second[i].Name)
		require.Equal(t, first[i].MtimeClamp, second[i].MtimeClamp)
		require.Equal(t, first[i].Stability, second[i].Stability)
	}
}
