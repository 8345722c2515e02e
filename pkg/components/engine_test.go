package components_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chunkah/chunkah/pkg/components"
	"github.com/chunkah/chunkah/pkg/components/xattrrepo"
	"github.com/chunkah/chunkah/pkg/rootfs"
)

// fakeRepo stands in for a package backend (rpm/alpm) in tests that don't
// need a real package database: a fixed claim table and a fixed component
// name/mtime/stability per id.
type fakeRepo struct {
	name     string
	priority int
	claims   map[string][]int
	infos    map[int]components.Info
}

func (f *fakeRepo) Name() string         { return f.name }
func (f *fakeRepo) DefaultPriority() int { return f.priority }
func (f *fakeRepo) ClaimsForPath(path string, _ rootfs.FileType) []int {
	return f.claims[path]
}
func (f *fakeRepo) ComponentInfo(id int) components.Info { return f.infos[id] }

func TestIntoComponents(t *testing.T) {
	files := rootfs.NewFileMap()
	files.Set("/usr/bin", rootfs.FileInfo{Type: rootfs.FileTypeDirectory})
	files.Set("/usr/bin/bash", rootfs.FileInfo{Type: rootfs.FileTypeFile})
	files.Set("/usr/lib64", rootfs.FileInfo{Type: rootfs.FileTypeDirectory})
	files.Set("/usr/lib64/libc.so.6", rootfs.FileInfo{Type: rootfs.FileTypeFile})
	files.Set("/usr/lib/sysimage/rpm", rootfs.FileInfo{Type: rootfs.FileTypeDirectory})
	files.Set("/usr/lib/sysimage/rpm/rpmdb.sqlite", rootfs.FileInfo{Type: rootfs.FileTypeFile})
	files.Set("/opt/myapp", rootfs.FileInfo{Type: rootfs.FileTypeDirectory})
	files.Set("/opt/myapp/config", rootfs.FileInfo{Type: rootfs.FileTypeFile})
	files.Set("/opt/myapp/data", rootfs.FileInfo{
		Type:   rootfs.FileTypeFile,
		Xattrs: []rootfs.XattrPair{{Name: "user.component", Value: []byte("myapp")}},
	})
	files.Set("/usr/bin/bash", rootfs.FileInfo{
		Type:   rootfs.FileTypeFile,
		Xattrs: []rootfs.XattrPair{{Name: "user.component", Value: []byte("xattr-component")}},
	})

	xr, err := xattrrepo.Load(files, 0)
	require.NoError(t, err)
	require.NotNil(t, xr)

	rpm := &fakeRepo{
		name:     "rpm",
		priority: 10,
		claims: map[string][]int{
			"/usr/lib64/libc.so.6": {0},
		},
		infos: map[int]components.Info{
			0: {Name: "glibc", MtimeClamp: 1000, Stability: 0.9},
		},
	}

	engine := components.NewEngine([]components.Repo{rpm, xr}, 0)
	result := engine.IntoComponents(files)

	_, ok := result["xattr/xattr-component"].Files.Get("/usr/bin/bash")
	require.True(t, ok, "/usr/bin/bash should belong to xattr/xattr-component")

	_, ok = result["rpm/glibc"].Files.Get("/usr/lib64/libc.so.6")
	require.True(t, ok, "/usr/lib64/libc.so.6 should belong to rpm/glibc")

	_, ok = result["xattr/myapp"].Files.Get("/opt/myapp/data")
	require.True(t, ok, "/opt/myapp/data should belong to xattr/myapp")

	_, ok = result[components.UnclaimedComponent].Files.Get("/opt/myapp/config")
	require.True(t, ok, "/opt/myapp/config should be unclaimed")

	_, ok = result[components.UnclaimedComponent].Files.Get("/usr/lib/sysimage/rpm/rpmdb.sqlite")
	require.True(t, ok, "rpmdb path should be unclaimed")

	for _, c := range result {
		require.Greater(t, c.Stability, 0.0)
	}
}

func TestIntoComponentsXattrOnly(t *testing.T) {
	files := rootfs.NewFileMap()
	files.Set("/opt/myapp", rootfs.FileInfo{
		Type:   rootfs.FileTypeDirectory,
		Xattrs: []rootfs.XattrPair{{Name: "user.component", Value: []byte("myapp")}},
	})
	files.Set("/opt/myapp/config", rootfs.FileInfo{Type: rootfs.FileTypeFile})

	xr, err := xattrrepo.Load(files, 0)
	require.NoError(t, err)
	require.NotNil(t, xr)

	engine := components.NewEngine([]components.Repo{xr}, 0)
	result := engine.IntoComponents(files)

	comp, ok := result["xattr/myapp"]
	require.True(t, ok)
	_, ok = comp.Files.Get("/opt/myapp/config")
	require.True(t, ok)
}

func TestRequireNonEmpty(t *testing.T) {
	engine := components.NewEngine(nil, 0)
	require.ErrorIs(t, engine.RequireNonEmpty(), components.ErrNoComponentRepo)
}
