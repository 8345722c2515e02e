package alpmrepo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chunkah/chunkah/pkg/rootfs"
)

func writePackage(t *testing.T, dbDir, dirName, desc, mtree string) {
	t.Helper()
	pkgDir := filepath.Join(dbDir, dirName)
	require.NoError(t, os.MkdirAll(pkgDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "desc"), []byte(desc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "mtree"), []byte(mtree), 0o644))
}

func TestLoadClaimsCorrectFiles(t *testing.T) {
	root := t.TempDir()
	dbDir := filepath.Join(root, "var/lib/pacman/local")
	require.NoError(t, os.MkdirAll(dbDir, 0o755))

	writePackage(t, dbDir, "bash-5.2.15-5",
		"%NAME%\nbash\n\n%BASE%\nbash\n\n%BUILDDATE%\n1700000000\n\n",
		"#mtree\n./usr type=dir mode=755\n./usr/bin type=dir mode=755\n./usr/bin/bash type=file mode=755\n")

	writePackage(t, dbDir, "glibc-2.39-5",
		"%NAME%\nglibc\n\n%BASE%\nglibc\n\n%BUILDDATE%\n1700000001\n\n",
		"#mtree\n./usr type=dir mode=755\n./usr/lib type=dir mode=755\n")

	repo, err := Load(root)
	require.NoError(t, err)
	require.NotNil(t, repo)

	claims := repo.ClaimsForPath("/usr", rootfs.FileTypeDirectory)
	require.Len(t, claims, 2)

	require.Empty(t, repo.ClaimsForPath("/usr", rootfs.FileTypeFile))
	require.Empty(t, repo.ClaimsForPath("/usr", rootfs.FileTypeSymlink))

	names := make(map[string]bool)
	for _, id := range claims {
		info := repo.ComponentInfo(id)
		names[info.Name] = true
		require.Equal(t, 0.0, info.Stability)
	}
	require.True(t, names["bash"])
	require.True(t, names["glibc"])
}

func TestLoadNoLocalDB(t *testing.T) {
	root := t.TempDir()
	repo, err := Load(root)
	require.NoError(t, err)
	require.Nil(t, repo)
}
