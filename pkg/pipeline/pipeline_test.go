package pipeline

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func setXattr(t *testing.T, path, name, value string) {
	t.Helper()
	require.NoError(t, unix.Setxattr(path, name, []byte(value), 0))
}

// buildRootfs lays out a minimal tree with one file carrying a
// user.component xattr, so the xattr backend has something to attribute and
// RequireNonEmpty is satisfied without a real package database.
func buildRootfs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "opt", "myapp"), 0o755))
	filePath := filepath.Join(dir, "opt", "myapp", "config")
	require.NoError(t, os.WriteFile(filePath, []byte("hello"), 0o644))
	setXattr(t, filePath, "user.component", "myapp")
	return dir
}

func TestRunProducesArchive(t *testing.T) {
	dir := buildRootfs(t)
	epoch := uint64(1)

	var out bytes.Buffer
	err := Run(Options{
		RootfsPath:      dir,
		Output:          &out,
		MaxLayers:       64,
		SourceDateEpoch: &epoch,
	})
	require.NoError(t, err)
	require.NotZero(t, out.Len())

	tr := tar.NewReader(&out)
	var names []string
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		names = append(names, hdr.Name)
	}
	require.Contains(t, names, "oci-layout")
	require.Contains(t, names, "index.json")
}

func TestRunFailsWithNoAttributableContent(t *testing.T) {
	dir := t.TempDir()
	epoch := uint64(1)

	var out bytes.Buffer
	err := Run(Options{
		RootfsPath:      dir,
		Output:          &out,
		MaxLayers:       64,
		SourceDateEpoch: &epoch,
	})
	require.Error(t, err)
	require.ErrorContains(t, err, "no supported component repo found in rootfs")
}

func TestRunRejectsMalformedLabel(t *testing.T) {
	dir := buildRootfs(t)
	epoch := uint64(1)

	var out bytes.Buffer
	err := Run(Options{
		RootfsPath:      dir,
		Output:          &out,
		MaxLayers:       64,
		SourceDateEpoch: &epoch,
		Labels:          []string{"no-equals-sign"},
	})
	require.Error(t, err)
}
