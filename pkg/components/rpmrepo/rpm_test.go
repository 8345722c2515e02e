package rpmrepo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chunkah/chunkah/pkg/rootfs"
)

func TestParseSRPMName(t *testing.T) {
	cases := map[string]string{
		"bash-5.2.15-5.fc40.src.rpm":            "bash",
		"systemd-256.4-1.fc41.src.rpm":          "systemd",
		"python3-3.12.0-1.fc40.src.rpm":         "python3",
		"glibc-2.39-5.fc40.src.rpm":             "glibc",
		"python-dateutil-2.8.2-1.fc40.src.rpm":  "python-dateutil",
		"cairo-dock-plugins-3.4.1-1.fc40.src.rpm": "cairo-dock-plugins",
		"xorg-x11-server-1.20.14-1.fc40.src.rpm":  "xorg-x11-server",
		"name-version":                          "name-version",
		"bash-5.2.15-5.fc40":                     "bash",
		"nodash":                                 "nodash",
	}
	for in, want := range cases {
		require.Equal(t, want, parseSRPMName(in), "input %q", in)
	}
}

func dirFile(path string) rpmFile  { return rpmFile{Path: path, Mode: 0040755} }
func regFile(path string) rpmFile  { return rpmFile{Path: path, Mode: 0100644} }
func linkFile(path string) rpmFile { return rpmFile{Path: path, Mode: 0120777} }

func fedoraFixture() []rpmPackage {
	return []rpmPackage{
		{
			Name:      "bash",
			SourceRpm: "bash-5.2.15-5.fc40.src.rpm",
			BuildTime: 1753299195,
			Files: []rpmFile{
				regFile("/usr/bin/bash"),
				linkFile("/usr/bin/sh"),
				dirFile("/usr/lib/.build-id"),
			},
		},
		{
			Name:      "glibc",
			SourceRpm: "glibc-2.39-5.fc40.src.rpm",
			BuildTime: 1765791404,
			Files: []rpmFile{
				regFile("/usr/lib64/libc.so.6"),
				dirFile("/usr/lib/.build-id"),
			},
		},
		{
			Name:      "coreutils",
			SourceRpm: "coreutils-9.4-1.fc40.src.rpm",
			BuildTime: 1753000000,
			Files: []rpmFile{
				regFile("/usr/bin/ls"),
				dirFile("/usr/lib/.build-id"),
			},
		},
	}
}

func TestLoadFromPackagesClaimsForPath(t *testing.T) {
	repo := loadFromPackages(fedoraFixture(), 2_000_000_000)

	claims := repo.ClaimsForPath("/usr/bin/bash", rootfs.FileTypeFile)
	require.Len(t, claims, 1)
	info := repo.ComponentInfo(claims[0])
	require.Equal(t, "bash", info.Name)
	require.Equal(t, uint64(1753299195), info.MtimeClamp)

	claims = repo.ClaimsForPath("/usr/bin/sh", rootfs.FileTypeSymlink)
	require.Len(t, claims, 1)
	require.Equal(t, "bash", repo.ComponentInfo(claims[0]).Name)

	claims = repo.ClaimsForPath("/usr/lib64/libc.so.6", rootfs.FileTypeFile)
	require.Len(t, claims, 1)
	info = repo.ComponentInfo(claims[0])
	require.Equal(t, "glibc", info.Name)
	require.Equal(t, uint64(1765791404), info.MtimeClamp)

	require.Empty(t, repo.ClaimsForPath("/some/unowned/file", rootfs.FileTypeFile))

	for _, rpmdbPath := range []string{
		"/usr/lib/sysimage/rpm/rpmdb.sqlite",
		"/usr/share/rpm/macros",
		"/var/lib/rpm/Packages",
	} {
		require.Empty(t, repo.ClaimsForPath(rpmdbPath, rootfs.FileTypeFile), "rpmdb path %s", rpmdbPath)
	}
}

func TestLoadFromPackagesClaimsForPathWrongType(t *testing.T) {
	repo := loadFromPackages(fedoraFixture(), 2_000_000_000)

	require.Empty(t, repo.ClaimsForPath("/usr/bin/bash", rootfs.FileTypeSymlink))
	require.Empty(t, repo.ClaimsForPath("/usr/bin/sh", rootfs.FileTypeFile))
}

func TestLoadFromPackagesSharedDirectory(t *testing.T) {
	repo := loadFromPackages(fedoraFixture(), 2_000_000_000)

	claims := repo.ClaimsForPath("/usr/lib/.build-id", rootfs.FileTypeDirectory)
	require.GreaterOrEqual(t, len(claims), 2)

	names := make(map[string]bool)
	for _, id := range claims {
		names[repo.ComponentInfo(id).Name] = true
	}
	for _, want := range []string{"bash", "glibc", "coreutils"} {
		require.True(t, names[want], "%s should claim /usr/lib/.build-id", want)
	}
}

func TestLoadFromPackagesSubpackagesShareSRPM(t *testing.T) {
	pkgs := []rpmPackage{
		{Name: "python-dateutil", SourceRpm: "python-dateutil-2.8.2-1.fc40.src.rpm", BuildTime: 100, Files: []rpmFile{regFile("/usr/lib/python3/dateutil/__init__.py")}},
		{Name: "python-dateutil-doc", SourceRpm: "python-dateutil-2.8.2-1.fc40.src.rpm", BuildTime: 100, Files: []rpmFile{regFile("/usr/share/doc/python-dateutil/README")}},
	}
	repo := loadFromPackages(pkgs, 2_000_000_000)

	require.Len(t, repo.names, 1)
	require.Equal(t, "python-dateutil", repo.names[0])

	claims := repo.ClaimsForPath("/usr/lib/python3/dateutil/__init__.py", rootfs.FileTypeFile)
	require.Len(t, claims, 1)
	claims2 := repo.ClaimsForPath("/usr/share/doc/python-dateutil/README", rootfs.FileTypeFile)
	require.Len(t, claims2, 1)
	require.Equal(t, claims[0], claims2[0])
}
