// Package tarlayer streams a component group's FileMap out as a single,
// reproducible tar layer: ancestor directories are synthesized as needed,
// hardlinked files are collapsed to link entries, and every header's mtime
// is clamped to the owning component group's mtime clamp.
package tarlayer

import (
	"archive/tar"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chunkah/chunkah/pkg/rootfs"
)

// WriteFiles streams files in ascending path order to tw, synthesizing any
// ancestor directory not already present in files by statting rootfsPath.
// mtimeClamp upper-bounds every entry's mtime.
func WriteFiles(tw *tar.Writer, rootfsPath string, files *rootfs.FileMap, mtimeClamp uint64) error {
	var dirStack []string
	inodeToPath := make(map[uint64]string)

	var writeErr error
	files.Ascend(func(path string, info rootfs.FileInfo) bool {
		for len(dirStack) > 0 {
			top := dirStack[len(dirStack)-1]
			if path != top && strings.HasPrefix(path, top+"/") {
				break
			}
			dirStack = dirStack[:len(dirStack)-1]
		}

		for _, ancestor := range missingAncestors(dirStack, path) {
			ancestorInfo, ok := files.Get(ancestor)
			if !ok {
				var err error
				ancestorInfo, err = rootfs.StatPath(filepath.Join(rootfsPath, rootfs.StripRoot(ancestor)))
				if err != nil {
					writeErr = fmt.Errorf("getting metadata for %s: %w", ancestor, err)
					return false
				}
			}
			if err := writeDirEntry(tw, ancestor, mtimeClamp, ancestorInfo); err != nil {
				writeErr = fmt.Errorf("writing parent directory %s: %w", ancestor, err)
				return false
			}
			dirStack = append(dirStack, ancestor)
		}

		if info.Type != rootfs.FileTypeDirectory && info.Nlink > 1 {
			if firstPath, ok := inodeToPath[info.Ino]; ok {
				if err := writeHardlinkEntry(tw, path, firstPath, mtimeClamp, info); err != nil {
					writeErr = fmt.Errorf("appending hardlink %s -> %s: %w", path, firstPath, err)
					return false
				}
				return true
			}
			inodeToPath[info.Ino] = path
		}

		var err error
		switch info.Type {
		case rootfs.FileTypeDirectory:
			err = writeDirEntry(tw, path, mtimeClamp, info)
			dirStack = append(dirStack, path)
		case rootfs.FileTypeFile:
			err = writeFileEntry(tw, rootfsPath, path, mtimeClamp, info)
		case rootfs.FileTypeSymlink:
			err = writeSymlinkEntry(tw, rootfsPath, path, mtimeClamp, info)
		}
		if err != nil {
			writeErr = fmt.Errorf("appending %s: %w", path, err)
			return false
		}
		return true
	})

	return writeErr
}

// missingAncestors returns the ancestor directories of path that are not
// already on dirStack, shallowest first, so they can be written and pushed
// in the order the tar format requires (parents before children).
func missingAncestors(dirStack []string, path string) []string {
	top := ""
	if len(dirStack) > 0 {
		top = dirStack[len(dirStack)-1]
	}

	var ancestors []string
	parent := filepath.ToSlash(filepath.Dir(path))
	for parent != "/" && parent != "." && parent != top {
		ancestors = append(ancestors, parent)
		parent = filepath.ToSlash(filepath.Dir(parent))
	}

	sort.Slice(ancestors, func(i, j int) bool { return ancestors[i] < ancestors[j] })
	return ancestors
}

func baseHeader(info rootfs.FileInfo, mtimeClamp uint64) tar.Header {
	mtime := info.Mtime
	if mtimeClamp < mtime {
		mtime = mtimeClamp
	}
	return tar.Header{
		Uid:     int(info.UID),
		Gid:     int(info.GID),
		Mode:    int64(info.Mode),
		ModTime: time.Unix(int64(mtime), 0).UTC(),
	}
}

func xattrPAXRecords(info rootfs.FileInfo) map[string]string {
	if len(info.Xattrs) == 0 {
		return nil
	}
	records := make(map[string]string, len(info.Xattrs))
	for _, x := range info.Xattrs {
		records["SCHILY.xattr."+x.Name] = string(x.Value)
	}
	return records
}

func writeDirEntry(tw *tar.Writer, path string, mtimeClamp uint64, info rootfs.FileInfo) error {
	hdr := baseHeader(info, mtimeClamp)
	hdr.Typeflag = tar.TypeDir
	hdr.Size = 0
	hdr.PAXRecords = xattrPAXRecords(info)

	rel := rootfs.StripRoot(path)
	if rel == "" {
		hdr.Name = "./"
	} else {
		hdr.Name = rel + "/"
	}
	return tw.WriteHeader(&hdr)
}

func writeHardlinkEntry(tw *tar.Writer, path, linkTarget string, mtimeClamp uint64, info rootfs.FileInfo) error {
	hdr := baseHeader(info, mtimeClamp)
	hdr.Typeflag = tar.TypeLink
	hdr.Size = 0
	// Strip file-type bits so extractors display 'h', matching GNU tar and
	// Python's tarfile.
	hdr.Mode = int64(info.Mode) & 0o7777
	hdr.Name = rootfs.StripRoot(path)
	hdr.Linkname = rootfs.StripRoot(linkTarget)
	return tw.WriteHeader(&hdr)
}

func writeFileEntry(tw *tar.Writer, rootfsPath, path string, mtimeClamp uint64, info rootfs.FileInfo) error {
	rel := rootfs.StripRoot(path)
	content, err := os.ReadFile(filepath.Join(rootfsPath, rel))
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	hdr := baseHeader(info, mtimeClamp)
	hdr.Typeflag = tar.TypeReg
	hdr.Size = int64(len(content))
	hdr.Name = rel
	hdr.PAXRecords = xattrPAXRecords(info)

	if err := tw.WriteHeader(&hdr); err != nil {
		return err
	}
	_, err = tw.Write(content)
	return err
}

func writeSymlinkEntry(tw *tar.Writer, rootfsPath, path string, mtimeClamp uint64, info rootfs.FileInfo) error {
	rel := rootfs.StripRoot(path)
	target, err := os.Readlink(filepath.Join(rootfsPath, rel))
	if err != nil {
		return fmt.Errorf("reading symlink %s: %w", path, err)
	}

	hdr := baseHeader(info, mtimeClamp)
	hdr.Typeflag = tar.TypeSymlink
	hdr.Size = 0
	hdr.Name = rel
	hdr.Linkname = target
	hdr.PAXRecords = xattrPAXRecords(info)

	return tw.WriteHeader(&hdr)
}
