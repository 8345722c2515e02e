package rootfs

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/karrick/godirwalk"
	"golang.org/x/sys/unix"
)

// selinuxXattr is dropped from every scan: it's populated by the container
// runtime at extraction time, not meaningful to carry in the layer itself.
const selinuxXattr = "security.selinux"

type pruneKind int

const (
	pruneExact pruneKind = iota
	pruneChildrenOnly
)

type prunePath struct {
	kind pruneKind
	path string
}

// parsePrunePath interprets a --prune flag value: a trailing "/" means
// "prune children only, keep the directory itself".
func parsePrunePath(raw string) (prunePath, error) {
	if raw == "/" {
		return prunePath{}, fmt.Errorf("cannot prune root directory")
	}
	if !strings.HasPrefix(raw, "/") {
		return prunePath{}, fmt.Errorf("prune path must be absolute: %s", raw)
	}
	if base, ok := strings.CutSuffix(raw, "/"); ok {
		return prunePath{kind: pruneChildrenOnly, path: base}, nil
	}
	return prunePath{kind: pruneExact, path: raw}, nil
}

type pruneAction int

const (
	pruneKeep pruneAction = iota
	pruneSkipChildren
	pruneSkipEntirely
)

// pathHasPrefix reports whether path is prefix or a descendant of prefix,
// matching whole path components rather than raw string bytes (so "/foo"
// does not match "/foobar").
func pathHasPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}

func checkPrune(path string, prunes []prunePath) pruneAction {
	for _, p := range prunes {
		switch p.kind {
		case pruneExact:
			if pathHasPrefix(path, p.path) {
				return pruneSkipEntirely
			}
		case pruneChildrenOnly:
			if path == p.path {
				return pruneSkipChildren
			}
			if pathHasPrefix(path, p.path) {
				return pruneSkipEntirely
			}
		}
	}
	return pruneKeep
}

// Scanner walks a rootfs directory without following symlinks, producing a
// deterministic FileMap ordered by path.
type Scanner struct {
	rootfs           string
	skipSpecialFiles bool
	prunePaths       []prunePath
}

// New creates a Scanner rooted at the given directory.
func New(rootfsPath string) *Scanner {
	return &Scanner{rootfs: rootfsPath}
}

// SkipSpecialFiles controls whether sockets, FIFOs, and devices are skipped
// (true) or cause a scan error (false, the default).
func (s *Scanner) SkipSpecialFiles(skip bool) *Scanner {
	s.skipSpecialFiles = skip
	return s
}

// Prune records paths to exclude from the scan. A trailing "/" keeps the
// directory itself but excludes its children.
func (s *Scanner) Prune(paths []string) (*Scanner, error) {
	parsed := make([]prunePath, 0, len(paths))
	for _, raw := range paths {
		p, err := parsePrunePath(raw)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, p)
	}
	s.prunePaths = parsed
	return s, nil
}

// Scan walks the rootfs and returns the resulting FileMap. The root
// directory itself is never included.
func (s *Scanner) Scan() (*FileMap, error) {
	files := NewFileMap()

	root := filepath.Clean(s.rootfs)
	err := godirwalk.Walk(root, &godirwalk.Options{
		Unsorted: false,
		Callback: func(osPathname string, _ *godirwalk.Dirent) error {
			if osPathname == root {
				return nil
			}

			rel, err := filepath.Rel(root, osPathname)
			if err != nil {
				return fmt.Errorf("computing relative path for %s: %w", osPathname, err)
			}
			if !isValidUTF8(rel) {
				return fmt.Errorf("path is not valid UTF-8: %s", osPathname)
			}
			path := "/" + filepath.ToSlash(rel)

			var stat unix.Stat_t
			if err := unix.Lstat(osPathname, &stat); err != nil {
				return fmt.Errorf("getting metadata for %s: %w", path, err)
			}

			fileType, ok := fileTypeFromMode(stat.Mode)
			if !ok {
				if s.skipSpecialFiles {
					return nil
				}
				return fmt.Errorf("special file type not supported: %s", path)
			}

			action := checkPrune(path, s.prunePaths)
			if action == pruneSkipEntirely {
				if fileType == FileTypeDirectory {
					return filepath.SkipDir
				}
				return nil
			}

			xattrs, err := readXattrs(osPathname)
			if err != nil {
				return fmt.Errorf("reading xattrs for %s: %w", path, err)
			}

			files.Set(path, fileInfoFromStat(&stat, fileType, xattrs))

			if action == pruneSkipChildren && fileType == FileTypeDirectory {
				return filepath.SkipDir
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk rootfs: %w", err)
	}

	return files, nil
}

// StatPath lstat(2)s osPathname directly and reads its extended attributes,
// for callers (the tar writer's ancestor-directory synthesis) that need a
// FileInfo for a path the scan didn't retain.
func StatPath(osPathname string) (FileInfo, error) {
	var stat unix.Stat_t
	if err := unix.Lstat(osPathname, &stat); err != nil {
		return FileInfo{}, fmt.Errorf("getting metadata for %s: %w", osPathname, err)
	}

	fileType, ok := fileTypeFromMode(stat.Mode)
	if !ok {
		return FileInfo{}, fmt.Errorf("special file type not supported: %s", osPathname)
	}

	xattrs, err := readXattrs(osPathname)
	if err != nil {
		return FileInfo{}, fmt.Errorf("reading xattrs for %s: %w", osPathname, err)
	}

	return fileInfoFromStat(&stat, fileType, xattrs), nil
}

func isValidUTF8(s string) bool {
	return strings.ToValidUTF8(s, "�") == s
}

func fileTypeFromMode(mode uint32) (FileType, bool) {
	switch mode & unix.S_IFMT {
	case unix.S_IFDIR:
		return FileTypeDirectory, true
	case unix.S_IFREG:
		return FileTypeFile, true
	case unix.S_IFLNK:
		return FileTypeSymlink, true
	default:
		return FileTypeUnsupported, false
	}
}

func fileInfoFromStat(stat *unix.Stat_t, fileType FileType, xattrs []XattrPair) FileInfo {
	return FileInfo{
		Type:   fileType,
		Mode:   stat.Mode & 07777,
		Size:   uint64(stat.Size),
		UID:    stat.Uid,
		GID:    stat.Gid,
		Mtime:  uint64(stat.Mtim.Sec),
		Ino:    stat.Ino,
		Nlink:  uint64(stat.Nlink),
		Xattrs: xattrs,
	}
}

// readXattrs lists and reads every extended attribute on path, dropping
// security.selinux and erroring on non-UTF-8 keys.
func readXattrs(osPathname string) ([]XattrPair, error) {
	names, err := listXattrNames(osPathname)
	if err != nil {
		return nil, fmt.Errorf("listing xattrs for %s: %w", osPathname, err)
	}

	var out []XattrPair
	for _, name := range names {
		if name == selinuxXattr {
			continue
		}
		if !isValidUTF8(name) {
			return nil, fmt.Errorf("non-UTF8 xattr key %q on %s", name, osPathname)
		}
		value, err := getXattrValue(osPathname, name)
		if err != nil {
			if err == unix.ENODATA {
				// Removed between list and read; treat as absent.
				continue
			}
			return nil, fmt.Errorf("reading xattr %s for %s: %w", name, osPathname, err)
		}
		out = append(out, XattrPair{Name: name, Value: value})
	}
	return out, nil
}

func listXattrNames(path string) ([]string, error) {
	size, err := unix.Llistxattr(path, nil)
	if err != nil {
		if err == unix.ENOTSUP || err == unix.EOPNOTSUPP {
			return nil, nil
		}
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}
	buf := make([]byte, size)
	n, err := unix.Llistxattr(path, buf)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, chunk := range bytes.Split(buf[:n], []byte{0}) {
		if len(chunk) == 0 {
			continue
		}
		names = append(names, string(chunk))
	}
	return names, nil
}

func getXattrValue(path, name string) ([]byte, error) {
	size, err := unix.Lgetxattr(path, name, nil)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, size)
	n, err := unix.Lgetxattr(path, name, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
